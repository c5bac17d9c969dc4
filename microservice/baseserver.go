// Package microservice holds the shared runtime pieces of a deployable
// service: base configuration and a minimal HTTP server with graceful
// shutdown and a health endpoint.
package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// BaseConfig is the runtime configuration every service carries.
type BaseConfig struct {
	LogLevel  string
	HTTPPort  string
	ProjectID string
}

// BaseServer wraps an http.Server with a mux, a /healthz endpoint, and
// graceful shutdown. Services embed it and register their routes on Mux().
type BaseServer struct {
	logger   zerolog.Logger
	httpPort string
	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener
}

// NewBaseServer creates a server listening on httpPort (":8080" style).
func NewBaseServer(logger zerolog.Logger, httpPort string) *BaseServer {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &BaseServer{
		logger:   logger,
		httpPort: httpPort,
		mux:      mux,
		server:   &http.Server{Handler: mux},
	}
}

// Mux exposes the request multiplexer for route registration.
func (s *BaseServer) Mux() *http.ServeMux {
	return s.mux
}

// Start begins serving HTTP requests. It returns once the listener is bound;
// serving continues on a background goroutine.
func (s *BaseServer) Start() error {
	listener, err := net.Listen("tcp", s.httpPort)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpPort, err)
	}
	s.listener = listener
	s.logger.Info().Str("address", listener.Addr().String()).Msg("HTTP server starting")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Addr returns the bound listen address, useful when the port was ":0".
func (s *BaseServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and stops the server.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
