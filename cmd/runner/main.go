// The runner binary serves the template REST API over the configured
// document-store provider.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arun-qikfox/qikai-templates/microservice/runner"
	"github.com/arun-qikfox/qikai-templates/pkg/datastore"
)

func main() {
	cfg, err := runner.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := datastore.NewStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct data store")
	}
	logger.Info().Str("provider", datastore.ProviderName(store)).Msg("data store ready")

	app := runner.NewApp(cfg, store, logger)
	if err := app.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start HTTP server")
	}

	<-ctx.Done()
	if err := app.Shutdown(context.Background()); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}
