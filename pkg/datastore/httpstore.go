package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// HTTPConfig configures the generic HTTP proxy provider, which forwards the
// store contract to a remote data API (e.g. a MongoDB Data API shim).
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Headers map[string]string
}

// HTTPStore translates the store contract into REST calls against a
// configured base URL. The proxy's own "absence" statuses (404 on Get and
// Delete) are translated to value-level results; any other non-2xx response
// surfaces as a TransportError.
type HTTPStore struct {
	cfg    HTTPConfig
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPStore validates the configuration and returns a proxy-backed store.
// A nil client falls back to http.DefaultClient.
func NewHTTPStore(cfg HTTPConfig, client *http.Client, logger zerolog.Logger) (*HTTPStore, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &ConfigError{Provider: "http", Missing: []string{"DATA_HTTP_BASE_URL"}}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "HTTPStore").Logger(),
	}, nil
}

func (s *HTTPStore) url(parts ...string) string {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	for _, p := range parts {
		base += "/" + url.PathEscape(p)
	}
	return base
}

// do issues one request and decodes a 2xx JSON body into out (when non-nil).
func (s *HTTPStore) do(ctx context.Context, method, requestURL string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, requestURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, requestURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func (s *HTTPStore) List(ctx context.Context, collection string, opts ListOptions) (*Page, error) {
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		params.Set("cursor", opts.Cursor)
	}

	requestURL := s.url(collection)
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	var page Page
	if err := s.do(ctx, http.MethodGet, requestURL, nil, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []Document{}
	}
	return &page, nil
}

func (s *HTTPStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	err := s.do(ctx, http.MethodGet, s.url(collection, id), nil, &doc)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *HTTPStore) Create(ctx context.Context, collection string, doc Document, opts *WriteOptions) (Document, error) {
	body := doc.Clone()
	body["id"] = resolveCreateID(doc, opts)

	var created Document
	if err := s.do(ctx, http.MethodPost, s.url(collection), body, &created); err != nil {
		return nil, err
	}
	if created == nil {
		created = body
	}
	return created, nil
}

func (s *HTTPStore) Update(ctx context.Context, collection, id string, patch Document) (Document, error) {
	var updated Document
	err := s.do(ctx, http.MethodPatch, s.url(collection, id), patch, &updated)
	if IsStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *HTTPStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	err := s.do(ctx, http.MethodDelete, s.url(collection, id), nil, nil)
	if IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
