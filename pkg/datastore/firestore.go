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

	"github.com/arun-qikfox/qikai-templates/pkg/gcpauth"
)

const (
	defaultFirestoreDatabase = "(default)"
	defaultFirestoreEndpoint = "https://firestore.googleapis.com"
)

// FirestoreConfig configures the Firestore REST provider. ProjectID,
// ClientEmail and PrivateKeyB64 are required; DatabaseID defaults to
// "(default)" and Endpoint to the public Firestore API.
type FirestoreConfig struct {
	ProjectID     string
	ClientEmail   string
	PrivateKeyB64 string
	DatabaseID    string
	Endpoint      string
}

// FirestoreStore speaks the Firestore REST document API directly, signing
// its own service-account tokens. It exists for runtimes without ambient
// Google credentials; on GCP the Datastore provider is the better fit.
type FirestoreStore struct {
	cfg    FirestoreConfig
	tokens gcpauth.TokenSource
	client *http.Client
	logger zerolog.Logger
}

// NewFirestoreStore validates the configuration and returns a REST-backed
// store. A nil tokens source gets a TokenProvider built from the config; a
// nil client falls back to http.DefaultClient.
func NewFirestoreStore(cfg FirestoreConfig, tokens gcpauth.TokenSource, client *http.Client, logger zerolog.Logger) (*FirestoreStore, error) {
	var missing []string
	if strings.TrimSpace(cfg.ProjectID) == "" {
		missing = append(missing, "FIRESTORE_PROJECT_ID")
	}
	if strings.TrimSpace(cfg.ClientEmail) == "" {
		missing = append(missing, "FIRESTORE_CLIENT_EMAIL")
	}
	if strings.TrimSpace(cfg.PrivateKeyB64) == "" {
		missing = append(missing, "FIRESTORE_PRIVATE_KEY_B64")
	}
	if len(missing) > 0 {
		return nil, &ConfigError{Provider: "firestore", Missing: missing}
	}

	if cfg.DatabaseID == "" {
		cfg.DatabaseID = defaultFirestoreDatabase
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultFirestoreEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	if tokens == nil {
		tokens = gcpauth.NewTokenProvider(gcpauth.Credentials{
			ProjectID:     cfg.ProjectID,
			ClientEmail:   cfg.ClientEmail,
			PrivateKeyB64: cfg.PrivateKeyB64,
		}, logger, gcpauth.WithHTTPClient(client))
	}

	return &FirestoreStore{
		cfg:    cfg,
		tokens: tokens,
		client: client,
		logger: logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// documentURL builds the REST path for a collection, or for one document
// when id is non-empty.
func (s *FirestoreStore) documentURL(collection, id string) string {
	base := fmt.Sprintf("%s/v1/projects/%s/databases/%s/documents/%s",
		strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.ProjectID, s.cfg.DatabaseID, collection)
	if id != "" {
		base += "/" + url.PathEscape(id)
	}
	return base
}

func (s *FirestoreStore) do(ctx context.Context, method, requestURL string, body any, out any) error {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtain access token: %w", err)
	}

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
	req.Header.Set("Authorization", "Bearer "+token)

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
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// firestoreDocument is the wire shape of one REST document.
type firestoreDocument struct {
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields,omitempty"`
}

// parseDocument extracts the id from the document resource name (its final
// path segment) and decodes the typed field map.
func parseDocument(doc firestoreDocument) Document {
	segments := strings.Split(doc.Name, "/")
	id := segments[len(segments)-1]

	out := Document(decodeFields(doc.Fields))
	out["id"] = id
	return out
}

func (s *FirestoreStore) List(ctx context.Context, collection string, opts ListOptions) (*Page, error) {
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("pageSize", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		params.Set("pageToken", opts.Cursor)
	}

	requestURL := s.documentURL(collection, "")
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	var payload struct {
		Documents     []firestoreDocument `json:"documents"`
		NextPageToken string              `json:"nextPageToken"`
	}
	if err := s.do(ctx, http.MethodGet, requestURL, nil, &payload); err != nil {
		return nil, err
	}

	items := make([]Document, 0, len(payload.Documents))
	for _, doc := range payload.Documents {
		items = append(items, parseDocument(doc))
	}
	return &Page{Items: items, Next: payload.NextPageToken}, nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc firestoreDocument
	err := s.do(ctx, http.MethodGet, s.documentURL(collection, id), nil, &doc)
	if IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseDocument(doc), nil
}

func (s *FirestoreStore) Create(ctx context.Context, collection string, doc Document, opts *WriteOptions) (Document, error) {
	id := resolveCreateID(doc, opts)

	fields := doc.Clone()
	fields["id"] = id
	body := map[string]any{"fields": encodeFields(fields)}

	requestURL := s.documentURL(collection, "") + "?documentId=" + url.QueryEscape(id)
	var created firestoreDocument
	err := s.do(ctx, http.MethodPost, requestURL, body, &created)
	if IsStatus(err, http.StatusConflict) {
		// A document already exists at this id; the contract is upsert, so
		// overwrite it with a full (unmasked) patch.
		err = s.do(ctx, http.MethodPatch, s.documentURL(collection, id), body, &created)
	}
	if err != nil {
		return nil, err
	}
	return parseDocument(created), nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, patch Document) (Document, error) {
	fields := patch.Clone()
	delete(fields, "id")

	// The update mask scopes the write to exactly the supplied keys; the
	// existence precondition turns a missing document into a 404 instead of
	// an implicit create.
	params := url.Values{}
	params.Set("currentDocument.exists", "true")
	for key := range fields {
		params.Add("updateMask.fieldPaths", key)
	}

	body := map[string]any{"fields": encodeFields(fields)}
	requestURL := s.documentURL(collection, id) + "?" + params.Encode()

	var updated firestoreDocument
	err := s.do(ctx, http.MethodPatch, requestURL, body, &updated)
	if IsStatus(err, http.StatusNotFound) {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return parseDocument(updated), nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	// Firestore deletes are unconditionally successful; the existence
	// precondition makes the absent case observable as a 404.
	requestURL := s.documentURL(collection, id) + "?currentDocument.exists=true"
	err := s.do(ctx, http.MethodDelete, requestURL, nil, nil)
	if IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
