package datastore

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Provider names accepted by the DATA_PROVIDER setting.
const (
	ProviderMemory    = "memory"
	ProviderHTTP      = "http"
	ProviderFirestore = "firestore"
	ProviderDatastore = "datastore"
)

// Config selects and configures one provider. It is resolved once from the
// environment at startup and handed to NewStore.
type Config struct {
	Provider  string
	HTTP      HTTPConfig
	Firestore FirestoreConfig
	Datastore DatastoreConfig
}

// Getenv looks up one environment-style setting; it exists so tests can
// feed the resolver a plain map instead of mutating the process environment.
type Getenv func(key string) string

// ConfigFromEnv resolves the provider selection and its settings from
// environment variables. A nil getenv reads the process environment.
// Malformed DATA_HTTP_HEADERS_JSON is logged as a warning and treated as no
// extra headers; it never fails resolution.
func ConfigFromEnv(getenv Getenv, logger zerolog.Logger) Config {
	if getenv == nil {
		getenv = os.Getenv
	}

	provider := strings.ToLower(strings.TrimSpace(getenv("DATA_PROVIDER")))
	switch provider {
	case ProviderMemory, ProviderHTTP, ProviderFirestore:
	default:
		provider = ProviderDatastore
	}

	return Config{
		Provider: provider,
		HTTP: HTTPConfig{
			BaseURL: strings.TrimSpace(getenv("DATA_HTTP_BASE_URL")),
			APIKey:  strings.TrimSpace(getenv("DATA_HTTP_API_KEY")),
			Headers: parseHeadersJSON(getenv("DATA_HTTP_HEADERS_JSON"), logger),
		},
		Firestore: FirestoreConfig{
			ProjectID:     strings.TrimSpace(getenv("FIRESTORE_PROJECT_ID")),
			ClientEmail:   strings.TrimSpace(getenv("FIRESTORE_CLIENT_EMAIL")),
			PrivateKeyB64: strings.TrimSpace(getenv("FIRESTORE_PRIVATE_KEY_B64")),
			DatabaseID:    strings.TrimSpace(getenv("FIRESTORE_DATABASE_ID")),
			Endpoint:      strings.TrimSpace(getenv("FIRESTORE_API_ENDPOINT")),
		},
		Datastore: DatastoreConfig{
			ProjectID: firstNonEmpty(
				strings.TrimSpace(getenv("GCP_PROJECT_ID")),
				strings.TrimSpace(getenv("GOOGLE_CLOUD_PROJECT")),
				strings.TrimSpace(getenv("FIRESTORE_PROJECT_ID")),
			),
		},
	}
}

// NewStore constructs the configured provider, validating its settings
// before any request is attempted. Missing required settings surface as a
// *ConfigError naming the absent keys.
func NewStore(ctx context.Context, cfg Config, logger zerolog.Logger, opts ...option.ClientOption) (Store, error) {
	switch cfg.Provider {
	case ProviderMemory:
		return NewMemoryStore(), nil
	case ProviderHTTP:
		return NewHTTPStore(cfg.HTTP, nil, logger)
	case ProviderFirestore:
		return NewFirestoreStore(cfg.Firestore, nil, nil, logger)
	case ProviderDatastore, "":
		return NewDatastoreStore(ctx, cfg.Datastore, logger, opts...)
	default:
		return nil, &ConfigError{Provider: cfg.Provider, Reason: "unknown provider"}
	}
}

func parseHeadersJSON(raw string, logger zerolog.Logger) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.Warn().Err(err).Msg("DATA_HTTP_HEADERS_JSON could not be parsed as JSON; ignoring extra headers")
		return nil
	}
	headers := make(map[string]string)
	for k, v := range parsed {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ClampLimit normalizes a caller-supplied page size: non-positive values
// fall back to the default, and the result is capped at 100. Clamping
// belongs to the calling layer, not the store contract.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ProviderName reports which provider a constructed store is, for startup
// logging.
func ProviderName(store Store) string {
	switch store.(type) {
	case *MemoryStore:
		return ProviderMemory
	case *HTTPStore:
		return ProviderHTTP
	case *FirestoreStore:
		return ProviderFirestore
	case *DatastoreStore:
		return ProviderDatastore
	default:
		return "unknown"
	}
}
