package datastore_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arun-qikfox/qikai-templates/pkg/datastore"
)

func mapGetenv(env map[string]string) datastore.Getenv {
	return func(key string) string { return env[key] }
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("defaults to datastore provider", func(t *testing.T) {
		cfg := datastore.ConfigFromEnv(mapGetenv(nil), zerolog.Nop())
		assert.Equal(t, datastore.ProviderDatastore, cfg.Provider)
	})

	t.Run("unknown provider falls back to datastore", func(t *testing.T) {
		cfg := datastore.ConfigFromEnv(mapGetenv(map[string]string{"DATA_PROVIDER": "mystery"}), zerolog.Nop())
		assert.Equal(t, datastore.ProviderDatastore, cfg.Provider)
	})

	t.Run("provider name is trimmed and lowercased", func(t *testing.T) {
		cfg := datastore.ConfigFromEnv(mapGetenv(map[string]string{"DATA_PROVIDER": "  Firestore "}), zerolog.Nop())
		assert.Equal(t, datastore.ProviderFirestore, cfg.Provider)
	})

	t.Run("datastore project id resolves in priority order", func(t *testing.T) {
		cfg := datastore.ConfigFromEnv(mapGetenv(map[string]string{
			"GOOGLE_CLOUD_PROJECT": "ambient-project",
			"FIRESTORE_PROJECT_ID": "fs-project",
		}), zerolog.Nop())
		assert.Equal(t, "ambient-project", cfg.Datastore.ProjectID)

		cfg = datastore.ConfigFromEnv(mapGetenv(map[string]string{
			"GCP_PROJECT_ID":       "explicit-project",
			"GOOGLE_CLOUD_PROJECT": "ambient-project",
		}), zerolog.Nop())
		assert.Equal(t, "explicit-project", cfg.Datastore.ProjectID)
	})

	t.Run("extra headers parse from JSON", func(t *testing.T) {
		cfg := datastore.ConfigFromEnv(mapGetenv(map[string]string{
			"DATA_HTTP_HEADERS_JSON": `{"X-Source":"mongo","num":7}`,
		}), zerolog.Nop())
		assert.Equal(t, map[string]string{"X-Source": "mongo"}, cfg.HTTP.Headers)
	})

	t.Run("malformed headers JSON is ignored, not fatal", func(t *testing.T) {
		cfg := datastore.ConfigFromEnv(mapGetenv(map[string]string{
			"DATA_HTTP_HEADERS_JSON": "{not json",
		}), zerolog.Nop())
		assert.Nil(t, cfg.HTTP.Headers)
	})
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := datastore.NewStore(ctx, datastore.Config{Provider: datastore.ProviderMemory}, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, datastore.ProviderMemory, datastore.ProviderName(store))
	})

	t.Run("http without base URL fails before any request", func(t *testing.T) {
		_, err := datastore.NewStore(ctx, datastore.Config{Provider: datastore.ProviderHTTP}, zerolog.Nop())
		var cfgErr *datastore.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "http", cfgErr.Provider)
	})

	t.Run("http with base URL", func(t *testing.T) {
		store, err := datastore.NewStore(ctx, datastore.Config{
			Provider: datastore.ProviderHTTP,
			HTTP:     datastore.HTTPConfig{BaseURL: "https://data.example.com"},
		}, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, datastore.ProviderHTTP, datastore.ProviderName(store))
	})

	t.Run("firestore without credentials fails before any request", func(t *testing.T) {
		_, err := datastore.NewStore(ctx, datastore.Config{Provider: datastore.ProviderFirestore}, zerolog.Nop())
		var cfgErr *datastore.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "firestore", cfgErr.Provider)
		assert.ElementsMatch(t, []string{
			"FIRESTORE_PROJECT_ID",
			"FIRESTORE_CLIENT_EMAIL",
			"FIRESTORE_PRIVATE_KEY_B64",
		}, cfgErr.Missing)
	})
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, datastore.ClampLimit(0))
	assert.Equal(t, 20, datastore.ClampLimit(-5))
	assert.Equal(t, 1, datastore.ClampLimit(1))
	assert.Equal(t, 100, datastore.ClampLimit(100))
	assert.Equal(t, 100, datastore.ClampLimit(250))
}
