package datastore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arun-qikfox/qikai-templates/pkg/datastore"
)

func TestNewHTTPStore_MissingBaseURL(t *testing.T) {
	_, err := datastore.NewHTTPStore(datastore.HTTPConfig{}, nil, zerolog.Nop())
	require.Error(t, err)

	var cfgErr *datastore.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Missing, "DATA_HTTP_BASE_URL")
}

func newProxyStore(t *testing.T, handler http.Handler, cfg datastore.HTTPConfig) *datastore.HTTPStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg.BaseURL = server.URL
	store, err := datastore.NewHTTPStore(cfg, server.Client(), zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestHTTPStore_ListPassesCursorAndLimit(t *testing.T) {
	var gotQuery map[string]string
	store := newProxyStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/widgets", r.URL.Path)
		gotQuery = map[string]string{
			"cursor": r.URL.Query().Get("cursor"),
			"limit":  r.URL.Query().Get("limit"),
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{"id": "a"}, {"id": "b"}},
			"next":  "tok-2",
		})
	}), datastore.HTTPConfig{})

	page, err := store.List(context.Background(), "widgets", datastore.ListOptions{Cursor: "tok-1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"cursor": "tok-1", "limit": "2"}, gotQuery)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "tok-2", page.Next)
}

func TestHTTPStore_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store := newProxyStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/widgets/w1", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "w1", "name": "one"})
		}), datastore.HTTPConfig{})

		doc, err := store.Get(context.Background(), "widgets", "w1")
		require.NoError(t, err)
		assert.Equal(t, "w1", doc.ID())
	})

	t.Run("404 is nil, not an error", func(t *testing.T) {
		store := newProxyStore(t, http.NotFoundHandler(), datastore.HTTPConfig{})
		doc, err := store.Get(context.Background(), "widgets", "gone")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("other statuses are transport errors", func(t *testing.T) {
		store := newProxyStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}), datastore.HTTPConfig{})

		_, err := store.Get(context.Background(), "widgets", "w1")
		var te *datastore.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusBadGateway, te.StatusCode)
		assert.Contains(t, te.Body, "boom")
	})
}

func TestHTTPStore_CreateSendsResolvedID(t *testing.T) {
	var gotBody map[string]any
	store := newProxyStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(gotBody)
	}), datastore.HTTPConfig{})

	created, err := store.Create(context.Background(), "widgets", datastore.Document{"name": "x"}, &datastore.WriteOptions{ID: "w9"})
	require.NoError(t, err)
	assert.Equal(t, "w9", gotBody["id"])
	assert.Equal(t, "w9", created.ID())
}

func TestHTTPStore_Update(t *testing.T) {
	t.Run("patches and returns merged doc", func(t *testing.T) {
		store := newProxyStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "/widgets/w1", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "w1", "name": "patched"})
		}), datastore.HTTPConfig{})

		doc, err := store.Update(context.Background(), "widgets", "w1", datastore.Document{"name": "patched"})
		require.NoError(t, err)
		assert.Equal(t, "patched", doc["name"])
	})

	t.Run("404 maps to ErrNotFound", func(t *testing.T) {
		store := newProxyStore(t, http.NotFoundHandler(), datastore.HTTPConfig{})
		_, err := store.Update(context.Background(), "widgets", "missing-id", datastore.Document{"a": 1})
		assert.ErrorIs(t, err, datastore.ErrNotFound)
	})
}

func TestHTTPStore_Delete(t *testing.T) {
	t.Run("existing", func(t *testing.T) {
		store := newProxyStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		}), datastore.HTTPConfig{})

		deleted, err := store.Delete(context.Background(), "widgets", "w1")
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("404 is false, not an error", func(t *testing.T) {
		store := newProxyStore(t, http.NotFoundHandler(), datastore.HTTPConfig{})
		deleted, err := store.Delete(context.Background(), "widgets", "ghost")
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestHTTPStore_AttachesConfiguredHeaders(t *testing.T) {
	var got http.Header
	store := newProxyStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
	}), datastore.HTTPConfig{
		APIKey:  "secret-key",
		Headers: map[string]string{"X-Data-Source": "mongo"},
	})

	_, err := store.List(context.Background(), "widgets", datastore.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", got.Get("Authorization"))
	assert.Equal(t, "mongo", got.Get("X-Data-Source"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
}
