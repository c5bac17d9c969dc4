// Package runner is the REST scaffold every template ships: thin CRUD
// routes for demo items, a global counter, users, chats, and chat sessions,
// all delegating to the provider-agnostic document store.
package runner

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arun-qikfox/qikai-templates/microservice"
	"github.com/arun-qikfox/qikai-templates/pkg/datastore"
)

// App wires the runner's routes onto a base server.
type App struct {
	*microservice.BaseServer
	entities *Entities
	sessions *Sessions
	logger   zerolog.Logger
	name     string
}

// NewApp creates the runner application over the given store.
func NewApp(cfg *Config, store datastore.Store, logger zerolog.Logger) *App {
	appLogger := logger.With().Str("component", "Runner").Logger()
	base := microservice.NewBaseServer(appLogger, cfg.HTTPPort)

	a := &App{
		BaseServer: base,
		entities:   NewEntities(store),
		sessions:   NewSessions(store),
		logger:     appLogger,
		name:       cfg.ServiceName,
	}

	mux := base.Mux()
	mux.HandleFunc("GET /api/test", a.handleTest)

	mux.HandleFunc("GET /api/demo-items", a.handleListDemoItems)
	mux.HandleFunc("POST /api/demo-items", a.handleUpsertDemoItem)
	mux.HandleFunc("DELETE /api/demo-items/{id}", a.handleDeleteDemoItem)

	mux.HandleFunc("GET /api/counter", a.handleGetCounter)
	mux.HandleFunc("POST /api/counter/increment", a.handleIncrementCounter)

	mux.HandleFunc("GET /api/users", a.handleListUsers)
	mux.HandleFunc("POST /api/users", a.handleCreateUser)
	mux.HandleFunc("DELETE /api/users/{id}", a.handleDeleteUser)
	mux.HandleFunc("POST /api/users/deleteMany", a.handleDeleteManyUsers)

	mux.HandleFunc("GET /api/chats", a.handleListChats)
	mux.HandleFunc("POST /api/chats", a.handleCreateChat)
	mux.HandleFunc("DELETE /api/chats/{id}", a.handleDeleteChat)
	mux.HandleFunc("POST /api/chats/deleteMany", a.handleDeleteManyChats)
	mux.HandleFunc("GET /api/chats/{chatId}/messages", a.handleListChatMessages)
	mux.HandleFunc("POST /api/chats/{chatId}/messages", a.handleAppendChatMessage)

	mux.HandleFunc("GET /api/sessions", a.handleListSessions)
	mux.HandleFunc("POST /api/sessions", a.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", a.handleDeleteSession)
	mux.HandleFunc("DELETE /api/sessions", a.handleClearSessions)

	return a
}

// apiResponse is the uniform envelope every route returns.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a *App) ok(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data}); err != nil {
		a.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (a *App) fail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

// storeError maps store-layer failures onto the envelope: ErrNotFound
// becomes 404, everything else a logged 500.
func (a *App) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, datastore.ErrNotFound) {
		a.fail(w, http.StatusNotFound, "not found")
		return
	}
	a.logger.Error().Err(err).Msg("store operation failed")
	a.fail(w, http.StatusInternalServerError, err.Error())
}

// pageParams pulls cursor and limit from the query string. Limit defaults
// to 20 and is capped at 100; junk values fall back to the default.
func pageParams(r *http.Request) (cursor string, limit int) {
	cursor = r.URL.Query().Get("cursor")
	limit = datastore.ClampLimit(parseIntDefault(r.URL.Query().Get("limit"), 0))
	return cursor, limit
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func decodeBody(r *http.Request, dst any) error {
	defer func() {
		_ = r.Body.Close()
	}()
	return json.NewDecoder(r.Body).Decode(dst)
}

func (a *App) handleTest(w http.ResponseWriter, _ *http.Request) {
	a.ok(w, map[string]string{"name": a.name})
}

// --- Demo items & counter ---

func (a *App) handleListDemoItems(w http.ResponseWriter, r *http.Request) {
	if _, err := a.entities.EnsureSeed(r.Context()); err != nil {
		a.storeError(w, err)
		return
	}
	cursor, limit := pageParams(r)
	page, err := a.entities.List(r.Context(), demoCollection, cursor, limit)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, page)
}

func (a *App) handleUpsertDemoItem(w http.ResponseWriter, r *http.Request) {
	var item datastore.Document
	if err := decodeBody(r, &item); err != nil || item == nil {
		a.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if item.ID() == "" {
		item["id"] = uuid.NewString()
	}
	saved, err := a.entities.Upsert(r.Context(), demoCollection, item)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, saved)
}

func (a *App) handleDeleteDemoItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := a.entities.Delete(r.Context(), demoCollection, id)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, map[string]any{"id": id, "deleted": deleted})
}

func (a *App) handleGetCounter(w http.ResponseWriter, r *http.Request) {
	if _, err := a.entities.EnsureSeed(r.Context()); err != nil {
		a.storeError(w, err)
		return
	}
	value, err := a.entities.CounterValue(r.Context())
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, map[string]int64{"value": value})
}

func (a *App) handleIncrementCounter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount *int64 `json:"amount"`
	}
	// An absent or invalid body increments by one.
	amount := int64(1)
	if err := decodeBody(r, &body); err == nil && body.Amount != nil {
		amount = *body.Amount
	}
	value, err := a.entities.IncrementCounter(r.Context(), amount)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, map[string]int64{"value": value})
}

// --- Users ---

func (a *App) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if err := a.entities.EnsureUserSeed(r.Context()); err != nil {
		a.storeError(w, err)
		return
	}
	cursor, limit := pageParams(r)
	page, err := a.entities.List(r.Context(), usersCollection, cursor, limit)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, page)
}

func (a *App) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil || strings.TrimSpace(body.Name) == "" {
		a.fail(w, http.StatusBadRequest, "name required")
		return
	}
	user := datastore.Document{"id": uuid.NewString(), "name": strings.TrimSpace(body.Name)}
	created, err := a.entities.Upsert(r.Context(), usersCollection, user)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, created)
}

func (a *App) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := a.entities.Delete(r.Context(), usersCollection, id)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, map[string]any{"id": id, "deleted": deleted})
}

func (a *App) handleDeleteManyUsers(w http.ResponseWriter, r *http.Request) {
	a.handleDeleteMany(w, r, usersCollection)
}

// --- Chats ---

func (a *App) handleListChats(w http.ResponseWriter, r *http.Request) {
	if err := a.entities.EnsureChatSeed(r.Context()); err != nil {
		a.storeError(w, err)
		return
	}
	cursor, limit := pageParams(r)
	page, err := a.entities.List(r.Context(), chatsCollection, cursor, limit)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, page)
}

func (a *App) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeBody(r, &body); err != nil || strings.TrimSpace(body.Title) == "" {
		a.fail(w, http.StatusBadRequest, "title required")
		return
	}
	chat := datastore.Document{
		"id":       uuid.NewString(),
		"title":    strings.TrimSpace(body.Title),
		"messages": []any{},
	}
	created, err := a.entities.Upsert(r.Context(), chatsCollection, chat)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, map[string]any{"id": created.ID(), "title": created["title"]})
}

func (a *App) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := a.entities.Delete(r.Context(), chatsCollection, id)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, map[string]any{"id": id, "deleted": deleted})
}

func (a *App) handleDeleteManyChats(w http.ResponseWriter, r *http.Request) {
	a.handleDeleteMany(w, r, chatsCollection)
}

func (a *App) handleDeleteMany(w http.ResponseWriter, r *http.Request, collection string) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &body); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ids := make([]string, 0, len(body.IDs))
	for _, id := range body.IDs {
		if strings.TrimSpace(id) != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		a.fail(w, http.StatusBadRequest, "ids required")
		return
	}
	count, err := a.entities.DeleteMany(r.Context(), collection, ids)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, map[string]any{"deletedCount": count, "ids": ids})
}

// --- Chat messages ---

func (a *App) handleListChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatId")
	messages, err := a.entities.ChatMessages(r.Context(), chatID)
	if err != nil {
		a.storeError(w, err)
		return
	}
	if messages == nil {
		a.fail(w, http.StatusNotFound, "chat not found")
		return
	}
	a.ok(w, messages)
}

func (a *App) handleAppendChatMessage(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatId")
	var body struct {
		UserID string `json:"userId"`
		Text   string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil ||
		strings.TrimSpace(body.UserID) == "" || strings.TrimSpace(body.Text) == "" {
		a.fail(w, http.StatusBadRequest, "userId and text required")
		return
	}

	message := datastore.Document{
		"id":     uuid.NewString(),
		"chatId": chatID,
		"userId": body.UserID,
		"text":   strings.TrimSpace(body.Text),
		"ts":     nowMillis(),
	}
	if err := a.entities.AppendChatMessage(r.Context(), chatID, message); err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			a.fail(w, http.StatusNotFound, "chat not found")
			return
		}
		a.storeError(w, err)
		return
	}
	a.ok(w, message)
}

// --- Sessions ---

func (a *App) handleListSessions(w http.ResponseWriter, r *http.Request) {
	cursor, limit := pageParams(r)
	page, err := a.sessions.List(r.Context(), cursor, limit)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, page)
}

func (a *App) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"sessionId"`
		Title     string `json:"title"`
		Model     string `json:"model"`
	}
	if err := decodeBody(r, &body); err != nil && r.ContentLength > 0 {
		a.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	session, err := a.sessions.GetOrCreate(r.Context(), body.SessionID, body.Title, body.Model)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, session)
}

func (a *App) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := a.sessions.Delete(r.Context(), id)
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, map[string]any{"id": id, "deleted": deleted})
}

func (a *App) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	count, err := a.sessions.Clear(r.Context())
	if err != nil {
		a.storeError(w, err)
		return
	}
	a.ok(w, map[string]any{"deletedCount": count})
}
