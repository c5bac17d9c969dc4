package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arun-qikfox/qikai-templates/pkg/datastore"
)

const sessionCollection = "chat-sessions"

// Sessions manages chat-session documents: a title, a model name, and an
// embedded message list. Generating assistant replies is out of scope; the
// session store only records what callers append.
type Sessions struct {
	store datastore.Store
	now   func() time.Time
}

// NewSessions binds session operations to a store.
func NewSessions(store datastore.Store) *Sessions {
	return &Sessions{store: store, now: time.Now}
}

// GetOrCreate returns the session at sessionID, creating an empty one when
// absent. An empty sessionID gets a fresh identifier.
func (s *Sessions) GetOrCreate(ctx context.Context, sessionID, title, model string) (datastore.Document, error) {
	if sessionID != "" {
		existing, err := s.store.Get(ctx, sessionCollection, sessionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	} else {
		sessionID = uuid.NewString()
	}

	now := s.now().UTC()
	if title == "" {
		title = "Chat " + now.Format(time.RFC3339)
	}
	doc := datastore.Document{
		"id":         sessionID,
		"title":      title,
		"model":      model,
		"messages":   []any{},
		"createdAt":  now.UnixMilli(),
		"lastActive": now.UnixMilli(),
	}
	return s.store.Create(ctx, sessionCollection, doc, &datastore.WriteOptions{ID: sessionID})
}

// List returns one page of sessions.
func (s *Sessions) List(ctx context.Context, cursor string, limit int) (*datastore.Page, error) {
	return s.store.List(ctx, sessionCollection, datastore.ListOptions{
		Cursor: cursor,
		Limit:  datastore.ClampLimit(limit),
	})
}

// AppendMessage records one message on the session and bumps lastActive.
func (s *Sessions) AppendMessage(ctx context.Context, sessionID string, message datastore.Document) (datastore.Document, error) {
	session, err := s.store.Get(ctx, sessionCollection, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, datastore.ErrNotFound)
	}

	messages, _ := session["messages"].([]any)
	messages = append(messages, map[string]any(message))
	return s.store.Update(ctx, sessionCollection, sessionID, datastore.Document{
		"messages":   messages,
		"lastActive": s.now().UTC().UnixMilli(),
	})
}

// Delete removes one session, reporting whether it existed.
func (s *Sessions) Delete(ctx context.Context, sessionID string) (bool, error) {
	return s.store.Delete(ctx, sessionCollection, sessionID)
}

// Clear walks the collection in cursor-chained pages and deletes every
// session, returning how many were removed. There is no atomicity; a
// failure partway leaves the remainder in place.
func (s *Sessions) Clear(ctx context.Context) (int, error) {
	deleted := 0
	for {
		// Each pass rescans from the start: deleting invalidates any
		// in-flight cursor, so chaining one here would skip documents.
		page, err := s.store.List(ctx, sessionCollection, datastore.ListOptions{Limit: 50})
		if err != nil {
			return deleted, err
		}
		if len(page.Items) == 0 {
			return deleted, nil
		}
		for _, session := range page.Items {
			removed, err := s.store.Delete(ctx, sessionCollection, session.ID())
			if err != nil {
				return deleted, err
			}
			if removed {
				deleted++
			}
		}
	}
}
