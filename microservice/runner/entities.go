package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arun-qikfox/qikai-templates/pkg/datastore"
)

// Collection names used by the scaffold's demo entities.
const (
	demoCollection    = "demo-items"
	counterCollection = "counters"
	metaCollection    = "template-metadata"
	usersCollection   = "users"
	chatsCollection   = "chats"
)

const (
	globalCounterID     = "global"
	seedStatusID        = "seed-status"
	defaultCounterValue = 0
)

// Seed fixtures, mirrored across all runner templates.
var (
	mockDemoItems = []datastore.Document{
		{"id": "1", "name": "Alpha Item", "value": int64(10)},
		{"id": "2", "name": "Beta Item", "value": int64(20)},
		{"id": "3", "name": "Gamma Item", "value": int64(30)},
	}
	mockUsers = []datastore.Document{
		{"id": "u1", "name": "User A"},
		{"id": "u2", "name": "User B"},
	}
	mockChats = []datastore.Document{
		{"id": "c1", "title": "General"},
	}
	mockChatMessages = []datastore.Document{
		{"id": "m1", "chatId": "c1", "userId": "u1", "text": "Hello"},
	}
)

// Entities wraps the store with the scaffold's domain operations: idempotent
// seeding, pagination plumbing, and the fan-out bulk deletes. All multi-
// document writes are independent concurrent calls with no atomicity;
// partial failure leaves a mix of applied and unapplied writes.
type Entities struct {
	store datastore.Store
}

// NewEntities binds the domain operations to a store.
func NewEntities(store datastore.Store) *Entities {
	return &Entities{store: store}
}

// EnsureSeed populates demo items and the global counter exactly once,
// tracked by a seed-status document. It reports whether seeding ran.
func (e *Entities) EnsureSeed(ctx context.Context) (bool, error) {
	meta, err := e.store.Get(ctx, metaCollection, seedStatusID)
	if err != nil {
		return false, err
	}
	if seeded, _ := meta["seeded"].(bool); seeded {
		return false, nil
	}

	docs := make([]datastore.Document, 0, len(mockDemoItems)+1)
	docs = append(docs, mockDemoItems...)
	docs = append(docs, datastore.Document{"id": globalCounterID, "value": int64(defaultCounterValue)})

	collections := make([]string, 0, len(docs))
	for range mockDemoItems {
		collections = append(collections, demoCollection)
	}
	collections = append(collections, counterCollection)

	if err := e.createAll(ctx, collections, docs); err != nil {
		return false, err
	}

	status := datastore.Document{
		"id":       seedStatusID,
		"seeded":   true,
		"seededAt": time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := e.store.Create(ctx, metaCollection, status, &datastore.WriteOptions{ID: seedStatusID}); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureUserSeed inserts the mock users when the collection is empty.
func (e *Entities) EnsureUserSeed(ctx context.Context) error {
	return e.seedIfEmpty(ctx, usersCollection, mockUsers)
}

// EnsureChatSeed inserts the mock chats, each carrying its messages, when
// the collection is empty.
func (e *Entities) EnsureChatSeed(ctx context.Context) error {
	seeds := make([]datastore.Document, 0, len(mockChats))
	for _, chat := range mockChats {
		doc := chat.Clone()
		messages := make([]any, 0)
		for _, msg := range mockChatMessages {
			if msg["chatId"] == chat["id"] {
				messages = append(messages, map[string]any(msg.Clone()))
			}
		}
		doc["messages"] = messages
		seeds = append(seeds, doc)
	}
	return e.seedIfEmpty(ctx, chatsCollection, seeds)
}

func (e *Entities) seedIfEmpty(ctx context.Context, collection string, docs []datastore.Document) error {
	existing, err := e.store.List(ctx, collection, datastore.ListOptions{Limit: 1})
	if err != nil {
		return err
	}
	if len(existing.Items) > 0 {
		return nil
	}
	collections := make([]string, len(docs))
	for i := range docs {
		collections[i] = collection
	}
	return e.createAll(ctx, collections, docs)
}

// createAll fans the creates out concurrently, one goroutine per document.
func (e *Entities) createAll(ctx context.Context, collections []string, docs []datastore.Document) error {
	var wg sync.WaitGroup
	errs := make([]error, len(docs))
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := docs[i].ID()
			_, errs[i] = e.store.Create(ctx, collections[i], docs[i], &datastore.WriteOptions{ID: id})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// List returns one page of a collection, with the caller-facing limit clamp.
func (e *Entities) List(ctx context.Context, collection, cursor string, limit int) (*datastore.Page, error) {
	return e.store.List(ctx, collection, datastore.ListOptions{
		Cursor: cursor,
		Limit:  datastore.ClampLimit(limit),
	})
}

// Upsert creates or overwrites a document under its own id.
func (e *Entities) Upsert(ctx context.Context, collection string, doc datastore.Document) (datastore.Document, error) {
	return e.store.Create(ctx, collection, doc, &datastore.WriteOptions{ID: doc.ID()})
}

// Delete removes one document, reporting whether it existed.
func (e *Entities) Delete(ctx context.Context, collection, id string) (bool, error) {
	return e.store.Delete(ctx, collection, id)
}

// DeleteMany fans out independent deletes and returns how many removed an
// existing document.
func (e *Entities) DeleteMany(ctx context.Context, collection string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var wg sync.WaitGroup
	deleted := make([]bool, len(ids))
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			deleted[i], errs[i] = e.store.Delete(ctx, collection, id)
		}(i, id)
	}
	wg.Wait()

	count := 0
	for i := range ids {
		if errs[i] != nil {
			return count, errs[i]
		}
		if deleted[i] {
			count++
		}
	}
	return count, nil
}

// CounterValue reads the global counter, defaulting when unseeded.
func (e *Entities) CounterValue(ctx context.Context) (int64, error) {
	counter, err := e.store.Get(ctx, counterCollection, globalCounterID)
	if err != nil {
		return 0, err
	}
	if counter == nil {
		return defaultCounterValue, nil
	}
	return numberValue(counter["value"]), nil
}

// IncrementCounter applies a read-modify-write increment. There is no
// atomicity across concurrent increments; the scaffold accepts lost updates.
func (e *Entities) IncrementCounter(ctx context.Context, amount int64) (int64, error) {
	existing, err := e.store.Get(ctx, counterCollection, globalCounterID)
	if err != nil {
		return 0, err
	}

	next := defaultCounterValue + amount
	if existing != nil {
		next = numberValue(existing["value"]) + amount
	}

	doc := datastore.Document{"id": globalCounterID, "value": next}
	if existing == nil {
		if _, err := e.store.Create(ctx, counterCollection, doc, &datastore.WriteOptions{ID: globalCounterID}); err != nil {
			return 0, err
		}
		return next, nil
	}
	updated, err := e.store.Update(ctx, counterCollection, globalCounterID, datastore.Document{"value": next})
	if err != nil {
		return 0, err
	}
	return numberValue(updated["value"]), nil
}

// GetChat returns the chat document, or nil when absent.
func (e *Entities) GetChat(ctx context.Context, chatID string) (datastore.Document, error) {
	return e.store.Get(ctx, chatsCollection, chatID)
}

// ChatMessages returns a chat's messages, or nil with no error when the
// chat itself is absent.
func (e *Entities) ChatMessages(ctx context.Context, chatID string) ([]any, error) {
	chat, err := e.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, nil
	}
	messages, _ := chat["messages"].([]any)
	if messages == nil {
		messages = []any{}
	}
	return messages, nil
}

// AppendChatMessage appends one message to a chat's embedded message list.
func (e *Entities) AppendChatMessage(ctx context.Context, chatID string, message datastore.Document) error {
	chat, err := e.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat == nil {
		return fmt.Errorf("chat %s: %w", chatID, datastore.ErrNotFound)
	}

	messages, _ := chat["messages"].([]any)
	messages = append(messages, map[string]any(message))
	_, err = e.store.Update(ctx, chatsCollection, chatID, datastore.Document{"messages": messages})
	return err
}

// numberValue normalizes the numeric types a document field can carry after
// JSON or codec round trips.
func numberValue(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
