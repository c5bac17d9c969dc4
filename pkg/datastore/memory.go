package datastore

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store backed by insertion-ordered maps, one
// per collection. It is the default provider for local development and the
// fixture provider for tests; a mutex replaces the single-threaded
// assumption the serverless runtimes get for free.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	order []string
	docs  map[string]Document
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

func (s *MemoryStore) collection(name string) *memoryCollection {
	col, ok := s.collections[name]
	if !ok {
		col = &memoryCollection{docs: make(map[string]Document)}
		s.collections[name] = col
	}
	return col
}

// List paginates in insertion order. The cursor is an opaque offset token;
// Next is empty once the final item has been returned.
func (s *MemoryStore) List(_ context.Context, collection string, opts ListOptions) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(collection)

	start := 0
	if opts.Cursor != "" {
		// An unparseable cursor restarts the scan rather than failing.
		if n, err := strconv.Atoi(opts.Cursor); err == nil && n > 0 {
			start = n
		}
	}
	if start > len(col.order) {
		start = len(col.order)
	}

	limit := opts.Limit
	if limit < 1 {
		limit = defaultListLimit
	}

	end := start + limit
	if end > len(col.order) {
		end = len(col.order)
	}

	items := make([]Document, 0, end-start)
	for _, id := range col.order[start:end] {
		items = append(items, col.docs[id].Clone())
	}

	next := ""
	if end < len(col.order) {
		next = strconv.Itoa(end)
	}
	return &Page{Items: items, Next: next}, nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collection(collection).docs[id]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, collection string, doc Document, opts *WriteOptions) (Document, error) {
	id := resolveCreateID(doc, opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(collection)
	stored := doc.Clone()
	stored["id"] = id
	if _, exists := col.docs[id]; !exists {
		col.order = append(col.order, id)
	}
	col.docs[id] = stored
	return stored.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, patch Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(collection)
	existing, ok := col.docs[id]
	if !ok {
		return nil, ErrNotFound
	}

	merged := existing.Clone()
	for k, v := range patch {
		merged[k] = v
	}
	merged["id"] = id
	col.docs[id] = merged
	return merged.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(collection)
	if _, ok := col.docs[id]; !ok {
		return false, nil
	}
	delete(col.docs, id)
	for i, existing := range col.order {
		if existing == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
	return true, nil
}

const defaultListLimit = 20

// resolveCreateID applies Create's id precedence: explicit option, then the
// document's own id field, then a fresh random identifier.
func resolveCreateID(doc Document, opts *WriteOptions) string {
	if opts != nil && opts.ID != "" {
		return opts.ID
	}
	if id := doc.ID(); id != "" {
		return id
	}
	return uuid.NewString()
}
