// Package datastore provides a provider-agnostic document store: a small
// five-operation contract (List, Get, Create, Update, Delete) over named
// collections, with interchangeable backends for in-memory maps, a generic
// HTTP data proxy, the Firestore REST API, and Google Cloud Datastore.
package datastore

import (
	"context"
	"errors"
	"fmt"
)

// Document is an opaque structured record. Every stored document carries a
// string "id" field, unique within its collection; all other fields are
// provider-opaque scalars, nulls, arrays, or nested maps. No schema is
// enforced by the store.
type Document map[string]any

// ID returns the document's "id" field, or "" when unset.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Clone returns a shallow copy of the document's top-level fields.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ListOptions controls pagination for List. Cursor is fully opaque: callers
// must resubmit a returned cursor verbatim and never construct their own.
type ListOptions struct {
	Cursor string
	Limit  int
}

// WriteOptions carries an explicit document id for Create.
type WriteOptions struct {
	ID string
}

// Page is one page of a collection scan. Next is the opaque continuation
// cursor; an empty Next means no further pages.
type Page struct {
	Items []Document `json:"items"`
	Next  string     `json:"next,omitempty"`
}

// Store is the uniform contract all provider adapters honor.
//
// Create resolves the id from opts, then the document's own "id" field, then
// a freshly generated identifier, and silently overwrites any existing
// document at that id (upsert semantics). Update, by contrast, fails with
// ErrNotFound when no document exists at the id; the asymmetry is
// intentional and preserved across every provider.
type Store interface {
	// List returns one page of documents. Order is provider-defined; the only
	// guarantee is that cursor-chained calls enumerate each document exactly
	// once, barring concurrent mutation.
	List(ctx context.Context, collection string, opts ListOptions) (*Page, error)

	// Get returns the document at id, or (nil, nil) when absent.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Create persists the document under its resolved id and returns the
	// stored document including that id.
	Create(ctx context.Context, collection string, doc Document, opts *WriteOptions) (Document, error)

	// Update merges patch fields over the existing document and returns the
	// full merged result. Returns ErrNotFound when id is absent.
	Update(ctx context.Context, collection, id string, patch Document) (Document, error)

	// Delete removes the document at id, reporting whether anything existed.
	// Deleting a missing id is not an error.
	Delete(ctx context.Context, collection, id string) (bool, error)
}

// ErrNotFound is returned by Update when no document exists at the target id.
// Get and Delete never return it; absence is a value for them.
var ErrNotFound = errors.New("document not found")

// ConfigError reports missing or invalid provider settings. It is raised at
// store construction, before any request is attempted.
type ConfigError struct {
	Provider string
	Missing  []string
	Reason   string
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s provider configuration incomplete: missing %v", e.Provider, e.Missing)
	}
	return fmt.Sprintf("%s provider configuration invalid: %s", e.Provider, e.Reason)
}

// TransportError is any non-2xx response other than the provider's defined
// absence status. It propagates unchanged to the caller; the store layer
// never retries.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is a TransportError with the given status.
func IsStatus(err error, code int) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == code
}
