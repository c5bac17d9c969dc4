package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/datastore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DatastoreConfig configures the Cloud Datastore provider. An empty
// ProjectID defers to ambient discovery (Application Default Credentials
// and the metadata server), which is the normal path on GCP.
type DatastoreConfig struct {
	ProjectID string
}

// EntityIterator abstracts one running Datastore query.
type EntityIterator interface {
	// Next loads the next entity into dst, returning iterator.Done at the end.
	Next(dst any) (*datastore.Key, error)
	// Cursor returns the position after the most recently returned entity.
	Cursor() (datastore.Cursor, error)
}

// DatastoreClient is the narrow slice of *datastore.Client the store uses,
// kept as an interface so tests can substitute a fake.
type DatastoreClient interface {
	Run(ctx context.Context, q *datastore.Query) EntityIterator
	Get(ctx context.Context, key *datastore.Key, dst any) error
	Put(ctx context.Context, key *datastore.Key, src any) (*datastore.Key, error)
	Delete(ctx context.Context, key *datastore.Key) error
	Close() error
}

// gcpDatastoreClientAdapter wraps the concrete Google client in the
// DatastoreClient interface.
type gcpDatastoreClientAdapter struct {
	client *datastore.Client
}

func (a *gcpDatastoreClientAdapter) Run(ctx context.Context, q *datastore.Query) EntityIterator {
	return a.client.Run(ctx, q)
}

func (a *gcpDatastoreClientAdapter) Get(ctx context.Context, key *datastore.Key, dst any) error {
	return a.client.Get(ctx, key, dst)
}

func (a *gcpDatastoreClientAdapter) Put(ctx context.Context, key *datastore.Key, src any) (*datastore.Key, error) {
	return a.client.Put(ctx, key, src)
}

func (a *gcpDatastoreClientAdapter) Delete(ctx context.Context, key *datastore.Key) error {
	return a.client.Delete(ctx, key)
}

func (a *gcpDatastoreClientAdapter) Close() error {
	return a.client.Close()
}

// documentEntity is the stored shape of one document: the JSON-encoded
// field map in a single unindexed property. Documents are schema-free, so
// no per-field Datastore properties are modeled.
type documentEntity struct {
	Data []byte `datastore:"data,noindex"`
}

// DatastoreStore implements the store contract over Google Cloud Datastore,
// mapping each collection to a kind and each document id to a name key.
type DatastoreStore struct {
	client DatastoreClient
	logger zerolog.Logger
}

// NewDatastoreStore connects a real Cloud Datastore client. With an empty
// project id the client detects the project from the environment.
func NewDatastoreStore(ctx context.Context, cfg DatastoreConfig, logger zerolog.Logger, opts ...option.ClientOption) (*DatastoreStore, error) {
	projectID := cfg.ProjectID
	if projectID == "" {
		projectID = datastore.DetectProjectID
	}
	client, err := datastore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create datastore client: %w", err)
	}
	return NewDatastoreStoreWithClient(&gcpDatastoreClientAdapter{client: client}, logger), nil
}

// NewDatastoreStoreWithClient builds a store over an injected client.
func NewDatastoreStoreWithClient(client DatastoreClient, logger zerolog.Logger) *DatastoreStore {
	return &DatastoreStore{
		client: client,
		logger: logger.With().Str("component", "DatastoreStore").Logger(),
	}
}

// Close releases the underlying client connection.
func (s *DatastoreStore) Close() error {
	return s.client.Close()
}

func (s *DatastoreStore) key(collection, id string) *datastore.Key {
	return datastore.NameKey(collection, id, nil)
}

func entityToDoc(key *datastore.Key, ent *documentEntity) (Document, error) {
	var doc Document
	if len(ent.Data) > 0 {
		if err := json.Unmarshal(ent.Data, &doc); err != nil {
			return nil, fmt.Errorf("decode entity %s: %w", key, err)
		}
	}
	if doc == nil {
		doc = Document{}
	}
	// Stored numeric ids surface as their decimal form.
	if key.Name != "" {
		doc["id"] = key.Name
	} else {
		doc["id"] = strconv.FormatInt(key.ID, 10)
	}
	return doc, nil
}

func docToEntity(doc Document) (*documentEntity, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return &documentEntity{Data: data}, nil
}

func isDatastoreNotFound(err error) bool {
	return errors.Is(err, datastore.ErrNoSuchEntity) || status.Code(err) == codes.NotFound
}

func (s *DatastoreStore) List(ctx context.Context, collection string, opts ListOptions) (*Page, error) {
	limit := opts.Limit
	if limit < 1 {
		limit = defaultListLimit
	}

	query := datastore.NewQuery(collection).Limit(limit)
	if opts.Cursor != "" {
		// An undecodable cursor restarts the scan instead of failing.
		if cursor, err := datastore.DecodeCursor(opts.Cursor); err == nil {
			query = query.Start(cursor)
		} else {
			s.logger.Warn().Str("kind", collection).Msg("ignoring invalid list cursor")
		}
	}

	it := s.client.Run(ctx, query)
	items := make([]Document, 0, limit)
	for {
		var ent documentEntity
		key, err := it.Next(&ent)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("run query for kind %q: %w", collection, err)
		}
		doc, err := entityToDoc(key, &ent)
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}

	// A short page means the scan is exhausted; only full pages hand out a
	// continuation cursor.
	next := ""
	if len(items) == limit {
		cursor, err := it.Cursor()
		if err != nil {
			return nil, fmt.Errorf("read end cursor for kind %q: %w", collection, err)
		}
		next = cursor.String()
	}
	return &Page{Items: items, Next: next}, nil
}

func (s *DatastoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var ent documentEntity
	err := s.client.Get(ctx, s.key(collection, id), &ent)
	if isDatastoreNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return entityToDoc(s.key(collection, id), &ent)
}

func (s *DatastoreStore) Create(ctx context.Context, collection string, doc Document, opts *WriteOptions) (Document, error) {
	id := resolveCreateID(doc, opts)

	stored := doc.Clone()
	stored["id"] = id
	ent, err := docToEntity(stored)
	if err != nil {
		return nil, err
	}
	if _, err := s.client.Put(ctx, s.key(collection, id), ent); err != nil {
		return nil, fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return stored, nil
}

func (s *DatastoreStore) Update(ctx context.Context, collection, id string, patch Document) (Document, error) {
	key := s.key(collection, id)

	var ent documentEntity
	err := s.client.Get(ctx, key, &ent)
	if isDatastoreNotFound(err) {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	existing, err := entityToDoc(key, &ent)
	if err != nil {
		return nil, err
	}
	merged := existing.Clone()
	for k, v := range patch {
		merged[k] = v
	}
	merged["id"] = id

	updated, err := docToEntity(merged)
	if err != nil {
		return nil, err
	}
	if _, err := s.client.Put(ctx, key, updated); err != nil {
		return nil, fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return merged, nil
}

func (s *DatastoreStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	key := s.key(collection, id)

	// Datastore deletes succeed whether or not the entity exists; probe
	// first so the caller learns whether anything was removed.
	var ent documentEntity
	err := s.client.Get(ctx, key, &ent)
	if isDatastoreNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	if err := s.client.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return true, nil
}
