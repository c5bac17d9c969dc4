package datastore

import (
	"context"
	"encoding/json"
	"testing"

	gds "cloud.google.com/go/datastore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

// --- Mocks ---

type MockDatastoreClient struct{ mock.Mock }

func (m *MockDatastoreClient) Run(ctx context.Context, q *gds.Query) EntityIterator {
	return m.Called(ctx, q).Get(0).(EntityIterator)
}

func (m *MockDatastoreClient) Get(ctx context.Context, key *gds.Key, dst any) error {
	args := m.Called(ctx, key, dst)
	if ent, ok := args.Get(0).(*documentEntity); ok && ent != nil {
		*(dst.(*documentEntity)) = *ent
	}
	return args.Error(1)
}

func (m *MockDatastoreClient) Put(ctx context.Context, key *gds.Key, src any) (*gds.Key, error) {
	args := m.Called(ctx, key, src)
	return key, args.Error(0)
}

func (m *MockDatastoreClient) Delete(ctx context.Context, key *gds.Key) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockDatastoreClient) Close() error {
	return m.Called().Error(0)
}

// fakeIterator walks a fixed set of entities.
type fakeIterator struct {
	keys     []*gds.Key
	entities []*documentEntity
	pos      int
}

func (it *fakeIterator) Next(dst any) (*gds.Key, error) {
	if it.pos >= len(it.entities) {
		return nil, iterator.Done
	}
	*(dst.(*documentEntity)) = *it.entities[it.pos]
	key := it.keys[it.pos]
	it.pos++
	return key, nil
}

func (it *fakeIterator) Cursor() (gds.Cursor, error) {
	return gds.Cursor{}, nil
}

func mustEntity(t *testing.T, doc Document) *documentEntity {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return &documentEntity{Data: data}
}

func setupDatastoreTest() (*DatastoreStore, *MockDatastoreClient) {
	client := new(MockDatastoreClient)
	return NewDatastoreStoreWithClient(client, zerolog.Nop()), client
}

// --- Tests ---

func TestDatastoreStore_ListDecodesEntities(t *testing.T) {
	store, client := setupDatastoreTest()

	it := &fakeIterator{
		keys: []*gds.Key{
			gds.NameKey("items", "a1", nil),
			gds.IDKey("items", 42, nil),
		},
		entities: []*documentEntity{
			mustEntity(t, Document{"id": "a1", "name": "named"}),
			mustEntity(t, Document{"name": "numbered"}),
		},
	}
	client.On("Run", mock.Anything, mock.Anything).Return(it)

	page, err := store.List(context.Background(), "items", ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a1", page.Items[0].ID())
	// Numeric stored ids surface in decimal form.
	assert.Equal(t, "42", page.Items[1].ID())
	assert.Empty(t, page.Next, "a short page ends the scan")
}

func TestDatastoreStore_ListIgnoresInvalidCursor(t *testing.T) {
	store, client := setupDatastoreTest()
	client.On("Run", mock.Anything, mock.Anything).Return(&fakeIterator{})

	page, err := store.List(context.Background(), "items", ListOptions{Cursor: "!!not-a-cursor!!", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	client.AssertExpectations(t)
}

func TestDatastoreStore_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, client := setupDatastoreTest()
		client.On("Get", mock.Anything, gds.NameKey("items", "a1", nil), mock.Anything).
			Return(mustEntity(t, Document{"name": "thing"}), nil)

		doc, err := store.Get(context.Background(), "items", "a1")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "a1", doc.ID())
		assert.Equal(t, "thing", doc["name"])
	})

	t.Run("absent is nil, not an error", func(t *testing.T) {
		store, client := setupDatastoreTest()
		client.On("Get", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, gds.ErrNoSuchEntity)

		doc, err := store.Get(context.Background(), "items", "ghost")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})
}

func TestDatastoreStore_CreateStoresResolvedID(t *testing.T) {
	store, client := setupDatastoreTest()

	var putEntity *documentEntity
	client.On("Put", mock.Anything, gds.NameKey("items", "new-1", nil), mock.Anything).
		Run(func(args mock.Arguments) {
			putEntity = args.Get(2).(*documentEntity)
		}).
		Return(nil)

	created, err := store.Create(context.Background(), "items", Document{"name": "x"}, &WriteOptions{ID: "new-1"})
	require.NoError(t, err)
	assert.Equal(t, "new-1", created.ID())

	require.NotNil(t, putEntity)
	var stored Document
	require.NoError(t, json.Unmarshal(putEntity.Data, &stored))
	assert.Equal(t, "new-1", stored.ID())
}

func TestDatastoreStore_UpdateReadsThenMerges(t *testing.T) {
	t.Run("merges over existing entity", func(t *testing.T) {
		store, client := setupDatastoreTest()
		key := gds.NameKey("items", "a1", nil)

		client.On("Get", mock.Anything, key, mock.Anything).
			Return(mustEntity(t, Document{"keep": "old", "change": "old"}), nil)
		client.On("Put", mock.Anything, key, mock.Anything).Return(nil)

		merged, err := store.Update(context.Background(), "items", "a1", Document{"change": "new"})
		require.NoError(t, err)
		assert.Equal(t, "old", merged["keep"])
		assert.Equal(t, "new", merged["change"])
		assert.Equal(t, "a1", merged.ID())
		client.AssertExpectations(t)
	})

	t.Run("missing entity fails with ErrNotFound before any write", func(t *testing.T) {
		store, client := setupDatastoreTest()
		client.On("Get", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, gds.ErrNoSuchEntity)

		_, err := store.Update(context.Background(), "items", "missing-id", Document{"a": "b"})
		assert.ErrorIs(t, err, ErrNotFound)
		client.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDatastoreStore_Delete(t *testing.T) {
	t.Run("existing entity", func(t *testing.T) {
		store, client := setupDatastoreTest()
		key := gds.NameKey("items", "a1", nil)
		client.On("Get", mock.Anything, key, mock.Anything).
			Return(mustEntity(t, Document{}), nil)
		client.On("Delete", mock.Anything, key).Return(nil)

		deleted, err := store.Delete(context.Background(), "items", "a1")
		require.NoError(t, err)
		assert.True(t, deleted)
		client.AssertExpectations(t)
	})

	t.Run("absent entity is false without a delete call", func(t *testing.T) {
		store, client := setupDatastoreTest()
		client.On("Get", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, gds.ErrNoSuchEntity)

		deleted, err := store.Delete(context.Background(), "items", "ghost")
		require.NoError(t, err)
		assert.False(t, deleted)
		client.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}
