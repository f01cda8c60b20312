package kv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeapps/localbase/src/config"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := &config.PersistenceConfig{
		Address:   mr.Addr(),
		KeyPrefix: "test",
	}

	store, err := NewStore(cfg, zerolog.Nop())
	require.NoError(t, err)

	return store, mr
}

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_SetAndGet(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	err := store.SetJSON(ctx, "doc", testDoc{Name: "a", Count: 2})
	require.NoError(t, err)

	var got testDoc
	found, err := store.GetJSON(ctx, "doc", &got)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, 2, got.Count)
}

func TestStore_GetMissing(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	var got testDoc
	found, err := store.GetJSON(context.Background(), "nope", &got)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestStore_CorruptDocumentIsAbsent(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	require.NoError(t, mr.Set("test:doc", "{not json"))

	var got testDoc
	found, err := store.GetJSON(context.Background(), "doc", &got)
	assert.NoError(t, err, "corrupt document must degrade to cold start, not error")
	assert.False(t, found)
}

func TestStore_Delete(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, "doc", testDoc{Name: "a"}))
	require.NoError(t, store.Delete(ctx, "doc"))

	var got testDoc
	found, _ := store.GetJSON(ctx, "doc", &got)
	assert.False(t, found)
}

func TestStore_ClearOnlyTouchesPrefix(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, "one", testDoc{}))
	require.NoError(t, store.SetJSON(ctx, "two", testDoc{}))
	require.NoError(t, mr.Set("other:doc", "keep"))

	require.NoError(t, store.Clear(ctx))

	var got testDoc
	found, _ := store.GetJSON(ctx, "one", &got)
	assert.False(t, found)
	found, _ = store.GetJSON(ctx, "two", &got)
	assert.False(t, found)

	val, err := mr.Get("other:doc")
	require.NoError(t, err)
	assert.Equal(t, "keep", val)
}

func TestStore_EmbeddedBackend(t *testing.T) {
	cfg := &config.PersistenceConfig{KeyPrefix: "test"}

	store, err := NewStore(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SetJSON(ctx, "doc", testDoc{Name: "embedded"}))

	var got testDoc
	found, err := store.GetJSON(ctx, "doc", &got)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "embedded", got.Name)
}
