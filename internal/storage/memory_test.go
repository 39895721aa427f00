package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		err := store.Set(ctx, "k1", []byte("hello"), 0)
		require.NoError(t, err)

		value, found, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("hello"), value)
	})

	t.Run("missing key", func(t *testing.T) {
		value, found, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k2", []byte("first"), 0))
		require.NoError(t, store.Set(ctx, "k2", []byte("second"), 0))

		value, found, err := store.Get(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("second"), value)
	})

	t.Run("stored value is copied", func(t *testing.T) {
		buf := []byte("original")
		require.NoError(t, store.Set(ctx, "k3", buf, 0))

		buf[0] = 'X'

		value, _, err := store.Get(ctx, "k3")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), value)
	})
}

func TestMemoryStore_TTL(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	ctx := context.Background()

	err := store.Set(ctx, "expiring", []byte("v"), 30*time.Millisecond)
	require.NoError(t, err)

	_, found, err := store.Get(ctx, "expiring")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(60 * time.Millisecond)

	_, found, err = store.Get(ctx, "expiring")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, store.Delete(ctx, "k"))

	_, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete(ctx, "never-existed"))
}

func TestMemoryStore_Has(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	has, err := store.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))

	has, err = store.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, has)
}
