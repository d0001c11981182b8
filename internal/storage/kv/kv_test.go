package kv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-florist-service/internal/storage/kv"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
)

// exercise runs the shared contract against any KeyValue implementation.
func exercise(t *testing.T, store storage.KeyValue) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "florist_app_data")
	require.NoError(t, err)
	assert.False(t, found, "missing key reports not found")

	require.NoError(t, store.Set(ctx, "florist_app_data", `{"promotions":[]}`))
	val, found, err := store.Get(ctx, "florist_app_data")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"promotions":[]}`, val)

	require.NoError(t, store.Set(ctx, "florist_app_data", `{}`))
	val, _, err = store.Get(ctx, "florist_app_data")
	require.NoError(t, err)
	assert.Equal(t, `{}`, val, "set overwrites")

	_, found, err = store.Get(ctx, "other_key")
	require.NoError(t, err)
	assert.False(t, found, "keys do not collide")
}

func TestMemoryStore(t *testing.T) {
	exercise(t, kv.NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := kv.NewFileStore(dir)
	require.NoError(t, err)
	exercise(t, store)

	t.Run("Keys cannot escape the directory", func(t *testing.T) {
		require.NoError(t, store.Set(context.Background(), "../escape", "x"))
		_, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.json"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("Values survive a new instance", func(t *testing.T) {
		reopened, err := kv.NewFileStore(dir)
		require.NoError(t, err)
		val, found, err := reopened.Get(context.Background(), "florist_app_data")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{}`, val)
	})
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := kv.NewRedisStore(rdb, "kv:")
	exercise(t, store)

	raw, err := mr.Get("kv:florist_app_data")
	require.NoError(t, err)
	assert.Equal(t, `{}`, raw, "values are stored under the prefix")
	assert.Zero(t, mr.TTL("kv:florist_app_data"), "values do not expire")
}
