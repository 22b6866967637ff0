package storefront

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStorage(t *testing.T) {
	addr := os.Getenv("LIVRAISON_REDIS_ADDR")
	if addr == "" {
		t.Skip("LIVRAISON_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	prefix := "test:storefront:" + time.Now().Format("150405.000000")
	store := NewRedisStorage(client, prefix)

	changes := store.Watch(ctx)
	// Subscribe is asynchronous.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, store.Set(ctx, PrimaryKey, "v1"))
	got, ok, err := store.Get(ctx, PrimaryKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", got)

	select {
	case key := <-changes:
		assert.Equal(t, PrimaryKey, key)
	case <-ctx.Done():
		t.Fatal("no change event")
	}

	// Rewriting the same value is not a change.
	require.NoError(t, store.Set(ctx, PrimaryKey, "v1"))
	assertQuiet(t, changes)

	require.NoError(t, store.Delete(ctx, PrimaryKey))
	_, ok, err = store.Get(ctx, PrimaryKey)
	require.NoError(t, err)
	assert.False(t, ok)

	select {
	case key := <-changes:
		assert.Equal(t, PrimaryKey, key)
	case <-ctx.Done():
		t.Fatal("no change event for delete")
	}

	require.NoError(t, store.Delete(ctx, PrimaryKey))
	assertQuiet(t, changes)
}

func assertQuiet(t *testing.T, changes <-chan string) {
	t.Helper()
	select {
	case key := <-changes:
		t.Fatalf("unexpected change event for %q", key)
	case <-time.After(200 * time.Millisecond):
	}
}
