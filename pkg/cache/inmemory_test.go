package cache_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-clientcache/pkg/cache"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	fetchedAt := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Get on an empty store is a miss without error", func(t *testing.T) {
		store := cache.NewInMemoryStore[int, []string]()

		entry, err := store.Get(ctx, 2025)

		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Put stamps the entry with the caller's time", func(t *testing.T) {
		store := cache.NewInMemoryStore[int, []string]()

		require.NoError(t, store.Put(ctx, 2025, []string{"r1"}, fetchedAt))
		entry, err := store.Get(ctx, 2025)

		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, []string{"r1"}, entry.Payload)
		assert.Equal(t, fetchedAt, entry.FetchedAt)
	})

	t.Run("Put replaces the whole entry", func(t *testing.T) {
		store := cache.NewInMemoryStore[int, []string]()
		later := fetchedAt.Add(time.Hour)

		require.NoError(t, store.Put(ctx, 2025, []string{"r1", "r2"}, fetchedAt))
		require.NoError(t, store.Put(ctx, 2025, []string{"r3"}, later))
		entry, err := store.Get(ctx, 2025)

		require.NoError(t, err)
		assert.Equal(t, []string{"r3"}, entry.Payload)
		assert.Equal(t, later, entry.FetchedAt)
	})

	t.Run("Partitions are independent and Clear empties all of them", func(t *testing.T) {
		store := cache.NewInMemoryStore[int, []string]()
		require.NoError(t, store.Put(ctx, 2024, []string{"a"}, fetchedAt))
		require.NoError(t, store.Put(ctx, 2025, []string{"b"}, fetchedAt))
		require.Equal(t, 2, store.Len())

		entry, err := store.Get(ctx, 2024)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, entry.Payload)

		require.NoError(t, store.Clear(ctx))
		assert.Equal(t, 0, store.Len())
		entry, err = store.Get(ctx, 2025)
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Concurrent writers", func(t *testing.T) {
		store := cache.NewInMemoryStore[string, int]()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = store.Put(ctx, fmt.Sprintf("k%d", i%5), i, fetchedAt)
				_, _ = store.Get(ctx, "k0")
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 5, store.Len())
	})
}
