package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*BadgerStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func TestMemoryStoreSetGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "user:1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "user:1", `{"id":1}`))

	value, ok, err := s.Get(ctx, "user:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"id":1}`, value)
}

func TestMemoryStoreIncrement(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n, err := s.Increment(ctx, "stats:total_messages")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = s.Increment(ctx, "stats:total_messages")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, s.Set(ctx, "user:1", "not-a-number"))
	_, err = s.Increment(ctx, "user:1")
	require.Error(t, err)
}

func TestMemoryStoreIncrementConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const workers = 16
	const perWorker = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := s.Increment(ctx, "counter")
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	value, ok, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "800", value)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "rl:42", "1"))
	require.NoError(t, s.ExpireAfter(ctx, "rl:42", time.Minute))

	_, ok, err := s.Get(ctx, "rl:42")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(61 * time.Second)
	_, ok, err = s.Get(ctx, "rl:42")
	require.NoError(t, err)
	require.False(t, ok)

	// Expiring a missing key is a no-op.
	require.NoError(t, s.ExpireAfter(ctx, "rl:missing", time.Minute))
}

func TestMemoryStoreScanByPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "dialog:active:3", "c"))
	require.NoError(t, s.Set(ctx, "dialog:active:1", "a"))
	require.NoError(t, s.Set(ctx, "dialog:active:2", "b"))
	require.NoError(t, s.Set(ctx, "user:1", "x"))

	keys, err := s.ScanByPrefix(ctx, "dialog:active:")
	require.NoError(t, err)
	require.Equal(t, []string{"dialog:active:1", "dialog:active:2", "dialog:active:3"}, keys)

	keys, err = s.ScanByPrefix(ctx, "promo:")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestMemoryStoreScanSkipsExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "rl:1", "1"))
	require.NoError(t, s.Set(ctx, "rl:2", "1"))
	require.NoError(t, s.ExpireAfter(ctx, "rl:1", time.Second))

	now = now.Add(2 * time.Second)
	keys, err := s.ScanByPrefix(ctx, "rl:")
	require.NoError(t, err)
	require.Equal(t, []string{"rl:2"}, keys)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "focus:99", "12345"))
	require.NoError(t, s.Delete(ctx, "focus:99"))

	_, ok, err := s.Get(ctx, "focus:99")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Delete(ctx, "focus:99"))
}

func TestMemoryStoreSetClearsExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "promo:7", "old"))
	require.NoError(t, s.ExpireAfter(ctx, "promo:7", time.Second))
	require.NoError(t, s.Set(ctx, "promo:7", "new"))

	now = now.Add(time.Minute)
	value, ok, err := s.Get(ctx, "promo:7")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new", value)
}
