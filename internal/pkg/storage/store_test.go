package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGetRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var changes []Change
	cancel := s.Watch(func(ch Change) { changes = append(changes, ch) })

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Set(ctx, "k", "v2"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.Remove(ctx, "k"))
	require.NoError(t, s.Remove(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)

	require.Len(t, changes, 3)
	assert.Equal(t, Change{Key: "k", NewValue: "v1"}, changes[0])
	assert.Equal(t, Change{Key: "k", OldValue: "v1", NewValue: "v2"}, changes[1])
	assert.Equal(t, Change{Key: "k", OldValue: "v2", Removed: true}, changes[2])

	cancel()
	require.NoError(t, s.Set(ctx, "k", "v3"))
	assert.Len(t, changes, 3)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisStoreSharesValuesAcrossInstances(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)

	a := NewRedisStore(rdb, "browser-1", time.Hour, nil)
	b := NewRedisStore(rdb, "browser-1", time.Hour, nil)
	other := NewRedisStore(rdb, "browser-2", time.Hour, nil)

	require.NoError(t, a.Set(ctx, "token", "abc"))

	v, ok, err := b.Get(ctx, "token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	_, ok, err = other.Get(ctx, "token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Remove(ctx, "token"))
	_, ok, _ = a.Get(ctx, "token")
	assert.False(t, ok)
}

func TestRedisStoreWatchReceivesChanges(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	s := NewRedisStore(rdb, "browser-1", time.Hour, nil)

	var mu sync.Mutex
	var got []Change
	cancel := s.Watch(func(ch Change) {
		mu.Lock()
		got = append(got, ch)
		mu.Unlock()
	})
	defer cancel()

	require.NoError(t, s.Set(ctx, "auth-sync-message", "payload"))
	require.NoError(t, s.Remove(ctx, "auth-sync-message"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "payload", got[0].NewValue)
	assert.True(t, got[1].Removed)
}
