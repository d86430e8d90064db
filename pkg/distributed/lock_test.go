package distributed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*LockManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLockManager(client, "telemed:"), mr
}

func TestDistributedLock_Exclusive(t *testing.T) {
	ctx := context.Background()
	lm, mr := newManager(t)

	first := lm.NewLock("archive", time.Minute)
	second := lm.NewLock("archive", time.Minute)
	assert.Equal(t, "telemed:lock:archive", first.Key())

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("telemed:lock:archive"))

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, second.Unlock(ctx), ErrNotHeld)
	require.NoError(t, first.Unlock(ctx))

	locked, err := first.IsLocked(ctx)
	require.NoError(t, err)
	assert.False(t, locked)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock(ctx))

	// A lock can be taken again after it was released.
	ok, err = first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, first.Unlock(ctx))
}

func TestDistributedLock_Expires(t *testing.T) {
	ctx := context.Background()
	lm, mr := newManager(t)

	first := lm.NewLock("archive", time.Minute)
	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	second := lm.NewLock("archive", time.Minute)
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, errors.Is(first.Unlock(ctx), ErrNotHeld))
	require.NoError(t, second.Unlock(ctx))
}

func TestDistributedLock_LockTimesOut(t *testing.T) {
	ctx := context.Background()
	lm, _ := newManager(t)

	holder := lm.NewLock("archive", time.Minute)
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	defer holder.Unlock(ctx)

	waiter := lm.NewLock("archive", time.Minute)
	assert.ErrorIs(t, waiter.Lock(ctx, 150*time.Millisecond), ErrLockTimeout)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, waiter.Lock(cancelled, time.Second))
}
