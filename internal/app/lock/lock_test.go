package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := NewRedis(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "sync", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("backoffice:lock:sync"))

	_, err = locker.Acquire(ctx, "sync", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("backoffice:lock:sync"))

	again, err := locker.Acquire(ctx, "sync", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLockReleaseKeepsForeignToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locker := NewRedis(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "archive", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	_, err = locker.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)

	// The stale holder must not free the new holder's lock.
	require.NoError(t, release(ctx))
	assert.True(t, mr.Exists("backoffice:lock:archive"))
}

func TestLocalLock(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	locker := NewLocal()
	locker.clock = func() time.Time { return now }
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "sync", time.Minute)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "sync", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	_, err = locker.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err, "locks are per name")

	now = now.Add(2 * time.Minute)
	second, err := locker.Acquire(ctx, "sync", time.Minute)
	require.NoError(t, err, "expired locks can be taken")

	require.NoError(t, release(ctx))
	_, err = locker.Acquire(ctx, "sync", time.Minute)
	assert.ErrorIs(t, err, ErrHeld, "stale release leaves the new holder in place")

	require.NoError(t, second(ctx))
	_, err = locker.Acquire(ctx, "sync", time.Minute)
	assert.NoError(t, err)
}
