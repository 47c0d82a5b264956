package redislock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandstone-edu/webhooks/pkg/redislock"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestLocker_AcquireRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, _ := setupTestRedis(t)
	locker := redislock.NewLocker(client, "webhooks:batch", time.Minute)

	require.NoError(t, locker.Acquire(ctx))
	require.NoError(t, locker.Release(ctx))

	// Released lock can be taken again.
	require.NoError(t, locker.Acquire(ctx))
}

func TestLocker_MutualExclusion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, _ := setupTestRedis(t)
	first := redislock.NewLocker(client, "webhooks:batch", time.Minute)
	second := redislock.NewLocker(client, "webhooks:batch", time.Minute)

	require.NoError(t, first.Acquire(ctx))
	assert.ErrorIs(t, second.Acquire(ctx), redislock.ErrNotAcquired)

	require.NoError(t, first.Release(ctx))
	assert.NoError(t, second.Acquire(ctx))
}

func TestLocker_ReleaseOnlyOwnLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, mr := setupTestRedis(t)
	first := redislock.NewLocker(client, "webhooks:batch", time.Minute)
	second := redislock.NewLocker(client, "webhooks:batch", time.Minute)

	require.NoError(t, first.Acquire(ctx))

	// Expiry hands the lock to the second locker.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, second.Acquire(ctx))

	// The original holder must not be able to free the new holder's lock.
	assert.ErrorIs(t, first.Release(ctx), redislock.ErrNotHeld)
	assert.NoError(t, second.Release(ctx))
}

func TestLocker_Extend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, mr := setupTestRedis(t)
	locker := redislock.NewLocker(client, "webhooks:batch", time.Minute)

	require.NoError(t, locker.Acquire(ctx))
	require.NoError(t, locker.Extend(ctx))

	mr.FastForward(90 * time.Second)
	assert.ErrorIs(t, locker.Extend(ctx), redislock.ErrNotHeld)
}
