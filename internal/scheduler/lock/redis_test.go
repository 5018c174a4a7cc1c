package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	l, err := NewRedis(context.Background(), Config{RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, mr
}

func TestAcquireGrantsExclusiveOwnership(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestRedis(t)

	ok, err := l.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a second acquire of an already-held key must fail")
}

func TestAcquireDoesNotCollideAcrossKeys(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestRedis(t)

	ok1, err := l.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	ok2, err := l.Acquire(ctx, "run-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestReleaseFreesTheKeyForReacquisition(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestRedis(t)

	ok, err := l.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(ctx, "run-1"))

	ok, err = l.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestRedis(t)

	ok, err := l.Acquire(ctx, "run-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = l.Acquire(ctx, "run-1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "the original lease must have expired")
}
