package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAcquireIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Release(ctx, "run-1"))

	ok, err = m.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryAcquireExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.Acquire(ctx, "run-1", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	ok, err = m.Acquire(ctx, "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease must be reclaimable")
}
