package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertEdgeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	require.NoError(t, g.UpsertEdge(ctx, "a", "b", Triggers))
	require.NoError(t, g.UpsertEdge(ctx, "a", "b", Triggers))
	deps, err := g.Dependents(ctx, "a", Triggers)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, deps)
}

func TestTransitiveDependentsWalksChain(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	require.NoError(t, g.UpsertEdge(ctx, "a", "b", Triggers))
	require.NoError(t, g.UpsertEdge(ctx, "b", "c", Triggers))
	require.NoError(t, g.UpsertEdge(ctx, "c", "d", Triggers))

	deps, err := g.TransitiveDependents(ctx, "a", Triggers)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c", "d"}, deps)
}

func TestWouldCreateCycleDetectsBackEdge(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	require.NoError(t, g.UpsertEdge(ctx, "a", "b", Triggers))
	require.NoError(t, g.UpsertEdge(ctx, "b", "c", Triggers))

	cycle, err := g.WouldCreateCycle(ctx, "c", "a", Triggers)
	require.NoError(t, err)
	assert.True(t, cycle, "c->a would close a->b->c->a")

	cycle, err = g.WouldCreateCycle(ctx, "a", "d", Triggers)
	require.NoError(t, err)
	assert.False(t, cycle)
}

func TestRemoveNodeDropsIncomingAndOutgoingEdges(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	require.NoError(t, g.UpsertEdge(ctx, "a", "b", Triggers))
	require.NoError(t, g.UpsertEdge(ctx, "b", "c", Triggers))

	require.NoError(t, g.RemoveNode(ctx, "b"))

	deps, err := g.Dependents(ctx, "a", Triggers)
	require.NoError(t, err)
	assert.Empty(t, deps)
}
