package graph

import (
	"context"
	"sync"
)

type edge struct {
	to   string
	kind EdgeKind
}

// MemoryGraph is a pure-Go adjacency-list Graph, backing Planner unit
// tests without a Neo4j instance.
type MemoryGraph struct {
	mu    sync.Mutex
	edges map[string][]edge
}

// NewMemory returns an empty MemoryGraph.
func NewMemory() *MemoryGraph {
	return &MemoryGraph{edges: map[string][]edge{}}
}

func (g *MemoryGraph) UpsertEdge(ctx context.Context, from, to string, kind EdgeKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.edges[from] {
		if e.to == to && e.kind == kind {
			return nil
		}
	}
	g.edges[from] = append(g.edges[from], edge{to: to, kind: kind})
	if _, ok := g.edges[to]; !ok {
		g.edges[to] = nil
	}
	return nil
}

func (g *MemoryGraph) RemoveEdge(ctx context.Context, from, to string, kind EdgeKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.edges[from][:0]
	for _, e := range g.edges[from] {
		if e.to == to && e.kind == kind {
			continue
		}
		out = append(out, e)
	}
	g.edges[from] = out
	return nil
}

func (g *MemoryGraph) RemoveNode(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, id)
	for from, es := range g.edges {
		out := es[:0]
		for _, e := range es {
			if e.to == id {
				continue
			}
			out = append(out, e)
		}
		g.edges[from] = out
	}
	return nil
}

func (g *MemoryGraph) Dependents(ctx context.Context, from string, kind EdgeKind) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, e := range g.edges[from] {
		if kind == "" || e.kind == kind {
			out = append(out, e.to)
		}
	}
	return out, nil
}

func (g *MemoryGraph) TransitiveDependents(ctx context.Context, id string, kind EdgeKind) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		for _, e := range g.edges[n] {
			if kind != "" && e.kind != kind {
				continue
			}
			if seen[e.to] {
				continue
			}
			seen[e.to] = true
			walk(e.to)
		}
	}
	walk(id)
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out, nil
}

func (g *MemoryGraph) WouldCreateCycle(ctx context.Context, from, to string, kind EdgeKind) (bool, error) {
	reach, err := g.TransitiveDependents(ctx, to, kind)
	if err != nil {
		return false, err
	}
	for _, n := range reach {
		if n == from {
			return true, nil
		}
	}
	return from == to, nil
}

var _ Graph = (*MemoryGraph)(nil)
