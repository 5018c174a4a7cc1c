// Package graph is the trigger-dependency graph section 4.3 walks to
// compute a triggering event's closure of function runs: which table
// produces which table, and which table triggers which function
// version.
package graph

import "context"

// EdgeKind labels a directed edge. Produces runs FunctionVersion->Table,
// Triggers runs Table->FunctionVersion; kept as two kinds on one graph
// so a single cycle check can walk a mixed produce/trigger chain.
type EdgeKind string

const (
	Produces EdgeKind = "PRODUCES"
	Triggers EdgeKind = "TRIGGERS"
)

// Graph is the contract the Planner uses to maintain and query the
// trigger-dependency graph, independent of backing store.
type Graph interface {
	// UpsertEdge records that from--kind-->to exists, creating either
	// endpoint node if absent.
	UpsertEdge(ctx context.Context, from, to string, kind EdgeKind) error
	// RemoveEdge deletes a single edge, leaving both nodes in place.
	RemoveEdge(ctx context.Context, from, to string, kind EdgeKind) error
	// RemoveNode deletes a node and every edge touching it.
	RemoveNode(ctx context.Context, id string) error

	// Dependents returns the direct targets of from--kind-->*.
	Dependents(ctx context.Context, from string, kind EdgeKind) ([]string, error)
	// TransitiveDependents returns the full closure reachable from id by
	// following one or more kind edges (kind "" follows both kinds,
	// walking a full produce/trigger chain); id itself is included only
	// when a cycle leads back to it.
	TransitiveDependents(ctx context.Context, id string, kind EdgeKind) ([]string, error)
	// WouldCreateCycle reports whether adding from--kind-->to would
	// create a cycle: true iff to already transitively reaches from.
	WouldCreateCycle(ctx context.Context, from, to string, kind EdgeKind) (bool, error)
}
