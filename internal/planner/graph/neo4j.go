package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"tabsdata.io/execcore/internal/catalogerr"
)

// Neo4jGraph implements Graph over a Neo4j driver, following the
// teacher's Neo4jRepository: one write session per mutation, one read
// session per query, MERGE for idempotent node/edge creation.
type Neo4jGraph struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jGraph dials uri and verifies connectivity before returning.
func NewNeo4jGraph(ctx context.Context, uri, username, password string) (*Neo4jGraph, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, catalogerr.Wrap(catalogerr.KindFatal, err, "create neo4j driver")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, catalogerr.Wrap(catalogerr.KindTransient, err, "connect to neo4j")
	}
	return &Neo4jGraph{driver: driver}, nil
}

// Close releases the underlying driver.
func (g *Neo4jGraph) Close(ctx context.Context) error { return g.driver.Close(ctx) }

func (g *Neo4jGraph) UpsertEdge(ctx context.Context, from, to string, kind EdgeKind) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MERGE (a:Node {id: $from})
		MERGE (b:Node {id: $to})
		MERGE (a)-[:%s]->(b)
	`, kind)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"from": from, "to": to})
		return nil, err
	})
	if err != nil {
		return catalogerr.Wrap(catalogerr.KindTransient, err, "upsert graph edge")
	}
	return nil
}

func (g *Neo4jGraph) RemoveEdge(ctx context.Context, from, to string, kind EdgeKind) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (a:Node {id: $from})-[r:%s]->(b:Node {id: $to})
		DELETE r
	`, kind)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"from": from, "to": to})
		return nil, err
	})
	if err != nil {
		return catalogerr.Wrap(catalogerr.KindTransient, err, "remove graph edge")
	}
	return nil
}

func (g *Neo4jGraph) RemoveNode(ctx context.Context, id string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MATCH (a:Node {id: $id}) DETACH DELETE a`, map[string]any{"id": id})
		return nil, err
	})
	if err != nil {
		return catalogerr.Wrap(catalogerr.KindTransient, err, "remove graph node")
	}
	return nil
}

func (g *Neo4jGraph) Dependents(ctx context.Context, from string, kind EdgeKind) ([]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (a:Node {id: $id})-[:%s]->(b:Node)
		RETURN b.id as id
	`, kind)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": from})
		if err != nil {
			return nil, err
		}
		var out []string
		for res.Next(ctx) {
			if v, ok := res.Record().Get("id"); ok {
				out = append(out, v.(string))
			}
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, catalogerr.Wrap(catalogerr.KindTransient, err, "query graph dependents")
	}
	return result.([]string), nil
}

func (g *Neo4jGraph) TransitiveDependents(ctx context.Context, id string, kind EdgeKind) ([]string, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	rel := "*"
	if kind != "" {
		rel = ":" + string(kind) + "*"
	}
	query := fmt.Sprintf(`
		MATCH (a:Node {id: $id})-[%s]->(b:Node)
		RETURN DISTINCT b.id as id
	`, rel)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		var out []string
		for res.Next(ctx) {
			if v, ok := res.Record().Get("id"); ok {
				out = append(out, v.(string))
			}
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, catalogerr.Wrap(catalogerr.KindTransient, err, "query graph transitive dependents")
	}
	return result.([]string), nil
}

func (g *Neo4jGraph) WouldCreateCycle(ctx context.Context, from, to string, kind EdgeKind) (bool, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	rel := "*"
	if kind != "" {
		rel = ":" + string(kind) + "*"
	}
	query := fmt.Sprintf(`
		MATCH path = (dest:Node {id: $to})-[%s]->(src:Node {id: $from})
		RETURN count(path) > 0 as hasCycle
	`, rel)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"from": from, "to": to})
		if err != nil {
			return false, err
		}
		if res.Next(ctx) {
			if v, ok := res.Record().Get("hasCycle"); ok {
				return v.(bool), nil
			}
		}
		return false, res.Err()
	})
	if err != nil {
		return false, catalogerr.Wrap(catalogerr.KindTransient, err, "check graph cycle")
	}
	return result.(bool), nil
}

var _ Graph = (*Neo4jGraph)(nil)
