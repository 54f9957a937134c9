package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// loadBatchSize bounds the size of a single UNWIND batch; traces from large
// programs can carry hundreds of thousands of nodes and edges.
const loadBatchSize = 10000

// Neo4jLoader loads an analyzed call graph into a Neo4j database using
// batch UNWIND queries.
type Neo4jLoader struct {
	driver neo4j.DriverWithContext
	ctx    context.Context
}

// NewNeo4jLoader connects to Neo4j and returns a ready-to-use loader.
func NewNeo4jLoader(ctx context.Context, uri, user, password string) (*Neo4jLoader, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	return &Neo4jLoader{driver: driver, ctx: ctx}, nil
}

// Close releases the underlying Neo4j driver resources.
func (l *Neo4jLoader) Close() {
	l.driver.Close(l.ctx)
}

// runCypher runs a single Cypher statement with optional parameters.
func (l *Neo4jLoader) runCypher(cypher string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(l.ctx, l.driver, cypher, params, neo4j.EagerResultTransformer)
	return err
}

// runBatched runs one Cypher statement per chunk of rows, each chunk bound
// as the $batch parameter.
func (l *Neo4jLoader) runBatched(cypher string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += loadBatchSize {
		end := min(start+loadBatchSize, len(rows))
		if err := l.runCypher(cypher, map[string]any{"batch": rows[start:end]}); err != nil {
			return err
		}
	}
	return nil
}

// CleanGraph removes all previously loaded call-graph nodes and relationships.
func (l *Neo4jLoader) CleanGraph() error {
	slog.Info("cleaning existing graph data")
	queries := []string{
		"MATCH ()-[r:CALLS]->() DELETE r",
		"MATCH ()-[r:DOMINATES]->() DELETE r",
		"MATCH (n:Entity) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := l.runCypher(q, nil); err != nil {
			return err
		}
	}
	return nil
}

// CreateIndexes ensures the required Neo4j indexes exist.
func (l *Neo4jLoader) CreateIndexes() error {
	slog.Info("creating indexes")
	indexes := []string{
		"CREATE INDEX entity_key IF NOT EXISTS FOR (n:Entity) ON (n.key)",
		"CREATE INDEX entity_kind IF NOT EXISTS FOR (n:Entity) ON (n.kind)",
	}
	for _, q := range indexes {
		if err := l.runCypher(q, nil); err != nil {
			return err
		}
	}
	return nil
}

// LoadEntities upserts Entity nodes.
func (l *Neo4jLoader) LoadEntities(rows []EntityRow) error {
	slog.Info("loading entities", "count", len(rows))
	batch := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, map[string]any{
			"key": r.Key, "name": r.Name, "kind": r.Kind,
		})
	}
	return l.runBatched(
		`UNWIND $batch AS row
		 MERGE (n:Entity {key: row.key})
		 SET n.name = row.name, n.kind = row.kind`,
		batch,
	)
}

// LoadCalls upserts CALLS relationships between Entity nodes.
func (l *Neo4jLoader) LoadCalls(rows []CallRow) error {
	slog.Info("loading call edges", "count", len(rows))
	batch := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, map[string]any{
			"caller": r.Caller, "callee": r.Callee,
		})
	}
	return l.runBatched(
		`UNWIND $batch AS row
		 MATCH (caller:Entity {key: row.caller}), (callee:Entity {key: row.callee})
		 MERGE (caller)-[:CALLS]->(callee)`,
		batch,
	)
}

// LoadDominators upserts DOMINATES relationships for the immediate-dominator
// tree.
func (l *Neo4jLoader) LoadDominators(rows []DominatorRow) error {
	slog.Info("loading dominator edges", "count", len(rows))
	batch := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, map[string]any{
			"dom": r.Dominator, "node": r.Node,
		})
	}
	return l.runBatched(
		`UNWIND $batch AS row
		 MATCH (d:Entity {key: row.dom}), (n:Entity {key: row.node})
		 MERGE (d)-[:DOMINATES]->(n)`,
		batch,
	)
}
