package main

import "aot-callgraph-neo4j/callgraph"

// EntityRow is one call-graph node prepared for the Neo4j batch loader.
type EntityRow struct {
	Key  string // qualified name, unique within one loaded graph
	Name string
	Kind string // package, library, class, function, field, selector, dispatch
}

// CallRow is one directed call-graph edge between two entity keys.
type CallRow struct {
	Caller string
	Callee string
}

// DominatorRow links an immediate dominator to the node it dominates.
type DominatorRow struct {
	Dominator string
	Node      string
}

// graphRows flattens a call graph into loader rows, one entity row per node
// and one call row per edge.
func graphRows(g *callgraph.CallGraph) ([]EntityRow, []CallRow) {
	entities := make([]EntityRow, 0, len(g.Nodes))
	calls := make([]CallRow, 0, g.EdgeCount())
	for _, n := range g.Nodes {
		entities = append(entities, EntityRow{
			Key:  n.Label(),
			Name: shortName(n),
			Kind: n.KindLabel(),
		})
		for _, s := range n.Succ {
			calls = append(calls, CallRow{Caller: n.Label(), Callee: s.Label()})
		}
	}
	return entities, calls
}

// dominatorRows extracts the immediate-dominator relation; only nodes
// reachable from the root carry one.
func dominatorRows(g *callgraph.CallGraph) []DominatorRow {
	rows := make([]DominatorRow, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Dominator != nil {
			rows = append(rows, DominatorRow{
				Dominator: n.Dominator.Label(),
				Node:      n.Label(),
			})
		}
	}
	return rows
}

// shortName is the node's unqualified display name.
func shortName(n *callgraph.Node) string {
	switch {
	case n.Info != nil:
		return n.Info.Name
	case n.Selector != "":
		return n.Selector
	default:
		return n.Label()
	}
}
