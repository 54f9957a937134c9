package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"aot-callgraph-neo4j/callgraph"
)

// retainedCounts returns, for every node reachable from the root, the size
// of its dominated subtree (itself included): the number of nodes that exist
// only because that node is reachable.
func retainedCounts(g *callgraph.CallGraph) map[*callgraph.Node]int {
	counts := make(map[*callgraph.Node]int, len(g.Nodes))
	if g.Root == nil {
		return counts
	}
	// Post-order over the dominator tree, iterative.
	type frame struct {
		node *callgraph.Node
		next int
	}
	stack := []frame{{g.Root, 0}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.next < len(f.node.Dominated) {
			child := f.node.Dominated[f.next]
			f.next++
			stack = append(stack, frame{child, 0})
			continue
		}
		total := 1
		for _, c := range f.node.Dominated {
			total += counts[c]
		}
		counts[f.node] = total
		stack = stack[:len(stack)-1]
	}
	return counts
}

// writeSummary prints graph-level counts.
func writeSummary(w io.Writer, g *callgraph.CallGraph) {
	fmt.Fprintf(w, "nodes:       %d\n", len(g.Nodes))
	fmt.Fprintf(w, "edges:       %d\n", g.EdgeCount())
	fmt.Fprintf(w, "reachable:   %d\n", len(g.Nodes)-len(g.Unreachable))
	if len(g.Unreachable) > 0 {
		fmt.Fprintf(w, "unreachable: %d\n", len(g.Unreachable))
	}
}

// writeDominatorTree prints the dominator tree down to maxDepth, each node
// annotated with its retained node count.
func writeDominatorTree(w io.Writer, g *callgraph.CallGraph, maxDepth int) {
	if g.Root == nil {
		return
	}
	counts := retainedCounts(g)
	fmt.Fprintln(w, "\ndominator tree:")
	g.Root.VisitDominatorTree(func(n *callgraph.Node, depth int) bool {
		if depth > maxDepth {
			return false
		}
		fmt.Fprintf(w, "%s%s (retains %d)\n", strings.Repeat("  ", depth), n.Label(), counts[n])
		return true
	})
}

// writeTopRetainers lists the top non-root nodes by retained node count.
func writeTopRetainers(w io.Writer, g *callgraph.CallGraph, top int) {
	counts := retainedCounts(g)
	nodes := make([]*callgraph.Node, 0, len(counts))
	for n := range counts {
		if n != g.Root {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if counts[nodes[i]] != counts[nodes[j]] {
			return counts[nodes[i]] > counts[nodes[j]]
		}
		return nodes[i].Label() < nodes[j].Label()
	})
	if top < len(nodes) {
		nodes = nodes[:top]
	}
	fmt.Fprintln(w, "\ntop retainers:")
	for _, n := range nodes {
		fmt.Fprintf(w, "%8d  %s\n", counts[n], n.Label())
	}
}
