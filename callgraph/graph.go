package callgraph

import "fmt"

// Node is one call graph node. It wraps exactly one of: a program tree node
// (function, class, or field), a by-name dispatch selector, or a by-id
// dispatch selector.
type Node struct {
	// ID is the node's position in the owning graph's node list.
	ID int

	// Info is the wrapped program tree node, nil for selector nodes.
	Info *ProgramNode
	// Selector is the literal selector name of an unresolved dynamic call.
	Selector string
	// DispatchID is the dispatch-table id of an unresolved table call,
	// noSelectorID otherwise.
	DispatchID int

	Succ []*Node
	Pred []*Node

	// Dominator and Dominated are populated by ComputeDominators.
	Dominator *Node
	Dominated []*Node

	succSet map[*Node]struct{}
}

// IsSelector reports whether the node stands for an unresolved dispatch
// selector rather than a program entity.
func (n *Node) IsSelector() bool { return n.Info == nil }

// Label returns a stable human-readable identity for the node.
func (n *Node) Label() string {
	switch {
	case n.Info != nil:
		return n.Info.QualifiedName()
	case n.Selector != "":
		return "selector:" + n.Selector
	default:
		return fmt.Sprintf("dispatch:%d", n.DispatchID)
	}
}

// KindLabel returns a coarse node classification for display and export.
func (n *Node) KindLabel() string {
	switch {
	case n.Info != nil:
		return n.Info.Kind.String()
	case n.Selector != "":
		return "selector"
	default:
		return "dispatch"
	}
}

// connectTo adds a directed edge to other. Parallel edges collapse into one
// and self-edges are a no-op.
func (n *Node) connectTo(other *Node) {
	if n == other {
		return
	}
	if _, dup := n.succSet[other]; dup {
		return
	}
	n.succSet[other] = struct{}{}
	n.Succ = append(n.Succ, other)
	other.Pred = append(other.Pred, n)
}

// VisitDominatorTree walks the dominator tree rooted at n in pre-order.
// Returning false from the visitor skips the node's dominated subtree.
// The walk is iterative; dominator trees can be arbitrarily deep.
func (n *Node) VisitDominatorTree(visit func(n *Node, depth int) bool) {
	type frame struct {
		node  *Node
		depth int
	}
	stack := []frame{{n, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(f.node, f.depth) {
			continue
		}
		for i := len(f.node.Dominated) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Dominated[i], f.depth + 1})
		}
	}
}

// CallGraph is a directed graph over program entities and unresolved
// dispatch selectors. Node ids are dense, 0..N-1, matching positions in
// Nodes. After the builder's finalization pass the node and edge set is
// structurally immutable; dominator computation only annotates nodes.
type CallGraph struct {
	Root  *Node
	Nodes []*Node

	// Unreachable lists nodes not reached from Root by the most recent
	// ComputeDominators run. Diagnostic only: the nodes stay in Nodes.
	Unreachable []*Node

	byInfo map[int]*Node // program node id -> graph node
}

func newCallGraph() *CallGraph {
	return &CallGraph{byInfo: make(map[int]*Node)}
}

func (g *CallGraph) newNode() *Node {
	n := &Node{
		ID:         len(g.Nodes),
		DispatchID: noSelectorID,
		succSet:    make(map[*Node]struct{}),
	}
	g.Nodes = append(g.Nodes, n)
	return n
}

// nodeFor returns the graph node wrapping the given program tree node,
// creating it on first use.
func (g *CallGraph) nodeFor(info *ProgramNode) *Node {
	if n, ok := g.byInfo[info.ID]; ok {
		return n
	}
	n := g.newNode()
	n.Info = info
	g.byInfo[info.ID] = n
	return n
}

// EdgeCount returns the number of directed edges in the graph.
func (g *CallGraph) EdgeCount() int {
	total := 0
	for _, n := range g.Nodes {
		total += len(n.Succ)
	}
	return total
}

// Collapse produces a new graph at a coarser granularity. Every entity node
// maps to its nearest ancestor of the target kind (the tree root if there is
// none); originals mapping to the same ancestor merge into one node.
// Selector nodes are preserved unchanged, or omitted entirely when
// dropCallNodes is set. Edges whose mapped endpoints coincide are dropped,
// preserving the no-self-edge invariant. The receiver is not mutated.
func (g *CallGraph) Collapse(kind NodeKind, dropCallNodes bool) *CallGraph {
	out := newCallGraph()
	mapped := make(map[*Node]*Node, len(g.Nodes))

	image := func(n *Node) *Node {
		if m, ok := mapped[n]; ok {
			return m
		}
		var m *Node
		switch {
		case n.Info != nil:
			anc := n.Info
			for anc.Kind != kind && anc.Parent != nil {
				anc = anc.Parent
			}
			m = out.nodeFor(anc)
		case dropCallNodes:
			m = nil
		default:
			m = out.newNode()
			m.Selector = n.Selector
			m.DispatchID = n.DispatchID
		}
		mapped[n] = m
		return m
	}

	out.Root = image(g.Root)
	for _, n := range g.Nodes {
		from := image(n)
		if from == nil {
			continue
		}
		for _, s := range n.Succ {
			to := image(s)
			if to == nil || to == from {
				continue
			}
			from.connectTo(to)
		}
	}
	return out
}
