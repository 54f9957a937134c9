package callgraph

import "log/slog"

// ComputeDominators computes the immediate dominator of every node reachable
// from the graph root using the SEMI-NCA algorithm and records the relation
// bidirectionally on the nodes. Rerunning on an unmodified graph overwrites
// prior annotations with identical results. Nodes not reached from the root
// are reported as a non-fatal diagnostic and excluded from the dominator
// tree; they stay in the node list.
//
// All passes are iterative and run in near-linear time in the number of
// edges via path compression, so graphs with hundreds of thousands of nodes
// stay cheap.
func (g *CallGraph) ComputeDominators() {
	for _, n := range g.Nodes {
		n.Dominator = nil
		n.Dominated = n.Dominated[:0]
	}
	g.Unreachable = nil
	if g.Root == nil {
		return
	}

	// Pass 1: depth-first preorder numbering from the root with an explicit
	// stack, recording each node's DFS-tree parent.
	pre := make([]int, len(g.Nodes))
	for i := range pre {
		pre[i] = -1
	}
	byPre := make([]*Node, 0, len(g.Nodes))
	parent := make([]int, 0, len(g.Nodes)) // preorder of the DFS parent

	type visit struct {
		node      *Node
		parentPre int
	}
	stack := []visit{{g.Root, -1}}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if pre[v.node.ID] >= 0 {
			continue
		}
		num := len(byPre)
		pre[v.node.ID] = num
		byPre = append(byPre, v.node)
		parent = append(parent, v.parentPre)
		for i := len(v.node.Succ) - 1; i >= 0; i-- {
			if s := v.node.Succ[i]; pre[s.ID] < 0 {
				stack = append(stack, visit{s, num})
			}
		}
	}

	reach := len(byPre)
	if reach < len(g.Nodes) {
		for _, n := range g.Nodes {
			if pre[n.ID] < 0 {
				g.Unreachable = append(g.Unreachable, n)
			}
		}
		slog.Warn("nodes unreachable from root excluded from dominator tree",
			"unreachable", len(g.Unreachable), "reachable", reach)
		for _, n := range g.Unreachable[:min(len(g.Unreachable), 5)] {
			slog.Debug("unreachable node", "label", n.Label())
		}
	}

	// Pass 2: semidominators, in strictly decreasing preorder, via a
	// link-eval forest with path compression. label[v] holds the minimum
	// semidominator seen on the compressed path above v; anc starts as the
	// DFS parent links and is rewritten as paths compress.
	semi := make([]int, reach)
	label := make([]int, reach)
	anc := make([]int, reach)
	for i := 0; i < reach; i++ {
		semi[i] = i
		label[i] = i
		anc[i] = parent[i]
	}

	var path []int
	evalMin := func(v, cutoff int) int {
		if anc[v] < cutoff {
			return label[v]
		}
		path = path[:0]
		u := v
		for anc[u] >= cutoff {
			path = append(path, u)
			u = anc[u]
		}
		// u is the compression root: fold the running minimum downward and
		// shortcut every path node past it.
		prev := u
		for i := len(path) - 1; i >= 0; i-- {
			x := path[i]
			if label[prev] < label[x] {
				label[x] = label[prev]
			}
			anc[x] = anc[u]
			prev = x
		}
		return label[v]
	}

	for w := reach - 1; w >= 1; w-- {
		s := parent[w]
		for _, p := range byPre[w].Pred {
			pv := pre[p.ID]
			if pv < 0 {
				continue // predecessor itself unreachable from the root
			}
			var c int
			if pv < w {
				c = pv
			} else {
				c = evalMin(pv, w+1)
			}
			if c < s {
				s = c
			}
		}
		semi[w] = s
		label[w] = s
	}

	// Pass 3: immediate dominators, in strictly increasing preorder. The
	// candidate starts at the DFS-tree parent and ascends the already
	// finalized dominator links while its preorder exceeds the node's
	// semidominator.
	idom := make([]int, reach)
	for w := 1; w < reach; w++ {
		d := parent[w]
		for d > semi[w] {
			d = idom[d]
		}
		idom[w] = d
	}

	for w := 1; w < reach; w++ {
		dom := byPre[idom[w]]
		n := byPre[w]
		n.Dominator = dom
		dom.Dominated = append(dom.Dominated, n)
	}
}
