package callgraph

import "strings"

// NodeKind classifies program tree nodes and selects the target granularity
// for Collapse.
type NodeKind int

const (
	KindRoot NodeKind = iota
	KindPackage
	KindLibrary
	KindClass
	KindFunction
	KindField
)

func (k NodeKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindPackage:
		return "package"
	case KindLibrary:
		return "library"
	case KindClass:
		return "class"
	case KindFunction:
		return "function"
	case KindField:
		return "field"
	}
	return "unknown"
}

// ProgramNode is one entity in the ownership tree: a package, library,
// class, function, or field. Every node except the root has exactly one
// parent. The integer id is assigned once and is stable for the node's
// lifetime.
type ProgramNode struct {
	ID       int
	Name     string
	Kind     NodeKind
	Parent   *ProgramNode
	Children []*ProgramNode

	byName map[string]*ProgramNode
}

// QualifiedName joins the names on the path from the root (exclusive) down
// to this node.
func (n *ProgramNode) QualifiedName() string {
	if n.Parent == nil {
		return n.Name
	}
	var parts []string
	for cur := n; cur.Parent != nil; cur = cur.Parent {
		parts = append(parts, cur.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "::")
}

// ProgramTree owns all entity nodes for the lifetime of one loaded trace.
// It grows lazily while the trace is read and is never mutated afterward.
type ProgramTree struct {
	Root  *ProgramNode
	nodes []*ProgramNode
}

func NewProgramTree() *ProgramTree {
	t := &ProgramTree{}
	t.Root = t.newNode(nil, "@program", KindRoot)
	return t
}

func (t *ProgramTree) newNode(parent *ProgramNode, name string, kind NodeKind) *ProgramNode {
	n := &ProgramNode{
		ID:     len(t.nodes),
		Name:   name,
		Kind:   kind,
		Parent: parent,
		byName: make(map[string]*ProgramNode),
	}
	t.nodes = append(t.nodes, n)
	if parent != nil {
		parent.Children = append(parent.Children, n)
		parent.byName[name] = n
	}
	return n
}

// MakeNode returns the child of parent with the given name, creating it on
// first use. Repeated lookups return the same node.
func (t *ProgramTree) MakeNode(parent *ProgramNode, name string, kind NodeKind) *ProgramNode {
	if existing, ok := parent.byName[name]; ok {
		return existing
	}
	return t.newNode(parent, name, kind)
}

// Len returns the number of nodes in the tree.
func (t *ProgramTree) Len() int { return len(t.nodes) }
