package callgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// docBuilder assembles a trace document for tests: a string pool, a stride-4
// entity table, and an event stream.
type docBuilder struct {
	strings  []string
	stringIx map[string]int
	entities []any
	trace    []any
}

func newDoc() *docBuilder {
	return &docBuilder{stringIx: make(map[string]int)}
}

// str interns s into the string pool and returns its index.
func (d *docBuilder) str(s string) int {
	if i, ok := d.stringIx[s]; ok {
		return i
	}
	i := len(d.strings)
	d.strings = append(d.strings, s)
	d.stringIx[s] = i
	return i
}

func (d *docBuilder) addEntity(slots ...any) int {
	id := len(d.entities) / entityStride
	d.entities = append(d.entities, slots...)
	return id
}

func (d *docBuilder) class(library, name string) int {
	return d.addEntity(tagClass, d.str(library), d.str(name), 0)
}

// function adds a dynamically-callable function owned by class.
func (d *docBuilder) function(class int, name string, selector int) int {
	return d.addEntity(tagDynamicFunction, class, d.str(name), selector)
}

func (d *docBuilder) staticFunction(class int, name string) int {
	return d.addEntity(tagStaticFunction, class, d.str(name), noSelectorID)
}

func (d *docBuilder) field(class int, name string) int {
	return d.addEntity(tagField, class, d.str(name), 0)
}

// appendRefs flattens refs into the trace stream: ints are entity refs,
// []any slices (from dyn / dispatchRef) splice in verbatim.
func (d *docBuilder) appendRefs(refs []any) {
	for _, r := range refs {
		if toks, ok := r.([]any); ok {
			d.trace = append(d.trace, toks...)
			continue
		}
		d.trace = append(d.trace, r)
	}
}

func (d *docBuilder) roots(refs ...any) {
	d.trace = append(d.trace, tagRoots)
	d.appendRefs(refs)
}

func (d *docBuilder) compiled(fn int, refs ...any) {
	d.trace = append(d.trace, tagCompiled, fn)
	d.appendRefs(refs)
}

func (d *docBuilder) end() {
	d.trace = append(d.trace, tagEnd)
}

// dyn is a dynamic-call-by-name ref.
func (d *docBuilder) dyn(name string) []any {
	return []any{tagDynamicCall, d.str(name)}
}

// dispatchRef is a dispatch-table-call-by-id ref.
func dispatchRef(id int) []any {
	return []any{tagDispatchCall, id}
}

func (d *docBuilder) bytes(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"strings":  d.strings,
		"entities": d.entities,
		"trace":    d.trace,
	})
	require.NoError(t, err)
	return data
}

func (d *docBuilder) load(t *testing.T) (*CallGraph, error) {
	t.Helper()
	return LoadTrace(context.Background(), bytes.NewReader(d.bytes(t)))
}

func (d *docBuilder) mustLoad(t *testing.T) *CallGraph {
	t.Helper()
	g, err := d.load(t)
	require.NoError(t, err)
	return g
}

// findNode returns the unique graph node whose label is s or ends in s.
func findNode(t *testing.T, g *CallGraph, s string) *Node {
	t.Helper()
	var found *Node
	for _, n := range g.Nodes {
		if n.Label() == s || strings.HasSuffix(n.Label(), s) {
			if found != nil {
				t.Fatalf("label %q is ambiguous: %q and %q", s, found.Label(), n.Label())
			}
			found = n
		}
	}
	require.NotNilf(t, found, "no node labeled %q; have %v", s, nodeLabels(g))
	return found
}

func nodeLabels(g *CallGraph) []string {
	labels := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		labels[i] = n.Label()
	}
	return labels
}

func hasEdge(from, to *Node) bool {
	for _, s := range from.Succ {
		if s == to {
			return true
		}
	}
	return false
}
