package callgraph

import (
	"fmt"
	"strings"
)

// entity is the decoded form of one stride-4 entity record.
type entity struct {
	node     *ProgramNode // innermost tree node for the entity
	kind     string       // entity table tag
	rawName  string       // literal name, before display disambiguation
	class    *ProgramNode // owning class for functions and fields
	selector int          // dispatch-table id, noSelectorID if unassigned
}

func (e *entity) isFunction() bool {
	return e.kind == tagDynamicFunction || e.kind == tagStaticFunction
}

// traceReader decodes the flat trace artifact: string pool lookups, memoized
// on-demand entity decoding, and a forward cursor with one-token look-ahead
// over the event stream.
type traceReader struct {
	doc  *traceDocument
	tree *ProgramTree
	pos  int // cursor into doc.Trace

	entities []*entity // memoized by entity index

	// Per-class views accumulated as members are decoded, consumed by the
	// dispatch-resolution pass.
	dynamicByClass map[*ProgramNode][]*entity
	membersByClass map[*ProgramNode]map[string]struct{}
}

func newTraceReader(doc *traceDocument) (*traceReader, error) {
	if len(doc.Entities)%entityStride != 0 {
		return nil, formatErrorf("entity table length %d is not a multiple of %d",
			len(doc.Entities), entityStride)
	}
	return &traceReader{
		doc:            doc,
		tree:           NewProgramTree(),
		entities:       make([]*entity, len(doc.Entities)/entityStride),
		dynamicByClass: make(map[*ProgramNode][]*entity),
		membersByClass: make(map[*ProgramNode]map[string]struct{}),
	}, nil
}

func (r *traceReader) stringAt(tok any) (string, error) {
	i, ok := asInt(tok)
	if !ok || i < 0 || i >= len(r.doc.Strings) {
		return "", formatErrorf("invalid string pool reference %v", tok)
	}
	return r.doc.Strings[i], nil
}

// entityAt decodes entity i, resolving its owner chain first. Decoding is
// memoized: each entity is decoded at most once per load.
func (r *traceReader) entityAt(i int) (*entity, error) {
	if i < 0 || i >= len(r.entities) {
		return nil, formatErrorf("entity index %d out of range (have %d entities)",
			i, len(r.entities))
	}
	if e := r.entities[i]; e != nil {
		return e, nil
	}
	base := i * entityStride
	tag, ok := asTag(r.doc.Entities[base])
	if !ok {
		return nil, formatErrorf("entity %d: kind tag is %v, want string", i, r.doc.Entities[base])
	}
	e := &entity{kind: tag, selector: noSelectorID}
	switch tag {
	case tagClass:
		uri, err := r.stringAt(r.doc.Entities[base+1])
		if err != nil {
			return nil, err
		}
		name, err := r.stringAt(r.doc.Entities[base+2])
		if err != nil {
			return nil, err
		}
		e.rawName = name
		e.node = r.tree.MakeNode(r.libraryNode(uri), name, KindClass)
	case tagDynamicFunction, tagStaticFunction:
		owner, name, err := r.memberFields(i, base)
		if err != nil {
			return nil, err
		}
		sel, ok := asInt(r.doc.Entities[base+3])
		if !ok {
			return nil, formatErrorf("entity %d: dispatch selector id is %v, want integer",
				i, r.doc.Entities[base+3])
		}
		e.rawName = name
		e.selector = sel
		e.class = owner
		e.node = r.functionNode(owner, name, i)
		r.recordMember(owner, name)
		if tag == tagDynamicFunction {
			r.dynamicByClass[owner] = append(r.dynamicByClass[owner], e)
		}
	case tagField:
		owner, name, err := r.memberFields(i, base)
		if err != nil {
			return nil, err
		}
		e.rawName = name
		e.class = owner
		e.node = r.tree.MakeNode(owner, name, KindField)
		r.recordMember(owner, name)
	default:
		return nil, formatErrorf("entity %d: unknown kind tag %q", i, tag)
	}
	r.entities[i] = e
	return e, nil
}

// memberFields resolves the owning class and name of a function or field
// record, decoding the owner recursively.
func (r *traceReader) memberFields(i, base int) (*ProgramNode, string, error) {
	ownerIdx, ok := asInt(r.doc.Entities[base+1])
	if !ok {
		return nil, "", formatErrorf("entity %d: owner reference is %v, want integer",
			i, r.doc.Entities[base+1])
	}
	owner, err := r.entityAt(ownerIdx)
	if err != nil {
		return nil, "", err
	}
	if owner.kind != tagClass {
		return nil, "", formatErrorf("entity %d: owner %d is a %q record, want class",
			i, ownerIdx, owner.kind)
	}
	name, err := r.stringAt(r.doc.Entities[base+2])
	if err != nil {
		return nil, "", err
	}
	return owner.node, name, nil
}

// libraryNode returns the library tree node for a library URI, creating the
// package and library levels on first use. For "package:" URIs the package
// is the URI up to the first slash; other schemes (dart:, file:) form their
// own single-library package.
func (r *traceReader) libraryNode(uri string) *ProgramNode {
	pkg := uri
	if strings.HasPrefix(uri, "package:") {
		if i := strings.IndexByte(uri, '/'); i >= 0 {
			pkg = uri[:i]
		}
	}
	pkgNode := r.tree.MakeNode(r.tree.Root, pkg, KindPackage)
	return r.tree.MakeNode(pkgNode, uri, KindLibrary)
}

// functionNode expands a function name into its lexical scope chain, one
// nested node per scope level; the innermost node is the call-graph target
// while intermediate nodes preserve naming for attribution. Synthesized
// functions (tear-offs and friends) can share a literal name, so their
// display name carries the originating entity index.
func (r *traceReader) functionNode(class *ProgramNode, name string, index int) *ProgramNode {
	if strings.HasPrefix(name, "[") {
		return r.tree.MakeNode(class, fmt.Sprintf("%s@%d", name, index), KindFunction)
	}
	node := class
	for _, scope := range strings.Split(name, ".") {
		node = r.tree.MakeNode(node, scope, KindFunction)
	}
	return node
}

func (r *traceReader) recordMember(class *ProgramNode, name string) {
	set, ok := r.membersByClass[class]
	if !ok {
		set = make(map[string]struct{})
		r.membersByClass[class] = set
	}
	set[name] = struct{}{}
}

func (r *traceReader) classHasMember(class *ProgramNode, name string) bool {
	_, ok := r.membersByClass[class][name]
	return ok
}

// peek returns the next event token without consuming it.
func (r *traceReader) peek() (any, bool) {
	if r.pos >= len(r.doc.Trace) {
		return nil, false
	}
	return r.doc.Trace[r.pos], true
}

// next consumes and returns the next event token.
func (r *traceReader) next() (any, bool) {
	tok, ok := r.peek()
	if ok {
		r.pos++
	}
	return tok, ok
}
