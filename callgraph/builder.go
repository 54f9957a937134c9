package callgraph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("callgraph")

// LoadTraceFile reads and analyzes a precompiler trace artifact from disk.
func LoadTraceFile(ctx context.Context, path string) (*CallGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()
	return LoadTrace(ctx, f)
}

// LoadTrace decodes a precompiler trace document and builds the
// whole-program call graph, including the dispatch-resolution finalization
// pass. Any grammar violation aborts the load with a *FormatError; no
// partial graph is returned.
func LoadTrace(ctx context.Context, src io.Reader) (*CallGraph, error) {
	_, span := tracer.Start(ctx, "callgraph.load")
	defer span.End()

	doc, err := decodeDocument(src)
	if err != nil {
		return nil, err
	}
	r, err := newTraceReader(doc)
	if err != nil {
		return nil, err
	}
	b := newBuilder(r)
	if err := b.run(); err != nil {
		return nil, err
	}

	g := b.graph
	span.SetAttributes(
		attribute.Int("callgraph.entities", len(r.entities)),
		attribute.Int("callgraph.nodes", len(g.Nodes)),
		attribute.Int("callgraph.edges", g.EdgeCount()),
	)
	slog.Info("loaded precompiler trace",
		"entities", len(r.entities),
		"nodes", len(g.Nodes),
		"edges", g.EdgeCount())
	return g, nil
}

// builder consumes the event stream and owns the transient state of one
// load: pending selector nodes and the set of classes observed as
// allocation sites. None of it outlives the load.
type builder struct {
	r     *traceReader
	graph *CallGraph

	selectorNodes map[string]*Node
	dispatchNodes map[int]*Node

	allocated    map[*ProgramNode]struct{}
	allocedOrder []*ProgramNode
}

func newBuilder(r *traceReader) *builder {
	g := newCallGraph()
	g.Root = g.nodeFor(r.tree.Root)
	return &builder{
		r:             r,
		graph:         g,
		selectorNodes: make(map[string]*Node),
		dispatchNodes: make(map[int]*Node),
		allocated:     make(map[*ProgramNode]struct{}),
	}
}

// run consumes events until the end token, then resolves dispatch.
func (b *builder) run() error {
	for {
		tok, ok := b.r.next()
		if !ok {
			return formatErrorf("event stream ended without end token")
		}
		tag, isTag := asTag(tok)
		if !isTag {
			return formatErrorf("expected event tag, got %v", tok)
		}
		switch tag {
		case tagRoots:
			if err := b.readRefs(b.graph.Root); err != nil {
				return err
			}
		case tagCompiled:
			fn, err := b.readEntityRef()
			if err != nil {
				return err
			}
			if !fn.isFunction() {
				return formatErrorf("compiled event target %q is a %q record, want function",
					fn.rawName, fn.kind)
			}
			if err := b.readRefs(b.graph.nodeFor(fn.node)); err != nil {
				return err
			}
		case tagEnd:
			b.resolveDispatch()
			return nil
		default:
			return formatErrorf("unexpected event tag %q", tag)
		}
	}
}

func (b *builder) readEntityRef() (*entity, error) {
	tok, ok := b.r.next()
	if !ok {
		return nil, formatErrorf("event stream ended inside event")
	}
	i, isInt := asInt(tok)
	if !isInt {
		return nil, formatErrorf("expected entity reference, got %v", tok)
	}
	return b.r.entityAt(i)
}

// readRefs consumes the ref list of the current event, adding one directed
// edge per ref from the source node. The list ends, without consuming the
// token, at the next compiled or end tag; any other tag at a ref position is
// a fatal format error.
func (b *builder) readRefs(from *Node) error {
	for {
		tok, ok := b.r.peek()
		if !ok {
			return formatErrorf("event stream ended inside ref list")
		}
		if tag, isTag := asTag(tok); isTag {
			switch tag {
			case tagCompiled, tagEnd:
				return nil // look-ahead only; the event loop consumes it
			case tagDynamicCall:
				b.r.next()
				nameTok, ok := b.r.next()
				if !ok {
					return formatErrorf("dynamic call without selector name")
				}
				name, err := b.r.stringAt(nameTok)
				if err != nil {
					return err
				}
				from.connectTo(b.selectorNode(name))
			case tagDispatchCall:
				b.r.next()
				idTok, ok := b.r.next()
				if !ok {
					return formatErrorf("dispatch call without selector id")
				}
				id, isInt := asInt(idTok)
				if !isInt {
					return formatErrorf("dispatch call selector id is %v, want integer", idTok)
				}
				from.connectTo(b.dispatchNode(id))
			default:
				return formatErrorf("unexpected token %q in ref list", tag)
			}
			continue
		}
		e, err := b.readEntityRef()
		if err != nil {
			return err
		}
		if e.kind == tagClass {
			b.recordAllocated(e.node)
		}
		from.connectTo(b.graph.nodeFor(e.node))
	}
}

// selectorNode returns the pending node for a by-name selector, creating it
// on first reference.
func (b *builder) selectorNode(name string) *Node {
	if n, ok := b.selectorNodes[name]; ok {
		return n
	}
	n := b.graph.newNode()
	n.Selector = name
	b.selectorNodes[name] = n
	return n
}

// dispatchNode returns the pending node for a by-id selector, creating it on
// first reference.
func (b *builder) dispatchNode(id int) *Node {
	if n, ok := b.dispatchNodes[id]; ok {
		return n
	}
	n := b.graph.newNode()
	n.DispatchID = id
	b.dispatchNodes[id] = n
	return n
}

func (b *builder) recordAllocated(class *ProgramNode) {
	if _, ok := b.allocated[class]; ok {
		return
	}
	b.allocated[class] = struct{}{}
	b.allocedOrder = append(b.allocedOrder, class)
}

// resolveDispatch runs the single finalization pass: for every class
// observed as an allocation site, connect pending selector nodes to the
// dynamically-callable members they can reach at runtime. The rules are
// additive and mirror the runtime's dispatch fallback; dropping one
// undercounts reachable code, adding one fabricates reachability.
func (b *builder) resolveDispatch() {
	for _, class := range b.allocedOrder {
		for _, fn := range b.r.dynamicByClass[class] {
			target := b.graph.nodeFor(fn.node)
			name := fn.rawName

			// Exact dispatch-table id match.
			if fn.selector != noSelectorID {
				if n, ok := b.dispatchNodes[fn.selector]; ok {
					n.connectTo(target)
				}
			}
			// Exact name match.
			b.connectSelector(name, target)
			// The runtime falls back to the target itself when the class has
			// no dedicated dynamic forwarder for this name.
			if !strings.HasPrefix(name, dynamicPrefix) &&
				!b.r.classHasMember(class, dynamicPrefix+name) {
				b.connectSelector(dynamicPrefix+name, target)
			}
			// Implicit call through a getter.
			if prop, ok := strings.CutPrefix(name, getterPrefix); ok {
				b.connectSelector(prop, target)
				b.connectSelector(dynamicPrefix+prop, target)
			}
			// Tear-off extractors answer for the plain getter selector.
			if getter, ok := strings.CutPrefix(name, tearOffExtractorPrefix); ok {
				b.connectSelector(getter, target)
			}
		}
	}
}

func (b *builder) connectSelector(name string, target *Node) {
	if n, ok := b.selectorNodes[name]; ok {
		n.connectTo(target)
	}
}
