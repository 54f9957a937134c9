package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// dispatchDoc is the common fixture: an allocated class A with a dynamic
// member, and a static main that performs the dynamic call under test.
func dispatchDoc(member string, selector int, call []any) (*docBuilder, int) {
	d := newDoc()
	cls := d.class("package:app/main.dart", "A")
	fn := d.function(cls, member, selector)
	main := d.staticFunction(d.class("package:app/main.dart", "::"), "main")
	d.roots(main)
	d.compiled(main, cls, call)
	d.compiled(fn)
	d.end()
	return d, fn
}

func TestDispatchBySelectorID(t *testing.T) {
	d, _ := dispatchDoc("foo", 7, dispatchRef(7))
	g := d.mustLoad(t)

	sel := findNode(t, g, "dispatch:7")
	assert.True(t, hasEdge(sel, findNode(t, g, "::A::foo")))
}

func TestDispatchSelectorIDMismatch(t *testing.T) {
	d, _ := dispatchDoc("foo", 7, dispatchRef(8))
	g := d.mustLoad(t)

	sel := findNode(t, g, "dispatch:8")
	assert.Empty(t, sel.Succ, "different table id must not resolve")
}

func TestDispatchByName(t *testing.T) {
	d := newDoc()
	cls := d.class("package:app/main.dart", "A")
	fn := d.function(cls, "foo", noSelectorID)
	main := d.staticFunction(d.class("package:app/main.dart", "::"), "main")
	d.roots(main)
	d.compiled(main, cls, d.dyn("foo"))
	d.compiled(fn)
	d.end()
	g := d.mustLoad(t)

	sel := findNode(t, g, "selector:foo")
	assert.True(t, hasEdge(sel, findNode(t, g, "::A::foo")))
}

func TestDynamicForwarderFallback(t *testing.T) {
	// No dedicated dyn:foo member: a dyn:foo call reaches foo directly.
	d := newDoc()
	cls := d.class("package:app/main.dart", "A")
	fn := d.function(cls, "foo", noSelectorID)
	main := d.staticFunction(d.class("package:app/main.dart", "::"), "main")
	d.roots(main)
	d.compiled(main, cls, d.dyn("dyn:foo"))
	d.compiled(fn)
	d.end()
	g := d.mustLoad(t)

	sel := findNode(t, g, "selector:dyn:foo")
	assert.True(t, hasEdge(sel, findNode(t, g, "::A::foo")))
}

func TestDedicatedForwarderSuppressesFallback(t *testing.T) {
	// With a dedicated dyn:foo forwarder present, the dyn:foo call goes to
	// the forwarder only, never to foo itself.
	d := newDoc()
	cls := d.class("package:app/main.dart", "A")
	fn := d.function(cls, "foo", noSelectorID)
	fwd := d.function(cls, "dyn:foo", noSelectorID)
	main := d.staticFunction(d.class("package:app/main.dart", "::"), "main")
	d.roots(main)
	d.compiled(main, cls, d.dyn("dyn:foo"))
	d.compiled(fn)
	d.compiled(fwd)
	d.end()
	g := d.mustLoad(t)

	sel := findNode(t, g, "selector:dyn:foo")
	assert.True(t, hasEdge(sel, findNode(t, g, "::A::dyn:foo")))
	assert.False(t, hasEdge(sel, findNode(t, g, "::A::foo")))
	assert.Len(t, sel.Succ, 1)
}

func TestGetterAnswersCallSelectors(t *testing.T) {
	// A field getter answers the plain property selector, the dyn: variant,
	// and the explicit get: selector.
	d := newDoc()
	cls := d.class("package:app/main.dart", "A")
	getter := d.function(cls, "get:bar", noSelectorID)
	main := d.staticFunction(d.class("package:app/main.dart", "::"), "main")
	d.roots(main)
	d.compiled(main, cls, d.dyn("bar"), d.dyn("dyn:bar"), d.dyn("get:bar"))
	d.compiled(getter)
	d.end()
	g := d.mustLoad(t)

	target := findNode(t, g, "::A::get:bar")
	for _, s := range []string{"selector:bar", "selector:dyn:bar", "selector:get:bar"} {
		assert.True(t, hasEdge(findNode(t, g, s), target), s)
	}
}

func TestTearOffExtractorAnswersGetterSelector(t *testing.T) {
	d := newDoc()
	cls := d.class("package:app/main.dart", "A")
	ext := d.function(cls, "[tear-off-extractor] get:foo", noSelectorID)
	main := d.staticFunction(d.class("package:app/main.dart", "::"), "main")
	d.roots(main)
	d.compiled(main, cls, d.dyn("get:foo"))
	d.compiled(ext)
	d.end()
	g := d.mustLoad(t)

	sel := findNode(t, g, "selector:get:foo")
	assert.True(t, hasEdge(sel, findNode(t, g, "[tear-off-extractor] get:foo@1")))
}

func TestUnallocatedClassNotDispatchTarget(t *testing.T) {
	// The class entity is decoded but never appears as an allocation site, so
	// its members are not dispatch candidates.
	d := newDoc()
	cls := d.class("package:app/main.dart", "A")
	fn := d.function(cls, "foo", noSelectorID)
	main := d.staticFunction(d.class("package:app/main.dart", "::"), "main")
	d.roots(main)
	d.compiled(main, d.dyn("foo"))
	d.compiled(fn)
	d.end()
	g := d.mustLoad(t)

	sel := findNode(t, g, "selector:foo")
	assert.Empty(t, sel.Succ)
}

func TestStaticFunctionNotDispatchTarget(t *testing.T) {
	d := newDoc()
	cls := d.class("package:app/main.dart", "A")
	fn := d.staticFunction(cls, "foo")
	main := d.staticFunction(d.class("package:app/main.dart", "::"), "main")
	d.roots(main)
	d.compiled(main, cls, d.dyn("foo"))
	d.compiled(fn)
	d.end()
	g := d.mustLoad(t)

	sel := findNode(t, g, "selector:foo")
	assert.Empty(t, sel.Succ, "statically-bound members are never dynamic targets")
}

func TestSelectorNodesAreShared(t *testing.T) {
	// The same selector name referenced from two callers is one node.
	d := newDoc()
	cls := d.class("package:app/main.dart", "A")
	f1 := d.staticFunction(cls, "f1")
	f2 := d.staticFunction(cls, "f2")
	d.roots(f1, f2)
	d.compiled(f1, d.dyn("zap"))
	d.compiled(f2, d.dyn("zap"))
	d.end()
	g := d.mustLoad(t)

	sel := findNode(t, g, "selector:zap")
	assert.ElementsMatch(t,
		[]*Node{findNode(t, g, "::f1"), findNode(t, g, "::f2")},
		sel.Pred)
}
