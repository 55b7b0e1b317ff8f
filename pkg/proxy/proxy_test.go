package proxy

import (
	"testing"

	"jsgo/pkg/atom"
	"jsgo/pkg/class"
	"jsgo/pkg/errchan"
	"jsgo/pkg/gc"
	"jsgo/pkg/object"
	"jsgo/pkg/shape"
	"jsgo/pkg/value"
)

func newTestObject(heap *gc.Heap, atoms *atom.Table, cache *shape.RootCache) *object.Object {
	root := cache.Root(nil)
	return object.New(heap, class.Object, root, nil)
}

func noCall(fn value.Value, this value.Value, args []value.Value) value.Value {
	return value.Undefined
}

func TestGetForwardsToTargetWhenTrapAbsent(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	k := atoms.Intern("k", atom.KindString)
	target.DefineOwnProperty(heap, atoms, k, object.Descriptor{Value: value.Int32(5), Writable: true, Enumerable: true, Configurable: true})
	p := New(target, handler, false)
	v := p.Get(heap, atoms, errs, nil, k, value.Object(target), noCall)
	if v.AsInt32() != 5 {
		t.Fatalf("expected forwarded get to return 5, got %v", v)
	}
}

func TestGetInvokesTrapAndValidatesInvariant(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	k := atoms.Intern("k", atom.KindString)
	target.DefineOwnProperty(heap, atoms, k, object.Descriptor{Value: value.Int32(5), Writable: false, Enumerable: true, Configurable: false})
	trapName := atoms.Intern("get", atom.KindString)
	var trapMarker = value.Int32(1234)
	handler.DefineOwnProperty(heap, atoms, trapName, object.Descriptor{Value: trapMarker, Writable: true, Enumerable: true, Configurable: true})
	p := New(target, handler, false)
	call := func(fn value.Value, this value.Value, args []value.Value) value.Value {
		if fn != trapMarker {
			t.Fatal("expected the get trap function to be invoked")
		}
		return value.Int32(999) // violates the non-configurable, non-writable invariant
	}
	v := p.Get(heap, atoms, errs, nil, k, value.Object(target), call)
	if !v.IsException() {
		t.Fatal("expected a mismatched get trap result against a frozen property to throw")
	}
}

func TestGetReturnsTrapResultWhenConsistent(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	k := atoms.Intern("k", atom.KindString)
	trapName := atoms.Intern("get", atom.KindString)
	trapMarker := value.Int32(1)
	handler.DefineOwnProperty(heap, atoms, trapName, object.Descriptor{Value: trapMarker, Writable: true, Enumerable: true, Configurable: true})
	p := New(target, handler, false)
	call := func(fn value.Value, this value.Value, args []value.Value) value.Value {
		return value.Int32(77)
	}
	v := p.Get(heap, atoms, errs, nil, k, value.Object(target), call)
	if v.AsInt32() != 77 {
		t.Fatalf("expected trap result 77, got %v", v)
	}
}

func TestRevokedProxyThrowsOnEveryTrap(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	p := New(target, handler, false)
	p.Revoke()
	k := atoms.Intern("k", atom.KindString)
	v := p.Get(heap, atoms, errs, nil, k, value.Undefined, noCall)
	if !v.IsException() {
		t.Fatal("expected a revoked proxy's get trap to throw")
	}
	if !p.Revoked() {
		t.Fatal("expected Revoked() to report true")
	}
}

func TestHasRejectsReportingNonConfigurableOwnPropertyAbsent(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	k := atoms.Intern("k", atom.KindString)
	target.DefineOwnProperty(heap, atoms, k, object.Descriptor{Value: value.Int32(1), Writable: true, Enumerable: true, Configurable: false})
	trapName := atoms.Intern("has", atom.KindString)
	trapMarker := value.Int32(1)
	handler.DefineOwnProperty(heap, atoms, trapName, object.Descriptor{Value: trapMarker, Writable: true, Enumerable: true, Configurable: true})
	p := New(target, handler, false)
	call := func(fn value.Value, this value.Value, args []value.Value) value.Value {
		return value.Int32(0) // false
	}
	_, exc := p.Has(heap, atoms, errs, nil, k, call)
	if !exc.IsException() {
		t.Fatal("expected reporting a non-configurable own property absent to throw")
	}
}

func TestSetForwardsWhenTrapAbsent(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	k := atoms.Intern("k", atom.KindString)
	p := New(target, handler, false)
	ok, exc := p.Set(heap, atoms, errs, nil, k, value.Int32(42), value.Object(target), noCall)
	if !ok || exc.IsException() {
		t.Fatalf("expected forwarded set to succeed, got ok=%v exc=%v", ok, exc)
	}
	d, found := target.GetOwnProperty(k)
	if !found || d.Value.AsInt32() != 42 {
		t.Fatalf("expected target to receive the forwarded set, got %+v", d)
	}
}

func TestDeletePropertyRejectsNonConfigurableSuccessReport(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	k := atoms.Intern("k", atom.KindString)
	target.DefineOwnProperty(heap, atoms, k, object.Descriptor{Value: value.Int32(1), Writable: true, Enumerable: true, Configurable: false})
	trapName := atoms.Intern("deleteProperty", atom.KindString)
	trapMarker := value.Int32(1)
	handler.DefineOwnProperty(heap, atoms, trapName, object.Descriptor{Value: trapMarker, Writable: true, Enumerable: true, Configurable: true})
	p := New(target, handler, false)
	call := func(fn value.Value, this value.Value, args []value.Value) value.Value {
		return value.Int32(1) // true
	}
	_, exc := p.DeleteProperty(heap, atoms, errs, nil, k, call)
	if !exc.IsException() {
		t.Fatal("expected reporting successful delete of a non-configurable property to throw")
	}
}

func TestOwnKeysMustIncludeNonConfigurableTargetKeys(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	k := atoms.Intern("k", atom.KindString)
	target.DefineOwnProperty(heap, atoms, k, object.Descriptor{Value: value.Int32(1), Writable: true, Enumerable: true, Configurable: false})
	trapName := atoms.Intern("ownKeys", atom.KindString)
	trapMarker := value.Int32(1)
	handler.DefineOwnProperty(heap, atoms, trapName, object.Descriptor{Value: trapMarker, Writable: true, Enumerable: true, Configurable: true})
	p := New(target, handler, false)
	call := func(fn value.Value, this value.Value, args []value.Value) value.Value {
		return value.Undefined // stand-in result; toAtoms below reports it empty
	}
	toAtoms := func(v value.Value) ([]atom.Atom, bool) { return nil, true }
	_, exc := p.OwnKeys(heap, atoms, errs, nil, toAtoms, call)
	if !exc.IsException() {
		t.Fatal("expected an ownKeys result missing a non-configurable own key to throw")
	}
}

func TestOwnKeysForwardsWhenTrapAbsent(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	k := atoms.Intern("k", atom.KindString)
	target.DefineOwnProperty(heap, atoms, k, object.Descriptor{Value: value.Int32(1), Writable: true, Enumerable: true, Configurable: true})
	p := New(target, handler, false)
	toAtoms := func(v value.Value) ([]atom.Atom, bool) { return nil, true }
	keys, exc := p.OwnKeys(heap, atoms, errs, nil, toAtoms, noCall)
	if exc.IsException() || len(keys) != 1 || keys[0] != k {
		t.Fatalf("expected forwarded ownKeys to return target's own keys, got %v exc=%v", keys, exc)
	}
}

func TestPreventExtensionsRejectsFalseInvariant(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	trapName := atoms.Intern("preventExtensions", atom.KindString)
	trapMarker := value.Int32(1)
	handler.DefineOwnProperty(heap, atoms, trapName, object.Descriptor{Value: trapMarker, Writable: true, Enumerable: true, Configurable: true})
	p := New(target, handler, false)
	call := func(fn value.Value, this value.Value, args []value.Value) value.Value {
		return value.Int32(1) // reports true, but target stays extensible
	}
	_, exc := p.PreventExtensions(heap, atoms, errs, nil, call)
	if !exc.IsException() {
		t.Fatal("expected reporting success without actually restricting the target to throw")
	}
}

func TestApplyRejectsNonFunctionProxy(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	p := New(target, handler, false)
	v := p.Apply(heap, atoms, errs, nil, value.Undefined, nil, noCall, func(args []value.Value) value.Value { return value.Undefined })
	if !v.IsException() {
		t.Fatal("expected apply on a non-function proxy to throw")
	}
}

func TestApplyForwardsWhenTrapAbsent(t *testing.T) {
	heap := gc.New(nil)
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	cache := shape.NewRootCache()
	target := newTestObject(heap, atoms, cache)
	handler := newTestObject(heap, atoms, cache)
	p := New(target, handler, true)
	called := false
	call := func(fn value.Value, this value.Value, args []value.Value) value.Value {
		called = true
		return value.Int32(3)
	}
	v := p.Apply(heap, atoms, errs, nil, value.Undefined, nil, call, func(args []value.Value) value.Value { return value.Undefined })
	if !called || v.AsInt32() != 3 {
		t.Fatal("expected apply with no trap to forward the call directly to the target")
	}
}
