package object

import (
	"testing"

	"jsgo/pkg/atom"
	"jsgo/pkg/class"
	"jsgo/pkg/gc"
	"jsgo/pkg/shape"
	"jsgo/pkg/value"
)

func noCall(fn value.Value, this value.Value, args []value.Value) value.Value {
	return value.Undefined
}

func TestFastArrayGetSet(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	root := rc.Root(nil)
	atoms := atom.NewTable()
	o := NewArray(heap, atoms, root, nil, 3)
	if !o.IsFastArray() {
		t.Fatal("expected fast-array layout on creation")
	}
	d, ok := o.GetOwnProperty(atom.FromU32(1))
	if !ok || !d.Value.IsUndefined() {
		t.Fatalf("expected undefined hole, got %+v ok=%v", d, ok)
	}
	if !o.DefineOwnProperty(heap, atoms, atom.FromU32(1), Descriptor{Value: value.Int32(9), Writable: true, Enumerable: true, Configurable: true}) {
		t.Fatal("expected in-place element set to succeed")
	}
	d, _ = o.GetOwnProperty(atom.FromU32(1))
	if d.Value.AsInt32() != 9 {
		t.Fatalf("expected element 1 == 9, got %v", d.Value)
	}
	if !o.IsFastArray() {
		t.Fatal("setting a dense element must not degrade the fast array")
	}
}

func TestFastArrayDegradesOnAccessorDefine(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	root := rc.Root(nil)
	atoms := atom.NewTable()
	o := NewArray(heap, atoms, root, nil, 3)

	ok := o.DefineOwnProperty(heap, atoms, atom.FromU32(1), Descriptor{IsAccessor: true, Get: value.Int32(7), Configurable: true, Enumerable: true})
	if !ok {
		t.Fatal("expected accessor define to succeed")
	}
	if o.IsFastArray() {
		t.Fatal("defining an accessor element must degrade the fast array (spec scenario 6)")
	}
	d, found := o.GetOwnProperty(atom.FromU32(1))
	if !found || !d.IsAccessor {
		t.Fatalf("expected element 1 to now be an own accessor property, got %+v found=%v", d, found)
	}
	lengthAtom := atoms.Intern("length", atom.KindString)
	ld, found := o.GetOwnProperty(lengthAtom)
	if !found || ld.Value.AsInt32() != 3 {
		t.Fatalf("expected length to stay 3 across a degrade, got %+v found=%v", ld, found)
	}
	// index 3 (one past the original length) must still work after degrade.
	if !o.DefineOwnProperty(heap, atoms, atom.FromU32(3), Descriptor{Value: value.Int32(4), Writable: true, Enumerable: true, Configurable: true}) {
		t.Fatal("expected a[3]=4 to still work after degrade")
	}
}

func TestArrayLengthIsFirstShapeProperty(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	atoms := atom.NewTable()
	o := NewArray(heap, atoms, rc.Root(nil), nil, 3)
	lengthAtom := atoms.Intern("length", atom.KindString)
	d, ok := o.GetOwnProperty(lengthAtom)
	if !ok || d.Value.AsInt32() != 3 {
		t.Fatalf("expected length == 3, got %+v ok=%v", d, ok)
	}
	if !d.Writable || d.Enumerable || d.Configurable {
		t.Fatalf("expected length to be {writable:true, enumerable:false, configurable:false}, got %+v", d)
	}
	if idx, _ := o.Shape().Find(lengthAtom); idx != 0 {
		t.Fatalf("expected length at shape slot 0, got %d", idx)
	}
}

func TestSetArrayLengthTruncatesFastArray(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	atoms := atom.NewTable()
	o := NewArray(heap, atoms, rc.Root(nil), nil, 5)
	for i := 0; i < 5; i++ {
		o.elements[i] = value.Int32(int32(i))
	}
	lengthAtom := atoms.Intern("length", atom.KindString)
	if !o.DefineOwnProperty(heap, atoms, lengthAtom, Descriptor{Value: value.Int32(2), Writable: true}) {
		t.Fatal("expected set_array_length(2) to succeed")
	}
	if len(o.elements) != 2 {
		t.Fatalf("expected elements truncated to 2, got %d", len(o.elements))
	}
	d, _ := o.GetOwnProperty(lengthAtom)
	if d.Value.AsInt32() != 2 {
		t.Fatalf("expected length == 2, got %v", d.Value)
	}
}

func TestSetArrayLengthStopsAtNonConfigurableProperty(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	atoms := atom.NewTable()
	o := NewArray(heap, atoms, rc.Root(nil), nil, 3)
	o.DefineOwnProperty(heap, atoms, atom.FromU32(1), Descriptor{IsAccessor: true, Get: value.Int32(9), Enumerable: true, Configurable: true})
	if o.IsFastArray() {
		t.Fatal("expected accessor define to degrade the array")
	}
	// Make index 0 non-configurable so truncation below it must stop.
	o.DefineOwnProperty(heap, atoms, atom.FromU32(0), Descriptor{Value: value.Int32(1), Writable: true, Enumerable: true, Configurable: false})

	lengthAtom := atoms.Intern("length", atom.KindString)
	ok := o.DefineOwnProperty(heap, atoms, lengthAtom, Descriptor{Value: value.Int32(0), Writable: true})
	if ok {
		t.Fatal("expected set_array_length(0) to report failure when a non-configurable element blocks full truncation")
	}
	d, _ := o.GetOwnProperty(lengthAtom)
	if d.Value.AsInt32() != 1 {
		t.Fatalf("expected effective length to stop at 1 (index 0 is non-configurable), got %v", d.Value)
	}
}

func TestPrototypeChainGetProperty(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	atoms := atom.NewTable()
	protoRoot := rc.Root("proto")
	proto := New(heap, class.Object, protoRoot, nil)
	xAtom := atoms.Intern("x", atom.KindString)
	proto.DefineOwnProperty(heap, atoms, xAtom, Descriptor{Value: value.Int32(42), Writable: true, Enumerable: true, Configurable: true})

	childRoot := rc.Root(proto)
	child := New(heap, class.Object, childRoot, proto)

	got := child.GetProperty(heap, xAtom, value.Object(child), noCall)
	if got.AsInt32() != 42 {
		t.Fatalf("expected inherited x == 42, got %v", got)
	}
	if !child.HasProperty(xAtom) {
		t.Fatal("HasProperty must see inherited properties")
	}
}

func TestSetPrototypeRefusesCycle(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	a := New(heap, class.Object, rc.Root(nil), nil)
	b := New(heap, class.Object, rc.Root(nil), nil)
	if !a.SetPrototype(heap, b) {
		t.Fatal("expected a -> b to succeed")
	}
	if b.SetPrototype(heap, a) {
		t.Fatal("expected b -> a to be refused (would create a cycle)")
	}
}

func TestSetPrototypeRefusedWhenNonExtensible(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	a := New(heap, class.Object, rc.Root(nil), nil)
	b := New(heap, class.Object, rc.Root(nil), nil)
	a.PreventExtensions()
	if a.SetPrototype(heap, b) {
		t.Fatal("expected prototype change to be refused on a non-extensible object")
	}
}

func TestDeletePropertyCompacts(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	atoms := atom.NewTable()
	o := New(heap, class.Object, rc.Root(nil), nil)
	var atoms9 []atom.Atom
	for i := 0; i < 9; i++ {
		a := atoms.Intern(string(rune('a'+i)), atom.KindString)
		atoms9 = append(atoms9, a)
		o.DefineOwnProperty(heap, atoms, a, Descriptor{Value: value.Int32(int32(i)), Writable: true, Enumerable: true, Configurable: true})
	}
	for i := 0; i < 8; i++ {
		if !o.DeleteProperty(heap, atoms, atoms9[i]) {
			t.Fatalf("expected delete of prop %d to succeed", i)
		}
	}
	names := o.GetOwnPropertyNames(atoms)
	if len(names) != 1 {
		t.Fatalf("expected 1 remaining property after compaction-triggering deletes, got %d", len(names))
	}
	d, ok := o.GetOwnProperty(atoms9[8])
	if !ok || d.Value.AsInt32() != 8 {
		t.Fatalf("expected surviving property to still read back correctly, got %+v ok=%v", d, ok)
	}
}

func TestSetPropertyThroughSetter(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	atoms := atom.NewTable()
	var captured value.Value
	call := func(fn value.Value, this value.Value, args []value.Value) value.Value {
		captured = args[0]
		return value.Undefined
	}
	proto := New(heap, class.Object, rc.Root("p"), nil)
	yAtom := atoms.Intern("y", atom.KindString)
	proto.DefineOwnProperty(heap, atoms, yAtom, Descriptor{IsAccessor: true, Set: value.Int32(1), Configurable: true})

	child := New(heap, class.Object, rc.Root(proto), proto)
	result := child.SetProperty(heap, atoms, yAtom, value.Int32(77), child, call)
	if result != 1 {
		t.Fatalf("expected SetProperty through inherited setter to succeed, got %d", result)
	}
	if captured.AsInt32() != 77 {
		t.Fatalf("expected setter to be called with 77, got %v", captured)
	}
}

func TestDefineOwnPropertyRejectsNonExtensibleNewProperty(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	atoms := atom.NewTable()
	o := New(heap, class.Object, rc.Root(nil), nil)
	o.PreventExtensions()
	zAtom := atoms.Intern("z", atom.KindString)
	if o.DefineOwnProperty(heap, atoms, zAtom, Descriptor{Value: value.Int32(1), Writable: true, Enumerable: true, Configurable: true}) {
		t.Fatal("expected define of a new property on a non-extensible object to fail")
	}
}
