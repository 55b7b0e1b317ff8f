// Package object implements the object model (C5): property storage and
// access on top of the shape system (C4), the fast-array element fast
// path, and prototype-chain walking with cycle detection.
package object

import (
	"math"

	"jsgo/pkg/atom"
	"jsgo/pkg/class"
	"jsgo/pkg/gc"
	"jsgo/pkg/shape"
	"jsgo/pkg/value"
)

// lengthPropName is Array's authoritative length property key (spec.md
// §3: "the first property of an Array object is always length with
// JS_PROP_LENGTH set").
const lengthPropName = "length"

// Flags are the per-object bits from spec.md §4: extensibility, the
// generic "this class has exotic behavior" marker, the fast-array fast
// path, "this object can be used as new.target", and the legacy
// document.all HTMLDDA marker.
type Flags uint8

const (
	Extensible Flags = 1 << iota
	Exotic
	FastArray
	Constructor
	HTMLDDA
)

// AccessorPair is the HeapObject stored in a getset property's values slot.
type AccessorPair struct {
	Getter, Setter value.Value
}

func (*AccessorPair) GCKind() string { return "accessor-pair" }

// Object is one heap-allocated object (or exotic variant: array, function,
// arguments, typed array, proxy record, promise record...). The
// class-specific union the spec.md describes is represented by the
// Extra field, populated by whichever package owns that class id.
type Object struct {
	hdr *gc.Header

	classID class.ID
	flags   Flags

	proto *Object
	shp   *shape.Shape
	// values is aligned 1:1 with shp's property slots (including holes left
	// by deletion, so indices never need remapping independent of shape
	// compaction).
	values []value.Value

	// elements backs FastArray objects: a dense, hole-free element store.
	// Cleared the moment the object degrades out of fast-array layout.
	elements []value.Value

	// Extra is the class-specific payload (bound-function record, bytecode
	// closure, typed-array view, proxy record, promise state, ...). Callers
	// type-assert against whatever their class registered.
	Extra interface{}

	onFinalize func()
	onTrace    func(visit func(gc.Traceable))
}

// New allocates an object of classID with the given shape and prototype,
// and registers it with heap. The shape's property count determines the
// initial size of the values array (all Undefined).
func New(heap *gc.Heap, classID class.ID, shp *shape.Shape, proto *Object) *Object {
	o := &Object{
		classID: classID,
		flags:   Extensible,
		proto:   proto,
		shp:     shp,
		values:  make([]value.Value, shp.Len()),
	}
	for i := range o.values {
		o.values[i] = value.Undefined
	}
	o.hdr = gc.NewHeader(gc.KindObject, o)
	if proto != nil {
		heap.IncRef(proto)
	}
	heap.Register(o)
	return o
}

func (o *Object) GCHeader() *gc.Header { return o.hdr }
func (o *Object) GCKind() string       { return "object" }

// Trace visits every outgoing strong GC pointer: the prototype and every
// property/element value that itself holds a HeapObject.
func (o *Object) Trace(visit func(gc.Traceable)) {
	if o.proto != nil {
		visit(o.proto)
	}
	for _, v := range o.values {
		if ap, ok := v.AsObject().(*AccessorPair); ok {
			if h, ok := asTraceable(ap.Getter); ok {
				visit(h)
			}
			if h, ok := asTraceable(ap.Setter); ok {
				visit(h)
			}
			continue
		}
		if h, ok := asTraceable(v); ok {
			visit(h)
		}
	}
	for _, v := range o.elements {
		if h, ok := asTraceable(v); ok {
			visit(h)
		}
	}
	if ap, ok := o.Extra.(*AccessorPair); ok {
		if h, ok := asTraceable(ap.Getter); ok {
			visit(h)
		}
		if h, ok := asTraceable(ap.Setter); ok {
			visit(h)
		}
	}
	if o.onTrace != nil {
		o.onTrace(visit)
	}
}

// SetTracer registers a class-specific trace callback for Extra payloads
// that hold their own GC-tracked references (a typed-array view's buffer,
// a proxy record's target/handler). Left nil for classes with no such
// payload.
func (o *Object) SetTracer(fn func(visit func(gc.Traceable))) { o.onTrace = fn }

func asTraceable(v value.Value) (gc.Traceable, bool) {
	if !v.IsObject() && v.Tag() != value.TagFunctionBytecode && v.Tag() != value.TagModule {
		return nil, false
	}
	h, ok := v.AsObject().(gc.Traceable)
	return h, ok
}

// replaceRef adjusts heap refcounts for a slot transitioning from old to
// nw: the new value's strong edge is acquired before the old one is
// released, mirroring SetPrototype's IncRef-before-DecRef ordering so a
// self-assignment never touches a refcount of zero.
func replaceRef(heap *gc.Heap, old, nw value.Value) {
	oldH, oldOK := asTraceable(old)
	newH, newOK := asTraceable(nw)
	if oldOK && newOK && oldH == newH {
		return
	}
	if newOK {
		heap.IncRef(newH)
	}
	if oldOK {
		heap.DecRef(oldH)
	}
}

// Finalize runs the class's registered finalizer, if any.
func (o *Object) Finalize() {
	// pkg/runtime wires the Registry lookup in; pkg/object itself stays
	// unaware of any particular class's finalizer to avoid importing
	// pkg/runtime. Classes that need cleanup register it via SetFinalizer.
	if o.onFinalize != nil {
		o.onFinalize()
	}
}

// SetFinalizer is set by higher-level code (pkg/runtime) that knows the
// class registry; left nil for objects with no class-specific teardown.
func (o *Object) SetFinalizer(fn func()) { o.onFinalize = fn }

// ClassID, Flags accessors.
func (o *Object) ClassID() class.ID { return o.classID }
func (o *Object) Flags() Flags      { return o.flags }
func (o *Object) IsExtensible() bool { return o.flags&Extensible != 0 }
func (o *Object) IsFastArray() bool  { return o.flags&FastArray != 0 }
func (o *Object) Prototype() *Object { return o.proto }
func (o *Object) Shape() *shape.Shape { return o.shp }

// PreventExtensions clears the extensible flag (irreversible).
func (o *Object) PreventExtensions() { o.flags &^= Extensible }

// SetPrototype implements spec.md §4.4's set_prototype: walks the proposed
// chain for a cycle back to o, refusing (returning false) if found or if o
// is non-extensible and proto differs from the current prototype.
func (o *Object) SetPrototype(heap *gc.Heap, proto *Object) bool {
	if proto == o.proto {
		return true
	}
	if !o.IsExtensible() {
		return false
	}
	for p := proto; p != nil; p = p.proto {
		if p == o {
			return false
		}
	}
	if o.proto != nil {
		heap.DecRef(o.proto)
	}
	o.proto = proto
	if proto != nil {
		heap.IncRef(proto)
	}
	return true
}

// --- fast array --------------------------------------------------------

// NewArray allocates a fast-array object: classID class.Array, shp
// transitioned to carry a "length" property as its first (and, until
// degrade, only) shape entry, and elements pre-sized to length.
func NewArray(heap *gc.Heap, atoms *atom.Table, shp *shape.Shape, proto *Object, length int) *Object {
	o := New(heap, class.Array, shp, proto)
	o.flags |= FastArray
	o.elements = make([]value.Value, length)
	for i := range o.elements {
		o.elements[i] = value.Undefined
	}
	lengthAtom := atoms.Intern(lengthPropName, atom.KindString)
	o.shp = o.shp.Transition(lengthAtom, shape.Writable|shape.IsLength)
	o.growValues(o.shp.Len())
	idx, _ := o.shp.Find(lengthAtom)
	o.values[idx] = value.Int32(int32(length))
	return o
}

// setLengthValue overwrites an already-present "length" slot directly,
// without set_array_length's truncation semantics — used when growth
// (appending past the dense end) never needs to delete anything.
func (o *Object) setLengthValue(atoms *atom.Table, n uint32) {
	lengthAtom := atoms.Intern(lengthPropName, atom.KindString)
	if idx, ok := o.shp.Find(lengthAtom); ok {
		o.values[idx] = value.Int32(int32(n))
	}
}

// isLengthKey reports whether key names Array's "length" property. Never
// interns (no refcount side effect): a plain byte comparison against an
// already-resolved atom is enough to recognize it in SetProperty's and
// DefineOwnProperty's hot paths.
func isLengthKey(atoms *atom.Table, key atom.Atom) bool {
	if _, ok := key.IsArrayIndex(); ok {
		return false
	}
	return atoms.ToString(key) == lengthPropName
}

// toArrayLength coerces v to the uint32 set_array_length expects. Only
// numeric values are accepted: without a bytecode interpreter to run a
// user-defined valueOf/toString, this module has no general ToNumber
// abstract operation to fall back on.
func toArrayLength(v value.Value) (uint32, bool) {
	if !v.IsNumber() {
		return 0, false
	}
	f := v.AsFloat64()
	if f < 0 || f != math.Trunc(f) || f > math.MaxUint32 {
		return 0, false
	}
	return uint32(f), true
}

// setArrayLength implements set_array_length (spec.md §4.4): elements at
// indices ≥ newLength are deleted in descending order, stopping at the
// first non-configurable element, which becomes the new effective length
// instead of newLength. Growing never deletes anything.
func (o *Object) setArrayLength(heap *gc.Heap, atoms *atom.Table, newLength uint32) bool {
	lengthAtom := atoms.Intern(lengthPropName, atom.KindString)
	idx, ok := o.shp.Find(lengthAtom)
	if !ok {
		return false
	}
	oldLength := uint32(o.values[idx].AsInt32())

	if newLength >= oldLength {
		if o.IsFastArray() {
			for uint32(len(o.elements)) < newLength {
				o.elements = append(o.elements, value.Undefined)
			}
		}
		o.values[idx] = value.Int32(int32(newLength))
		return true
	}

	if o.IsFastArray() {
		for i := len(o.elements) - 1; i >= int(newLength); i-- {
			replaceRef(heap, o.elements[i], value.Undefined)
		}
		o.elements = o.elements[:newLength]
		o.values[idx] = value.Int32(int32(newLength))
		return true
	}

	effective := oldLength
	for i := int64(oldLength) - 1; i >= int64(newLength); i-- {
		a := atom.FromU32(uint32(i))
		pidx, found := o.shp.Find(a)
		if !found {
			effective = uint32(i)
			continue
		}
		if o.shp.Entry(pidx).Flags&shape.Configurable == 0 {
			effective = uint32(i) + 1
			break
		}
		o.DeleteProperty(heap, atoms, a)
		effective = uint32(i)
	}
	// DeleteProperty may have compacted the shape, invalidating idx.
	idx, _ = o.shp.Find(lengthAtom)
	o.values[idx] = value.Int32(int32(effective))
	return effective == newLength
}

// IsArray reports whether o is of the Array class, regardless of whether
// it currently has fast-array layout (serialization and other callers
// that need "is this logically an Array" rather than "is the fast path
// still active" use this).
func (o *Object) IsArray() bool { return o.classID == class.Array }

// Elements exposes the dense fast-array backing store directly; callers
// must check IsFastArray first (a degraded Array's elements live in the
// ordinary property table instead).
func (o *Object) Elements() []value.Value { return o.elements }

// degradeFastArray implements convert_fast_array_to_array: elements move
// into ordinary integer-keyed properties and the FastArray flag clears.
// Triggered by: defining a non-dense/non-plain element, adding a hole, or
// deleting any but the last element (spec.md §4.4, §8 scenario 6).
func (o *Object) degradeFastArray(atoms *atom.Table) {
	if !o.IsFastArray() {
		return
	}
	o.flags &^= FastArray
	shp := shape.PrepareUpdate(o.shp)
	o.shp = shp
	for i, v := range o.elements {
		// Array-index atoms are the inline tagged-integer form (atom.FromU32),
		// never a table-interned string — this keeps a later Find(FromU32(i))
		// against the same key after degrade, and is what GetOwnPropertyNames'
		// IsArrayIndex split relies on.
		a := atom.FromU32(uint32(i))
		idx := shp.AppendInPlace(a, shape.Writable|shape.Enumerable|shape.Configurable)
		o.growValues(idx + 1)
		o.values[idx] = v
	}
	o.elements = nil
}

func (o *Object) growValues(n int) {
	for len(o.values) < n {
		o.values = append(o.values, value.Undefined)
	}
}

// --- property access -----------------------------------------------------

// Descriptor mirrors one property's observable state, used by
// get_own_property/define_own_property.
type Descriptor struct {
	Value        value.Value
	Get, Set      value.Value
	IsAccessor   bool
	Writable, Enumerable, Configurable bool
}

// GetOwnProperty implements get_own_property for the generic algorithm
// (exotic classes intercept before calling this).
func (o *Object) GetOwnProperty(key atom.Atom) (Descriptor, bool) {
	if n, ok := key.IsArrayIndex(); ok && o.IsFastArray() {
		if int(n) < len(o.elements) {
			return Descriptor{Value: o.elements[n], Writable: true, Enumerable: true, Configurable: true}, true
		}
		return Descriptor{}, false
	}
	idx, ok := o.shp.Find(key)
	if !ok {
		return Descriptor{}, false
	}
	entry := o.shp.Entry(idx)
	d := Descriptor{
		Writable:     entry.Flags&shape.Writable != 0,
		Enumerable:   entry.Flags&shape.Enumerable != 0,
		Configurable: entry.Flags&shape.Configurable != 0,
	}
	if entry.Flags&shape.IsGetSet != 0 {
		if ap, ok := o.values[idx].AsObject().(*AccessorPair); ok {
			d.IsAccessor, d.Get, d.Set = true, ap.Getter, ap.Setter
		}
	} else {
		d.Value = o.values[idx]
	}
	return d, true
}

// GetProperty implements get_property's generic (non-exotic) path: a
// single-link prototype-chain walk with getset/plain dispatch, by calling
// back into call for a getter. Array's own "length" slot and fast-array
// elements are handled here too, through GetOwnProperty; a truly exotic
// class (proxy, module namespace) is a host concern this package does not
// dispatch to on its own.
func (o *Object) GetProperty(heap *gc.Heap, key atom.Atom, receiver value.Value, call func(fn value.Value, this value.Value, args []value.Value) value.Value) value.Value {
	for cur := o; cur != nil; cur = cur.proto {
		d, ok := cur.GetOwnProperty(key)
		if !ok {
			continue
		}
		if d.IsAccessor {
			if d.Get.IsUndefined() {
				return value.Undefined
			}
			return call(d.Get, receiver, nil)
		}
		return d.Value
	}
	return value.Undefined
}

// HasProperty implements has_property: own, then prototype chain.
func (o *Object) HasProperty(key atom.Atom) bool {
	for cur := o; cur != nil; cur = cur.proto {
		if _, ok := cur.GetOwnProperty(key); ok {
			return true
		}
	}
	return false
}

// DefineOwnProperty creates or overwrites an own data/accessor property,
// transitioning or mutating the shape as needed, and degrading a fast
// array if the key requires accessor semantics or punches a hole. heap
// may be nil only for callers that are certain d.Value (and any
// previously-stored value at key) can never carry a heap object tag.
func (o *Object) DefineOwnProperty(heap *gc.Heap, atoms *atom.Table, key atom.Atom, d Descriptor) bool {
	if o.classID == class.Array && isLengthKey(atoms, key) {
		n, ok := toArrayLength(d.Value)
		if !ok {
			return false
		}
		return o.setArrayLength(heap, atoms, n)
	}
	if n, ok := key.IsArrayIndex(); ok && o.IsFastArray() {
		if d.IsAccessor || int(n) > len(o.elements) {
			o.degradeFastArray(atoms)
		} else {
			if int(n) == len(o.elements) {
				replaceRef(heap, value.Undefined, d.Value)
				o.elements = append(o.elements, d.Value)
				o.setLengthValue(atoms, uint32(len(o.elements)))
			} else {
				replaceRef(heap, o.elements[n], d.Value)
				o.elements[n] = d.Value
			}
			return true
		}
	}
	idx, exists := o.shp.Find(key)
	flags := shape.Flags(0)
	if d.Writable {
		flags |= shape.Writable
	}
	if d.Enumerable {
		flags |= shape.Enumerable
	}
	if d.Configurable {
		flags |= shape.Configurable
	}
	if d.IsAccessor {
		flags |= shape.IsGetSet
	}
	if exists {
		existing := o.shp.Entry(idx)
		if existing.Flags&shape.Configurable == 0 && !d.Configurable {
			// Non-configurable redefinition narrowing: generic algorithm
			// still allows a value update of a writable data property.
			if d.IsAccessor || existing.Flags&shape.IsGetSet != 0 {
				return false
			}
		}
		o.shp = shape.PrepareUpdate(o.shp)
		o.shp.SetFlags(idx, flags)
		o.setSlot(heap, idx, d)
		return true
	}
	if !o.IsExtensible() {
		return false
	}
	o.shp = o.shp.Transition(key, flags)
	o.growValues(o.shp.Len())
	idx, _ = o.shp.Find(key)
	o.setSlot(heap, idx, d)
	return true
}

func (o *Object) setSlot(heap *gc.Heap, idx int, d Descriptor) {
	if d.IsAccessor {
		old := o.values[idx]
		if oldAp, ok := old.AsObject().(*AccessorPair); ok {
			replaceRef(heap, oldAp.Getter, d.Get)
			replaceRef(heap, oldAp.Setter, d.Set)
		} else {
			replaceRef(heap, value.Undefined, d.Get)
			replaceRef(heap, value.Undefined, d.Set)
		}
		o.values[idx] = value.Object(&AccessorPair{Getter: d.Get, Setter: d.Set})
		return
	}
	replaceRef(heap, o.values[idx], d.Value)
	o.values[idx] = d.Value
}

// SetProperty implements the generic OrdinarySet algorithm: walk the
// prototype chain for a setter or an existing data property, otherwise
// fall through to creating an own property on receiver if it is
// extensible. Returns 0 (failed, non-strict-silent), 1 (ok), or 2 (failed,
// should throw in strict mode) mirroring the tri-state spec.md uses for
// set_property's return.
func (o *Object) SetProperty(heap *gc.Heap, atoms *atom.Table, key atom.Atom, v value.Value, receiver *Object, call func(fn value.Value, this value.Value, args []value.Value) value.Value) int {
	for cur := o; cur != nil; cur = cur.proto {
		d, ok := cur.GetOwnProperty(key)
		if !ok {
			continue
		}
		if d.IsAccessor {
			if d.Set.IsUndefined() {
				return 2
			}
			call(d.Set, value.Object(receiver), []value.Value{v})
			return 1
		}
		if !d.Writable {
			return 2
		}
		if cur == receiver {
			receiver.DefineOwnProperty(heap, atoms, key, Descriptor{Value: v, Writable: true, Enumerable: d.Enumerable, Configurable: d.Configurable})
			return 1
		}
		break
	}
	if !receiver.IsExtensible() {
		return 0
	}
	return boolToResult(receiver.DefineOwnProperty(heap, atoms, key, Descriptor{Value: v, Writable: true, Enumerable: true, Configurable: true}))
}

func boolToResult(ok bool) int {
	if ok {
		return 1
	}
	return 0
}

// DeleteProperty tombstones an own property (or removes a fast-array
// element, degrading first unless it is the last element).
func (o *Object) DeleteProperty(heap *gc.Heap, atoms *atom.Table, key atom.Atom) bool {
	if n, ok := key.IsArrayIndex(); ok && o.IsFastArray() {
		last := len(o.elements) - 1
		if int(n) != last {
			o.degradeFastArray(atoms)
		} else {
			replaceRef(heap, o.elements[last], value.Undefined)
			o.elements = o.elements[:last]
			return true
		}
	}
	idx, ok := o.shp.Find(key)
	if !ok {
		return true
	}
	entry := o.shp.Entry(idx)
	if entry.Flags&shape.Configurable == 0 {
		return false
	}
	if entry.Flags&shape.IsGetSet != 0 {
		if ap, ok := o.values[idx].AsObject().(*AccessorPair); ok {
			replaceRef(heap, ap.Getter, value.Undefined)
			replaceRef(heap, ap.Setter, value.Undefined)
		}
	} else {
		replaceRef(heap, o.values[idx], value.Undefined)
	}
	o.shp = shape.PrepareUpdate(o.shp)
	if o.shp.DeleteInPlace(idx) {
		remap := shape.Compact(o.shp)
		newValues := make([]value.Value, o.shp.Len())
		for old, nw := range remap {
			if nw >= 0 {
				newValues[nw] = o.values[old]
			}
		}
		o.values = newValues
	} else {
		o.values[idx] = value.Undefined
	}
	return true
}

// GetOwnPropertyNames implements get_own_property_names for the generic
// algorithm: array indices in ascending numeric order, then string keys in
// insertion order, then symbols in insertion order (the enumeration order
// ECMAScript mandates).
func (o *Object) GetOwnPropertyNames(atoms *atom.Table) []atom.Atom {
	var indices, strings, symbols []atom.Atom
	if o.IsFastArray() {
		for i := range o.elements {
			indices = append(indices, atom.FromU32(uint32(i)))
		}
	}
	for _, e := range o.shp.Entries() {
		if _, ok := e.Atom.IsArrayIndex(); ok {
			indices = append(indices, e.Atom)
			continue
		}
		if k, ok := atoms.KindOf(e.Atom); ok && (k == atom.KindSymbol || k == atom.KindGlobalSymbol) {
			symbols = append(symbols, e.Atom)
		} else {
			strings = append(strings, e.Atom)
		}
	}
	for i := 1; i < len(indices); i++ {
		for j := i; j > 0 && atoms.Compare(indices[j-1], indices[j]) > 0; j-- {
			indices[j-1], indices[j] = indices[j], indices[j-1]
		}
	}
	out := make([]atom.Atom, 0, len(indices)+len(strings)+len(symbols))
	out = append(out, indices...)
	out = append(out, strings...)
	return append(out, symbols...)
}

// AddWeakClear registers a callback run when o is collected — the hook
// WeakMap/WeakSet/FinalizationRegistry entries targeting o use (C15).
func (o *Object) AddWeakClear(fn func()) {
	o.hdr.OnClear(fn)
}
