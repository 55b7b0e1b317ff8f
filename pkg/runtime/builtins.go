package runtime

import (
	"jsgo/pkg/class"
	"jsgo/pkg/collection"
	"jsgo/pkg/gc"
	"jsgo/pkg/object"
	"jsgo/pkg/promise"
	"jsgo/pkg/proxy"
	"jsgo/pkg/typedarray"
	"jsgo/pkg/value"
)

// valueTraceable mirrors pkg/object's own asTraceable helper: a Value
// holds a strong GC edge only when it carries an object/function-bytecode/
// module tag backed by something the heap tracks.
func valueTraceable(v value.Value) (gc.Traceable, bool) {
	if !v.IsObject() && v.Tag() != value.TagFunctionBytecode && v.Tag() != value.TagModule {
		return nil, false
	}
	h, ok := v.AsObject().(gc.Traceable)
	return h, ok
}

// CFunctionRecord is a host-supplied native function body, the Go-level
// stand-in for spec.md §6's new_c_function host call (there is no
// bytecode interpreter in this module to compile a JS function body).
type CFunctionRecord struct {
	Name   string
	Length int
	Fn     func(rt *Runtime, this value.Value, args []value.Value) value.Value
}

// BoundFunctionRecord captures Function.prototype.bind's
// [[BoundTargetFunction]]/[[BoundThis]]/[[BoundArguments]] internal slots.
type BoundFunctionRecord struct {
	Target    value.Value
	This      value.Value
	BoundArgs []value.Value
}

// NewOrdinaryObject allocates a plain Object-class instance under proto
// (nil means the null prototype).
func (ctx *Context) NewOrdinaryObject(proto *object.Object) *object.Object {
	shp := ctx.RT.Shapes.Root(proto)
	return object.New(ctx.RT.Heap, class.Object, shp, proto)
}

// NewArray allocates a fast-array Array-class instance of length elements,
// all initially undefined.
func (ctx *Context) NewArray(length int) *object.Object {
	proto := ctx.Realm.Prototype(class.Array)
	shp := ctx.RT.Shapes.Root(proto)
	return object.NewArray(ctx.RT.Heap, ctx.RT.Atoms, shp, proto, length)
}

// NewArrayFrom allocates a fast array pre-populated with items, acquiring
// a strong reference on each heap-tracked element (the array is its own
// fresh owner, matching the IncRef-per-edge discipline pkg/object's
// property setters follow). Used to materialize the `arguments` array a
// proxy apply/construct trap receives.
func (ctx *Context) NewArrayFrom(items []value.Value) *object.Object {
	o := ctx.NewArray(len(items))
	heap := ctx.RT.Heap
	elems := o.Elements()
	for i, v := range items {
		if h, ok := valueTraceable(v); ok {
			heap.IncRef(h)
		}
		elems[i] = v
	}
	return o
}

// NewCFunction wraps fn as a callable CFunction-class object.
func (ctx *Context) NewCFunction(name string, length int, fn func(rt *Runtime, this value.Value, args []value.Value) value.Value) *object.Object {
	proto := ctx.Realm.Prototype(class.Function)
	shp := ctx.RT.Shapes.Root(proto)
	o := object.New(ctx.RT.Heap, class.CFunction, shp, proto)
	o.Extra = &CFunctionRecord{Name: name, Length: length, Fn: fn}
	return o
}

// NewBoundFunction implements Function.prototype.bind's object allocation.
func (ctx *Context) NewBoundFunction(target, this value.Value, boundArgs []value.Value) *object.Object {
	proto := ctx.Realm.Prototype(class.Function)
	shp := ctx.RT.Shapes.Root(proto)
	o := object.New(ctx.RT.Heap, class.BoundFunction, shp, proto)
	rec := &BoundFunctionRecord{Target: target, This: this, BoundArgs: boundArgs}
	o.Extra = rec
	o.SetTracer(func(visit func(gc.Traceable)) {
		if h, ok := valueTraceable(rec.Target); ok {
			visit(h)
		}
		if h, ok := valueTraceable(rec.This); ok {
			visit(h)
		}
		for _, a := range rec.BoundArgs {
			if h, ok := valueTraceable(a); ok {
				visit(h)
			}
		}
	})
	return o
}

// NewProxyObject wraps a fresh proxy.Record as a Proxy-class object. The
// wrapper owns one reference each on target and handler, released by its
// finalizer — captured locally rather than read back off the (mutable,
// revocation-nilled) Record fields, so Revoke never leaks them.
func (ctx *Context) NewProxyObject(target, handler *object.Object, isFunc bool) *object.Object {
	heap := ctx.RT.Heap
	rec := proxy.New(target, handler, isFunc)
	rec.Memo = ctx.RT.ProxyTrapMemo()
	heap.IncRef(target)
	heap.IncRef(handler)
	shp := ctx.RT.Shapes.Root(nil)
	o := object.New(heap, class.Proxy, shp, nil)
	o.Extra = rec
	o.SetTracer(func(visit func(gc.Traceable)) {
		visit(target)
		visit(handler)
	})
	o.SetFinalizer(func() {
		heap.DecRef(target)
		heap.DecRef(handler)
	})
	return o
}

// NewPromiseObject allocates a fresh PENDING Promise-class object wired to
// the Runtime's job queue and error channel, the object half of
// promise.NewPending's record half.
func (ctx *Context) NewPromiseObject() *object.Object {
	heap := ctx.RT.Heap
	proto := ctx.Realm.Prototype(class.Promise)
	shp := ctx.RT.Shapes.Root(proto)
	o := object.New(heap, class.Promise, shp, proto)
	rec := promise.NewPending(ctx.RT.Jobs, ctx.RT.Errors)
	o.Extra = rec
	o.SetTracer(func(visit func(gc.Traceable)) {
		if h, ok := valueTraceable(rec.Result()); ok {
			visit(h)
		}
	})
	rec.OnUnhandledRejection(func(r *promise.Record) {
		if ctx.RT.rejectTracker != nil {
			ctx.RT.rejectTracker(ctx, r.Result())
		}
	})
	return o
}

// NewArrayBufferObject wraps a fresh typedarray.Buffer as an ArrayBuffer-
// class object, transferring the buffer's initial reference to the
// wrapper (mirrors typedarray.NewViewWithOwnBuffer's own ownership-
// transfer comment).
func (ctx *Context) NewArrayBufferObject(size int) *object.Object {
	heap := ctx.RT.Heap
	buf := typedarray.NewArrayBuffer(heap, size)
	return ctx.wrapBuffer(class.ArrayBuffer, buf)
}

// NewSharedArrayBufferObject wraps a fresh typedarray.Buffer allocated
// through vtable (nil falls back to a private Go slice).
func (ctx *Context) NewSharedArrayBufferObject(size int, vtable *typedarray.AllocVTable) *object.Object {
	heap := ctx.RT.Heap
	buf := typedarray.NewSharedArrayBuffer(heap, size, vtable)
	return ctx.wrapBuffer(class.SharedArrayBuffer, buf)
}

func (ctx *Context) wrapBuffer(classID class.ID, buf *typedarray.Buffer) *object.Object {
	heap := ctx.RT.Heap
	proto := ctx.Realm.Prototype(classID)
	shp := ctx.RT.Shapes.Root(proto)
	o := object.New(heap, classID, shp, proto)
	o.Extra = buf
	o.SetTracer(func(visit func(gc.Traceable)) { visit(buf) })
	o.SetFinalizer(func() { heap.DecRef(buf) })
	return o
}

// NewTypedArrayObject wraps view as a TypedArray-class object, taking
// ownership of its one reference.
func (ctx *Context) NewTypedArrayObject(view *typedarray.View) *object.Object {
	heap := ctx.RT.Heap
	proto := ctx.Realm.Prototype(class.TypedArray)
	shp := ctx.RT.Shapes.Root(proto)
	o := object.New(heap, class.TypedArray, shp, proto)
	o.Extra = view
	o.SetTracer(func(visit func(gc.Traceable)) { visit(view) })
	o.SetFinalizer(func() { heap.DecRef(view) })
	return o
}

// NewDataViewObject wraps a fresh typedarray.DataView over buffer.
func (ctx *Context) NewDataViewObject(buf *object.Object, byteOffset, byteLength int) *object.Object {
	heap := ctx.RT.Heap
	backing := buf.Extra.(*typedarray.Buffer)
	dv := typedarray.NewDataView(heap, backing, byteOffset, byteLength)
	proto := ctx.Realm.Prototype(class.DataView)
	shp := ctx.RT.Shapes.Root(proto)
	o := object.New(heap, class.DataView, shp, proto)
	o.Extra = dv
	o.SetTracer(func(visit func(gc.Traceable)) { visit(dv) })
	o.SetFinalizer(func() { heap.DecRef(dv) })
	return o
}

// NewMapObject allocates an empty Map-class object.
func (ctx *Context) NewMapObject() *object.Object {
	proto := ctx.Realm.Prototype(class.Map)
	shp := ctx.RT.Shapes.Root(proto)
	o := object.New(ctx.RT.Heap, class.Map, shp, proto)
	m := collection.NewMap()
	o.Extra = m
	o.SetTracer(func(visit func(gc.Traceable)) {
		for _, kv := range m.Entries() {
			for _, v := range kv {
				if h, ok := valueTraceable(v); ok {
					visit(h)
				}
			}
		}
	})
	return o
}

// NewSetObject allocates an empty Set-class object.
func (ctx *Context) NewSetObject() *object.Object {
	proto := ctx.Realm.Prototype(class.Set)
	shp := ctx.RT.Shapes.Root(proto)
	o := object.New(ctx.RT.Heap, class.Set, shp, proto)
	s := collection.NewSet()
	o.Extra = s
	o.SetTracer(func(visit func(gc.Traceable)) {
		for _, v := range s.Values() {
			if h, ok := valueTraceable(v); ok {
				visit(h)
			}
		}
	})
	return o
}

// NewWeakMapObject allocates an empty WeakMap-class object. Keys are not
// traced (they are weakly held); stored values are.
func (ctx *Context) NewWeakMapObject() *object.Object {
	proto := ctx.Realm.Prototype(class.WeakMap)
	shp := ctx.RT.Shapes.Root(proto)
	o := object.New(ctx.RT.Heap, class.WeakMap, shp, proto)
	w := collection.NewWeakMap()
	o.Extra = w
	o.SetTracer(func(visit func(gc.Traceable)) {
		for _, v := range w.Values() {
			if h, ok := valueTraceable(v); ok {
				visit(h)
			}
		}
	})
	return o
}

// NewWeakSetObject allocates an empty WeakSet-class object. Membership is
// identity-only, so there is nothing for the tracer to follow.
func (ctx *Context) NewWeakSetObject() *object.Object {
	proto := ctx.Realm.Prototype(class.WeakSet)
	shp := ctx.RT.Shapes.Root(proto)
	o := object.New(ctx.RT.Heap, class.WeakSet, shp, proto)
	o.Extra = collection.NewWeakSet()
	return o
}
