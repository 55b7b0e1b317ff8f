package serialize

import (
	"testing"

	"jsgo/pkg/atom"
	"jsgo/pkg/class"
	"jsgo/pkg/errchan"
	"jsgo/pkg/gc"
	"jsgo/pkg/object"
	"jsgo/pkg/shape"
	"jsgo/pkg/typedarray"
	"jsgo/pkg/value"
)

type testHost struct {
	heap    *gc.Heap
	atoms   *atom.Table
	rc      *shape.RootCache
	backing []arrayBacking
}

func (h *testHost) NewObject() *object.Object {
	return object.New(h.heap, class.Object, h.rc.Root(nil), nil)
}

// NewArray returns a fast array sized for elements; Reader.Read fills the
// slice's contents in place after this call returns, so each slot is
// written back through DefineOwnProperty rather than copied once here.
func (h *testHost) NewArray(elements []value.Value) *object.Object {
	o := object.NewArray(h.heap, h.atoms, h.rc.Root(nil), nil, len(elements))
	h.backing = append(h.backing, arrayBacking{obj: o, elements: elements})
	return o
}

// flushArrayBackings writes every NewArray call's now-populated elements
// slice back into its fast array, since object.NewArray copies its own
// backing store rather than aliasing the slice passed in.
func (h *testHost) flushArrayBackings() {
	for _, b := range h.backing {
		for i, v := range b.elements {
			b.obj.DefineOwnProperty(h.heap, h.atoms, atom.FromU32(uint32(i)), object.Descriptor{
				Value: v, Writable: true, Enumerable: true, Configurable: true,
			})
		}
	}
	h.backing = nil
}

type arrayBacking struct {
	obj      *object.Object
	elements []value.Value
}

func (h *testHost) NewArrayBuffer(data []byte) *typedarray.Buffer {
	buf := typedarray.NewArrayBuffer(h.heap, len(data))
	copy(buf.Slice(0, len(data)), data)
	return buf
}

func (h *testHost) NewSharedArrayBuffer(data []byte) *typedarray.Buffer {
	buf := typedarray.NewSharedArrayBuffer(h.heap, len(data), nil)
	copy(buf.Slice(0, len(data)), data)
	return buf
}

func (h *testHost) NewTypedArray(kind typedarray.Kind, buf *typedarray.Buffer, offset, length int) *typedarray.View {
	return typedarray.NewView(h.heap, buf, kind, offset, length)
}

func (h *testHost) DefineProperty(o *object.Object, key atom.Atom, v value.Value) {
	o.DefineOwnProperty(h.heap, h.atoms, key, object.Descriptor{
		Value: v, Writable: true, Enumerable: true, Configurable: true,
	})
}

func newTestHost() *testHost {
	return &testHost{heap: gc.New(nil), atoms: atom.NewTable(), rc: shape.NewRootCache()}
}

func TestWriteReadRoundTripsPrimitives(t *testing.T) {
	atoms := atom.NewTable()
	w := NewWriter(atoms, 0)
	data := w.Write(value.Int32(-12345))

	errs := errchan.New(nil)
	r, ok := NewReader(data, atoms, errs)
	if !ok {
		t.Fatal("expected NewReader to accept a well-formed header")
	}
	got := r.Read(newTestHost())
	if got.AsInt32() != -12345 {
		t.Fatalf("expected -12345, got %v", got)
	}
}

func TestWriteReadRoundTripsFloat64(t *testing.T) {
	atoms := atom.NewTable()
	w := NewWriter(atoms, 0)
	data := w.Write(value.Number(3.25))

	errs := errchan.New(nil)
	r, ok := NewReader(data, atoms, errs)
	if !ok {
		t.Fatal("expected a valid header")
	}
	got := r.Read(newTestHost())
	if got.AsFloat64() != 3.25 {
		t.Fatalf("expected 3.25, got %v", got.AsFloat64())
	}
}

func TestWriteReadRoundTripsFastArray(t *testing.T) {
	host := newTestHost()
	arr := host.NewArray([]value.Value{value.Int32(1), value.Int32(2), value.Int32(3)})
	host.flushArrayBackings()

	w := NewWriter(host.atoms, 0)
	data := w.Write(value.Object(arr))

	errs := errchan.New(nil)
	r, ok := NewReader(data, host.atoms, errs)
	if !ok {
		t.Fatal("expected a valid header")
	}
	got := r.Read(host)
	host.flushArrayBackings()
	out, ok := got.AsObject().(*object.Object)
	if !ok || !out.IsArray() {
		t.Fatal("expected the round-tripped value to be an array object")
	}
	elems := out.Elements()
	if len(elems) != 3 || elems[0].AsInt32() != 1 || elems[2].AsInt32() != 3 {
		t.Fatalf("expected [1,2,3], got %v", elems)
	}
}

func TestWriteReadRoundTripsOrdinaryObjectProperties(t *testing.T) {
	host := newTestHost()
	o := host.NewObject()
	x := host.atoms.Intern("x", atom.KindString)
	o.DefineOwnProperty(host.heap, host.atoms, x, object.Descriptor{
		Value: value.Int32(99), Writable: true, Enumerable: true, Configurable: true,
	})

	w := NewWriter(host.atoms, 0)
	data := w.Write(value.Object(o))

	errs := errchan.New(nil)
	r, ok := NewReader(data, host.atoms, errs)
	if !ok {
		t.Fatal("expected a valid header")
	}
	got := r.Read(host)
	out, ok := got.AsObject().(*object.Object)
	if !ok {
		t.Fatal("expected the round-tripped value to be an object")
	}
	xOut := host.atoms.Intern("x", atom.KindString)
	d, ok := out.GetOwnProperty(xOut)
	if !ok || d.Value.AsInt32() != 99 {
		t.Fatalf("expected property x == 99, got ok=%v value=%v", ok, d.Value)
	}
}

func TestWriteReadRoundTripsArrayBufferBytes(t *testing.T) {
	host := newTestHost()
	buf := host.NewArrayBuffer([]byte{1, 2, 3, 4})

	w := NewWriter(host.atoms, 0)
	data := w.Write(value.Object(buf))

	errs := errchan.New(nil)
	r, ok := NewReader(data, host.atoms, errs)
	if !ok {
		t.Fatal("expected a valid header")
	}
	got := r.Read(host)
	outBuf, ok := got.AsObject().(*typedarray.Buffer)
	if !ok {
		t.Fatal("expected the round-tripped value to be an ArrayBuffer")
	}
	if outBuf.ByteLength() != 4 {
		t.Fatalf("expected 4 bytes, got %d", outBuf.ByteLength())
	}
	if got := outBuf.Slice(0, 4); got[0] != 1 || got[3] != 4 {
		t.Fatalf("expected round-tripped bytes [1 2 3 4], got %v", got)
	}
}

func TestNewReaderRejectsBadVersionByte(t *testing.T) {
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	bad := []byte{0xFF, 0x00, 0x00}
	if _, ok := NewReader(bad, atoms, errs); ok {
		t.Fatal("expected an unrecognized version byte to be rejected")
	}
}

func TestReadRejectsUnrecognizedTag(t *testing.T) {
	atoms := atom.NewTable()
	errs := errchan.New(nil)
	header := []byte{byte(formatVersion) << 1, 0x00, 0x00}
	data := append(header, 0xFE)
	r, ok := NewReader(data, atoms, errs)
	if !ok {
		t.Fatal("expected a valid header")
	}
	got := r.Read(newTestHost())
	if !got.IsException() {
		t.Fatal("expected an unrecognized tag byte to raise a SyntaxError-shaped exception")
	}
}

func TestObjectReferenceFlagDeduplicatesSharedObject(t *testing.T) {
	host := newTestHost()
	shared := host.NewObject()
	pair := host.NewArray([]value.Value{value.Object(shared), value.Object(shared)})
	host.flushArrayBackings()

	w := NewWriter(host.atoms, FlagReference)
	data := w.Write(value.Object(pair))

	errs := errchan.New(nil)
	r, ok := NewReader(data, host.atoms, errs)
	if !ok {
		t.Fatal("expected a valid header")
	}
	got := r.Read(host)
	host.flushArrayBackings()
	outPair := got.AsObject().(*object.Object).Elements()
	first := outPair[0].AsObject()
	second := outPair[1].AsObject()
	if first != second {
		t.Fatal("expected the back-reference to resolve to the same shared object instance")
	}
}
