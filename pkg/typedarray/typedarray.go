// Package typedarray implements ArrayBuffer/SharedArrayBuffer backing
// storage and the TypedArray/DataView views over it (C14). Detach clears
// the buffer's data and walks every live view zeroing its length, per
// spec.md §4.13 — a detached view reads as undefined and silently drops
// writes after coercion.
package typedarray

import (
	"encoding/binary"
	"math"

	"github.com/holiman/uint256"

	"jsgo/pkg/gc"
	"jsgo/pkg/value"
)

// Kind identifies a TypedArray's element type.
type Kind int

const (
	Int8 Kind = iota
	Uint8
	Uint8Clamped
	Int16
	Uint16
	Int32Kind
	Uint32Kind
	Float32Kind
	Float64Kind
	BigInt64
	BigUint64
)

// ElementSize returns the byte width of one element of kind.
func ElementSize(kind Kind) int {
	switch kind {
	case Int8, Uint8, Uint8Clamped:
		return 1
	case Int16, Uint16:
		return 2
	case Int32Kind, Uint32Kind, Float32Kind:
		return 4
	case Float64Kind, BigInt64, BigUint64:
		return 8
	default:
		return 1
	}
}

// IsBigIntKind reports whether kind only accepts BigInt element values
// (BigInt64Array/BigUint64Array), per spec.md §4.13.
func IsBigIntKind(kind Kind) bool { return kind == BigInt64 || kind == BigUint64 }

// AllocVTable is the host-supplied alloc/dup/free triple SharedArrayBuffer
// uses instead of a private Go slice, per spec.md §4.13.
type AllocVTable struct {
	Alloc func(size int) []byte
	Dup   func(data []byte) []byte
	Free  func(data []byte)
}

// Buffer is the ArrayBuffer/SharedArrayBuffer backing store (C14). Shared
// buffers never observe Detach (spec.md §4.13): Detach is a no-op on them.
type Buffer struct {
	hdr      *gc.Header
	data     []byte
	detached bool
	shared   bool
	views    []*View
	alloc    *AllocVTable
}

func (b *Buffer) GCKind() string {
	if b.shared {
		return "shared-array-buffer"
	}
	return "array-buffer"
}
func (b *Buffer) GCHeader() *gc.Header { return b.hdr }
func (b *Buffer) Trace(visit func(gc.Traceable)) {}
func (b *Buffer) Finalize() {
	if b.alloc != nil && b.alloc.Free != nil && b.data != nil {
		b.alloc.Free(b.data)
	}
}

// NewArrayBuffer allocates a private, detachable buffer of size bytes.
func NewArrayBuffer(heap *gc.Heap, size int) *Buffer {
	b := &Buffer{data: make([]byte, size)}
	b.hdr = gc.NewHeader(gc.KindObject, b)
	heap.Register(b)
	return b
}

// NewSharedArrayBuffer allocates size bytes through the host vtable. If
// vtable is nil a plain Go slice stands in (sufficient for a single
// process/runtime; true cross-thread sharing is the host's concern).
func NewSharedArrayBuffer(heap *gc.Heap, size int, vtable *AllocVTable) *Buffer {
	b := &Buffer{shared: true, alloc: vtable}
	if vtable != nil && vtable.Alloc != nil {
		b.data = vtable.Alloc(size)
	} else {
		b.data = make([]byte, size)
	}
	b.hdr = gc.NewHeader(gc.KindObject, b)
	heap.Register(b)
	return b
}

func (b *Buffer) ByteLength() int  { return len(b.data) }
func (b *Buffer) IsShared() bool   { return b.shared }
func (b *Buffer) IsDetached() bool { return b.detached }

// Detach clears the data pointer and zeroes every live view's length,
// per spec.md §4.13. A no-op on a SharedArrayBuffer (detach is never
// observed there).
func (b *Buffer) Detach() {
	if b.shared || b.detached {
		return
	}
	b.detached = true
	b.data = nil
	for _, v := range b.views {
		v.length = 0
		v.byteOffset = 0
	}
}

func (b *Buffer) registerView(v *View) { b.views = append(b.views, v) }

// Slice returns a read-only window into the buffer's bytes, or nil if
// detached or out of range.
func (b *Buffer) Slice(offset, length int) []byte {
	if b.detached || offset < 0 || length < 0 || offset+length > len(b.data) {
		return nil
	}
	return b.data[offset : offset+length]
}

// View is a TypedArray over a Buffer: kind, byte offset, and element
// count (spec.md's "typed-array view (buffer, offset, length)").
type View struct {
	hdr        *gc.Header
	Buffer     *Buffer
	Kind       Kind
	byteOffset int
	length     int // element count
}

func (v *View) GCKind() string        { return "typed-array" }
func (v *View) GCHeader() *gc.Header  { return v.hdr }
func (v *View) Trace(visit func(gc.Traceable)) {
	if v.Buffer != nil {
		visit(v.Buffer)
	}
}
func (v *View) Finalize() {}

// NewView implements the "(buffer, offset, length)" construction case: a
// view sharing buffer's storage starting at byteOffset for length
// elements.
func NewView(heap *gc.Heap, buffer *Buffer, kind Kind, byteOffset, length int) *View {
	v := &View{Buffer: buffer, Kind: kind, byteOffset: byteOffset, length: length}
	v.hdr = gc.NewHeader(gc.KindObject, v)
	heap.IncRef(buffer)
	buffer.registerView(v)
	heap.Register(v)
	return v
}

// NewViewWithOwnBuffer implements the "(length)" construction case: a
// fresh zeroed ArrayBuffer sized to hold length elements of kind.
func NewViewWithOwnBuffer(heap *gc.Heap, kind Kind, length int) *View {
	buf := NewArrayBuffer(heap, length*ElementSize(kind))
	v := NewView(heap, buf, kind, 0, length)
	heap.DecRef(buf) // View now owns the one reference via Trace
	return v
}

// CopyFrom implements the "(typedArray)" construction case: a fresh
// buffer sized for src's length, with each element converted through
// Get/Set (so a Float64Array copied into an Int32Array truncates, etc).
func CopyFrom(heap *gc.Heap, kind Kind, src *View) *View {
	v := NewViewWithOwnBuffer(heap, kind, src.Length())
	for i := 0; i < src.Length(); i++ {
		v.Set(i, src.Get(i))
	}
	return v
}

// FromValues implements the "(object)" construction case: iterate an
// arbitrary value sequence (already materialized by the caller, since
// pkg/typedarray has no interpreter to drive @@iterator) and convert each.
func FromValues(heap *gc.Heap, kind Kind, values []value.Value) *View {
	v := NewViewWithOwnBuffer(heap, kind, len(values))
	for i, val := range values {
		v.Set(i, val)
	}
	return v
}

func (v *View) Length() int     { return v.length }
func (v *View) ByteOffset() int { return v.byteOffset }
func (v *View) ByteLength() int { return v.length * ElementSize(v.Kind) }

// InBounds reports whether i is a valid element index given the view's
// current (possibly post-detach-zeroed) length.
func (v *View) InBounds(i int) bool { return i >= 0 && i < v.length }

func (v *View) byteAt(i int) int { return v.byteOffset + i*ElementSize(v.Kind) }

// Get reads element i, or Undefined if the buffer is detached or i is
// out of bounds (spec.md §4.13's "detached buffer reads return
// undefined" and fast-array-style bounds rule).
func (v *View) Get(i int) value.Value {
	if v.Buffer == nil || v.Buffer.IsDetached() || !v.InBounds(i) {
		return value.Undefined
	}
	buf := v.Buffer.data
	off := v.byteAt(i)
	switch v.Kind {
	case Int8:
		return value.Int32(int32(int8(buf[off])))
	case Uint8, Uint8Clamped:
		return value.Int32(int32(buf[off]))
	case Int16:
		return value.Int32(int32(int16(binary.LittleEndian.Uint16(buf[off:]))))
	case Uint16:
		return value.Int32(int32(binary.LittleEndian.Uint16(buf[off:])))
	case Int32Kind:
		return value.Int32(int32(binary.LittleEndian.Uint32(buf[off:])))
	case Uint32Kind:
		return value.Number(float64(binary.LittleEndian.Uint32(buf[off:])))
	case Float32Kind:
		return value.Number(float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))))
	case Float64Kind:
		return value.Number(math.Float64frombits(binary.LittleEndian.Uint64(buf[off:])))
	case BigInt64, BigUint64:
		return value.BigInt(uint256.NewInt(binary.LittleEndian.Uint64(buf[off:])))
	default:
		return value.Undefined
	}
}

// Set coerces v and writes element i. Per spec.md §4.13, an out-of-bound
// numeric index still performs the coercion (which may itself detach the
// buffer via valueOf) before silently dropping the write; a coercion that
// detaches the buffer mid-call is handled by re-checking InBounds after
// the numeric conversion captured here (conversion is assumed already
// performed by the caller for non-numeric coercion hooks, since pkg/
// typedarray has no interpreter to invoke valueOf itself).
func (v *View) Set(i int, val value.Value) {
	if v.Buffer == nil || v.Buffer.IsDetached() {
		return
	}
	if !v.InBounds(i) {
		return
	}
	buf := v.Buffer.data
	off := v.byteAt(i)
	switch v.Kind {
	case Int8:
		buf[off] = byte(int8(val.AsInt32()))
	case Uint8:
		buf[off] = byte(val.AsInt32())
	case Uint8Clamped:
		buf[off] = clampUint8(val.AsFloat64())
	case Int16:
		binary.LittleEndian.PutUint16(buf[off:], uint16(int16(val.AsInt32())))
	case Uint16:
		binary.LittleEndian.PutUint16(buf[off:], uint16(val.AsInt32()))
	case Int32Kind:
		binary.LittleEndian.PutUint32(buf[off:], uint32(val.AsInt32()))
	case Uint32Kind:
		binary.LittleEndian.PutUint32(buf[off:], uint32(int64(val.AsFloat64())))
	case Float32Kind:
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(val.AsFloat64())))
	case Float64Kind:
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(val.AsFloat64()))
	case BigInt64, BigUint64:
		if val.IsBigInt() && val.AsBigInt() != nil {
			binary.LittleEndian.PutUint64(buf[off:], val.AsBigInt().Uint64())
		}
	}
}

func clampUint8(f float64) byte {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return byte(math.Round(f))
}

// DataView is the non-typed, explicit-endianness view over a Buffer.
type DataView struct {
	hdr        *gc.Header
	Buffer     *Buffer
	byteOffset int
	byteLength int
}

func (d *DataView) GCKind() string       { return "data-view" }
func (d *DataView) GCHeader() *gc.Header { return d.hdr }
func (d *DataView) Trace(visit func(gc.Traceable)) {
	if d.Buffer != nil {
		visit(d.Buffer)
	}
}
func (d *DataView) Finalize() {}

func NewDataView(heap *gc.Heap, buffer *Buffer, byteOffset, byteLength int) *DataView {
	d := &DataView{Buffer: buffer, byteOffset: byteOffset, byteLength: byteLength}
	d.hdr = gc.NewHeader(gc.KindObject, d)
	heap.IncRef(buffer)
	heap.Register(d)
	return d
}

func (d *DataView) order(littleEndian bool) binary.ByteOrder {
	if littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (d *DataView) window(offset, size int) []byte {
	if d.Buffer == nil || d.Buffer.IsDetached() {
		return nil
	}
	if offset < 0 || size < 0 || offset+size > d.byteLength {
		return nil
	}
	start := d.byteOffset + offset
	return d.Buffer.data[start : start+size]
}

func (d *DataView) GetUint32(offset int, littleEndian bool) (uint32, bool) {
	w := d.window(offset, 4)
	if w == nil {
		return 0, false
	}
	return d.order(littleEndian).Uint32(w), true
}

func (d *DataView) SetUint32(offset int, v uint32, littleEndian bool) bool {
	w := d.window(offset, 4)
	if w == nil {
		return false
	}
	d.order(littleEndian).PutUint32(w, v)
	return true
}

func (d *DataView) GetFloat64(offset int, littleEndian bool) (float64, bool) {
	w := d.window(offset, 8)
	if w == nil {
		return 0, false
	}
	return math.Float64frombits(d.order(littleEndian).Uint64(w)), true
}

func (d *DataView) SetFloat64(offset int, v float64, littleEndian bool) bool {
	w := d.window(offset, 8)
	if w == nil {
		return false
	}
	d.order(littleEndian).PutUint64(w, math.Float64bits(v))
	return true
}
