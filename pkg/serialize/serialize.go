// Package serialize implements the bit-exact, tagged structured-clone-like
// wire format (C16). A leading version byte combines a base format
// version with a big-endian flag; atoms used anywhere in the payload are
// collected up front and emitted as a string table, with in-payload atom
// references encoded as (index<<1) and inline small integers as
// (value<<1)|1, per spec.md §4.14. Readers reject an unrecognized version
// byte or tag with a SyntaxError.
package serialize

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/holiman/uint256"

	"jsgo/pkg/atom"
	"jsgo/pkg/errchan"
	"jsgo/pkg/object"
	"jsgo/pkg/strheap"
	"jsgo/pkg/typedarray"
	"jsgo/pkg/value"
)

// Flags select optional payload features, per spec.md §6.
type Flags uint8

const (
	FlagBytecode Flags = 1 << iota
	FlagReference
	FlagSAB
	FlagRomData
	FlagByteSwap
)

const formatVersion = 1

// tag is the one-byte discriminator preceding every encoded value.
type tag byte

const (
	tagNull tag = iota
	tagUndefined
	tagFalse
	tagTrue
	tagInt32
	tagFloat64
	tagString
	tagArray
	tagObject
	tagTypedArray
	tagArrayBuffer
	tagSharedArrayBuffer
	tagDate
	tagObjectValue
	tagTemplateObject
	tagBigInt
	tagObjectReference
)

// Writer accumulates the output buffer for one Write call, collecting the
// atom string table referenced by any object property keys along the way.
type Writer struct {
	flags     Flags
	atoms     *atom.Table
	atomIndex map[atom.Atom]int
	atomOrder []atom.Atom
	refIndex  map[interface{}]int
	refOrder  []interface{}
	buf       bytes.Buffer
}

// NewWriter creates a Writer using atoms to resolve property-key atoms to
// their string bytes.
func NewWriter(atoms *atom.Table, flags Flags) *Writer {
	return &Writer{
		flags:     flags,
		atoms:     atoms,
		atomIndex: make(map[atom.Atom]int),
		refIndex:  make(map[interface{}]int),
	}
}

func (w *Writer) byteOrder() binary.ByteOrder {
	if w.flags&FlagByteSwap != 0 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func putUvarint(buf *bytes.Buffer, u uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], u)
	buf.Write(tmp[:n])
}

func putVarint(buf *bytes.Buffer, i int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], i)
	buf.Write(tmp[:n])
}

// atomRef registers (if needed) and returns the (index<<1) / (value<<1)|1
// encoding for a property-key atom, per spec.md §4.14.
func (w *Writer) atomRef(a atom.Atom) uint64 {
	if n, ok := a.IsArrayIndex(); ok {
		return uint64(n)<<1 | 1
	}
	idx, ok := w.atomIndex[a]
	if !ok {
		idx = len(w.atomOrder)
		w.atomIndex[a] = idx
		w.atomOrder = append(w.atomOrder, a)
	}
	return uint64(idx) << 1
}

// Write encodes v and returns the complete wire-format byte stream: the
// version/flags header, the atom string table, then the payload.
func (w *Writer) Write(v value.Value) []byte {
	var payload bytes.Buffer
	w.writeValue(&payload, v)

	var out bytes.Buffer
	out.WriteByte(versionByte(w.flags&FlagByteSwap != 0))
	out.WriteByte(byte(w.flags))
	putUvarint(&out, uint64(len(w.atomOrder)))
	for _, a := range w.atomOrder {
		s := w.atoms.ToString(a)
		isWide := false
		for _, r := range s {
			if r > 0xFF {
				isWide = true
				break
			}
		}
		putUvarint(&out, uint64(len(s))<<1|boolBit(isWide))
		out.WriteString(s)
	}
	out.Write(payload.Bytes())
	return out.Bytes()
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func versionByte(bigEndian bool) byte {
	v := byte(formatVersion) << 1
	if bigEndian {
		v |= 1
	}
	return v
}

func (w *Writer) writeValue(buf *bytes.Buffer, v value.Value) {
	switch v.Tag() {
	case value.TagNull:
		buf.WriteByte(byte(tagNull))
	case value.TagUndefined, value.TagUninitialized:
		buf.WriteByte(byte(tagUndefined))
	case value.TagBool:
		if v.AsBool() {
			buf.WriteByte(byte(tagTrue))
		} else {
			buf.WriteByte(byte(tagFalse))
		}
	case value.TagInt32:
		buf.WriteByte(byte(tagInt32))
		putVarint(buf, int64(v.AsInt32()))
	case value.TagFloat64:
		buf.WriteByte(byte(tagFloat64))
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.AsFloat64()))
		buf.Write(tmp[:])
	case value.TagString:
		buf.WriteByte(byte(tagString))
		w.writeString(buf, v.AsString())
	case value.TagBigInt:
		buf.WriteByte(byte(tagBigInt))
		b := v.AsBigInt().Bytes32()
		buf.Write(b[:])
	case value.TagObject:
		w.writeObject(buf, v.AsObject())
	default:
		// function-bytecode/module payloads require the bytecode
		// compiler/interpreter, out of scope per spec.md §1; encode as
		// undefined rather than fabricate a tag no reader understands.
		buf.WriteByte(byte(tagUndefined))
	}
}

func (w *Writer) writeString(buf *bytes.Buffer, s *strheap.JSString) {
	bs := s.String()
	putUvarint(buf, uint64(len(bs))<<1|boolBit(s.IsWide()))
	buf.WriteString(bs)
}

func (w *Writer) writeObject(buf *bytes.Buffer, h value.HeapObject) {
	if w.flags&FlagReference != 0 {
		if idx, ok := w.refIndex[h]; ok {
			buf.WriteByte(byte(tagObjectReference))
			putUvarint(buf, uint64(idx))
			return
		}
		idx := len(w.refOrder)
		w.refIndex[h] = idx
		w.refOrder = append(w.refOrder, h)
	}
	switch o := h.(type) {
	case *object.Object:
		w.writeOrdinaryObject(buf, o)
	case *typedarray.View:
		buf.WriteByte(byte(tagTypedArray))
		putUvarint(buf, uint64(o.Kind))
		putUvarint(buf, uint64(o.Length()))
		putUvarint(buf, uint64(o.ByteOffset()))
		w.writeObject(buf, o.Buffer)
	case *typedarray.Buffer:
		if o.IsShared() {
			buf.WriteByte(byte(tagSharedArrayBuffer))
		} else {
			buf.WriteByte(byte(tagArrayBuffer))
		}
		putUvarint(buf, uint64(o.ByteLength()))
		buf.Write(o.Slice(0, o.ByteLength()))
	default:
		buf.WriteByte(byte(tagUndefined))
	}
}

func (w *Writer) writeOrdinaryObject(buf *bytes.Buffer, o *object.Object) {
	if o.IsArray() && o.IsFastArray() {
		elems := o.Elements()
		buf.WriteByte(byte(tagArray))
		putUvarint(buf, uint64(len(elems)))
		for _, e := range elems {
			w.writeValue(buf, e)
		}
		return
	}
	buf.WriteByte(byte(tagObject))
	names := o.GetOwnPropertyNames(w.atoms)
	var props []atom.Atom
	for _, n := range names {
		if d, ok := o.GetOwnProperty(n); ok && d.Enumerable && !d.IsAccessor {
			props = append(props, n)
		}
	}
	putUvarint(buf, uint64(len(props)))
	for _, n := range props {
		putUvarint(buf, w.atomRef(n))
		d, _ := o.GetOwnProperty(n)
		w.writeValue(buf, d.Value)
	}
}

// Reader decodes a byte stream produced by Writer.
type Reader struct {
	data      []byte
	pos       int
	flags     Flags
	atoms     *atom.Table
	atomTable []string
	refs      []value.Value
	errs      *errchan.Channel
}

// NewReader validates the version byte and parses the leading atom
// string table.
func NewReader(data []byte, atoms *atom.Table, errs *errchan.Channel) (*Reader, bool) {
	if len(data) < 2 {
		errs.NewTypedError(nil, false, errchan.KindSyntax, "truncated structured-clone header")
		return nil, false
	}
	version := data[0] >> 1
	if version != formatVersion {
		errs.NewTypedError(nil, false, errchan.KindSyntax, "unsupported structured-clone version %d", version)
		return nil, false
	}
	r := &Reader{data: data, pos: 2, atoms: atoms, flags: Flags(data[1]), errs: errs}
	n, ok := r.uvarint()
	if !ok {
		return nil, false
	}
	for i := uint64(0); i < n; i++ {
		lenFlag, ok := r.uvarint()
		if !ok {
			return nil, false
		}
		n := int(lenFlag >> 1)
		s, ok := r.bytes(n)
		if !ok {
			return nil, false
		}
		r.atomTable = append(r.atomTable, string(s))
	}
	return r, true
}

func (r *Reader) fail(format string, args ...interface{}) value.Value {
	return r.errs.NewTypedError(nil, false, errchan.KindSyntax, format, args...)
}

func (r *Reader) uvarint() (uint64, bool) {
	u, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		r.fail("truncated structured-clone payload")
		return 0, false
	}
	r.pos += n
	return u, true
}

func (r *Reader) varint() (int64, bool) {
	i, n := binary.Varint(r.data[r.pos:])
	if n <= 0 {
		r.fail("truncated structured-clone payload")
		return 0, false
	}
	r.pos += n
	return i, true
}

func (r *Reader) bytes(n int) ([]byte, bool) {
	if r.pos+n > len(r.data) {
		r.fail("truncated structured-clone payload")
		return nil, false
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, true
}

func (r *Reader) byte() (byte, bool) {
	b, ok := r.bytes(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

// resolveAtomRef decodes the (index<<1)/(value<<1)|1 atom encoding back
// into a live Atom, interning the string-table entry on first use.
func (r *Reader) resolveAtomRef(encoded uint64) atom.Atom {
	if encoded&1 != 0 {
		return atomFromU32(uint32(encoded >> 1))
	}
	idx := int(encoded >> 1)
	if idx < 0 || idx >= len(r.atomTable) {
		return atom.Null
	}
	return r.atoms.Intern(r.atomTable[idx], atom.KindString)
}

// Read decodes one value from the payload following the header/atom table
// NewReader already consumed. Host-supplied constructors build concrete
// object/array/typed-array instances so pkg/serialize does not need to
// import pkg/gc or know which Heap to register new allocations on.
type Host interface {
	NewObject() *object.Object
	NewArray(elements []value.Value) *object.Object
	NewArrayBuffer(data []byte) *typedarray.Buffer
	NewSharedArrayBuffer(data []byte) *typedarray.Buffer
	NewTypedArray(kind typedarray.Kind, buf *typedarray.Buffer, offset, length int) *typedarray.View
	DefineProperty(o *object.Object, key atom.Atom, v value.Value)
}

func (r *Reader) Read(host Host) value.Value {
	t, ok := r.byte()
	if !ok {
		return value.Exception()
	}
	switch tag(t) {
	case tagNull:
		return value.Null
	case tagUndefined:
		return value.Undefined
	case tagFalse:
		return value.Bool(false)
	case tagTrue:
		return value.Bool(true)
	case tagInt32:
		i, ok := r.varint()
		if !ok {
			return value.Exception()
		}
		return value.Int32(int32(i))
	case tagFloat64:
		b, ok := r.bytes(8)
		if !ok {
			return value.Exception()
		}
		return value.Number(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case tagString:
		lenFlag, ok := r.uvarint()
		if !ok {
			return value.Exception()
		}
		b, ok := r.bytes(int(lenFlag >> 1))
		if !ok {
			return value.Exception()
		}
		s := value.Str(strheap.New(string(b)))
		r.refs = append(r.refs, s)
		return s
	case tagBigInt:
		b, ok := r.bytes(32)
		if !ok {
			return value.Exception()
		}
		var arr [32]byte
		copy(arr[:], b)
		bi := new(uint256.Int).SetBytes32(arr[:])
		return value.BigInt(bi)
	case tagArray:
		n, ok := r.uvarint()
		if !ok {
			return value.Exception()
		}
		elems := make([]value.Value, n)
		arr := host.NewArray(elems)
		placeholder := value.Object(arr)
		r.refs = append(r.refs, placeholder)
		for i := range elems {
			v := r.Read(host)
			if v.IsException() {
				return v
			}
			elems[i] = v
		}
		return placeholder
	case tagObject:
		o := host.NewObject()
		placeholder := value.Object(o)
		r.refs = append(r.refs, placeholder)
		n, ok := r.uvarint()
		if !ok {
			return value.Exception()
		}
		for i := uint64(0); i < n; i++ {
			encoded, ok := r.uvarint()
			if !ok {
				return value.Exception()
			}
			key := r.resolveAtomRef(encoded)
			v := r.Read(host)
			if v.IsException() {
				return v
			}
			host.DefineProperty(o, key, v)
		}
		return placeholder
	case tagArrayBuffer, tagSharedArrayBuffer:
		n, ok := r.uvarint()
		if !ok {
			return value.Exception()
		}
		data, ok := r.bytes(int(n))
		if !ok {
			return value.Exception()
		}
		var buf *typedarray.Buffer
		if tag(t) == tagSharedArrayBuffer {
			buf = host.NewSharedArrayBuffer(data)
		} else {
			buf = host.NewArrayBuffer(data)
		}
		v := value.Object(buf)
		r.refs = append(r.refs, v)
		return v
	case tagTypedArray:
		kind, ok := r.uvarint()
		if !ok {
			return value.Exception()
		}
		length, ok := r.uvarint()
		if !ok {
			return value.Exception()
		}
		offset, ok := r.uvarint()
		if !ok {
			return value.Exception()
		}
		bufVal := r.Read(host)
		if bufVal.IsException() {
			return bufVal
		}
		buf, ok := bufVal.AsObject().(*typedarray.Buffer)
		if !ok {
			return r.fail("typed-array payload did not reference an ArrayBuffer")
		}
		view := host.NewTypedArray(typedarray.Kind(kind), buf, int(offset), int(length))
		return value.Object(view)
	case tagObjectReference:
		idx, ok := r.uvarint()
		if !ok {
			return value.Exception()
		}
		if int(idx) >= len(r.refs) {
			return r.fail("back-reference %d out of range", idx)
		}
		return r.refs[idx]
	default:
		return r.fail("unrecognized structured-clone tag %d", t)
	}
}

func atomFromU32(n uint32) atom.Atom {
	// mirrors pkg/atom.FromU32 without importing it twice for the single
	// constant; kept local since the encoding is part of this wire format,
	// not atom.Table's API surface.
	return atom.FromU32(n)
}
