// Package value implements the tagged Value union (C3): the single
// representation every other component of the engine passes values around
// in. Integers that fit a signed 32-bit range share the Int32 tag; every
// other number is Float64. Numeric equality normalizes -0 to +0 and NaN to
// a canonical bit pattern for use as a Map/property key.
package value

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"jsgo/pkg/atom"
	"jsgo/pkg/strheap"
)

// Tag identifies which arm of Value is live.
type Tag uint8

const (
	TagUndefined Tag = iota
	TagNull
	TagBool
	TagInt32
	TagFloat64
	TagString
	TagSymbol
	TagObject
	// TagException is the internal-only sentinel. It is never observable
	// from user code and is only produced/consumed by the error channel
	// (pkg/errchan) across call boundaries — see design note in spec §9.
	TagException
	// TagUninitialized is the TDZ (temporal-dead-zone) sentinel.
	TagUninitialized
	TagFunctionBytecode
	TagModule
	TagBigInt
)

func (t Tag) String() string {
	switch t {
	case TagUndefined:
		return "undefined"
	case TagNull:
		return "null"
	case TagBool:
		return "bool"
	case TagInt32:
		return "int32"
	case TagFloat64:
		return "float64"
	case TagString:
		return "string"
	case TagSymbol:
		return "symbol"
	case TagObject:
		return "object"
	case TagException:
		return "<exception>"
	case TagUninitialized:
		return "<uninitialized>"
	case TagFunctionBytecode:
		return "function-bytecode"
	case TagModule:
		return "module"
	case TagBigInt:
		return "bigint"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// HeapObject is implemented by anything the Object/Function/Module arms of
// Value point to. It is deliberately minimal so pkg/value never imports
// pkg/object, pkg/gc, or pkg/module (they import pkg/value instead).
type HeapObject interface {
	// GCKind names the concrete kind for diagnostics and for the GC's
	// class-dispatch table (C9).
	GCKind() string
}

// Value is the uniform tagged-union representation (C3).
type Value struct {
	tag Tag
	b   bool
	i32 int32
	f64 float64
	str *strheap.JSString
	sym atom.Atom
	obj HeapObject
	big *uint256.Int
}

var (
	Undefined     = Value{tag: TagUndefined}
	Null          = Value{tag: TagNull}
	Uninitialized = Value{tag: TagUninitialized}
	exceptionVal  = Value{tag: TagException}
)

// Exception returns the internal sentinel. Only pkg/errchan should call
// this; every other package receives it as the return value of
// pkg/errchan.Channel's Throw or NewTypedError.
func Exception() Value { return exceptionVal }

func Bool(b bool) Value { return Value{tag: TagBool, b: b} }

// Int32 stores an integer known to fit a signed 32-bit range.
func Int32(i int32) Value { return Value{tag: TagInt32, i32: i} }

// Number picks Int32 or Float64 depending on whether f is an exact integer
// that fits 32 bits, matching the "integers that fit share Int32" rule.
func Number(f float64) Value {
	if i := int32(f); float64(i) == f && !isNegZero(f) {
		return Int32(i)
	}
	return Value{tag: TagFloat64, f64: normalizeNumber(f)}
}

func isNegZero(f float64) bool {
	return f == 0 && math.Signbit(f)
}

// normalizeNumber canonicalizes -0 to +0 and NaN to a single bit pattern,
// per the §3 equality rule used for Map/Set/property keying.
func normalizeNumber(f float64) float64 {
	if math.IsNaN(f) {
		return math.NaN()
	}
	if isNegZero(f) {
		return 0
	}
	return f
}

func Str(s *strheap.JSString) Value { return Value{tag: TagString, str: s} }

func Symbol(a atom.Atom) Value { return Value{tag: TagSymbol, sym: a} }

func Object(o HeapObject) Value { return Value{tag: TagObject, obj: o} }

func FunctionBytecode(o HeapObject) Value { return Value{tag: TagFunctionBytecode, obj: o} }

func Module(o HeapObject) Value { return Value{tag: TagModule, obj: o} }

func BigInt(i *uint256.Int) Value { return Value{tag: TagBigInt, big: i} }

func (v Value) Tag() Tag            { return v.tag }
func (v Value) IsUndefined() bool   { return v.tag == TagUndefined }
func (v Value) IsNull() bool        { return v.tag == TagNull }
func (v Value) IsNullish() bool     { return v.tag == TagUndefined || v.tag == TagNull }
func (v Value) IsException() bool   { return v.tag == TagException }
func (v Value) IsUninitialized() bool { return v.tag == TagUninitialized }
func (v Value) IsBool() bool        { return v.tag == TagBool }
func (v Value) IsInt32() bool       { return v.tag == TagInt32 }
func (v Value) IsFloat64() bool     { return v.tag == TagFloat64 }
func (v Value) IsNumber() bool      { return v.tag == TagInt32 || v.tag == TagFloat64 }
func (v Value) IsString() bool      { return v.tag == TagString }
func (v Value) IsSymbol() bool      { return v.tag == TagSymbol }
func (v Value) IsObject() bool      { return v.tag == TagObject }
func (v Value) IsBigInt() bool      { return v.tag == TagBigInt }

func (v Value) AsBool() bool              { return v.b }
func (v Value) AsInt32() int32            { return v.i32 }
func (v Value) AsString() *strheap.JSString { return v.str }
func (v Value) AsSymbol() atom.Atom       { return v.sym }
func (v Value) AsObject() HeapObject      { return v.obj }
func (v Value) AsBigInt() *uint256.Int    { return v.big }

// AsFloat64 returns the numeric value whether it is stored as Int32 or
// Float64.
func (v Value) AsFloat64() float64 {
	if v.tag == TagInt32 {
		return float64(v.i32)
	}
	return v.f64
}

// ToBoolean implements the ECMAScript ToBoolean abstract operation. It is
// idempotent: ToBoolean(ToBoolean(v)) == ToBoolean(v), the §8 property.
func (v Value) ToBoolean() bool {
	switch v.tag {
	case TagUndefined, TagNull:
		return false
	case TagBool:
		return v.b
	case TagInt32:
		return v.i32 != 0
	case TagFloat64:
		return v.f64 != 0 && !math.IsNaN(v.f64)
	case TagString:
		return v.str.Len() > 0
	case TagBigInt:
		return v.big != nil && !v.big.IsZero()
	default:
		// Symbol, Object, Function, Module are always truthy.
		return true
	}
}

// SameValueZero implements the equality used for Map/Set keys and for the
// serialization round-trip property in §8: like SameValue but +0 == -0.
func SameValueZero(a, b Value) bool {
	if a.tag != b.tag {
		// Int32 vs Float64 of equal numeric value still compare equal.
		if a.IsNumber() && b.IsNumber() {
			return sameNumber(a.AsFloat64(), b.AsFloat64())
		}
		return false
	}
	switch a.tag {
	case TagUndefined, TagNull, TagUninitialized:
		return true
	case TagBool:
		return a.b == b.b
	case TagInt32:
		return a.i32 == b.i32
	case TagFloat64:
		return sameNumber(a.f64, b.f64)
	case TagString:
		return strheap.Equal(a.str, b.str)
	case TagSymbol:
		return a.sym == b.sym
	case TagObject, TagFunctionBytecode, TagModule:
		return a.obj == b.obj
	case TagBigInt:
		return a.big.Eq(b.big)
	default:
		return false
	}
}

func sameNumber(x, y float64) bool {
	if math.IsNaN(x) && math.IsNaN(y) {
		return true
	}
	return x == y
}

func (v Value) String() string {
	switch v.tag {
	case TagUndefined:
		return "undefined"
	case TagNull:
		return "null"
	case TagBool:
		if v.b {
			return "true"
		}
		return "false"
	case TagInt32:
		return fmt.Sprintf("%d", v.i32)
	case TagFloat64:
		return fmt.Sprintf("%g", v.f64)
	case TagString:
		return v.str.String()
	case TagSymbol:
		return fmt.Sprintf("Symbol(%d)", v.sym)
	case TagBigInt:
		return v.big.Dec() + "n"
	case TagException:
		return "<exception>"
	case TagUninitialized:
		return "<uninitialized>"
	default:
		if v.obj != nil {
			return fmt.Sprintf("#<%s>", v.obj.GCKind())
		}
		return "#<object>"
	}
}
