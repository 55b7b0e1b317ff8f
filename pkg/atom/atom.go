// Package atom implements the interned-string/symbol table (C1): every
// property name, every Symbol, and every small non-negative array index
// shares the same 32-bit Atom identifier space.
package atom

import "fmt"

// Atom is an opaque identifier for an interned string or symbol. Small
// non-negative integers are encoded inline (the "array index" fast path);
// everything else is an index into a Table's descriptor slice.
type Atom uint32

// Null is the reserved atom identifying "no property name".
const Null Atom = 0

const taggedIntBit = uint32(1) << 31

// Kind distinguishes the four descriptor flavors the table tracks.
type Kind int

const (
	KindString Kind = iota
	KindGlobalSymbol
	KindSymbol
	KindPrivate
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindGlobalSymbol:
		return "global-symbol"
	case KindSymbol:
		return "symbol"
	case KindPrivate:
		return "private"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type descriptor struct {
	bytes    string
	kind     Kind
	refcount int32
	// hashNext chains descriptors whose bytes+kind hash to the same bucket.
	hashNext int32
	// inUse is false for freelist slots.
	inUse bool
}

// Table is a per-runtime atom table. It is not safe for concurrent use by
// more than one goroutine, matching the engine's single-threaded-per-runtime
// contract (spec §5).
type Table struct {
	descs    []descriptor
	freelist []int32
	buckets  []int32 // open-addressed-by-chaining hash buckets, power-of-two length
	count    int     // live (non-freelist) descriptors
	// symbolRegistry implements Symbol.for / Symbol.keyFor.
	symbolRegistry map[string]Atom
}

const initialBuckets = 16
const loadFactorNum, loadFactorDen = 3, 4 // grow when count/len(buckets) > 3/4

// NewTable creates an empty atom table. Descriptor slot 0 is left unused so
// that no interned string or symbol is ever handed out as Null.
func NewTable() *Table {
	t := &Table{
		descs:          make([]descriptor, 1),
		buckets:        make([]int32, initialBuckets),
		symbolRegistry: make(map[string]Atom),
	}
	for i := range t.buckets {
		t.buckets[i] = -1
	}
	return t
}

func hashKey(bytes string, kind Kind) uint32 {
	// FNV-1a, stable across runs (the exact constant doesn't matter, only
	// that equal (bytes,kind) pairs hash equally within one table).
	h := uint32(2166136261)
	for i := 0; i < len(bytes); i++ {
		h ^= uint32(bytes[i])
		h *= 16777619
	}
	h ^= uint32(kind) + 0x9e3779b9
	return h
}

func (t *Table) bucketFor(h uint32) int {
	return int(h & uint32(len(t.buckets)-1))
}

// FromU32 encodes a non-negative integer as an inline array-index atom, if
// it fits; this never touches the table.
func FromU32(n uint32) Atom {
	return Atom(n | taggedIntBit)
}

// IsArrayIndex reports whether a is an inline small-integer atom and, if so,
// returns the decoded value.
func (a Atom) IsArrayIndex() (uint32, bool) {
	if a&Atom(taggedIntBit) != 0 {
		return uint32(a &^ Atom(taggedIntBit)), true
	}
	return 0, false
}

// Intern returns the atom for (bytes, kind), creating it on first use.
// Interning is deterministic: two calls with equal inputs return the same
// atom until every reference to it has been released.
func (t *Table) Intern(bytes string, kind Kind) Atom {
	h := hashKey(bytes, kind)
	b := t.bucketFor(h)
	for idx := t.buckets[b]; idx >= 0; idx = t.descs[idx].hashNext {
		d := &t.descs[idx]
		if d.inUse && d.kind == kind && d.bytes == bytes {
			d.refcount++
			return Atom(idx)
		}
	}
	idx := t.allocSlot()
	t.descs[idx] = descriptor{
		bytes:    bytes,
		kind:     kind,
		refcount: 1,
		hashNext: t.buckets[b],
		inUse:    true,
	}
	t.buckets[b] = idx
	t.count++
	if t.count*loadFactorDen > len(t.buckets)*loadFactorNum {
		t.grow()
	}
	return Atom(idx)
}

// InternSymbol creates a unique (never deduplicated) Symbol atom.
func (t *Table) InternSymbol(description string) Atom {
	idx := t.allocSlot()
	t.descs[idx] = descriptor{bytes: description, kind: KindSymbol, refcount: 1, hashNext: -1, inUse: true}
	t.count++
	return Atom(idx)
}

// SymbolFor implements Symbol.for: a process-wide (per-table) registry keyed
// by description string.
func (t *Table) SymbolFor(key string) Atom {
	if a, ok := t.symbolRegistry[key]; ok {
		t.Resurrect(a)
		return a
	}
	idx := t.allocSlot()
	t.descs[idx] = descriptor{bytes: key, kind: KindGlobalSymbol, refcount: 1, hashNext: -1, inUse: true}
	t.count++
	a := Atom(idx)
	t.symbolRegistry[key] = a
	return a
}

// KeyFor implements Symbol.keyFor: reverse lookup into the global registry.
func (t *Table) KeyFor(a Atom) (string, bool) {
	d, ok := t.lookup(a)
	if !ok || d.kind != KindGlobalSymbol {
		return "", false
	}
	for k, v := range t.symbolRegistry {
		if v == a {
			return k, true
		}
	}
	return "", false
}

func (t *Table) allocSlot() int32 {
	if n := len(t.freelist); n > 0 {
		idx := t.freelist[n-1]
		t.freelist = t.freelist[:n-1]
		return idx
	}
	t.descs = append(t.descs, descriptor{})
	return int32(len(t.descs) - 1)
}

func (t *Table) grow() {
	newBuckets := make([]int32, len(t.buckets)*2)
	for i := range newBuckets {
		newBuckets[i] = -1
	}
	t.buckets = newBuckets
	for i := range t.descs {
		d := &t.descs[i]
		if !d.inUse || d.kind == KindSymbol {
			d.hashNext = -1
			continue
		}
		h := hashKey(d.bytes, d.kind)
		b := t.bucketFor(h)
		d.hashNext = t.buckets[b]
		t.buckets[b] = int32(i)
	}
}

func (t *Table) lookup(a Atom) (*descriptor, bool) {
	if _, ok := a.IsArrayIndex(); ok {
		return nil, false
	}
	idx := int(a)
	if idx < 0 || idx >= len(t.descs) || !t.descs[idx].inUse {
		return nil, false
	}
	return &t.descs[idx], true
}

// Resurrect duplicates a reference to an already-interned atom (the "dup"
// operation from spec.md §4.1).
func (t *Table) Resurrect(a Atom) {
	if d, ok := t.lookup(a); ok {
		d.refcount++
	}
}

// Release drops one reference; the descriptor is freed (and, for symbols,
// unlinked from the registry) when the refcount reaches zero.
func (t *Table) Release(a Atom) {
	if _, ok := a.IsArrayIndex(); ok {
		return
	}
	d, ok := t.lookup(a)
	if !ok {
		return
	}
	d.refcount--
	if d.refcount > 0 {
		return
	}
	if d.kind == KindGlobalSymbol {
		for k, v := range t.symbolRegistry {
			if v == a {
				delete(t.symbolRegistry, k)
				break
			}
		}
	}
	if d.kind != KindSymbol {
		h := hashKey(d.bytes, d.kind)
		b := t.bucketFor(h)
		pp := &t.buckets[b]
		for *pp >= 0 {
			if *pp == int32(a) {
				*pp = d.hashNext
				break
			}
			pp = &t.descs[*pp].hashNext
		}
	}
	*d = descriptor{}
	t.freelist = append(t.freelist, int32(a))
	t.count--
}

// ToString returns the underlying bytes of a string/symbol atom, or the
// decimal rendering of an inline array-index atom.
func (t *Table) ToString(a Atom) string {
	if n, ok := a.IsArrayIndex(); ok {
		return fmt.Sprintf("%d", n)
	}
	if d, ok := t.lookup(a); ok {
		return d.bytes
	}
	return ""
}

// KindOf reports the Kind of a non-array-index atom.
func (t *Table) KindOf(a Atom) (Kind, bool) {
	d, ok := t.lookup(a)
	if !ok {
		return 0, false
	}
	return d.kind, true
}

// RefCount exposes the live reference count, chiefly for tests that assert
// the §8 "release(intern(s)) == refcount-1" property.
func (t *Table) RefCount(a Atom) int32 {
	if d, ok := t.lookup(a); ok {
		return d.refcount
	}
	return 0
}

// Compare orders two atoms the way property-name enumeration requires:
// array-index atoms sort numerically and precede all string atoms, which
// in turn sort lexicographically by their decoded bytes.
func (t *Table) Compare(a, b Atom) int {
	an, aIsIdx := a.IsArrayIndex()
	bn, bIsIdx := b.IsArrayIndex()
	switch {
	case aIsIdx && bIsIdx:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	case aIsIdx && !bIsIdx:
		return -1
	case !aIsIdx && bIsIdx:
		return 1
	default:
		as, bs := t.ToString(a), t.ToString(b)
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
}
