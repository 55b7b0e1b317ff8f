// Package collection implements the identity/value-keyed table classes
// (C15): Map, Set, WeakMap, WeakSet. Map/Set key equality is
// value.SameValueZero (so -0/+0 and equal-content strings collide);
// WeakMap/WeakSet key equality is object identity, and an entry is
// cleared automatically when its key object is collected by registering
// into the GC's weak-reference hook (spec.md §4.6's "weak references are
// recorded on the target object's first_weak_ref chain and cleared
// before finalizers run").
//
// Iteration order for both Map and Set is insertion order, per spec.md
// §2's C15 row: the backing store is an order-preserving open-addressed
// table, the same structural idea as pkg/shape's property hash, rather
// than Go's unordered built-in map.
package collection

import (
	"math"
	"reflect"

	"jsgo/pkg/object"
	"jsgo/pkg/value"
)

const initialBuckets = 16

type mapEntry struct {
	hash  uint64
	key   value.Value
	val   value.Value
	next  int32 // next entry index in this bucket's chain, -1 if none
	alive bool
}

// Table is the shared Map/Set backing store: open-addressed by chaining,
// like pkg/atom.Table and pkg/shape's property hash, plus an insertion-
// ordered index list so iteration observes insertion order even after
// deletions punch holes.
type Table struct {
	buckets []int32
	entries []mapEntry
	order   []int32 // live entry indices, insertion order
	count   int
}

func newTable() *Table {
	b := make([]int32, initialBuckets)
	for i := range b {
		b[i] = -1
	}
	return &Table{buckets: b}
}

func (t *Table) bucketFor(h uint64) int { return int(h & uint64(len(t.buckets)-1)) }

func (t *Table) grow() {
	nb := make([]int32, len(t.buckets)*2)
	for i := range nb {
		nb[i] = -1
	}
	t.buckets = nb
	for i := range t.entries {
		e := &t.entries[i]
		if !e.alive {
			continue
		}
		b := t.bucketFor(e.hash)
		e.next = t.buckets[b]
		t.buckets[b] = int32(i)
	}
}

func (t *Table) find(key value.Value) (int32, bool) {
	h := hashValue(key)
	b := t.bucketFor(h)
	for idx := t.buckets[b]; idx >= 0; idx = t.entries[idx].next {
		e := &t.entries[idx]
		if e.alive && e.hash == h && value.SameValueZero(e.key, key) {
			return idx, true
		}
	}
	return -1, false
}

func (t *Table) insert(key, val value.Value) {
	if idx, ok := t.find(key); ok {
		t.entries[idx].val = val
		return
	}
	h := hashValue(key)
	b := t.bucketFor(h)
	idx := int32(len(t.entries))
	t.entries = append(t.entries, mapEntry{hash: h, key: key, val: val, next: t.buckets[b], alive: true})
	t.buckets[b] = idx
	t.order = append(t.order, idx)
	t.count++
	if t.count*4 > len(t.buckets)*3 {
		t.grow()
	}
}

func (t *Table) delete(key value.Value) bool {
	idx, ok := t.find(key)
	if !ok {
		return false
	}
	t.entries[idx].alive = false
	t.entries[idx].val = value.Undefined
	t.count--
	return true
}

func (t *Table) compactOrder() []int32 {
	live := t.order[:0:0]
	for _, idx := range t.order {
		if t.entries[idx].alive {
			live = append(live, idx)
		}
	}
	t.order = live
	return live
}

// hashValue hashes a Value consistently with value.SameValueZero: numeric
// tags hash by normalized bits, strings by content, symbols by atom id,
// objects by pointer identity.
func hashValue(v value.Value) uint64 {
	const offset = 14695981039346656037
	const prime = 1099511628211
	h := uint64(offset)
	mix := func(b byte) { h ^= uint64(b); h *= prime }
	mixU64 := func(u uint64) {
		for i := 0; i < 8; i++ {
			mix(byte(u >> (8 * i)))
		}
	}
	switch v.Tag() {
	case value.TagUndefined:
		mix(1)
	case value.TagNull:
		mix(2)
	case value.TagUninitialized:
		mix(3)
	case value.TagBool:
		if v.AsBool() {
			mix(5)
		} else {
			mix(4)
		}
	case value.TagInt32, value.TagFloat64:
		f := v.AsFloat64()
		if math.IsNaN(f) {
			mixU64(math.Float64bits(math.NaN()))
		} else if f == 0 {
			mixU64(0) // +0 and -0 hash identically, matching SameValueZero
		} else {
			mixU64(math.Float64bits(f))
		}
	case value.TagString:
		s := v.AsString().String()
		for i := 0; i < len(s); i++ {
			mix(s[i])
		}
	case value.TagSymbol:
		mixU64(uint64(v.AsSymbol()))
	case value.TagBigInt:
		if b := v.AsBigInt(); b != nil {
			bytes := b.Bytes32()
			for _, by := range bytes {
				mix(by)
			}
		}
	default:
		if obj := v.AsObject(); obj != nil {
			mixU64(uint64(reflect.ValueOf(obj).Pointer()))
		}
	}
	return h
}

// Map implements the Map class: SameValueZero-keyed, insertion-ordered.
type Map struct {
	t *Table
}

func NewMap() *Map { return &Map{t: newTable()} }

func (m *Map) GCKind() string { return "map" }

func (m *Map) Set(key, val value.Value) { m.t.insert(key, val) }

func (m *Map) Get(key value.Value) (value.Value, bool) {
	idx, ok := m.t.find(key)
	if !ok {
		return value.Undefined, false
	}
	return m.t.entries[idx].val, true
}

func (m *Map) Has(key value.Value) bool { _, ok := m.t.find(key); return ok }
func (m *Map) Delete(key value.Value) bool { return m.t.delete(key) }
func (m *Map) Size() int { return m.t.count }
func (m *Map) Clear() { *m.t = *newTable() }

// Entries returns (key, value) pairs in insertion order.
func (m *Map) Entries() [][2]value.Value {
	order := m.t.compactOrder()
	out := make([][2]value.Value, 0, len(order))
	for _, idx := range order {
		e := &m.t.entries[idx]
		out = append(out, [2]value.Value{e.key, e.val})
	}
	return out
}

// Set implements the Set class: SameValueZero-keyed, insertion-ordered,
// values-only (stored as both key and value in the shared Table).
type Set struct {
	t *Table
}

func NewSet() *Set { return &Set{t: newTable()} }

func (s *Set) GCKind() string { return "set" }

func (s *Set) Add(v value.Value)      { s.t.insert(v, v) }
func (s *Set) Has(v value.Value) bool { _, ok := s.t.find(v); return ok }
func (s *Set) Delete(v value.Value) bool { return s.t.delete(v) }
func (s *Set) Size() int { return s.t.count }
func (s *Set) Clear() { *s.t = *newTable() }

// Values returns the set's members in insertion order.
func (s *Set) Values() []value.Value {
	order := s.t.compactOrder()
	out := make([]value.Value, 0, len(order))
	for _, idx := range order {
		out = append(out, s.t.entries[idx].key)
	}
	return out
}

// WeakMap keys by object identity and clears its own entry the moment the
// key object is collected, via the target's GC weak-clear hook — it never
// itself keeps the key reachable (no Trace edge to the key), matching
// spec.md §4.6's weak-reference contract.
type WeakMap struct {
	entries map[*object.Object]value.Value
}

func NewWeakMap() *WeakMap { return &WeakMap{entries: make(map[*object.Object]value.Value)} }

func (w *WeakMap) GCKind() string { return "weakmap" }

// Set installs key -> val and registers a weak-clear hook on key so the
// entry self-removes when key is collected.
func (w *WeakMap) Set(key *object.Object, val value.Value) {
	if _, exists := w.entries[key]; !exists {
		key.AddWeakClear(func() { delete(w.entries, key) })
	}
	w.entries[key] = val
}

func (w *WeakMap) Get(key *object.Object) (value.Value, bool) {
	v, ok := w.entries[key]
	return v, ok
}

// Values returns every currently-stored value, for the GC tracer that
// walks a WeakMap object: values are strongly held even though keys are
// not (spec.md §4.6's weak-reference contract only weakens the key side).
func (w *WeakMap) Values() []value.Value {
	out := make([]value.Value, 0, len(w.entries))
	for _, v := range w.entries {
		out = append(out, v)
	}
	return out
}

func (w *WeakMap) Has(key *object.Object) bool { _, ok := w.entries[key]; return ok }
func (w *WeakMap) Delete(key *object.Object) bool {
	if _, ok := w.entries[key]; !ok {
		return false
	}
	delete(w.entries, key)
	return true
}

// WeakSet keys by object identity with the same self-clearing behavior.
type WeakSet struct {
	members map[*object.Object]bool
}

func NewWeakSet() *WeakSet { return &WeakSet{members: make(map[*object.Object]bool)} }

func (w *WeakSet) GCKind() string { return "weakset" }

func (w *WeakSet) Add(member *object.Object) {
	if !w.members[member] {
		member.AddWeakClear(func() { delete(w.members, member) })
	}
	w.members[member] = true
}

func (w *WeakSet) Has(member *object.Object) bool { return w.members[member] }
func (w *WeakSet) Delete(member *object.Object) bool {
	if !w.members[member] {
		return false
	}
	delete(w.members, member)
	return true
}
