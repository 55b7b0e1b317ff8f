// Package shape implements the hidden-class system (C4): an ordered
// sequence of (atom, flags) property descriptors shared, via structural
// interning, across every object that went through the same sequence of
// property additions from the same prototype.
package shape

import "jsgo/pkg/atom"

// Flags are the per-property attribute bits plus the engine's internal
// marks (length/varref/getset/autoinit) from spec.md §3.
type Flags uint16

const (
	Writable Flags = 1 << iota
	Enumerable
	Configurable
	IsLength  // set only on Array's "length" property
	IsVarRef  // property is a VarRef (module binding / closure upvalue)
	IsGetSet  // property is a {getter,setter} pair
	IsAutoInit
)

// PropEntry is one (atom, flags) slot in a shape's property sequence. A
// deleted entry has Atom == atom.Null and still occupies an index so the
// companion property-values array stays aligned.
type PropEntry struct {
	Atom  atom.Atom
	Flags Flags
}

type transitionKey struct {
	atom  atom.Atom
	flags Flags
}

// Proto is the opaque identity of an object's prototype (nil means the
// null prototype). Shape never dereferences it — only compares identity —
// so pkg/shape does not need to import pkg/object.
type Proto interface{}

// Shape is one hidden class.
type Shape struct {
	props        []PropEntry
	index        map[atom.Atom]int // atom -> index into props (last-wins; deletions punch holes)
	proto        Proto
	deletedCount int
	refcount     int32
	isHashed     bool
	parent       *Shape
	children     map[transitionKey]*Shape
}

// NewRoot creates (or would create, before any interning) a shape with no
// properties for the given prototype. Roots are interned by the caller's
// RootCache so repeated "new object with this proto" calls share one.
func NewRoot(proto Proto) *Shape {
	return &Shape{
		proto:    proto,
		index:    make(map[atom.Atom]int),
		children: make(map[transitionKey]*Shape),
		refcount: 1,
		isHashed: true,
	}
}

// RootCache interns root shapes by prototype identity — the entry point
// into the runtime-wide shape hash that spec.md §3 describes.
type RootCache struct {
	roots map[Proto]*Shape
}

func NewRootCache() *RootCache { return &RootCache{roots: make(map[Proto]*Shape)} }

// Root returns the shared empty-shape for proto, creating it on first use.
func (rc *RootCache) Root(proto Proto) *Shape {
	if s, ok := rc.roots[proto]; ok {
		s.refcount++
		return s
	}
	s := NewRoot(proto)
	rc.roots[proto] = s
	return s
}

// Proto returns the shape's prototype identity.
func (s *Shape) Proto() Proto { return s.proto }

// PropCount returns the number of valid (non-deleted) properties. This must
// always equal len(props) - deletedCount, the §8 invariant.
func (s *Shape) PropCount() int {
	n := 0
	for _, p := range s.props {
		if p.Atom != atom.Null {
			n++
		}
	}
	return n
}

// Len returns the slot count of the companion property-values array
// (including holes left by deletion), i.e. len(props).
func (s *Shape) Len() int { return len(s.props) }

// DeletedCount exposes the tombstone count, for the §8 invariant check.
func (s *Shape) DeletedCount() int { return s.deletedCount }

// IsHashed reports whether the shape is currently interned in a transition
// table (shared) or has been unlinked for private, in-place mutation.
func (s *Shape) IsHashed() bool { return s.isHashed }

// RefCount exposes the shape's reference count.
func (s *Shape) RefCount() int32 { return s.refcount }

func (s *Shape) Dup() *Shape {
	s.refcount++
	return s
}

func (s *Shape) Release() {
	s.refcount--
}

// Find looks up a in the shape's own property sequence (not the prototype
// chain — callers walk that themselves). Returns the slot index and ok.
func (s *Shape) Find(a atom.Atom) (int, bool) {
	idx, ok := s.index[a]
	if !ok {
		return 0, false
	}
	if s.props[idx].Atom != a {
		return 0, false // stale index after a compaction that wasn't re-synced
	}
	return idx, true
}

// Entry returns the PropEntry at a valid slot index.
func (s *Shape) Entry(i int) PropEntry { return s.props[i] }

// Entries returns the live (non-deleted) entries in declaration order.
func (s *Shape) Entries() []PropEntry {
	out := make([]PropEntry, 0, s.PropCount())
	for _, p := range s.props {
		if p.Atom != atom.Null {
			out = append(out, p)
		}
	}
	return out
}

// Transition returns (creating if necessary) the child shape that adds
// property (a, flags) to s. Equal (parent, atom, flags) triples always
// yield the same *Shape instance (structural interning), which is what
// makes two objects built by the same sequence of property additions from
// the same prototype share a shape (spec.md §8 scenario 2).
func (s *Shape) Transition(a atom.Atom, flags Flags) *Shape {
	key := transitionKey{a, flags}
	if child, ok := s.children[key]; ok {
		child.refcount++
		return child
	}
	child := &Shape{
		props:    append(append([]PropEntry{}, s.props...), PropEntry{Atom: a, Flags: flags}),
		index:    cloneIndex(s.index),
		proto:    s.proto,
		parent:   s,
		children: make(map[transitionKey]*Shape),
		refcount: 1,
		isHashed: true,
	}
	child.index[a] = len(child.props) - 1
	s.children[key] = child
	return child
}

func cloneIndex(m map[atom.Atom]int) map[atom.Atom]int {
	out := make(map[atom.Atom]int, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Clone makes an independent, unhashed copy of s (used by PrepareUpdate
// when a shared shape must be privately mutated).
func (s *Shape) Clone() *Shape {
	return &Shape{
		props:        append([]PropEntry{}, s.props...),
		index:        cloneIndex(s.index),
		proto:        s.proto,
		deletedCount: s.deletedCount,
		refcount:     1,
		isHashed:     false,
		parent:       s.parent,
		children:     make(map[transitionKey]*Shape),
	}
}

// unlinkFromParent removes s from its parent's transition cache, the
// "unhash" half of PrepareUpdate's refcount==1 branch.
func (s *Shape) unlinkFromParent() {
	if s.parent == nil {
		return
	}
	for k, v := range s.parent.children {
		if v == s {
			delete(s.parent.children, k)
			return
		}
	}
}

// PrepareUpdate implements spec.md §4.3's prepare_update: before a caller
// mutates an object's shape in place (as opposed to transitioning to a new
// child shape), it must call this to ensure the mutation is safe.
//
//   - shared (isHashed && refcount>1): clone into a private unhashed copy.
//   - solely owned (isHashed && refcount==1): unlink from the transition
//     table and clear isHashed, but keep the same Shape value (no index
//     rebase needed by the caller).
//   - already unhashed: no-op.
//
// It returns the shape the caller should use from now on (== s unless a
// clone happened).
func PrepareUpdate(s *Shape) *Shape {
	if !s.isHashed {
		return s
	}
	if s.refcount > 1 {
		s.refcount--
		return s.Clone()
	}
	s.unlinkFromParent()
	s.isHashed = false
	return s
}

// AppendInPlace adds a property directly to an already-unhashed,
// solely-owned shape (the path PrepareUpdate exists to make safe). It is
// the in-place counterpart to Transition.
func (s *Shape) AppendInPlace(a atom.Atom, flags Flags) int {
	s.props = append(s.props, PropEntry{Atom: a, Flags: flags})
	idx := len(s.props) - 1
	s.index[a] = idx
	return idx
}

// DeleteInPlace tombstones the property at slot i on an unhashed,
// solely-owned shape, incrementing deletedCount. Returns true if the
// shape should now be compacted (deletedCount >= 8 and >= half the live
// count), per spec.md §4.3.
func (s *Shape) DeleteInPlace(i int) (shouldCompact bool) {
	a := s.props[i].Atom
	if a == atom.Null {
		return false
	}
	s.props[i] = PropEntry{}
	delete(s.index, a)
	s.deletedCount++
	live := s.PropCount()
	return s.deletedCount >= 8 && s.deletedCount*2 >= live
}

// Compact removes tombstones from an unhashed shape, returning a slice
// mapping old slot index -> new slot index (-1 if the slot was deleted) so
// the caller can rebase its parallel property-values array.
func Compact(s *Shape) (remap []int) {
	remap = make([]int, len(s.props))
	newProps := make([]PropEntry, 0, s.PropCount())
	for i, p := range s.props {
		if p.Atom == atom.Null {
			remap[i] = -1
			continue
		}
		remap[i] = len(newProps)
		newProps = append(newProps, p)
	}
	s.props = newProps
	s.deletedCount = 0
	s.index = make(map[atom.Atom]int, len(newProps))
	for i, p := range newProps {
		s.index[p.Atom] = i
	}
	return remap
}

// SetFlags updates the flags of an existing property on an unhashed,
// solely-owned shape (used by define_property's attribute-transition
// rules).
func (s *Shape) SetFlags(i int, flags Flags) {
	s.props[i].Flags = flags
}
