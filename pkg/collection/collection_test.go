package collection

import (
	"math"
	"testing"

	"jsgo/pkg/class"
	"jsgo/pkg/gc"
	"jsgo/pkg/object"
	"jsgo/pkg/shape"
	"jsgo/pkg/value"
)

func TestMapSameValueZeroKeying(t *testing.T) {
	m := NewMap()
	m.Set(value.Number(0), value.Bool(true))
	if !m.Has(value.Number(0)) {
		t.Fatal("expected +0 to be found")
	}
	// -0 and +0 must collide under SameValueZero.
	if !m.Has(value.Number(negativeZero())) {
		t.Fatal("expected -0 to collide with +0 under SameValueZero keying")
	}
	m.Set(value.Bool(false), value.Int32(1))
	if m.Size() != 2 {
		t.Fatalf("expected 2 distinct entries, got %d", m.Size())
	}
}

func negativeZero() float64 {
	return math.Copysign(0, -1)
}

func TestMapPreservesInsertionOrderAcrossDelete(t *testing.T) {
	m := NewMap()
	for i := 0; i < 5; i++ {
		m.Set(value.Int32(int32(i)), value.Int32(int32(i*10)))
	}
	m.Delete(value.Int32(2))
	entries := m.Entries()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries after delete, got %d", len(entries))
	}
	want := []int32{0, 1, 3, 4}
	for i, e := range entries {
		if e[0].AsInt32() != want[i] {
			t.Fatalf("entry %d: expected key %d, got %d", i, want[i], e[0].AsInt32())
		}
	}
}

func TestSetAddIsIdempotent(t *testing.T) {
	s := NewSet()
	s.Add(value.Int32(1))
	s.Add(value.Int32(1))
	s.Add(value.Int32(2))
	if s.Size() != 2 {
		t.Fatalf("expected 2 members, got %d", s.Size())
	}
}

func TestWeakMapEntrySelfClearsOnKeyCollection(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	key := object.New(heap, class.Object, rc.Root(nil), nil)

	w := NewWeakMap()
	w.Set(key, value.Int32(42))
	if !w.Has(key) {
		t.Fatal("expected key to be present immediately after Set")
	}

	heap.DecRef(key)
	if w.Has(key) {
		t.Fatal("expected the entry to self-clear once its key was collected")
	}
}

func TestWeakSetMembershipSurvivesUnrelatedCollections(t *testing.T) {
	heap := gc.New(nil)
	rc := shape.NewRootCache()
	a := object.New(heap, class.Object, rc.Root(nil), nil)
	b := object.New(heap, class.Object, rc.Root(nil), nil)

	w := NewWeakSet()
	w.Add(a)
	w.Add(b)

	heap.DecRef(b)
	if !w.Has(a) {
		t.Fatal("expected a to remain a member after b was collected")
	}
	if w.Has(b) {
		t.Fatal("expected b's membership to have self-cleared")
	}
}
