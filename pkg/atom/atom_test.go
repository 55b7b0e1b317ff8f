package atom

import "testing"

func TestInternIsDeterministic(t *testing.T) {
	tbl := NewTable()
	a := tbl.Intern("hello", KindString)
	b := tbl.Intern("hello", KindString)
	if a != b {
		t.Fatalf("intern(s) != intern(s): %v != %v", a, b)
	}
	if tbl.RefCount(a) != 2 {
		t.Fatalf("expected refcount 2, got %d", tbl.RefCount(a))
	}
}

func TestReleaseDropsRefcount(t *testing.T) {
	tbl := NewTable()
	a := tbl.Intern("world", KindString)
	tbl.Resurrect(a)
	if got := tbl.RefCount(a); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	tbl.Release(a)
	if got := tbl.RefCount(a); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	tbl.Release(a)
	if got := tbl.RefCount(a); got != 0 {
		t.Fatalf("expected 0 after final release, got %d", got)
	}
}

func TestFreelistReuse(t *testing.T) {
	tbl := NewTable()
	a := tbl.Intern("temp", KindString)
	tbl.Release(a)
	b := tbl.Intern("temp2", KindString)
	if int(b) != int(a) {
		t.Fatalf("expected freelist slot reuse, got new slot %d vs freed %d", b, a)
	}
}

func TestArrayIndexAtomsNeverTouchTable(t *testing.T) {
	tbl := NewTable()
	a := FromU32(42)
	n, ok := a.IsArrayIndex()
	if !ok || n != 42 {
		t.Fatalf("expected array index 42, got %d ok=%v", n, ok)
	}
	if tbl.ToString(a) != "42" {
		t.Fatalf("expected \"42\", got %q", tbl.ToString(a))
	}
	tbl.Release(a) // must be a no-op
}

func TestSymbolForRegistry(t *testing.T) {
	tbl := NewTable()
	a := tbl.SymbolFor("iterator")
	b := tbl.SymbolFor("iterator")
	if a != b {
		t.Fatalf("Symbol.for should dedupe: %v != %v", a, b)
	}
	key, ok := tbl.KeyFor(a)
	if !ok || key != "iterator" {
		t.Fatalf("KeyFor mismatch: %q ok=%v", key, ok)
	}
}

func TestUniqueSymbolsNeverCollide(t *testing.T) {
	tbl := NewTable()
	a := tbl.InternSymbol("x")
	b := tbl.InternSymbol("x")
	if a == b {
		t.Fatalf("unique symbols with the same description must differ")
	}
}

func TestCompareOrdering(t *testing.T) {
	tbl := NewTable()
	idx0 := FromU32(0)
	idx1 := FromU32(1)
	sa := tbl.Intern("a", KindString)
	sb := tbl.Intern("b", KindString)
	if tbl.Compare(idx0, idx1) >= 0 {
		t.Fatalf("array indices must sort numerically")
	}
	if tbl.Compare(idx1, sa) >= 0 {
		t.Fatalf("array indices must sort before string atoms")
	}
	if tbl.Compare(sa, sb) >= 0 {
		t.Fatalf("string atoms must sort lexicographically")
	}
}

func TestGrowthPreservesLookups(t *testing.T) {
	tbl := NewTable()
	atoms := make([]Atom, 0, 64)
	for i := 0; i < 64; i++ {
		atoms = append(atoms, tbl.Intern(string(rune('a'+i%26))+string(rune(i)), KindString))
	}
	for i, a := range atoms {
		want := string(rune('a'+i%26)) + string(rune(i))
		if got := tbl.ToString(a); got != want {
			t.Fatalf("after growth, atom %d resolved to %q, want %q", i, got, want)
		}
	}
}
