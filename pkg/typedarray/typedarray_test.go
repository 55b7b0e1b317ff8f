package typedarray

import (
	"testing"

	"jsgo/pkg/gc"
	"jsgo/pkg/value"
)

func TestViewGetSetRoundTrip(t *testing.T) {
	heap := gc.New(nil)
	v := NewViewWithOwnBuffer(heap, Int32Kind, 4)
	v.Set(0, value.Int32(-7))
	v.Set(3, value.Int32(99))
	if got := v.Get(0); got.AsInt32() != -7 {
		t.Fatalf("expected element 0 == -7, got %v", got)
	}
	if got := v.Get(3); got.AsInt32() != 99 {
		t.Fatalf("expected element 3 == 99, got %v", got)
	}
	if got := v.Get(1); got.AsInt32() != 0 {
		t.Fatalf("expected untouched element 1 == 0, got %v", got)
	}
}

func TestUint8ClampedClampsOutOfRangeValues(t *testing.T) {
	heap := gc.New(nil)
	v := NewViewWithOwnBuffer(heap, Uint8Clamped, 2)
	v.Set(0, value.Number(-10))
	v.Set(1, value.Number(999))
	if got := v.Get(0); got.AsInt32() != 0 {
		t.Fatalf("expected -10 to clamp to 0, got %v", got)
	}
	if got := v.Get(1); got.AsInt32() != 255 {
		t.Fatalf("expected 999 to clamp to 255, got %v", got)
	}
}

func TestDetachZeroesEveryLiveView(t *testing.T) {
	heap := gc.New(nil)
	buf := NewArrayBuffer(heap, 16)
	v1 := NewView(heap, buf, Int32Kind, 0, 2)
	v2 := NewView(heap, buf, Int32Kind, 8, 2)
	v1.Set(0, value.Int32(5))

	buf.Detach()

	if !buf.IsDetached() {
		t.Fatal("expected buffer to report detached")
	}
	if v1.Length() != 0 || v2.Length() != 0 {
		t.Fatal("expected every live view's length to zero on detach")
	}
}

func TestSharedArrayBufferUsesAllocVTable(t *testing.T) {
	heap := gc.New(nil)
	var allocated, freed int
	vt := &AllocVTable{
		Alloc: func(size int) []byte { allocated += size; return make([]byte, size) },
		Dup:   func(data []byte) []byte { return append([]byte(nil), data...) },
		Free:  func(data []byte) { freed += len(data) },
	}
	buf := NewSharedArrayBuffer(heap, 32, vt)
	if !buf.IsShared() {
		t.Fatal("expected a SharedArrayBuffer to report IsShared")
	}
	if allocated != 32 {
		t.Fatalf("expected Alloc to be invoked for 32 bytes, got %d", allocated)
	}
	heap.DecRef(buf)
	if freed != 32 {
		t.Fatalf("expected Free to run on collection, got %d", freed)
	}
}

func TestDataViewGetSetUint32LittleEndian(t *testing.T) {
	heap := gc.New(nil)
	buf := NewArrayBuffer(heap, 8)
	dv := NewDataView(heap, buf, 0, 8)
	if !dv.SetUint32(0, 0x01020304, true) {
		t.Fatal("expected SetUint32 to succeed in bounds")
	}
	got, ok := dv.GetUint32(0, true)
	if !ok || got != 0x01020304 {
		t.Fatalf("expected round-tripped value 0x01020304, got %#x ok=%v", got, ok)
	}
}

func TestDataViewOutOfBoundsAccessFails(t *testing.T) {
	heap := gc.New(nil)
	buf := NewArrayBuffer(heap, 4)
	dv := NewDataView(heap, buf, 0, 4)
	if dv.SetUint32(2, 1, true) {
		t.Fatal("expected a write straddling the end of the view to fail")
	}
	if _, ok := dv.GetFloat64(0, true); ok {
		t.Fatal("expected an 8-byte read from a 4-byte view to fail")
	}
}
