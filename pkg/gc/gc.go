// Package gc implements the refcounted heap with a mark-sweep cycle
// collector layered on top (C6). Every heap value that participates in
// cycle collection embeds a Header; the Heap keeps two intrusive doubly
// linked lists — live (refcount >= 1) and zero-ref (pending finalization)
// — that partition every allocation, per spec.md §3's invariant.
package gc

import (
	log "github.com/inconshreveable/log15"
)

// Kind tags what a Header belongs to, mirroring spec.md §3's GC object
// header kinds.
type Kind int

const (
	KindObject Kind = iota
	KindFunctionBytecode
	KindShape
	KindVarRef
	KindAsyncFunctionRecord
	KindContext
)

// Header is the intrusive GC header every Traceable embeds.
type Header struct {
	kind     Kind
	refcount int32
	mark     int32 // transient, used only during cycle detection
	dirty    bool
	external bool // transient "reachable" flag used during the scan pass
	prev     *Header
	next     *Header
	onClear  []func() // weak-reference clear callbacks (C15), run before finalizers
	owner    Traceable
}

func NewHeader(kind Kind, owner Traceable) *Header {
	return &Header{kind: kind, refcount: 1, owner: owner}
}

func (h *Header) Kind() Kind     { return h.kind }
func (h *Header) RefCount() int32 { return h.refcount }
func (h *Header) Dirty() bool    { return h.dirty }

// OnClear registers a callback invoked when the owner is collected, before
// its finalizer runs — the hook WeakMap/WeakSet/weak-ref use.
func (h *Header) OnClear(fn func()) {
	h.onClear = append(h.onClear, fn)
}

// Traceable is implemented by every GC-tracked heap value.
type Traceable interface {
	GCHeader() *Header
	// Trace calls visit once for every outgoing strong pointer to another
	// Traceable. It must not call visit for weak references.
	Trace(visit func(Traceable))
	// Finalize releases non-GC-tracked resources. It must not resurrect
	// the object (store it somewhere newly reachable) and must tolerate
	// partial failure gracefully, per spec.md §4.6.
	Finalize()
}

// Phase gates re-entrant collection, per spec.md §4.6's "stack safety"
// rule: collection may not run during a finalizer call or a shape-hash
// mutation.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseDecRef
	PhaseRemoveCycles
)

const initialThreshold = 256 * 1024

// Heap owns the live/zero-ref lists and the cycle-collection threshold for
// one Runtime. There is exactly one Heap per Runtime — never a package
// global (spec.md §9).
type Heap struct {
	liveHead *Header
	zeroHead *Header
	count    int
	allocatedSinceGC int
	threshold        int
	phase            Phase
	log              log.Logger
	debugUAF         bool
	generations      map[*Header]uint64
	nextGeneration   uint64
}

// New creates an empty heap. logger may be nil (a discard logger is used).
func New(logger log.Logger) *Heap {
	if logger == nil {
		logger = log.New()
		logger.SetHandler(log.DiscardHandler())
	}
	return &Heap{threshold: initialThreshold, log: logger, generations: make(map[*Header]uint64)}
}

// EnableUseAfterFreeDetection turns on the optional debug-build safety net
// described in SPEC_FULL.md's C6 supplement: Register records a generation
// for each header, freeing an object deletes its entry, and CheckLive
// reports whether an object is still registered instead of letting a
// stray pointer silently read a freed Go object. Objects registered
// before detection was enabled have no entry and report false.
func (h *Heap) EnableUseAfterFreeDetection() { h.debugUAF = true }

// Register links a freshly allocated object (refcount already 1) into the
// live list.
func (h *Heap) Register(t Traceable) {
	hdr := t.GCHeader()
	h.linkLive(hdr)
	h.count++
	if h.debugUAF {
		h.nextGeneration++
		h.generations[hdr] = h.nextGeneration
	}
	h.allocatedSinceGC++
	h.maybeCollect()
}

func (h *Heap) linkLive(hdr *Header) {
	hdr.prev = nil
	hdr.next = h.liveHead
	if h.liveHead != nil {
		h.liveHead.prev = hdr
	}
	h.liveHead = hdr
}

func (h *Heap) unlink(hdr *Header) {
	if hdr.prev != nil {
		hdr.prev.next = hdr.next
	} else if h.liveHead == hdr {
		h.liveHead = hdr.next
	} else if h.zeroHead == hdr {
		h.zeroHead = hdr.next
	}
	if hdr.next != nil {
		hdr.next.prev = hdr.prev
	}
	hdr.prev, hdr.next = nil, nil
}

// IncRef bumps an object's refcount ("dup").
func (h *Heap) IncRef(t Traceable) {
	t.GCHeader().refcount++
}

// DecRef drops a reference. At refcount 0 the object is unlinked from the
// live list, pushed onto the head of the zero-ref list, and drained
// immediately: its
// mark function cascades the decrement to children, then its finalizer
// runs, then it is fully freed.
func (h *Heap) DecRef(t Traceable) {
	hdr := t.GCHeader()
	hdr.refcount--
	if hdr.refcount > 0 {
		return
	}
	h.unlink(hdr)
	hdr.next = h.zeroHead
	h.zeroHead = hdr
	h.drainZeroRef()
}

func (h *Heap) drainZeroRef() {
	for h.zeroHead != nil {
		hdr := h.zeroHead
		h.zeroHead = hdr.next
		hdr.next = nil
		h.finalizeOne(hdr)
		h.count--
	}
}

func (h *Heap) finalizeOne(hdr *Header) {
	owner := hdr.owner
	for _, cb := range hdr.onClear {
		cb()
	}
	hdr.onClear = nil
	owner.Trace(func(child Traceable) {
		h.DecRef(child)
	})
	owner.Finalize()
	if h.debugUAF {
		delete(h.generations, hdr)
	}
}

// CheckLive reports whether t is still registered (debug-UAF mode only;
// always true when detection is disabled).
func (h *Heap) CheckLive(t Traceable) bool {
	if !h.debugUAF {
		return true
	}
	_, ok := h.generations[t.GCHeader()]
	return ok
}

func (h *Heap) maybeCollect() {
	if h.phase != PhaseNone {
		return
	}
	if h.allocatedSinceGC < h.threshold {
		return
	}
	h.CollectCycles()
}

// CollectCycles runs the three-phase DecRef/Scan/Free algorithm from
// spec.md §4.6 over every object currently on the live list.
func (h *Heap) CollectCycles() {
	if h.phase != PhaseNone {
		return // re-entrant collection is refused (stack safety)
	}
	h.phase = PhaseDecRef
	defer func() { h.phase = PhaseNone }()

	live := h.snapshotLive()
	for _, hdr := range live {
		hdr.mark = 0
	}

	// Phase 1: DecRef pass — compute internal refcount via mark.
	byHeader := make(map[*Header]Traceable, len(live))
	for _, hdr := range live {
		byHeader[hdr] = hdr.owner
	}
	for _, hdr := range live {
		hdr.owner.Trace(func(child Traceable) {
			chdr := child.GCHeader()
			if _, tracked := byHeader[chdr]; tracked {
				chdr.mark--
			}
		})
	}

	h.phase = PhaseRemoveCycles

	// Phase 2: Scan pass — objects with refcount+mark > 0 have external
	// references; mark them (and transitively their descendants) external.
	external := make(map[*Header]bool, len(live))
	var queue []*Header
	for _, hdr := range live {
		if hdr.refcount+hdr.mark > 0 {
			queue = append(queue, hdr)
		}
	}
	for len(queue) > 0 {
		hdr := queue[0]
		queue = queue[1:]
		if external[hdr] {
			continue
		}
		external[hdr] = true
		hdr.owner.Trace(func(child Traceable) {
			chdr := child.GCHeader()
			if _, tracked := byHeader[chdr]; !tracked {
				return
			}
			chdr.mark++
			if !external[chdr] {
				queue = append(queue, chdr)
			}
		})
	}

	// Phase 3: Free pass — whatever is left is an unreachable cycle.
	var garbage []*Header
	for _, hdr := range live {
		if !external[hdr] {
			garbage = append(garbage, hdr)
		}
	}
	if len(garbage) == 0 {
		h.growThreshold()
		return
	}
	h.log.Info("cycle collection reclaiming unreachable SCC", "objects", len(garbage))

	garbageSet := make(map[*Header]bool, len(garbage))
	for _, hdr := range garbage {
		garbageSet[hdr] = true
	}

	// Clear weak references to every member before any finalizer runs.
	for _, hdr := range garbage {
		for _, cb := range hdr.onClear {
			cb()
		}
		hdr.onClear = nil
	}
	// Release each member's outgoing edge to anything that survives the
	// cycle, mirroring finalizeOne's owner.Trace/DecRef pass — otherwise a
	// surviving object referenced only by a freed cycle member keeps the
	// extra refcount this cycle's internal edge accounting never gave
	// back, and it can never reach zero. Edges back into the cycle itself
	// need no action: the whole SCC is being discarded as a unit.
	for _, hdr := range garbage {
		hdr.owner.Trace(func(child Traceable) {
			chdr := child.GCHeader()
			if garbageSet[chdr] {
				return
			}
			h.DecRef(child)
		})
	}
	// Finalize every member (finalizers run before any member is actually
	// unlinked, so a finalizer observing a peer via Trace sees it intact).
	for _, hdr := range garbage {
		hdr.owner.Finalize()
	}
	for _, hdr := range garbage {
		h.unlink(hdr)
		h.count--
		if h.debugUAF {
			delete(h.generations, hdr)
		}
	}
	h.growThreshold()
}

func (h *Heap) growThreshold() {
	h.allocatedSinceGC = 0
	h.threshold = h.threshold + h.threshold/2
}

func (h *Heap) snapshotLive() []*Header {
	out := make([]*Header, 0, h.count)
	for hdr := h.liveHead; hdr != nil; hdr = hdr.next {
		out = append(out, hdr)
	}
	return out
}

// LiveCount returns the number of objects on the live list.
func (h *Heap) LiveCount() int { return h.count }

// Threshold exposes the current cycle-collection trigger, for tests.
func (h *Heap) Threshold() int { return h.threshold }

// SetThreshold overrides the cycle-collection trigger (spec.md §6's
// set_gc_threshold host call).
func (h *Heap) SetThreshold(n int) { h.threshold = n }
