// Package frame implements call frames, upvalues (VarRef) and closures
// (C8). A VarRef starts "open", pointing at a live slot inside a Frame's
// variable buffer; when the owning frame unwinds while a closure still
// references the slot, the VarRef is "closed" and thereafter owns its own
// copy of the value. The open→closed transition is monotonic.
package frame

import "jsgo/pkg/value"

// Frame is one call-stack activation record.
type Frame struct {
	Caller     *Frame
	FuncName   string
	IP         int
	Strict     bool
	Args       []value.Value
	Vars       []value.Value
	SP         int
	liveRefs   []*VarRef // VarRefs whose slot lies in this frame, still open
}

// NewFrame allocates a frame with nVars local variable slots.
func NewFrame(caller *Frame, funcName string, nVars int, strict bool) *Frame {
	return &Frame{
		Caller:   caller,
		FuncName: funcName,
		Strict:   strict,
		Vars:     make([]value.Value, nVars),
	}
}

// Depth reports the number of activations on the chain from this one down
// to the outermost, counting this one (for stack-limit checks and
// backtraces).
func (f *Frame) Depth() int {
	n := 0
	for c := f; c != nil; c = c.Caller {
		n++
	}
	return n
}

// VarRefState distinguishes the two VarRef lifecycle phases.
type VarRefState uint8

const (
	VarRefOpen VarRefState = iota
	VarRefClosed
)

// VarRef is the heap cell backing closures and module bindings.
type VarRef struct {
	state  VarRefState
	frame  *Frame
	slot   int
	closed value.Value
}

// NewOpenVarRef creates a VarRef pointing into a live frame slot and
// registers it on that frame's live-ref list so the frame can close it on
// unwind.
func NewOpenVarRef(f *Frame, slot int) *VarRef {
	r := &VarRef{state: VarRefOpen, frame: f, slot: slot}
	f.liveRefs = append(f.liveRefs, r)
	return r
}

// NewClosedVarRef creates a VarRef that owns its value outright (used for
// module-level bindings, which never live in a transient call frame).
func NewClosedVarRef(v value.Value) *VarRef {
	return &VarRef{state: VarRefClosed, closed: v}
}

// Load reads the current value, whether open or closed.
func (r *VarRef) Load() value.Value {
	if r.state == VarRefOpen {
		return r.frame.Vars[r.slot]
	}
	return r.closed
}

// Store writes through an open VarRef, or into the owned value once closed.
func (r *VarRef) Store(v value.Value) {
	if r.state == VarRefOpen {
		r.frame.Vars[r.slot] = v
		return
	}
	r.closed = v
}

// IsOpen reports whether the VarRef still points into a live frame.
func (r *VarRef) IsOpen() bool { return r.state == VarRefOpen }

// close transitions one VarRef to the closed state, snapshotting its
// current value out of the frame. It is idempotent.
func (r *VarRef) close() {
	if r.state != VarRefOpen {
		return
	}
	r.closed = r.frame.Vars[r.slot]
	r.state = VarRefClosed
	r.frame = nil
}

// Unwind closes every VarRef still referencing this frame's slots. It must
// be called exactly once, when the frame is popped.
func (f *Frame) Unwind() {
	for _, r := range f.liveRefs {
		r.close()
	}
	f.liveRefs = nil
}

// Closure is a snapshot of the VarRefs a function literal captures, taken
// at the point the closure value is constructed.
type Closure struct {
	Captures []*VarRef
}

// NewClosure snapshots pointers to the given VarRefs (not their values —
// the VarRef indirection is what makes set! inside one closure visible to
// others sharing the same binding).
func NewClosure(captures []*VarRef) *Closure {
	cp := make([]*VarRef, len(captures))
	copy(cp, captures)
	return &Closure{Captures: cp}
}

// CaptureBacktrace renders a human-readable stack trace starting at top.
// When skipTop is true the first frame (conventionally the Error
// constructor itself) is omitted, per spec.md §4.7.
func CaptureBacktrace(top *Frame, skipTop bool) []string {
	var lines []string
	f := top
	if skipTop && f != nil {
		f = f.Caller
	}
	for ; f != nil; f = f.Caller {
		lines = append(lines, f.FuncName)
	}
	return lines
}
