// Package promise implements the job queue and Promise state machine
// (C11), plus the suspended-frame state machines async functions and
// generators share (§4.11).
package promise

import (
	"jsgo/pkg/errchan"
	"jsgo/pkg/frame"
	"jsgo/pkg/value"
)

// Job is one FIFO entry: a target context (opaque to this package) and a
// thunk to run. Arguments, if any, are captured in the closure by the
// caller, matching spec.md §4.10's "duplicated argument list, freed on
// completion whether the job succeeded or threw" — Go's GC/closures make
// the explicit free unnecessary, but the run-once-regardless-of-outcome
// contract is preserved by always invoking Run exactly once per dequeue.
type Job struct {
	Run func()
}

// Queue is the host-drained FIFO. One per Runtime.
type Queue struct {
	jobs []Job
}

func NewQueue() *Queue { return &Queue{} }

// Enqueue appends a job.
func (q *Queue) Enqueue(run func()) {
	q.jobs = append(q.jobs, Job{Run: run})
}

// ExecutePending runs exactly one queued job, per spec.md §4.10's "the
// host drains one job per execute_pending_job() call; the core never
// spins." Returns false if the queue was empty.
func (q *Queue) ExecutePending() bool {
	if len(q.jobs) == 0 {
		return false
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	j.Run()
	return true
}

// Pending reports whether any job remains queued.
func (q *Queue) Pending() bool { return len(q.jobs) > 0 }

// State is a Promise's lifecycle state.
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

// Handler is a reaction callback. It stands in for a compiled function
// value — pkg/promise has no interpreter to call one, so pkg/runtime
// adapts an actual callable Value into a Handler at the call site.
type Handler func(v value.Value) value.Value

// Thenable abstracts "has a callable .then" without requiring pkg/promise
// to import pkg/object; pkg/runtime supplies the concrete lookup.
type Thenable interface {
	// Then registers resolve/reject closures with the thenable, the way
	// `thenable.then(resolve, reject)` would — implementations call the
	// interpreter to invoke the actual user .then method.
	Then(resolve, reject func(value.Value))
}

// Record is one Promise's internal state — the HeapObject payload a
// pkg/object.Object of class.Promise stores in its Extra field.
type Record struct {
	queue           *Queue
	errs            *errchan.Channel
	state           State
	result          value.Value
	reactions       []reaction
	alreadyResolved bool
	isHandled       bool
	unhandledTracker func(r *Record)
}

type reaction struct {
	onFulfilled, onRejected Handler
	target                  *Record
}

func (r *Record) GCKind() string { return "promise" }

// NewPending creates a fresh PENDING promise on queue, using errs for any
// internally raised TypeError (self-resolution).
func NewPending(queue *Queue, errs *errchan.Channel) *Record {
	return &Record{queue: queue, errs: errs}
}

func (r *Record) State() State       { return r.state }
func (r *Record) Result() value.Value { return r.result }

// OnUnhandledRejection registers the host rejection tracker invoked when a
// REJECTED promise is collected (or, simplified here, whenever Reject
// completes) with no reaction ever attached.
func (r *Record) OnUnhandledRejection(fn func(r *Record)) {
	r.unhandledTracker = fn
}

// Resolve implements the resolve closure. isSelf must be true when v is
// this same promise (checked by the caller, which has the identity
// comparison pkg/object provides); self-resolution throws TypeError.
// asThenable, if non-nil, means v is an object with a callable .then.
func (r *Record) Resolve(v value.Value, isSelf bool, asThenable Thenable, top *frame.Frame) {
	if r.alreadyResolved {
		return
	}
	r.alreadyResolved = true
	if isSelf {
		r.errs.NewTypedError(top, true, errchan.KindType, "chaining cycle detected for promise")
		r.rejectResolved(r.errs.GetException())
		return
	}
	if asThenable != nil {
		// ResolveThenableJob: still PENDING until the thenable's .then
		// calls back one of resolve/reject.
		r.queue.Enqueue(func() {
			asThenable.Then(
				func(v2 value.Value) { r.alreadyResolved = false; r.Resolve(v2, false, nil, top) },
				func(reason value.Value) { r.alreadyResolved = false; r.rejectResolved(reason) },
			)
		})
		return
	}
	r.fulfill(v)
}

// Reject implements the reject closure.
func (r *Record) Reject(reason value.Value) {
	if r.alreadyResolved {
		return
	}
	r.alreadyResolved = true
	r.rejectResolved(reason)
}

func (r *Record) fulfill(v value.Value) {
	r.state = Fulfilled
	r.result = v
	r.drain()
}

func (r *Record) rejectResolved(reason value.Value) {
	r.state = Rejected
	r.result = reason
	r.drain()
	if len(r.reactions) == 0 && r.unhandledTracker != nil && !r.isHandled {
		r.unhandledTracker(r)
	}
}

// drain enqueues one PromiseReactionJob per queued reaction, FIFO, and
// clears the reaction list (further Then calls after settling dispatch
// immediately instead of queuing here).
func (r *Record) drain() {
	reactions := r.reactions
	r.reactions = nil
	for _, rx := range reactions {
		rx := rx
		r.queue.Enqueue(func() { r.runReaction(rx) })
	}
}

func (r *Record) runReaction(rx reaction) {
	var handler Handler
	if r.state == Fulfilled {
		handler = rx.onFulfilled
	} else {
		handler = rx.onRejected
	}
	if handler == nil {
		// Identity/thrower passthrough per spec.md §4.10's then/catch.
		if r.state == Fulfilled {
			rx.target.Resolve(r.result, false, nil, nil)
		} else {
			rx.target.Reject(r.result)
		}
		return
	}
	result := handler(r.result)
	if result.IsException() {
		rx.target.Reject(r.errs.GetException())
		return
	}
	rx.target.Resolve(result, result.AsObject() != nil && sameRecord(result, rx.target), nil, nil)
}

func sameRecord(v value.Value, r *Record) bool {
	h, ok := v.AsObject().(*Record)
	return ok && h == r
}

// Then registers onFulfilled/onRejected and returns the derived promise,
// mirroring Promise.prototype.then. If r is already settled, the reaction
// is enqueued immediately instead of appended to the (already-drained)
// list.
func (r *Record) Then(onFulfilled, onRejected Handler) *Record {
	r.isHandled = true
	target := NewPending(r.queue, r.errs)
	rx := reaction{onFulfilled: onFulfilled, onRejected: onRejected, target: target}
	if r.state == Pending {
		r.reactions = append(r.reactions, rx)
		return target
	}
	r.queue.Enqueue(func() { r.runReaction(rx) })
	return target
}

// --- aggregate combinators ----------------------------------------------

// ResolveElement mirrors C.resolve(element) for Promise.all/allSettled/
// any/race: it wraps an already-settled value or an existing Record.
func ResolveElement(queue *Queue, errs *errchan.Channel, v value.Value) *Record {
	if r, ok := v.AsObject().(*Record); ok {
		return r
	}
	p := NewPending(queue, errs)
	p.fulfill(v)
	return p
}

// All implements Promise.all: resolves with an array of results once every
// input settles fulfilled, or rejects with the first rejection.
func All(queue *Queue, errs *errchan.Channel, elements []*Record) *Record {
	out := NewPending(queue, errs)
	if len(elements) == 0 {
		out.fulfill(value.Undefined) // caller wraps into an empty Array
		return out
	}
	results := make([]value.Value, len(elements))
	remaining := len(elements)
	for i, el := range elements {
		i := i
		el.Then(
			func(v value.Value) value.Value {
				results[i] = v
				remaining--
				if remaining == 0 {
					out.fulfill(arrayOf(results))
				}
				return value.Undefined
			},
			func(reason value.Value) value.Value {
				out.Reject(reason)
				return value.Undefined
			},
		)
	}
	return out
}

// AllSettled implements Promise.allSettled: every input contributes a
// {status, value|reason} record regardless of outcome; AllSettled never
// rejects.
func AllSettled(queue *Queue, errs *errchan.Channel, elements []*Record) *Record {
	out := NewPending(queue, errs)
	if len(elements) == 0 {
		out.fulfill(value.Undefined)
		return out
	}
	results := make([]SettledResult, len(elements))
	remaining := len(elements)
	for i, el := range elements {
		i := i
		el.Then(
			func(v value.Value) value.Value {
				results[i] = SettledResult{Fulfilled: true, Value: v}
				remaining--
				if remaining == 0 {
					out.fulfill(settledArrayOf(results))
				}
				return value.Undefined
			},
			func(reason value.Value) value.Value {
				results[i] = SettledResult{Fulfilled: false, Value: reason}
				remaining--
				if remaining == 0 {
					out.fulfill(settledArrayOf(results))
				}
				return value.Undefined
			},
		)
	}
	return out
}

// SettledResult is one Promise.allSettled output entry.
type SettledResult struct {
	Fulfilled bool
	Value     value.Value
}

// Any implements Promise.any: resolves with the first fulfillment, rejects
// with an AggregateError once every input has rejected.
func Any(queue *Queue, errs *errchan.Channel, elements []*Record, top *frame.Frame) *Record {
	out := NewPending(queue, errs)
	if len(elements) == 0 {
		errs.NewTypedError(top, true, errchan.KindAggregate, "all promises were rejected")
		out.Reject(errs.GetException())
		return out
	}
	errorsOut := make([]value.Value, len(elements))
	remaining := len(elements)
	for i, el := range elements {
		i := i
		el.Then(
			func(v value.Value) value.Value {
				out.Resolve(v, false, nil, top)
				return value.Undefined
			},
			func(reason value.Value) value.Value {
				errorsOut[i] = reason
				remaining--
				if remaining == 0 {
					errs.NewTypedError(top, true, errchan.KindAggregate, "all promises were rejected")
					out.Reject(errs.GetException())
				}
				return value.Undefined
			},
		)
	}
	return out
}

// Race implements Promise.race: settles the same way as the first input to
// settle, in either direction.
func Race(queue *Queue, errs *errchan.Channel, elements []*Record, top *frame.Frame) *Record {
	out := NewPending(queue, errs)
	for _, el := range elements {
		el.Then(
			func(v value.Value) value.Value { out.Resolve(v, false, nil, top); return value.Undefined },
			func(reason value.Value) value.Value { out.Reject(reason); return value.Undefined },
		)
	}
	return out
}

// arrayOf/settledArrayOf are placeholders for pkg/runtime to replace with
// real Array object construction; kept here only so All/AllSettled have
// something concrete to fulfill with in isolation (tests check the
// underlying slice via AsObject type assertion).
type ResultArray struct{ Values []value.Value }

func (a *ResultArray) GCKind() string { return "result-array" }

func arrayOf(vs []value.Value) value.Value { return value.Object(&ResultArray{Values: vs}) }

type SettledArray struct{ Values []SettledResult }

func (a *SettledArray) GCKind() string { return "settled-array" }

func settledArrayOf(vs []SettledResult) value.Value { return value.Object(&SettledArray{Values: vs}) }

// --- async functions and generators --------------------------------------

// SuspendState is a generator/async-function's position in its state
// machine (spec.md §4.11).
type SuspendState int

const (
	SuspendedStart SuspendState = iota
	Executing
	SuspendedYield
	Completed
)

// AsyncFunctionState captures a suspended async-function frame: the
// frame itself, its current suspend state, and the promise driving it.
type AsyncFunctionState struct {
	Frame   *frame.Frame
	State   SuspendState
	Promise *Record
}

// NewAsyncFunctionState starts a new async invocation's state, PENDING
// promise created up front so `await`-less async functions still return a
// real promise immediately.
func NewAsyncFunctionState(f *frame.Frame, queue *Queue, errs *errchan.Channel) *AsyncFunctionState {
	return &AsyncFunctionState{Frame: f, State: SuspendedStart, Promise: NewPending(queue, errs)}
}

// Await wraps v with Promise.resolve semantics and installs resolve/reject
// closures that drive the state machine forward on the next job-queue
// turn, per spec.md §4.11. resumeFulfilled/resumeRejected are supplied by
// the interpreter (out of scope here) and re-enter bytecode execution at
// the suspension point.
func (s *AsyncFunctionState) Await(queue *Queue, errs *errchan.Channel, v value.Value, resumeFulfilled, resumeRejected func(value.Value)) {
	s.State = SuspendedYield
	awaited := ResolveElement(queue, errs, v)
	awaited.Then(
		func(v value.Value) value.Value {
			s.State = Executing
			resumeFulfilled(v)
			return value.Undefined
		},
		func(reason value.Value) value.Value {
			s.State = Executing
			resumeRejected(reason)
			return value.Undefined
		},
	)
}

// Complete transitions to Completed and settles the driving promise.
func (s *AsyncFunctionState) Complete(result value.Value, threw bool) {
	s.State = Completed
	if threw {
		s.Promise.Reject(result)
		return
	}
	s.Promise.Resolve(result, false, nil, s.Frame)
}

// GeneratorState is the non-promise counterpart for plain generators:
// next/return/throw drive the same SuspendedStart -> Executing ->
// SuspendedYield -> ... -> Completed transitions without promise plumbing.
type GeneratorState struct {
	Frame *frame.Frame
	State SuspendState
}

func NewGeneratorState(f *frame.Frame) *GeneratorState {
	return &GeneratorState{Frame: f, State: SuspendedStart}
}

// Resume transitions SuspendedStart/SuspendedYield -> Executing. Returns
// false if the generator is already Completed or mid-execution
// (re-entrant next() call), matching the spec's "already executing"
// TypeError case, surfaced by the caller.
func (g *GeneratorState) Resume() bool {
	if g.State != SuspendedStart && g.State != SuspendedYield {
		return false
	}
	g.State = Executing
	return true
}

// Yield transitions Executing -> SuspendedYield.
func (g *GeneratorState) Yield() { g.State = SuspendedYield }

// Finish transitions to Completed (normal return, `return()`, or an
// uncaught throw all end here).
func (g *GeneratorState) Finish() { g.State = Completed }
