// Package errchan implements the single-slot current-exception discipline
// (C7): a failing primitive stores its error into the Channel and returns
// the Exception sentinel (or -1 for integer-returning operations); callers
// are contractually required to propagate that signal rather than invent
// their own.
package errchan

import (
	"fmt"
	"strings"

	log "github.com/inconshreveable/log15"

	"jsgo/pkg/frame"
	"jsgo/pkg/value"
)

// Kind enumerates the built-in Error subclasses from spec.md §7.
type Kind int

const (
	KindEval Kind = iota
	KindRange
	KindReference
	KindSyntax
	KindType
	KindURI
	KindInternal
	KindAggregate
)

func (k Kind) String() string {
	switch k {
	case KindEval:
		return "EvalError"
	case KindRange:
		return "RangeError"
	case KindReference:
		return "ReferenceError"
	case KindSyntax:
		return "SyntaxError"
	case KindType:
		return "TypeError"
	case KindURI:
		return "URIError"
	case KindInternal:
		return "InternalError"
	case KindAggregate:
		return "AggregateError"
	default:
		return "Error"
	}
}

// ErrorObject is the minimal built-in JS Error representation the channel
// deals in directly; it carries no shape or property table. It implements
// value.HeapObject.
type ErrorObject struct {
	Kind      Kind
	Message   string
	Stack     []string
	catchable bool
}

func (e *ErrorObject) GCKind() string { return e.Kind.String() }

// ToString renders "${name}: ${message}" per spec.md §7.
func (e *ErrorObject) ToString() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
}

// StackString joins the captured backtrace the way the `stack` property
// of a real Error object would render it.
func (e *ErrorObject) StackString() string {
	var sb strings.Builder
	sb.WriteString(e.ToString())
	for _, line := range e.Stack {
		sb.WriteString("\n    at ")
		sb.WriteString(line)
	}
	return sb.String()
}

// Channel is the runtime's single current_exception slot (one per
// pkg/runtime.Runtime, never a package-level global).
type Channel struct {
	current     value.Value
	hasPending  bool
	uncatchable bool
	log         log.Logger
}

// New creates an empty channel. logger may be nil, in which case a
// discard logger is used.
func New(logger log.Logger) *Channel {
	if logger == nil {
		logger = log.New()
		logger.SetHandler(log.DiscardHandler())
	}
	return &Channel{log: logger}
}

// Throw stores v as the pending exception and returns the Exception
// sentinel, the value every failing Value-returning primitive should
// return.
func (c *Channel) Throw(v value.Value) value.Value {
	c.current = v
	c.hasPending = true
	c.log.Debug("exception thrown", "value", v.String())
	return value.Exception()
}

// NewTypedError builds an ErrorObject of the given kind, captures a
// backtrace from top (optionally skipping the constructor's own frame),
// and throws it in one step.
func (c *Channel) NewTypedError(top *frame.Frame, skipTop bool, kind Kind, format string, args ...interface{}) value.Value {
	err := &ErrorObject{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Stack:   frame.CaptureBacktrace(top, skipTop),
	}
	return c.Throw(value.Object(err))
}

// GetException consumes the pending exception: it returns the stored value
// and clears the slot. Calling it with nothing pending returns Undefined.
func (c *Channel) GetException() value.Value {
	if !c.hasPending {
		return value.Undefined
	}
	v := c.current
	c.current = value.Undefined
	c.hasPending = false
	return v
}

// HasPending reports whether an exception is currently stored, without
// consuming it.
func (c *Channel) HasPending() bool { return c.hasPending }

// Peek returns the pending exception without consuming it.
func (c *Channel) Peek() value.Value { return c.current }

// SetUncatchableError marks the currently pending exception as bypassing
// user try/catch (out-of-memory during unwind, stack overflow inside a
// finalizer).
func (c *Channel) SetUncatchableError(flag bool) {
	c.uncatchable = flag
}

// Uncatchable reports the flag set by SetUncatchableError.
func (c *Channel) Uncatchable() bool { return c.uncatchable }

// Clear drops any pending exception without returning it (used after a
// handled catch clause).
func (c *Channel) Clear() {
	c.current = value.Undefined
	c.hasPending = false
	c.uncatchable = false
}
