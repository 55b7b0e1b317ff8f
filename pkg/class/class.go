// Package class implements the per-class vtable registry (C9): finalizer,
// GC marker, call, and exotic-method hooks, indexed by a small integer
// class id. Built-in classes occupy a reserved low-id range; host code may
// register additional classes at any id >= FirstUserClass.
package class

import (
	"fmt"
	"sync"

	"jsgo/pkg/atom"
	"jsgo/pkg/value"
)

// ID is a small integer identifying a registered class.
type ID int32

// Built-in class ids, in the reserved low range.
const (
	Object ID = iota
	Array
	Error
	Function
	BoundFunction
	CFunction
	ArrayBuffer
	SharedArrayBuffer
	TypedArray
	DataView
	Map
	Set
	WeakMap
	WeakSet
	Proxy
	Promise
	ForInIterator
	ModuleNamespace
	GeneratorFunction
	AsyncFunction

	FirstUserClass ID = 1000
)

// MarkFn is invoked by the GC's DecRef/Scan passes to visit every
// outgoing strong pointer from a value of this class (spec.md §4.6).
type MarkFn func(target interface{}, visit func(value.Value))

// FinalizerFn releases a class instance's non-GC-tracked resources.
type FinalizerFn func(target interface{})

// CallFn invokes a callable instance (regular function, bound function,
// C function, proxy-as-function...). ctx is opaque to this package —
// pkg/runtime supplies and consumes it.
type CallFn func(ctx interface{}, target interface{}, this value.Value, args []value.Value) value.Value

// ExoticMethods is the per-class vtable of fundamental-operation traps. A
// nil field means "use the generic/default algorithm", exactly as
// spec.md's design notes describe for the per-class vtable.
type ExoticMethods struct {
	GetOwnProperty      func(target interface{}, key atom.Atom) (desc interface{}, ok bool)
	DefineOwnProperty   func(target interface{}, key atom.Atom, desc interface{}) bool
	DeleteProperty      func(target interface{}, key atom.Atom) bool
	HasProperty         func(target interface{}, key atom.Atom) bool
	GetProperty         func(target interface{}, key atom.Atom, receiver value.Value) value.Value
	SetProperty         func(target interface{}, key atom.Atom, v value.Value, receiver value.Value) int
	GetOwnPropertyNames func(target interface{}) []atom.Atom
}

// Def is one class's complete vtable.
type Def struct {
	Name      string
	Finalizer FinalizerFn
	Mark      MarkFn
	Call      CallFn
	Exotic    *ExoticMethods
}

// Registry is a per-Runtime map of class vtables keyed by ID. It is not a
// package-level global — every Runtime owns one (spec.md §9 "no true
// global state").
type Registry struct {
	mu      sync.Mutex // guards nextUserID; spec.md Open Questions item 1
	defs    map[ID]*Def
	nextUserID ID
}

// NewRegistry creates an empty registry; built-in classes are added with
// Register.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[ID]*Def), nextUserID: FirstUserClass}
	return r
}

// Register installs def at id, overwriting any placeholder. Built-in ids
// must be registered before any value of that class is allocated.
func (r *Registry) Register(id ID, def *Def) {
	r.defs[id] = def
}

// RegisterUserClass allocates a fresh id at or above FirstUserClass and installs
// def there. Guarded by a mutex per the Open Questions' thread-safety
// decision (documentation-only in the source this was ported from).
func (r *Registry) RegisterUserClass(def *Def) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextUserID
	r.nextUserID++
	r.defs[id] = def
	return id
}

// Lookup returns the Def for id, or nil if unregistered.
func (r *Registry) Lookup(id ID) *Def {
	return r.defs[id]
}

// Name returns the class name, or a synthesized placeholder.
func (r *Registry) Name(id ID) string {
	if d := r.defs[id]; d != nil {
		return d.Name
	}
	return fmt.Sprintf("class(%d)", int(id))
}
