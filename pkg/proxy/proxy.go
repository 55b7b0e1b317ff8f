// Package proxy implements the Proxy exotic object (C12): trap dispatch
// with revocation and absent-trap forwarding, followed by validation of
// the fundamental-operation invariants against the target's own state.
package proxy

import (
	"jsgo/pkg/atom"
	"jsgo/pkg/errchan"
	"jsgo/pkg/frame"
	"jsgo/pkg/gc"
	"jsgo/pkg/object"
	"jsgo/pkg/strheap"
	"jsgo/pkg/value"
)

// Caller invokes a callable Value, matching the signature pkg/object's
// generic property algorithms already use.
type Caller func(fn value.Value, this value.Value, args []value.Value) value.Value

// TrapMemo caches negative "handler has no such trap" lookups across
// calls, so a handler that only implements a few traps (the common case
// for a revocable membrane) doesn't pay a GetProperty lookup on its
// prototype chain for every fundamental operation that falls through to
// the target. Absent/MarkAbsent key off the handler object's identity,
// matching the host-supplied Runtime.proxyNegMemo a Record is wired to
// via NewProxyObject.
type TrapMemo interface {
	Absent(handler *object.Object, trapName string) bool
	MarkAbsent(handler *object.Object, trapName string)
}

// Record is one proxy's {target, handler, is_func, is_revoked} state.
type Record struct {
	Target  *object.Object
	Handler *object.Object
	IsFunc  bool
	revoked bool
	Memo    TrapMemo
}

func (*Record) GCKind() string { return "proxy" }

// New creates a non-revoked proxy over target/handler.
func New(target, handler *object.Object, isFunc bool) *Record {
	return &Record{Target: target, Handler: handler, IsFunc: isFunc}
}

// Revoke clears target and handler to nil (not freeing them immediately,
// since they may still be on the call stack mid-trap) and sets the
// revoked flag, per spec.md §4.12.
func (p *Record) Revoke() {
	p.revoked = true
	p.Target = nil
	p.Handler = nil
}

func (p *Record) Revoked() bool { return p.revoked }

func keyToValue(atoms *atom.Table, key atom.Atom) value.Value {
	if kind, ok := atoms.KindOf(key); ok && (kind == atom.KindSymbol || kind == atom.KindGlobalSymbol) {
		return value.Symbol(key)
	}
	return value.Str(strheap.New(atoms.ToString(key)))
}

// trap looks up name on the handler (walking its prototype chain, since a
// handler's trap may be inherited). ok is false if the trap is absent
// (undefined), meaning the caller must forward directly to the target.
func (p *Record) trap(heap *gc.Heap, atoms *atom.Table, name string, call Caller) (value.Value, bool) {
	if p.Memo != nil && p.Memo.Absent(p.Handler, name) {
		return value.Value{}, false
	}
	key := atoms.Intern(name, atom.KindString)
	v := p.Handler.GetProperty(heap, key, value.Object(p.Handler), call)
	if v.IsUndefined() {
		if p.Memo != nil {
			p.Memo.MarkAbsent(p.Handler, name)
		}
		return value.Value{}, false
	}
	return v, true
}

func (p *Record) checkRevoked(errs *errchan.Channel, top *frame.Frame, op string) (value.Value, bool) {
	if p.revoked {
		return errs.NewTypedError(top, true, errchan.KindType, "cannot perform '%s' on a revoked proxy", op), false
	}
	return value.Value{}, true
}

// withTargetGuard duplicates the target reference for the duration of fn,
// per spec.md §6's note that traps must not observe the target being freed
// by the trap call itself — the target's refcount, not Go's GC, is what
// governs its engine-level lifetime (see DESIGN.md Open Question 2).
func (p *Record) withTargetGuard(heap *gc.Heap, fn func()) {
	heap.IncRef(p.Target)
	defer heap.DecRef(p.Target)
	fn()
}

// Get implements the `get` trap with the spec.md §4.12 invariant: if the
// target has a non-configurable, non-writable own data property at key,
// the trap's result must equal it exactly.
func (p *Record) Get(heap *gc.Heap, atoms *atom.Table, errs *errchan.Channel, top *frame.Frame, key atom.Atom, receiver value.Value, call Caller) value.Value {
	if v, ok := p.checkRevoked(errs, top, "get"); !ok {
		return v
	}
	trapFn, has := p.trap(heap, atoms, "get", call)
	if !has {
		return p.Target.GetProperty(heap, key, receiver, call)
	}
	var result value.Value
	p.withTargetGuard(heap, func() {
		result = call(trapFn, value.Object(p.Handler), []value.Value{value.Object(p.Target), keyToValue(atoms, key), receiver})
	})
	if result.IsException() {
		return result
	}
	if d, ok := p.Target.GetOwnProperty(key); ok {
		if !d.IsAccessor && !d.Writable && !d.Configurable && !value.SameValueZero(result, d.Value) {
			return errs.NewTypedError(top, true, errchan.KindType, "'get' trap result does not match non-configurable non-writable own property")
		}
		if d.IsAccessor && !d.Configurable && d.Get.IsUndefined() && !result.IsUndefined() {
			return errs.NewTypedError(top, true, errchan.KindType, "'get' trap result must be undefined for a non-configurable accessor with no getter")
		}
	}
	return result
}

// Has implements the `has` trap with its invariants: a non-configurable
// own property of target cannot be reported absent; every key of a
// non-extensible target must be reported present.
func (p *Record) Has(heap *gc.Heap, atoms *atom.Table, errs *errchan.Channel, top *frame.Frame, key atom.Atom, call Caller) (bool, value.Value) {
	if v, ok := p.checkRevoked(errs, top, "has"); !ok {
		return false, v
	}
	trapFn, has := p.trap(heap, atoms, "has", call)
	if !has {
		return p.Target.HasProperty(key), value.Undefined
	}
	var result value.Value
	p.withTargetGuard(heap, func() {
		result = call(trapFn, value.Object(p.Handler), []value.Value{value.Object(p.Target), keyToValue(atoms, key)})
	})
	if result.IsException() {
		return false, result
	}
	reported := result.ToBoolean()
	if !reported {
		if d, ok := p.Target.GetOwnProperty(key); ok && !d.Configurable {
			return false, errs.NewTypedError(top, true, errchan.KindType, "'has' trap cannot report a non-configurable own property as absent")
		}
		if !p.Target.IsExtensible() {
			if _, ok := p.Target.GetOwnProperty(key); ok {
				return false, errs.NewTypedError(top, true, errchan.KindType, "'has' trap cannot report an own property of a non-extensible target as absent")
			}
		}
	}
	return reported, value.Undefined
}

// Set implements the `set` trap. Returns (true, undefined) on success,
// (false, exception) on failure, (false, undefined) on a reported false
// that carries no invariant violation (caller decides strict-mode
// behavior, as with object.Object.SetProperty's tri-state).
func (p *Record) Set(heap *gc.Heap, atoms *atom.Table, errs *errchan.Channel, top *frame.Frame, key atom.Atom, v value.Value, receiver value.Value, call Caller) (bool, value.Value) {
	if ev, ok := p.checkRevoked(errs, top, "set"); !ok {
		return false, ev
	}
	trapFn, has := p.trap(heap, atoms, "set", call)
	if !has {
		res := p.Target.SetProperty(heap, atoms, key, v, p.Target, call)
		return res == 1, value.Undefined
	}
	var result value.Value
	p.withTargetGuard(heap, func() {
		result = call(trapFn, value.Object(p.Handler), []value.Value{value.Object(p.Target), keyToValue(atoms, key), v, receiver})
	})
	if result.IsException() {
		return false, result
	}
	ok := result.ToBoolean()
	if ok {
		if d, ok := p.Target.GetOwnProperty(key); ok {
			if !d.IsAccessor && !d.Writable && !d.Configurable && !value.SameValueZero(v, d.Value) {
				return false, errs.NewTypedError(top, true, errchan.KindType, "'set' trap must not report success for a mismatched non-configurable non-writable own property")
			}
		}
	}
	return ok, value.Undefined
}

// DeleteProperty implements the `deleteProperty` trap: success cannot be
// reported for a non-configurable own target property.
func (p *Record) DeleteProperty(heap *gc.Heap, atoms *atom.Table, errs *errchan.Channel, top *frame.Frame, key atom.Atom, call Caller) (bool, value.Value) {
	if ev, ok := p.checkRevoked(errs, top, "deleteProperty"); !ok {
		return false, ev
	}
	trapFn, has := p.trap(heap, atoms, "deleteProperty", call)
	if !has {
		return p.Target.DeleteProperty(heap, atoms, key), value.Undefined
	}
	var result value.Value
	p.withTargetGuard(heap, func() {
		result = call(trapFn, value.Object(p.Handler), []value.Value{value.Object(p.Target), keyToValue(atoms, key)})
	})
	if result.IsException() {
		return false, result
	}
	ok := result.ToBoolean()
	if ok {
		if d, ok := p.Target.GetOwnProperty(key); ok && !d.Configurable {
			return false, errs.NewTypedError(top, true, errchan.KindType, "'deleteProperty' trap cannot report success for a non-configurable own property")
		}
	}
	return ok, value.Undefined
}

// OwnKeys implements the `ownKeys` trap: the result must include every
// non-configurable own key of target, and if target is non-extensible the
// result must be exactly target's own keys (spec.md §4.12 invariant 3's
// example).
func (p *Record) OwnKeys(heap *gc.Heap, atoms *atom.Table, errs *errchan.Channel, top *frame.Frame, toAtoms func(value.Value) ([]atom.Atom, bool), call Caller) ([]atom.Atom, value.Value) {
	if ev, ok := p.checkRevoked(errs, top, "ownKeys"); !ok {
		return nil, ev
	}
	targetKeys := p.Target.GetOwnPropertyNames(atoms)
	trapFn, has := p.trap(heap, atoms, "ownKeys", call)
	if !has {
		return targetKeys, value.Undefined
	}
	var result value.Value
	p.withTargetGuard(heap, func() {
		result = call(trapFn, value.Object(p.Handler), []value.Value{value.Object(p.Target)})
	})
	if result.IsException() {
		return nil, result
	}
	reportedKeys, ok := toAtoms(result)
	if !ok {
		return nil, errs.NewTypedError(top, true, errchan.KindType, "'ownKeys' trap must return a list of property keys")
	}
	reportedSet := make(map[atom.Atom]bool, len(reportedKeys))
	for _, k := range reportedKeys {
		reportedSet[k] = true
	}
	for _, k := range targetKeys {
		if d, ok := p.Target.GetOwnProperty(k); ok && !d.Configurable && !reportedSet[k] {
			return nil, errs.NewTypedError(top, true, errchan.KindType, "'ownKeys' result must include every non-configurable own key of the target")
		}
	}
	if !p.Target.IsExtensible() {
		if len(reportedKeys) != len(targetKeys) {
			return nil, errs.NewTypedError(top, true, errchan.KindType, "'ownKeys' result for a non-extensible target must be exactly its own keys")
		}
		targetSet := make(map[atom.Atom]bool, len(targetKeys))
		for _, k := range targetKeys {
			targetSet[k] = true
		}
		for _, k := range reportedKeys {
			if !targetSet[k] {
				return nil, errs.NewTypedError(top, true, errchan.KindType, "'ownKeys' result for a non-extensible target must be exactly its own keys")
			}
		}
	}
	return reportedKeys, value.Undefined
}

// GetPrototypeOf implements the `getPrototypeOf` trap: if target is
// non-extensible, the trap result must equal target's actual prototype.
func (p *Record) GetPrototypeOf(heap *gc.Heap, atoms *atom.Table, errs *errchan.Channel, top *frame.Frame, call Caller, toProto func(value.Value) *object.Object) (*object.Object, value.Value) {
	if ev, ok := p.checkRevoked(errs, top, "getPrototypeOf"); !ok {
		return nil, ev
	}
	trapFn, has := p.trap(heap, atoms, "getPrototypeOf", call)
	if !has {
		return p.Target.Prototype(), value.Undefined
	}
	var result value.Value
	p.withTargetGuard(heap, func() {
		result = call(trapFn, value.Object(p.Handler), []value.Value{value.Object(p.Target)})
	})
	if result.IsException() {
		return nil, result
	}
	reported := toProto(result)
	if !p.Target.IsExtensible() && reported != p.Target.Prototype() {
		return nil, errs.NewTypedError(top, true, errchan.KindType, "'getPrototypeOf' result must match a non-extensible target's actual prototype")
	}
	return reported, value.Undefined
}

// PreventExtensions implements the `preventExtensions` trap: a true
// result is only valid if the target is (or becomes) actually
// non-extensible.
func (p *Record) PreventExtensions(heap *gc.Heap, atoms *atom.Table, errs *errchan.Channel, top *frame.Frame, call Caller) (bool, value.Value) {
	if ev, ok := p.checkRevoked(errs, top, "preventExtensions"); !ok {
		return false, ev
	}
	trapFn, has := p.trap(heap, atoms, "preventExtensions", call)
	if !has {
		p.Target.PreventExtensions()
		return true, value.Undefined
	}
	var result value.Value
	p.withTargetGuard(heap, func() {
		result = call(trapFn, value.Object(p.Handler), []value.Value{value.Object(p.Target)})
	})
	if result.IsException() {
		return false, result
	}
	ok := result.ToBoolean()
	if ok && p.Target.IsExtensible() {
		return false, errs.NewTypedError(top, true, errchan.KindType, "'preventExtensions' trap returned true but the target is still extensible")
	}
	return ok, value.Undefined
}

// Apply implements the `apply` trap for function proxies.
func (p *Record) Apply(heap *gc.Heap, atoms *atom.Table, errs *errchan.Channel, top *frame.Frame, this value.Value, args []value.Value, call Caller, makeArgsArray func([]value.Value) value.Value) value.Value {
	if v, ok := p.checkRevoked(errs, top, "apply"); !ok {
		return v
	}
	if !p.IsFunc {
		return errs.NewTypedError(top, true, errchan.KindType, "proxy target is not callable")
	}
	trapFn, has := p.trap(heap, atoms, "apply", call)
	if !has {
		return call(value.Object(p.Target), this, args)
	}
	var result value.Value
	p.withTargetGuard(heap, func() {
		result = call(trapFn, value.Object(p.Handler), []value.Value{value.Object(p.Target), this, makeArgsArray(args)})
	})
	return result
}
