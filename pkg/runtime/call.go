package runtime

import (
	"jsgo/pkg/class"
	"jsgo/pkg/errchan"
	"jsgo/pkg/object"
	"jsgo/pkg/proxy"
	"jsgo/pkg/value"
)

// Call implements the generic [[Call]] dispatch that pkg/object's
// GetProperty/SetProperty and pkg/proxy's trap methods all take as an
// opaque callback: there is no bytecode interpreter in this module to
// compile a JS function body against, so CFunction and BoundFunction
// objects (builtins.go's NewCFunction/NewBoundFunction) are the only
// callable shapes besides a function-flagged Proxy, which forwards
// through its own apply trap.
func (ctx *Context) Call(fn value.Value, this value.Value, args []value.Value) value.Value {
	target, ok := fn.AsObject().(*object.Object)
	if !ok {
		return ctx.RT.Errors.NewTypedError(ctx.current, false, errchan.KindType, "value is not a function")
	}
	switch target.ClassID() {
	case class.CFunction:
		rec, ok := target.Extra.(*CFunctionRecord)
		if !ok {
			break
		}
		return rec.Fn(ctx.RT, this, args)
	case class.BoundFunction:
		rec, ok := target.Extra.(*BoundFunctionRecord)
		if !ok {
			break
		}
		merged := make([]value.Value, 0, len(rec.BoundArgs)+len(args))
		merged = append(merged, rec.BoundArgs...)
		merged = append(merged, args...)
		return ctx.Call(rec.Target, rec.This, merged)
	case class.Proxy:
		rec, ok := target.Extra.(*proxy.Record)
		if !ok || !rec.IsFunc {
			break
		}
		return rec.Apply(ctx.RT.Heap, ctx.RT.Atoms, ctx.RT.Errors, ctx.current, this, args, ctx.Call, func(items []value.Value) value.Value {
			return value.Object(ctx.NewArrayFrom(items))
		})
	}
	return ctx.RT.Errors.NewTypedError(ctx.current, false, errchan.KindType, "%s is not callable", ctx.RT.Classes.Name(target.ClassID()))
}

// IsCallable reports whether v would succeed as Call's fn argument,
// without actually invoking it (spec.md's is_function host query).
func (ctx *Context) IsCallable(v value.Value) bool {
	target, ok := v.AsObject().(*object.Object)
	if !ok {
		return false
	}
	switch target.ClassID() {
	case class.CFunction, class.BoundFunction:
		return true
	case class.Proxy:
		rec, ok := target.Extra.(*proxy.Record)
		return ok && rec.IsFunc
	default:
		return false
	}
}
