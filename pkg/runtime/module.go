package runtime

import (
	"jsgo/pkg/errchan"
	"jsgo/pkg/module"
	"jsgo/pkg/value"
)

// RunModule resolves, links, and evaluates the module named by specifier
// through the Runtime's installed loader (see SetModuleLoader), the
// host-facing entry point spec.md §4.9's three-phase algorithm is driven
// from. run stands in for the compiled module body a bytecode interpreter
// would otherwise supply to module.Evaluate.
func (ctx *Context) RunModule(specifier string, run module.Evaluator) (*module.Module, value.Value) {
	linker := ctx.RT.Linker()
	if linker == nil {
		return nil, ctx.RT.Errors.NewTypedError(ctx.current, true, errchan.KindType, "no module loader installed")
	}
	m, err := linker.Resolve(specifier, ctx.RT.Atoms)
	if err != nil {
		return nil, ctx.RT.Errors.NewTypedError(ctx.current, true, errchan.KindType, "%s", err.Error())
	}
	if err := linker.Link(m, ctx.RT.Atoms); err != nil {
		return m, ctx.RT.Errors.NewTypedError(ctx.current, true, errchan.KindType, "%s", err.Error())
	}
	return m, module.Evaluate(m, run)
}
