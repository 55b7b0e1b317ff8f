package runtime

import "jsgo/pkg/class"

// registerBuiltinClasses installs a Def for every built-in class.ID so
// rt.Classes.Name resolves to a real name instead of the registry's
// "class(%d)" placeholder — used by Call's "is not callable" message and
// by anything else that reports a value's class in diagnostics. Finalizer
// and Mark stay nil: this module's actual teardown/trace hooks are
// instance-level (object.Object.SetFinalizer/SetTracer, wired per
// allocation in builtins.go) rather than dispatched through the
// registry, since every built-in class here is a thin Go-level stand-in
// with no shared finalization logic to centralize.
func registerBuiltinClasses(rt *Runtime) {
	names := map[class.ID]string{
		class.Object:            "Object",
		class.Array:             "Array",
		class.Error:             "Error",
		class.Function:          "Function",
		class.BoundFunction:     "Function",
		class.CFunction:         "Function",
		class.ArrayBuffer:       "ArrayBuffer",
		class.SharedArrayBuffer: "SharedArrayBuffer",
		class.TypedArray:        "TypedArray",
		class.DataView:          "DataView",
		class.Map:               "Map",
		class.Set:               "Set",
		class.WeakMap:           "WeakMap",
		class.WeakSet:           "WeakSet",
		class.Proxy:             "Proxy",
		class.Promise:           "Promise",
		class.ForInIterator:     "For In Iterator",
		class.ModuleNamespace:   "Module",
		class.GeneratorFunction: "GeneratorFunction",
		class.AsyncFunction:     "AsyncFunction",
	}
	for id, name := range names {
		rt.Classes.Register(id, &class.Def{Name: name})
	}
}
