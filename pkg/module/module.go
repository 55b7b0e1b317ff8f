// Package module implements the module linker (C10): a three-phase
// resolve/link/evaluate algorithm over a host-supplied loader, star-export
// resolution with cycle and ambiguity detection, and lazy namespace object
// construction.
package module

import (
	"fmt"

	"jsgo/pkg/atom"
	"jsgo/pkg/frame"
	"jsgo/pkg/value"
)

// Loader is the host hook for turning a (referrer, specifier) pair into a
// module name, and a module name into its source/body. pkg/module never
// parses or compiles — Body is opaque, consumed only by the Evaluator
// callback passed to Evaluate.
type Loader interface {
	Resolve(referrer, specifier string) (string, error)
	Load(name string) (*Source, error)
}

// Source is whatever the host loader hands back for one module: its
// requested specifiers and export declarations, needed to build the
// Module's Resolve/Link-time metadata before any evaluation happens.
type Source struct {
	RequestedModules []string
	LocalExports     []atom.Atom
	IndirectExports  []IndirectExport
	StarExportNames  []string // modules re-exported via `export * from "..."`
	Imports          []ImportDecl
	Body             interface{}
}

// IndirectExport is an `export { x as y } from "m"` declaration.
type IndirectExport struct {
	ExportName atom.Atom
	FromModule string
	ImportName atom.Atom
}

// ImportDecl is an `import { x as localName } from "m"` declaration.
type ImportDecl struct {
	LocalName  atom.Atom
	FromModule string
	ImportName atom.Atom
}

// ExportKind distinguishes the three export entry flavors.
type ExportKind int

const (
	ExportLocal ExportKind = iota
	ExportIndirect
	ExportStar
)

// ExportEntry is one entry in a Module's own export table.
type ExportEntry struct {
	Name   atom.Atom
	Kind   ExportKind
	Local  *frame.VarRef // valid when Kind == ExportLocal
	From   *Module        // valid when Kind == ExportIndirect
	Import atom.Atom      // export name in From, when Kind == ExportIndirect
}

// RequiredModule is one entry in req_modules[].
type RequiredModule struct {
	Specifier string
	Target    *Module
}

// Module is one linked unit, spec.md §4's Module record.
type Module struct {
	Name atom.Atom

	ReqModules  []RequiredModule
	Exports     []ExportEntry
	StarExports []*Module

	// Imports names the module-level VarRef each imported binding resolves
	// to once Link completes, keyed by the local (importing-module) name.
	Imports map[atom.Atom]*frame.VarRef
	// importDecls records where each import came from, for Link to resolve.
	importDecls []ImportDecl

	Body        interface{}
	Namespace   *Namespace
	MetaObj     value.Value

	resolved      bool
	funcCreated   bool
	instantiated  bool
	evaluated     bool
	evalMark      bool
	evalHasException bool
	evalException value.Value
}

func newModule(name atom.Atom) *Module {
	return &Module{Name: name, Imports: make(map[atom.Atom]*frame.VarRef)}
}

// Namespace is the lazily built module-namespace object: a sorted list of
// exported-name -> resolved-binding pairs.
type Namespace struct {
	names   []atom.Atom
	entries map[atom.Atom]*frame.VarRef
	// ambiguous holds names that resolved to Ambiguous at namespace-build
	// time; accessing them must throw, but building the namespace itself
	// must not (spec.md §4.9: "only throw when accessed").
	ambiguous map[atom.Atom]bool
}

func (ns *Namespace) Names() []atom.Atom { return append([]atom.Atom{}, ns.names...) }

// Get returns the binding's current value, or ok=false with throws=true if
// the name resolved ambiguously at link time.
func (ns *Namespace) Get(name atom.Atom) (v value.Value, ok bool, throws bool) {
	if ns.ambiguous[name] {
		return value.Undefined, false, true
	}
	ref, found := ns.entries[name]
	if !found {
		return value.Undefined, false, false
	}
	return ref.Load(), true, false
}

// ResolveKind is the four-plus-one-way result of resolve_export.
type ResolveKind int

const (
	ResolveFound ResolveKind = iota
	ResolveNotFound
	ResolveCircular
	ResolveAmbiguous
	ResolveException
)

type ResolveResult struct {
	Kind   ResolveKind
	Module *Module
	Entry  *ExportEntry
}

// Linker owns the set of modules resolved so far, keyed by canonical name,
// and the host Loader. One per Runtime — no package-level module registry.
type Linker struct {
	loader  Loader
	modules map[string]*Module
}

func NewLinker(loader Loader, atoms *atom.Table) *Linker {
	return &Linker{loader: loader, modules: make(map[string]*Module)}
}

// Resolve implements the Resolve phase: load name (if not already loaded),
// mark it resolved before recursing into its dependencies (breaking
// cycles), and recursively resolve every requested specifier.
func (l *Linker) Resolve(name string, atoms *atom.Table) (*Module, error) {
	if m, ok := l.modules[name]; ok {
		return m, nil
	}
	src, err := l.loader.Load(name)
	if err != nil {
		return nil, err
	}
	m := newModule(atoms.Intern(name, atom.KindString))
	m.resolved = true
	l.modules[name] = m // visible to recursive Resolve calls before we recurse, breaking cycles

	m.Body = src.Body
	for _, name := range src.LocalExports {
		m.Exports = append(m.Exports, ExportEntry{Name: name, Kind: ExportLocal, Local: frame.NewClosedVarRef(value.Uninitialized)})
	}
	for _, spec := range src.RequestedModules {
		target, err := l.Resolve(spec, atoms)
		if err != nil {
			return nil, err
		}
		m.ReqModules = append(m.ReqModules, RequiredModule{Specifier: spec, Target: target})
	}
	for _, ie := range src.IndirectExports {
		from, err := l.Resolve(ie.FromModule, atoms)
		if err != nil {
			return nil, err
		}
		m.Exports = append(m.Exports, ExportEntry{Name: ie.ExportName, Kind: ExportIndirect, From: from, Import: ie.ImportName})
	}
	for _, spec := range src.StarExportNames {
		target, err := l.Resolve(spec, atoms)
		if err != nil {
			return nil, err
		}
		m.StarExports = append(m.StarExports, target)
	}
	m.importDecls = src.Imports
	for _, imp := range src.Imports {
		m.Imports[imp.LocalName] = nil // filled in during Link
	}
	return m, nil
}

// ResolveExport implements resolve_export: search own exports, then
// indirect re-exports, then star-re-export chains, with cycle and
// ambiguity detection across the whole reachable graph.
func ResolveExport(m *Module, name atom.Atom) ResolveResult {
	return resolveExport(m, name, make(map[*Module]bool))
}

func resolveExport(m *Module, name atom.Atom, visited map[*Module]bool) ResolveResult {
	if visited[m] {
		return ResolveResult{Kind: ResolveCircular}
	}
	visited[m] = true

	for i := range m.Exports {
		e := &m.Exports[i]
		if e.Name != name {
			continue
		}
		switch e.Kind {
		case ExportLocal:
			return ResolveResult{Kind: ResolveFound, Module: m, Entry: e}
		case ExportIndirect:
			return resolveExport(e.From, e.Import, visited)
		}
	}

	var found *ResolveResult
	for _, star := range m.StarExports {
		r := resolveExport(star, name, visited)
		switch r.Kind {
		case ResolveFound:
			if found != nil && found.Kind == ResolveFound && found.Module != r.Module {
				return ResolveResult{Kind: ResolveAmbiguous}
			}
			rCopy := r
			found = &rCopy
		case ResolveAmbiguous, ResolveException:
			return r
		case ResolveCircular:
			// a star chain revisiting a module is not itself ambiguous;
			// just contributes nothing from that branch.
		case ResolveNotFound:
		}
	}
	if found != nil {
		return *found
	}
	return ResolveResult{Kind: ResolveNotFound}
}

// Link implements the Link (instantiate) phase: allocate import VarRef
// bindings by resolving each import across the star-export graph and
// validate indirect re-exports. Link does not build the module namespace;
// callers build it separately with BuildNamespace, when first needed.
func (l *Linker) Link(m *Module, atoms *atom.Table) error {
	if m.instantiated {
		return nil
	}
	m.instantiated = true
	for _, req := range m.ReqModules {
		if err := l.Link(req.Target, atoms); err != nil {
			return err
		}
	}
	for _, imp := range m.importDecls {
		var from *Module
		for _, req := range m.ReqModules {
			if req.Specifier == imp.FromModule {
				from = req.Target
				break
			}
		}
		if from == nil {
			return fmt.Errorf("module %q: import from unrequested specifier %q", atoms.ToString(m.Name), imp.FromModule)
		}
		r := resolveExport(from, imp.ImportName, make(map[*Module]bool))
		switch r.Kind {
		case ResolveFound:
			m.Imports[imp.LocalName] = r.Entry.Local
		case ResolveAmbiguous:
			return fmt.Errorf("module %q: ambiguous import %q", atoms.ToString(m.Name), atoms.ToString(imp.ImportName))
		case ResolveCircular:
			return fmt.Errorf("module %q: circular import resolution for %q", atoms.ToString(m.Name), atoms.ToString(imp.ImportName))
		default:
			return fmt.Errorf("module %q: import %q not found", atoms.ToString(m.Name), atoms.ToString(imp.ImportName))
		}
	}
	for i := range m.Exports {
		if m.Exports[i].Kind == ExportIndirect {
			r := resolveExport(m.Exports[i].From, m.Exports[i].Import, make(map[*Module]bool))
			if r.Kind != ResolveFound {
				return fmt.Errorf("module %q: indirect export %q does not resolve", atoms.ToString(m.Name), atoms.ToString(m.Exports[i].Name))
			}
		}
	}
	return nil
}

// BuildNamespace enumerates every reachable export name (own + star,
// de-duplicated, sorted by the atom table's enumeration order), resolving
// each; ambiguous names are recorded, not thrown, per spec.md §4.9.
func BuildNamespace(m *Module, atoms *atom.Table) *Namespace {
	if m.Namespace != nil {
		return m.Namespace
	}
	seen := make(map[atom.Atom]bool)
	var names []atom.Atom
	collectExportNames(m, make(map[*Module]bool), seen, &names)

	sortAtoms(names, atoms)

	ns := &Namespace{entries: make(map[atom.Atom]*frame.VarRef), ambiguous: make(map[atom.Atom]bool)}
	for _, n := range names {
		r := ResolveExport(m, n)
		switch r.Kind {
		case ResolveFound:
			ns.names = append(ns.names, n)
			ns.entries[n] = r.Entry.Local
		case ResolveAmbiguous:
			ns.names = append(ns.names, n)
			ns.ambiguous[n] = true
		}
	}
	m.Namespace = ns
	return ns
}

func collectExportNames(m *Module, visited map[*Module]bool, seen map[atom.Atom]bool, out *[]atom.Atom) {
	if visited[m] {
		return
	}
	visited[m] = true
	for _, e := range m.Exports {
		if !seen[e.Name] {
			seen[e.Name] = true
			*out = append(*out, e.Name)
		}
	}
	for _, star := range m.StarExports {
		collectExportNames(star, visited, seen, out)
	}
}

func sortAtoms(names []atom.Atom, atoms *atom.Table) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && atoms.Compare(names[j-1], names[j]) > 0; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
}

// Evaluator runs a module's own body once every dependency has evaluated
// (the compiled function / native-module init callback spec.md §4.9
// mentions; pkg/module has no bytecode interpreter to call, so the caller
// supplies it).
type Evaluator func(m *Module) value.Value

// Evaluate implements the Evaluate phase: DFS from m, skipping modules
// already evaluated or mid-evaluation (eval_mark), capturing and
// re-throwing a module's recorded exception on subsequent evaluations.
func Evaluate(m *Module, run Evaluator) value.Value {
	if m.evaluated {
		if m.evalHasException {
			return m.evalException
		}
		return value.Undefined
	}
	if m.evalMark {
		return value.Undefined // already mid-evaluation on this DFS path
	}
	m.evalMark = true
	for _, req := range m.ReqModules {
		v := Evaluate(req.Target, run)
		if v.IsException() {
			m.evalHasException = true
			m.evalException = v
			m.evaluated = true
			return v
		}
	}
	result := run(m)
	m.evaluated = true
	if result.IsException() {
		m.evalHasException = true
		m.evalException = result
	}
	return result
}
