// Package runtime implements the Runtime/Context/Realm split (C13): the
// composition root that wires the atom table, heap, class registry,
// shape cache, error channel, module linker, and job queue together for
// one engine instance. There is exactly one of each subsystem per
// Runtime and no package-level state anywhere in this module, per
// spec.md §9's "no true global state" design note — two Runtimes never
// share a heap pointer, matching §5's isolation rule.
package runtime

import (
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	log "github.com/inconshreveable/log15"

	"jsgo/pkg/atom"
	"jsgo/pkg/class"
	"jsgo/pkg/errchan"
	"jsgo/pkg/frame"
	"jsgo/pkg/gc"
	"jsgo/pkg/module"
	"jsgo/pkg/object"
	"jsgo/pkg/promise"
	"jsgo/pkg/proxy"
	"jsgo/pkg/shape"
)

const (
	defaultMaxStackSize = 256 * 1024
	moduleCacheSize      = 256
	proxyMemoCacheSize   = 512
)

// Runtime owns every per-instance subsystem. The host may create as many
// independent Runtimes as it likes; none of them share state (spec.md §5).
type Runtime struct {
	ID uuid.UUID

	Atoms   *atom.Table
	Heap    *gc.Heap
	Classes *class.Registry
	Shapes  *shape.RootCache
	Errors  *errchan.Channel
	Jobs    *promise.Queue

	Config Config
	Log    log.Logger

	maxStackSize int
	memoryLimit  int
	allocated    int
	interrupt    func() bool

	loader          module.Loader
	linker          *module.Linker
	moduleCache     *lru.Cache // (referrer, specifier) -> resolved module name
	proxyNegMemo    *lru.Cache // per-trap negative-result memo (C12 fast path)
	rejectTracker   func(ctx *Context, reason interface{})

	contexts []*Context
}

// New creates a Runtime with default limits. logger may be nil (a discard
// logger is installed); cfg may be the zero Config (defaults apply).
func New(cfg Config, logger log.Logger) *Runtime {
	if logger == nil {
		logger = log.New()
		logger.SetHandler(log.DiscardHandler())
	}
	cfg.applyDefaults()

	heap := gc.New(logger)
	heap.SetThreshold(cfg.GCThreshold)

	mc, _ := lru.New(moduleCacheSize)
	pm, _ := lru.New(proxyMemoCacheSize)
	id := uuid.New()

	rt := &Runtime{
		ID:           id,
		Atoms:        atom.NewTable(),
		Heap:         heap,
		Classes:      class.NewRegistry(),
		Shapes:       shape.NewRootCache(),
		Errors:       errchan.New(logger),
		Jobs:         promise.NewQueue(),
		Config:       cfg,
		Log:          logger.New("runtime", shortID(id)),
		maxStackSize: cfg.MaxStackSize,
		memoryLimit:  cfg.MemoryLimit,
		moduleCache:  mc,
		proxyNegMemo: pm,
	}
	registerBuiltinClasses(rt)
	return rt
}

func shortID(id uuid.UUID) string { return id.String()[:8] }

// FreeRuntime drops every per-instance reference so the Go GC can reclaim
// the subsystems. The core never calls this itself; it is host-invoked at
// shutdown (spec.md §6).
func (rt *Runtime) FreeRuntime() {
	rt.contexts = nil
	rt.loader = nil
	rt.linker = nil
}

// SetMemoryLimit records a cap on total tracked allocation. No allocation
// path reads the recorded limit, so exceeding it raises no OutOfMemory
// error.
func (rt *Runtime) SetMemoryLimit(n int) { rt.memoryLimit = n }

// SetGCThreshold overrides the cycle-collector's trigger threshold.
func (rt *Runtime) SetGCThreshold(n int) { rt.Heap.SetThreshold(n) }

// SetMaxStackSize overrides the configured call-stack byte budget used by
// StackCheck.
func (rt *Runtime) SetMaxStackSize(n int) { rt.maxStackSize = n }

// SetInterruptHandler installs the polling hook that CheckInterrupt
// consults. CheckInterrupt only reports the handler's answer; nothing in
// this module aborts an evaluation or raises an InternalError on it.
func (rt *Runtime) SetInterruptHandler(fn func() bool) { rt.interrupt = fn }

// CheckInterrupt reports whether the host's interrupt handler requests an
// abort. A nil handler never interrupts.
func (rt *Runtime) CheckInterrupt() bool { return rt.interrupt != nil && rt.interrupt() }

// SetModuleLoader installs the host's normalize/load hooks and (re)creates
// the Linker over them.
func (rt *Runtime) SetModuleLoader(loader module.Loader) {
	rt.loader = loader
	rt.linker = module.NewLinker(loader, rt.Atoms)
}

// Linker exposes the module linker Context.RunModule resolves, links, and
// evaluates through.
func (rt *Runtime) Linker() *module.Linker { return rt.linker }

// SetHostPromiseRejectionTracker installs the callback invoked for a
// settled-rejected promise with no handler ever attached (spec.md §4.10).
func (rt *Runtime) SetHostPromiseRejectionTracker(fn func(ctx *Context, reason interface{})) {
	rt.rejectTracker = fn
}

// CachedResolve memoizes Resolve(referrer,specifier) results so a module
// graph with repeated imports of the same specifier doesn't re-invoke the
// host loader's normalize/load pair (SPEC_FULL.md DOMAIN STACK, C10).
func (rt *Runtime) CachedResolve(referrer, specifier string, resolve func() (string, error)) (string, error) {
	key := referrer + "\x00" + specifier
	if v, ok := rt.moduleCache.Get(key); ok {
		return v.(string), nil
	}
	name, err := resolve()
	if err != nil {
		return "", err
	}
	rt.moduleCache.Add(key, name)
	return name, nil
}

// proxyTrapMemo implements proxy.TrapMemo over Runtime.proxyNegMemo, keying
// each cached "this handler has no such trap" result on (handler pointer,
// trap name) so Record.trap skips a GetProperty lookup the next time the
// same fundamental operation falls through to the target.
type proxyTrapMemo struct{ cache *lru.Cache }

func (m proxyTrapMemo) key(handler *object.Object, trapName string) [2]interface{} {
	return [2]interface{}{handler, trapName}
}

func (m proxyTrapMemo) Absent(handler *object.Object, trapName string) bool {
	_, ok := m.cache.Get(m.key(handler, trapName))
	return ok
}

func (m proxyTrapMemo) MarkAbsent(handler *object.Object, trapName string) {
	m.cache.Add(m.key(handler, trapName), struct{}{})
}

// ProxyTrapMemo exposes the Runtime's shared negative-trap-lookup cache for
// NewProxyObject to wire into each freshly constructed proxy.Record.
func (rt *Runtime) ProxyTrapMemo() proxy.TrapMemo { return proxyTrapMemo{rt.proxyNegMemo} }

// StackCheck reports whether pushing one more frame of nVars local slots
// would exceed the configured max stack size, per spec.md §5's "refuses
// calls that would exceed a configured stack size" rule. Each frame is
// costed at a fixed per-slot estimate since this engine has no bytecode
// interpreter tracking real native stack depth.
const bytesPerVarSlot = 32

func (rt *Runtime) StackCheck(f *frame.Frame, nVars int) bool {
	used := f.Depth() * bytesPerVarSlot
	return used+nVars*bytesPerVarSlot <= rt.maxStackSize
}

// Realm is a set of built-in prototypes and intrinsics attached to a
// Context; a Runtime may host multiple Realms (spec.md's GLOSSARY).
type Realm struct {
	prototypes   map[class.ID]*object.Object
	globalObject *object.Object
}

func newRealm() *Realm {
	return &Realm{prototypes: make(map[class.ID]*object.Object)}
}

func (r *Realm) Prototype(id class.ID) *object.Object { return r.prototypes[id] }
func (r *Realm) SetPrototype(id class.ID, proto *object.Object) { r.prototypes[id] = proto }
func (r *Realm) GlobalObject() *object.Object { return r.globalObject }
func (r *Realm) SetGlobalObject(g *object.Object) { r.globalObject = g }

// Context is one evaluation context: a Runtime plus its own Realm and
// call-frame chain. Multiple Contexts may share one Runtime's heap/atoms
// (spec.md §6's new_context/free_context/dup_context).
type Context struct {
	RT      *Runtime
	Realm   *Realm
	refs    int32
	current *frame.Frame
}

// NewContext creates a Context with a fresh Realm over rt.
func NewContext(rt *Runtime) *Context {
	ctx := &Context{RT: rt, Realm: newRealm(), refs: 1}
	rt.contexts = append(rt.contexts, ctx)
	return ctx
}

// DupContext bumps ctx's reference count and returns it (spec.md §6's
// dup_context — a Context is shared, not deep-copied).
func (ctx *Context) DupContext() *Context {
	ctx.refs++
	return ctx
}

// FreeContext drops one reference; once it reaches zero the Context is
// unlinked from its Runtime's context list.
func (ctx *Context) FreeContext() {
	ctx.refs--
	if ctx.refs > 0 {
		return
	}
	for i, c := range ctx.RT.contexts {
		if c == ctx {
			ctx.RT.contexts = append(ctx.RT.contexts[:i], ctx.RT.contexts[i+1:]...)
			break
		}
	}
}

// SetClassPrototype installs the per-realm prototype object for a class
// id (spec.md §6).
func (ctx *Context) SetClassPrototype(id class.ID, proto *object.Object) {
	ctx.Realm.SetPrototype(id, proto)
}

// PushFrame allocates and links a new call frame under ctx's current
// frame, enforcing StackCheck before linking.
func (ctx *Context) PushFrame(funcName string, nVars int, strict bool) (*frame.Frame, bool) {
	if !ctx.RT.StackCheck(ctx.current, nVars) {
		ctx.RT.Errors.NewTypedError(ctx.current, false, errchan.KindInternal, "stack overflow")
		return nil, false
	}
	f := frame.NewFrame(ctx.current, funcName, nVars, strict)
	ctx.current = f
	return f, true
}

// PopFrame unwinds and unlinks the current frame.
func (ctx *Context) PopFrame() {
	if ctx.current == nil {
		return
	}
	ctx.current.Unwind()
	ctx.current = ctx.current.Caller
}

// CurrentFrame exposes the active frame for backtrace capture.
func (ctx *Context) CurrentFrame() *frame.Frame { return ctx.current }

// ExecutePendingJob drains exactly one job from the Runtime's queue, per
// spec.md §4.10/§6; returns the number of jobs run (0 or 1) and the
// Context, matching the host-facing `(count, ctx)` signature.
func (ctx *Context) ExecutePendingJob() (int, *Context) {
	if ctx.RT.Jobs.ExecutePending() {
		return 1, ctx
	}
	return 0, ctx
}
