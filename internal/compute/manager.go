package compute

import (
	"errors"
	"log/slog"
	"time"
)

// Manager is the composition root for device discovery, contexts, queues,
// memory budgets, and kernel compilation. One Manager serves one
// simulation run and is handed to every consumer by reference.
//
// A single control thread drives the Manager: it performs no internal
// locking and is not safe for concurrent invocation. Callers must
// serialize every call into it. Device-side work still runs in parallel
// on the device; EnqueueRange blocks the caller until that work drains.
type Manager struct {
	backend  Backend
	registry *Registry
	contexts *ContextManager
	queues   *QueueEventManager
	budget   *BudgetTracker
	compiler *Compiler

	initialized bool
	closed      bool
}

// New creates a manager on the given backend. Initialize must run before
// any resource operation.
func New(backend Backend) *Manager {
	return &Manager{
		backend:  backend,
		registry: NewRegistry(backend),
		contexts: NewContextManager(),
		queues:   &QueueEventManager{},
		budget:   &BudgetTracker{},
		compiler: NewCompiler(),
	}
}

// Initialize discovers devices, creates one context per available device,
// attaches a profiling queue and a reusable event to each, and zeroes
// each context's memory budget against its device capacity.
func (m *Manager) Initialize() error {
	if m.closed {
		return &Error{Component: "manager", Op: "initialize", Detail: "manager is closed", Err: ErrInvalidUsage}
	}
	if m.initialized {
		return &Error{Component: "manager", Op: "initialize", Detail: "already initialized", Err: ErrInvalidUsage}
	}

	if err := m.registry.Discover(); err != nil {
		return err
	}
	if err := m.contexts.CreateContexts(m.backend, m.registry.Devices()); err != nil {
		return err
	}

	contexts := m.contexts.Contexts()
	if len(contexts) == 0 {
		return &Error{Component: "manager", Op: "initialize", Detail: "every discovered device is unavailable", Err: ErrNoDevices}
	}

	for _, ctx := range contexts {
		if err := m.queues.CreateQueue(ctx); err != nil {
			return err
		}
		if err := m.queues.CreateEvent(ctx); err != nil {
			return err
		}
		m.budget.InitBudget(ctx)
	}

	m.initialized = true
	slog.Info("compute manager initialized",
		"backend", m.backend.Name(),
		"devices", len(m.registry.Devices()),
		"contexts", len(contexts),
	)
	return nil
}

// ready rejects operations on a closed or uninitialized manager.
func (m *Manager) ready(op string) error {
	if m.closed {
		return &Error{Component: "manager", Op: op, Detail: "manager is closed", Err: ErrInvalidUsage}
	}
	if !m.initialized {
		return &Error{Component: "manager", Op: op, Detail: "manager not initialized", Err: ErrInvalidUsage}
	}
	return nil
}

// activeContext returns the active context or the precondition error for
// operations that require one.
func (m *Manager) activeContext(op string) (*Context, error) {
	if err := m.ready(op); err != nil {
		return nil, err
	}
	ctx := m.contexts.Active()
	if ctx == nil {
		return nil, &Error{Component: "manager", Op: op, Err: ErrNoActiveContext}
	}
	return ctx, nil
}

// BackendName names the backend the manager was built on.
func (m *Manager) BackendName() string { return m.backend.Name() }

// Devices returns the discovered devices in discovery order.
func (m *Manager) Devices() []Device { return m.registry.Devices() }

// Contexts returns every context in creation order.
func (m *Manager) Contexts() []*Context { return m.contexts.Contexts() }

// ContextsByKind returns the contexts bound to devices of the given kind.
func (m *Manager) ContextsByKind(kind DeviceKind) []*Context {
	return m.contexts.ByKind(kind)
}

// ActiveContext returns the active context, or nil when none is active.
func (m *Manager) ActiveContext() *Context { return m.contexts.Active() }

// ActivateContext marks the context with the given ID as the target of
// subsequent allocate, compile, and enqueue calls. Fails while another
// context is active.
func (m *Manager) ActivateContext(id int) error {
	if err := m.ready("activate"); err != nil {
		return err
	}
	return m.contexts.Activate(id)
}

// Deactivate clears the active context. Safe to call repeatedly.
func (m *Manager) Deactivate() {
	if m.closed {
		return
	}
	m.contexts.Deactivate()
}

// Allocate requests size bytes of device memory on the active context.
func (m *Manager) Allocate(size uint64, flags MemFlag) (*Buffer, error) {
	ctx, err := m.activeContext("allocate")
	if err != nil {
		return nil, err
	}
	return m.budget.Allocate(ctx, size, flags)
}

// Deallocate releases buf and credits size bytes back to the budget of
// the context that owns it. Buffers know their owner, so no context needs
// to be active.
func (m *Manager) Deallocate(buf *Buffer, size uint64) error {
	if err := m.ready("deallocate"); err != nil {
		return err
	}
	if buf == nil {
		return &Error{Component: "manager", Op: "deallocate", Detail: "nil buffer", Err: ErrInvalidUsage}
	}
	return m.budget.Deallocate(buf.ctx, buf, size)
}

// CompileKernel compiles sourcePath's entry point against the active
// context, returning the cached kernel when the identical tuple was
// already built.
func (m *Manager) CompileKernel(sourcePath, entry string, opts CompileOptions) (*Kernel, error) {
	ctx, err := m.activeContext("compile")
	if err != nil {
		return nil, err
	}
	return m.compiler.Compile(ctx, sourcePath, entry, opts)
}

// SetKernelArg binds value to k's argument slot at index. The kernel must
// have been compiled for the active context.
func (m *Manager) SetKernelArg(k *Kernel, index int, value any) error {
	ctx, err := m.activeContext("setarg")
	if err != nil {
		return err
	}
	if k == nil {
		return &Error{Component: "manager", Op: "setarg", Detail: "nil kernel", Err: ErrInvalidUsage}
	}
	if k.ctx != ctx {
		return &Error{Component: "manager", Op: "setarg", Detail: "kernel was compiled for another context", Err: ErrInvalidUsage}
	}
	return k.SetArg(index, value)
}

// EnqueueRange submits k over the global and local work ranges on the
// active context's queue and blocks until the queue reports completion.
// The context's profiling event records the operation's timestamps. A nil
// local range lets the backend pick the work-group size.
func (m *Manager) EnqueueRange(k *Kernel, global, local []uint64) error {
	ctx, err := m.activeContext("enqueue")
	if err != nil {
		return err
	}
	if k == nil {
		return &Error{Component: "manager", Op: "enqueue", Detail: "nil kernel", Err: ErrInvalidUsage}
	}
	if k.ctx != ctx {
		return &Error{Component: "manager", Op: "enqueue", Detail: "kernel was compiled for another context", Err: ErrInvalidUsage}
	}
	if len(global) == 0 {
		return &Error{Component: "manager", Op: "enqueue", Detail: "empty global range", Err: ErrInvalidUsage}
	}
	if len(local) > 0 && len(local) != len(global) {
		return &Error{Component: "manager", Op: "enqueue", Detail: "local range dimensionality differs from global", Err: ErrInvalidUsage}
	}

	if err := ctx.queue.EnqueueKernel(k.kernel, global, local, ctx.event); err != nil {
		return &Error{Component: "manager", Op: "enqueue", Detail: k.entry, Err: err}
	}
	if err := ctx.queue.Finish(); err != nil {
		return &Error{Component: "manager", Op: "enqueue", Detail: k.entry + " finish", Err: err}
	}

	ctx.timed = true
	return nil
}

// ElapsedTime returns the device-side duration of the last completed
// operation on the active context, logged under label.
func (m *Manager) ElapsedTime(label string) (time.Duration, error) {
	ctx, err := m.activeContext("elapsed")
	if err != nil {
		return 0, err
	}
	d, err := m.queues.ElapsedTime(ctx)
	if err != nil {
		return 0, err
	}
	slog.Debug("kernel timing", "label", label, "elapsed", d)
	return d, nil
}

// Close tears the manager down in reverse dependency order: kernels
// first, then queues and events, then contexts, then the device metadata.
// Close is idempotent; any later operation fails with ErrInvalidUsage.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.contexts.Deactivate()

	var errs []error
	if err := m.compiler.releaseAll(); err != nil {
		errs = append(errs, err)
	}

	contexts := m.contexts.Contexts()
	for _, ctx := range contexts {
		if ctx.event != nil {
			if err := ctx.event.Release(); err != nil {
				errs = append(errs, err)
			}
			ctx.event = nil
		}
		if ctx.queue != nil {
			if err := ctx.queue.Release(); err != nil {
				errs = append(errs, err)
			}
			ctx.queue = nil
		}
	}
	for _, ctx := range contexts {
		if ctx.backend != nil {
			if err := ctx.backend.Release(); err != nil {
				errs = append(errs, err)
			}
			ctx.backend = nil
		}
	}

	m.contexts.clear()
	m.registry.clear()

	slog.Debug("compute manager closed", "backend", m.backend.Name())
	return errors.Join(errs...)
}
