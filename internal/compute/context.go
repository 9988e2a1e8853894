package compute

import (
	"fmt"
	"log/slog"
)

// Context is an isolated execution environment bound to exactly one
// device. Its command queue, profiling event, and memory budget are
// attached by the manager during initialization and released with it.
type Context struct {
	id      int
	device  Device
	backend BackendContext
	queue   BackendQueue
	event   BackendEvent

	used     uint64
	capacity uint64

	// timed reports whether any enqueued operation has completed on this
	// context yet; elapsed-time queries are rejected until it flips.
	timed bool
}

// ID returns the context's position in the master context list.
func (c *Context) ID() int { return c.id }

// Device returns the device this context is bound to.
func (c *Context) Device() Device { return c.device }

// Used returns the bytes currently allocated against this context.
func (c *Context) Used() uint64 { return c.used }

// Capacity returns this context's memory budget in bytes.
func (c *Context) Capacity() uint64 { return c.capacity }

// ContextManager owns one context per available device and the explicit
// reference to the single active context. At most one context is active
// at any instant, process-wide; every resource operation consults that
// reference as its precondition.
type ContextManager struct {
	contexts []*Context
	cpu      []*Context
	gpu      []*Context
	active   *Context
}

// NewContextManager creates an empty context manager.
func NewContextManager() *ContextManager {
	return &ContextManager{}
}

// CreateContexts creates exactly one context per available device,
// partitioned into CPU and GPU groups for selection by kind. Devices
// reported unavailable keep their registry entries but get no context.
func (m *ContextManager) CreateContexts(backend Backend, devices []Device) error {
	for _, dev := range devices {
		if !dev.Available {
			slog.Warn("skipping unavailable device", "id", dev.ID, "name", dev.Name)
			continue
		}
		bctx, err := backend.CreateContext(dev)
		if err != nil {
			return &Error{Component: "context", Op: "create", Detail: dev.Name, Err: err}
		}
		ctx := &Context{
			id:      len(m.contexts),
			device:  dev,
			backend: bctx,
		}
		m.contexts = append(m.contexts, ctx)
		switch dev.Kind {
		case DeviceCPU:
			m.cpu = append(m.cpu, ctx)
		case DeviceGPU:
			m.gpu = append(m.gpu, ctx)
		}
		slog.Debug("context created", "id", ctx.id, "device", dev.Name, "kind", dev.Kind)
	}
	return nil
}

// Activate marks the context with the given ID active. It fails with
// ErrContextActive while another context holds the slot; callers must
// Deactivate first.
func (m *ContextManager) Activate(id int) error {
	if m.active != nil {
		return &Error{Component: "context", Op: "activate", Detail: fmt.Sprintf("context %d is active", m.active.id), Err: ErrContextActive}
	}
	ctx, err := m.Context(id)
	if err != nil {
		return err
	}
	m.active = ctx
	slog.Debug("context activated", "id", id, "device", ctx.device.Name)
	return nil
}

// Deactivate clears the active-context reference unconditionally.
// Deactivating with nothing active is a no-op.
func (m *ContextManager) Deactivate() {
	if m.active != nil {
		slog.Debug("context deactivated", "id", m.active.id)
	}
	m.active = nil
}

// Active returns the currently active context, or nil if none is active.
func (m *ContextManager) Active() *Context { return m.active }

// Context returns the context with the given ID.
func (m *ContextManager) Context(id int) (*Context, error) {
	if id < 0 || id >= len(m.contexts) {
		return nil, &Error{Component: "context", Op: "lookup", Detail: fmt.Sprintf("context id %d of %d", id, len(m.contexts)), Err: ErrInvalidUsage}
	}
	return m.contexts[id], nil
}

// Contexts returns every context in creation order.
func (m *ContextManager) Contexts() []*Context {
	out := make([]*Context, len(m.contexts))
	copy(out, m.contexts)
	return out
}

// ByKind returns the contexts bound to devices of the given kind.
func (m *ContextManager) ByKind(kind DeviceKind) []*Context {
	var group []*Context
	switch kind {
	case DeviceCPU:
		group = m.cpu
	case DeviceGPU:
		group = m.gpu
	default:
		return nil
	}
	out := make([]*Context, len(group))
	copy(out, group)
	return out
}

// Index returns the position of ctx in the master context list, or -1 if
// unknown. Linear scan; context counts track device counts and stay
// small.
func (m *ContextManager) Index(ctx *Context) int {
	for i, c := range m.contexts {
		if c == ctx {
			return i
		}
	}
	return -1
}

// clear drops every context reference. Called during manager teardown
// after the backend handles are released.
func (m *ContextManager) clear() {
	m.contexts = nil
	m.cpu = nil
	m.gpu = nil
	m.active = nil
}
