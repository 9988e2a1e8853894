package compute

import (
	"fmt"
	"log/slog"
)

// Buffer is a device memory allocation tracked against its owning
// context's budget. Buffers are created only through Allocate and
// released only through Deallocate; they have no lifetime of their own.
type Buffer struct {
	handle BackendBuffer
	size   uint64
	ctx    *Context
	freed  bool
}

// Size returns the byte size recorded at allocation time.
func (b *Buffer) Size() uint64 { return b.size }

// Context returns the context the buffer was allocated on.
func (b *Buffer) Context() *Context { return b.ctx }

// BudgetTracker enforces the per-context memory budget: used bytes never
// exceed the device capacity, and the counter is adjusted only inside
// Allocate and Deallocate.
type BudgetTracker struct{}

// InitBudget zeroes ctx's usage counter and pins its capacity to the
// device's global memory size. Called once per context during
// initialization.
func (t *BudgetTracker) InitBudget(ctx *Context) {
	ctx.used = 0
	ctx.capacity = ctx.device.GlobalMemory
}

// Allocate requests size bytes on ctx. The budget is checked before the
// backend is invoked; on any failure the usage counter is left untouched,
// never partially adjusted.
func (t *BudgetTracker) Allocate(ctx *Context, size uint64, flags MemFlag) (*Buffer, error) {
	if size == 0 {
		return nil, &Error{Component: "budget", Op: "allocate", Detail: "zero-byte allocation", Err: ErrInvalidUsage}
	}
	if size > ctx.capacity-ctx.used {
		return nil, &Error{
			Component: "budget",
			Op:        "allocate",
			Detail:    fmt.Sprintf("%d bytes requested with %d of %d in use on context %d", size, ctx.used, ctx.capacity, ctx.id),
			Err:       ErrOutOfMemory,
		}
	}

	handle, err := ctx.backend.AllocateBuffer(size, flags)
	if err != nil {
		return nil, &Error{Component: "budget", Op: "allocate", Detail: fmt.Sprintf("%d bytes on context %d", size, ctx.id), Err: err}
	}

	ctx.used += size
	slog.Debug("buffer allocated", "context", ctx.id, "bytes", size, "flags", flags, "used", ctx.used)
	return &Buffer{handle: handle, size: size, ctx: ctx}, nil
}

// Deallocate releases buf and credits size bytes back to ctx's budget.
// Size must match the size recorded at allocation; it is not re-derived
// from the backend.
func (t *BudgetTracker) Deallocate(ctx *Context, buf *Buffer, size uint64) error {
	if buf == nil || buf.handle == nil {
		return &Error{Component: "budget", Op: "deallocate", Detail: "nil buffer", Err: ErrInvalidUsage}
	}
	if buf.freed {
		return &Error{Component: "budget", Op: "deallocate", Detail: "buffer already released", Err: ErrInvalidUsage}
	}
	if buf.ctx != ctx {
		return &Error{Component: "budget", Op: "deallocate", Detail: "buffer belongs to another context", Err: ErrInvalidUsage}
	}
	if size != buf.size {
		return &Error{
			Component: "budget",
			Op:        "deallocate",
			Detail:    fmt.Sprintf("size %d does not match allocation size %d", size, buf.size),
			Err:       ErrInvalidUsage,
		}
	}

	if err := buf.handle.Release(); err != nil {
		return &Error{Component: "budget", Op: "deallocate", Detail: fmt.Sprintf("%d bytes on context %d", size, ctx.id), Err: err}
	}

	ctx.used -= size
	buf.freed = true
	slog.Debug("buffer released", "context", ctx.id, "bytes", size, "used", ctx.used)
	return nil
}

// BudgetStatus is one row of the per-context usage report.
type BudgetStatus struct {
	ContextID int
	Device    string
	Used      uint64
	Capacity  uint64
	Percent   float64
}

// Status reports the current usage of every given context.
func (t *BudgetTracker) Status(contexts []*Context) []BudgetStatus {
	out := make([]BudgetStatus, 0, len(contexts))
	for _, ctx := range contexts {
		var pct float64
		if ctx.capacity > 0 {
			pct = float64(ctx.used) / float64(ctx.capacity) * 100
		}
		out = append(out, BudgetStatus{
			ContextID: ctx.id,
			Device:    ctx.device.Name,
			Used:      ctx.used,
			Capacity:  ctx.capacity,
			Percent:   pct,
		})
	}
	return out
}
