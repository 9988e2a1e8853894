// Package compute manages heterogeneous compute resources for a
// simulation run: device discovery, per-device execution contexts,
// profiling command queues, memory budgets, and kernel compilation.
// Consumers talk to one Manager; the Manager talks to one Backend.
package compute

import "time"

// MemFlag controls the access mode of a device buffer allocation.
type MemFlag int

const (
	// MemReadWrite allocates a buffer kernels can both read and write.
	MemReadWrite MemFlag = iota
	// MemReadOnly allocates a buffer kernels may only read.
	MemReadOnly
	// MemWriteOnly allocates a buffer kernels may only write.
	MemWriteOnly
)

func (f MemFlag) String() string {
	switch f {
	case MemReadWrite:
		return "read-write"
	case MemReadOnly:
		return "read-only"
	case MemWriteOnly:
		return "write-only"
	default:
		return "unknown"
	}
}

// Backend abstracts a parallel-compute runtime. The OpenCL implementation
// lives behind the gpu build tag; MockBackend serves tests and development
// builds.
//
// Error handling conventions:
//   - Enumeration and resource calls return nil on success
//   - Raw driver failures surface as *StatusError via CheckStatus
//   - Failed program builds surface as *BuildError carrying the build log
type Backend interface {
	// Name identifies the backend implementation.
	Name() string

	// Devices enumerates every device on every platform in a stable
	// order. Devices the runtime reports unavailable are included with
	// Available=false, never dropped.
	Devices() ([]Device, error)

	// CreateContext creates an execution context bound to a single device.
	CreateContext(dev Device) (BackendContext, error)
}

// BackendContext is an isolated execution environment on one device.
type BackendContext interface {
	// CreateQueue creates a command queue on the context, with operation
	// profiling enabled when requested.
	CreateQueue(profiling bool) (BackendQueue, error)

	// CreateEvent creates an empty profiling event. Each enqueue on the
	// context's queue overwrites its timestamps.
	CreateEvent() (BackendEvent, error)

	// AllocateBuffer reserves size bytes of device memory.
	AllocateBuffer(size uint64, flags MemFlag) (BackendBuffer, error)

	// CompileProgram builds kernel source with the given option string.
	CompileProgram(source, options string) (BackendProgram, error)

	Release() error
}

// BackendQueue is the ordered submission channel for work on one context.
type BackendQueue interface {
	// EnqueueKernel submits k over the global/local work ranges and
	// records the operation's profiling timestamps into ev.
	EnqueueKernel(k BackendKernel, global, local []uint64, ev BackendEvent) error

	// Finish blocks until every enqueued operation has completed.
	Finish() error

	Release() error
}

// BackendEvent captures the profiling timestamps of the most recently
// enqueued operation on its context's queue.
type BackendEvent interface {
	// Elapsed returns the device-side duration between the recorded
	// start and end timestamps.
	Elapsed() (time.Duration, error)

	Release() error
}

// BackendProgram is a compiled kernel source.
type BackendProgram interface {
	// CreateKernel resolves an entry point of the compiled program.
	CreateKernel(entry string) (BackendKernel, error)

	Release() error
}

// BackendKernel is an executable entry point of a compiled program.
type BackendKernel interface {
	// SetArg binds value to the argument slot at index.
	SetArg(index int, value any) error

	Release() error
}

// BackendBuffer is a raw device memory allocation.
type BackendBuffer interface {
	Release() error
}
