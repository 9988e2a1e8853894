package compute

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// MockBackend is an in-memory Backend implementation for development and
// tests. It models real driver behavior deterministically: allocations
// beyond a device's global memory fail the way a driver would, sources
// containing an #error directive fail to build with a compiler-style log,
// unknown entry points are rejected, and each enqueued kernel advances a
// fake device clock by one nanosecond per work item.
type MockBackend struct {
	devices     []Device
	builds      int
	lastOptions string
}

// NewMockBackend returns a mock exposing the given devices in order. With
// no arguments it exposes a single CPU device shaped after the host.
func NewMockBackend(devices ...Device) *MockBackend {
	if len(devices) == 0 {
		devices = []Device{hostCPUDevice()}
	}
	return &MockBackend{devices: devices}
}

// hostCPUDevice shapes a plausible mock device after the host CPU.
func hostCPUDevice() Device {
	return Device{
		Kind:             DeviceCPU,
		Name:             "Mock CPU (" + runtime.GOARCH + ")",
		Vendor:           "dosetrace",
		Platform:         "Mock Platform",
		DriverVersion:    "1.0",
		RuntimeVersion:   "OpenCL 1.2 mock",
		GlobalMemory:     8 << 30,
		LocalMemory:      64 << 10,
		MaxAllocation:    2 << 30,
		ComputeUnits:     uint32(runtime.NumCPU()),
		MaxWorkGroupSize: 1024,
		Available:        true,
		Profiling:        true,
	}
}

// BuildCount reports how many program builds the backend has performed.
func (b *MockBackend) BuildCount() int { return b.builds }

// LastBuildOptions reports the option string of the most recent build.
func (b *MockBackend) LastBuildOptions() string { return b.lastOptions }

func (b *MockBackend) Name() string { return "mock" }

func (b *MockBackend) Devices() ([]Device, error) {
	out := make([]Device, len(b.devices))
	copy(out, b.devices)
	return out, nil
}

func (b *MockBackend) CreateContext(dev Device) (BackendContext, error) {
	if !dev.Available {
		return nil, CheckStatus(-2, "clCreateContext")
	}
	return &mockContext{backend: b, device: dev}, nil
}

type mockContext struct {
	backend   *MockBackend
	device    Device
	allocated uint64
	clock     int64
	released  bool
}

func (c *mockContext) CreateQueue(profiling bool) (BackendQueue, error) {
	return &mockQueue{ctx: c, profiling: profiling}, nil
}

func (c *mockContext) CreateEvent() (BackendEvent, error) {
	return &mockEvent{}, nil
}

func (c *mockContext) AllocateBuffer(size uint64, flags MemFlag) (BackendBuffer, error) {
	if size > c.device.MaxAllocation && c.device.MaxAllocation > 0 {
		return nil, CheckStatus(-61, "clCreateBuffer")
	}
	if c.allocated+size > c.device.GlobalMemory {
		return nil, CheckStatus(-4, "clCreateBuffer")
	}
	c.allocated += size
	return &mockBuffer{ctx: c, size: size, flags: flags}, nil
}

// CompileProgram counts every build. Sources containing an #error
// directive fail with a compiler-style log, mirroring a real kernel
// compiler.
func (c *mockContext) CompileProgram(source, options string) (BackendProgram, error) {
	c.backend.builds++
	c.backend.lastOptions = options
	if msg, ok := findErrorDirective(source); ok {
		if msg == "" {
			msg = "#error directive"
		}
		log := fmt.Sprintf("<kernel>:1:2: error: %s\n1 error generated.", msg)
		return nil, &BuildError{Options: options, Log: log}
	}
	return &mockProgram{source: source}, nil
}

func (c *mockContext) Release() error {
	c.released = true
	return nil
}

// findErrorDirective scans source for a preprocessor #error line.
func findErrorDirective(source string) (string, bool) {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#error") {
			return strings.Trim(strings.TrimSpace(strings.TrimPrefix(trimmed, "#error")), `"`), true
		}
	}
	return "", false
}

type mockProgram struct {
	source   string
	released bool
}

func (p *mockProgram) CreateKernel(entry string) (BackendKernel, error) {
	if !strings.Contains(p.source, entry) {
		return nil, CheckStatus(-46, "clCreateKernel")
	}
	return &mockKernel{entry: entry, args: make(map[int]any)}, nil
}

func (p *mockProgram) Release() error {
	p.released = true
	return nil
}

type mockKernel struct {
	entry    string
	args     map[int]any
	released bool
}

func (k *mockKernel) SetArg(index int, value any) error {
	if index < 0 {
		return CheckStatus(-49, "clSetKernelArg")
	}
	k.args[index] = value
	return nil
}

func (k *mockKernel) Release() error {
	k.released = true
	return nil
}

type mockQueue struct {
	ctx       *mockContext
	profiling bool
	released  bool
}

// EnqueueKernel charges one nanosecond of fake device time per work item
// and records the window into ev when profiling is on.
func (q *mockQueue) EnqueueKernel(k BackendKernel, global, local []uint64, ev BackendEvent) error {
	if k == nil {
		return CheckStatus(-48, "clEnqueueNDRangeKernel")
	}
	if len(global) == 0 || len(global) > 3 {
		return CheckStatus(-53, "clEnqueueNDRangeKernel")
	}
	items := uint64(1)
	for _, g := range global {
		if g == 0 {
			return CheckStatus(-63, "clEnqueueNDRangeKernel")
		}
		items *= g
	}
	for _, l := range local {
		if l == 0 {
			return CheckStatus(-55, "clEnqueueNDRangeKernel")
		}
	}

	start := q.ctx.clock
	q.ctx.clock += int64(items)
	if q.profiling {
		if e, ok := ev.(*mockEvent); ok && e != nil {
			e.start = start
			e.end = q.ctx.clock
			e.recorded = true
		}
	}
	return nil
}

func (q *mockQueue) Finish() error { return nil }

func (q *mockQueue) Release() error {
	q.released = true
	return nil
}

type mockEvent struct {
	start    int64
	end      int64
	recorded bool
	released bool
}

func (e *mockEvent) Elapsed() (time.Duration, error) {
	if !e.recorded {
		return 0, CheckStatus(-7, "clGetEventProfilingInfo")
	}
	return time.Duration(e.end - e.start), nil
}

func (e *mockEvent) Release() error {
	e.released = true
	return nil
}

type mockBuffer struct {
	ctx      *mockContext
	size     uint64
	flags    MemFlag
	released bool
}

func (b *mockBuffer) Release() error {
	if !b.released {
		b.ctx.allocated -= b.size
		b.released = true
	}
	return nil
}
