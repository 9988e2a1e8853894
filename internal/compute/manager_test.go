package compute

import (
	"errors"
	"testing"
	"time"
)

// newTestManager builds and initializes a manager on a mock backend.
func newTestManager(t *testing.T, devices ...Device) (*Manager, *MockBackend) {
	t.Helper()

	backend := NewMockBackend(devices...)
	m := New(backend)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, backend
}

// TestManagerLifecycle walks the full path a simulation run takes:
// discover, activate, allocate, compile, enqueue, time, free, tear down.
func TestManagerLifecycle(t *testing.T) {
	m, _ := newTestManager(t, testCPU("host-cpu", 8<<30), testGPU("sim-gpu", 4<<30))

	if got := len(m.Devices()); got != 2 {
		t.Fatalf("got %d devices, want 2", got)
	}
	if got := len(m.Contexts()); got != 2 {
		t.Fatalf("got %d contexts, want 2", got)
	}
	gpus := m.ContextsByKind(DeviceGPU)
	if len(gpus) != 1 {
		t.Fatalf("got %d GPU contexts, want 1", len(gpus))
	}

	gpu := gpus[0]
	if gpu.Capacity() != 4<<30 {
		t.Errorf("GPU budget capacity %d, want 4 GiB", gpu.Capacity())
	}
	if gpu.Used() != 0 {
		t.Errorf("fresh GPU context has %d bytes in use", gpu.Used())
	}

	if err := m.ActivateContext(gpu.ID()); err != nil {
		t.Fatalf("ActivateContext failed: %v", err)
	}

	buf, err := m.Allocate(64<<20, MemReadWrite)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if gpu.Used() != 64<<20 {
		t.Errorf("used %d after allocation, want 64 MiB", gpu.Used())
	}

	path := writeKernelSource(t, "primaries.cl", primariesSource)
	k, err := m.CompileKernel(path, "transport_primaries", CompileOptions{})
	if err != nil {
		t.Fatalf("CompileKernel failed: %v", err)
	}
	if err := m.SetKernelArg(k, 0, buf); err != nil {
		t.Fatalf("SetKernelArg(buffer) failed: %v", err)
	}
	if err := m.SetKernelArg(k, 1, uint32(8)); err != nil {
		t.Fatalf("SetKernelArg(scalar) failed: %v", err)
	}

	if err := m.EnqueueRange(k, []uint64{1 << 20}, nil); err != nil {
		t.Fatalf("EnqueueRange failed: %v", err)
	}

	elapsed, err := m.ElapsedTime("transport")
	if err != nil {
		t.Fatalf("ElapsedTime failed: %v", err)
	}
	if elapsed <= 0 {
		t.Errorf("elapsed %v, want a positive duration", elapsed)
	}

	if err := m.Deallocate(buf, 64<<20); err != nil {
		t.Fatalf("Deallocate failed: %v", err)
	}
	if gpu.Used() != 0 {
		t.Errorf("used %d after free, want 0", gpu.Used())
	}

	m.Deactivate()
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Close is terminal and idempotent.
	if err := m.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, err := m.Allocate(1<<10, MemReadWrite); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("Allocate after Close returned %v, want ErrInvalidUsage", err)
	}
	if err := m.ActivateContext(0); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("ActivateContext after Close returned %v, want ErrInvalidUsage", err)
	}
	if got := len(m.Devices()); got != 0 {
		t.Errorf("%d devices survive Close", got)
	}
	m.Deactivate()
}

func TestManagerRequiresInitialize(t *testing.T) {
	m := New(NewMockBackend(testCPU("cpu0", 8<<30)))

	if _, err := m.Allocate(1<<10, MemReadWrite); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("Allocate returned %v, want ErrInvalidUsage", err)
	}
	if err := m.ActivateContext(0); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("ActivateContext returned %v, want ErrInvalidUsage", err)
	}
	if _, err := m.CompileKernel("primaries.cl", "init_primaries", CompileOptions{}); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("CompileKernel returned %v, want ErrInvalidUsage", err)
	}
	if _, err := m.ElapsedTime("x"); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("ElapsedTime returned %v, want ErrInvalidUsage", err)
	}
}

func TestManagerInitializeTwice(t *testing.T) {
	m, _ := newTestManager(t, testCPU("cpu0", 8<<30))

	if err := m.Initialize(); !errors.Is(err, ErrInvalidUsage) {
		t.Fatalf("second Initialize returned %v, want ErrInvalidUsage", err)
	}
}

func TestManagerInitializeNoUsableDevices(t *testing.T) {
	busy := testGPU("gpu0", 4<<30)
	busy.Available = false

	m := New(NewMockBackend(busy))
	if err := m.Initialize(); !errors.Is(err, ErrNoDevices) {
		t.Fatalf("Initialize returned %v, want ErrNoDevices", err)
	}
}

func TestManagerOperationsRequireActiveContext(t *testing.T) {
	m, _ := newTestManager(t, testCPU("cpu0", 8<<30))
	path := writeKernelSource(t, "primaries.cl", primariesSource)

	if _, err := m.Allocate(1<<10, MemReadWrite); !errors.Is(err, ErrNoActiveContext) {
		t.Errorf("Allocate returned %v, want ErrNoActiveContext", err)
	}
	if _, err := m.CompileKernel(path, "init_primaries", CompileOptions{}); !errors.Is(err, ErrNoActiveContext) {
		t.Errorf("CompileKernel returned %v, want ErrNoActiveContext", err)
	}
	if err := m.EnqueueRange(nil, []uint64{64}, nil); !errors.Is(err, ErrNoActiveContext) {
		t.Errorf("EnqueueRange returned %v, want ErrNoActiveContext", err)
	}
	if _, err := m.ElapsedTime("x"); !errors.Is(err, ErrNoActiveContext) {
		t.Errorf("ElapsedTime returned %v, want ErrNoActiveContext", err)
	}
}

func TestManagerDeallocateNeedsNoActiveContext(t *testing.T) {
	m, _ := newTestManager(t, testCPU("cpu0", 8<<30))
	ctx := m.Contexts()[0]

	if err := m.ActivateContext(0); err != nil {
		t.Fatalf("ActivateContext failed: %v", err)
	}
	buf, err := m.Allocate(1<<20, MemReadWrite)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	m.Deactivate()

	// The buffer knows its owning context.
	if err := m.Deallocate(buf, 1<<20); err != nil {
		t.Fatalf("Deallocate without active context failed: %v", err)
	}
	if ctx.Used() != 0 {
		t.Errorf("used %d after free, want 0", ctx.Used())
	}

	if err := m.Deallocate(nil, 1<<20); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("nil buffer returned %v, want ErrInvalidUsage", err)
	}
}

func TestManagerEnqueueValidation(t *testing.T) {
	m, _ := newTestManager(t, testGPU("gpu0", 4<<30))
	path := writeKernelSource(t, "primaries.cl", primariesSource)

	if err := m.ActivateContext(0); err != nil {
		t.Fatalf("ActivateContext failed: %v", err)
	}
	k, err := m.CompileKernel(path, "init_primaries", CompileOptions{})
	if err != nil {
		t.Fatalf("CompileKernel failed: %v", err)
	}

	if err := m.EnqueueRange(nil, []uint64{64}, nil); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("nil kernel returned %v, want ErrInvalidUsage", err)
	}
	if err := m.EnqueueRange(k, nil, nil); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("empty global range returned %v, want ErrInvalidUsage", err)
	}
	if err := m.EnqueueRange(k, []uint64{64, 64}, []uint64{8}); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("mismatched local range returned %v, want ErrInvalidUsage", err)
	}
	if err := m.EnqueueRange(k, []uint64{0}, nil); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("zero-size dimension returned %v, want ErrInvalidUsage", err)
	}

	// None of the rejected submissions completed an operation.
	if _, err := m.ElapsedTime("none"); !errors.Is(err, ErrNoTiming) {
		t.Errorf("ElapsedTime returned %v, want ErrNoTiming", err)
	}
}

func TestManagerRejectsForeignKernel(t *testing.T) {
	m, _ := newTestManager(t, testCPU("cpu0", 8<<30), testGPU("gpu0", 4<<30))
	path := writeKernelSource(t, "primaries.cl", primariesSource)

	if err := m.ActivateContext(0); err != nil {
		t.Fatalf("ActivateContext(0) failed: %v", err)
	}
	k, err := m.CompileKernel(path, "init_primaries", CompileOptions{})
	if err != nil {
		t.Fatalf("CompileKernel failed: %v", err)
	}
	m.Deactivate()

	if err := m.ActivateContext(1); err != nil {
		t.Fatalf("ActivateContext(1) failed: %v", err)
	}
	if err := m.SetKernelArg(k, 0, uint32(1)); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("SetKernelArg returned %v, want ErrInvalidUsage", err)
	}
	if err := m.EnqueueRange(k, []uint64{64}, nil); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("EnqueueRange returned %v, want ErrInvalidUsage", err)
	}
}

func TestManagerElapsedTracksLastOperation(t *testing.T) {
	m, _ := newTestManager(t, testGPU("gpu0", 4<<30))
	path := writeKernelSource(t, "primaries.cl", primariesSource)

	if err := m.ActivateContext(0); err != nil {
		t.Fatalf("ActivateContext failed: %v", err)
	}
	k, err := m.CompileKernel(path, "init_primaries", CompileOptions{})
	if err != nil {
		t.Fatalf("CompileKernel failed: %v", err)
	}

	if _, err := m.ElapsedTime("before"); !errors.Is(err, ErrNoTiming) {
		t.Fatalf("ElapsedTime before first enqueue returned %v, want ErrNoTiming", err)
	}

	// The mock clock charges one nanosecond per work item, so the
	// reported duration tracks the size of the last submitted range.
	if err := m.EnqueueRange(k, []uint64{256}, nil); err != nil {
		t.Fatalf("first EnqueueRange failed: %v", err)
	}
	d, err := m.ElapsedTime("first")
	if err != nil {
		t.Fatalf("ElapsedTime failed: %v", err)
	}
	if d != 256*time.Nanosecond {
		t.Errorf("elapsed %v, want 256ns", d)
	}

	if err := m.EnqueueRange(k, []uint64{16, 32}, []uint64{4, 4}); err != nil {
		t.Fatalf("second EnqueueRange failed: %v", err)
	}
	d, err = m.ElapsedTime("second")
	if err != nil {
		t.Fatalf("ElapsedTime failed: %v", err)
	}
	if d != 512*time.Nanosecond {
		t.Errorf("elapsed %v, want 512ns", d)
	}
}

func TestManagerCloseReleasesResources(t *testing.T) {
	m, _ := newTestManager(t, testGPU("gpu0", 4<<30))
	path := writeKernelSource(t, "primaries.cl", primariesSource)

	if err := m.ActivateContext(0); err != nil {
		t.Fatalf("ActivateContext failed: %v", err)
	}
	k, err := m.CompileKernel(path, "init_primaries", CompileOptions{})
	if err != nil {
		t.Fatalf("CompileKernel failed: %v", err)
	}

	ctx := m.Contexts()[0]
	backendCtx := ctx.backend.(*mockContext)
	backendKernel := k.kernel.(*mockKernel)
	backendQueue := ctx.queue.(*mockQueue)
	backendEvent := ctx.event.(*mockEvent)

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !backendKernel.released {
		t.Error("kernel not released")
	}
	if !backendQueue.released {
		t.Error("queue not released")
	}
	if !backendEvent.released {
		t.Error("event not released")
	}
	if !backendCtx.released {
		t.Error("context not released")
	}
	if m.ActiveContext() != nil {
		t.Error("a context is still active after Close")
	}
}
