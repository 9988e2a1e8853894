package compute

import (
	"errors"
	"testing"
)

// newTestContexts discovers the given devices and creates their contexts.
func newTestContexts(t *testing.T, devices ...Device) (*ContextManager, *MockBackend) {
	t.Helper()

	backend := NewMockBackend(devices...)
	r := NewRegistry(backend)
	if err := r.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	cm := NewContextManager()
	if err := cm.CreateContexts(backend, r.Devices()); err != nil {
		t.Fatalf("CreateContexts failed: %v", err)
	}
	return cm, backend
}

func TestCreateContextsPartitionsByKind(t *testing.T) {
	cm, _ := newTestContexts(t,
		testCPU("cpu0", 8<<30),
		testGPU("gpu0", 4<<30),
		testGPU("gpu1", 2<<30),
	)

	if got := len(cm.Contexts()); got != 3 {
		t.Fatalf("got %d contexts, want 3", got)
	}
	if got := len(cm.ByKind(DeviceCPU)); got != 1 {
		t.Errorf("got %d CPU contexts, want 1", got)
	}
	if got := len(cm.ByKind(DeviceGPU)); got != 2 {
		t.Errorf("got %d GPU contexts, want 2", got)
	}
	if cm.ByKind(DeviceAccelerator) != nil {
		t.Error("unexpected accelerator contexts")
	}
}

func TestUnavailableDeviceGetsNoContext(t *testing.T) {
	busy := testGPU("gpu0", 4<<30)
	busy.Available = false

	cm, _ := newTestContexts(t, testCPU("cpu0", 8<<30), busy)

	contexts := cm.Contexts()
	if len(contexts) != 1 {
		t.Fatalf("got %d contexts, want 1", len(contexts))
	}
	if contexts[0].Device().Name != "cpu0" {
		t.Errorf("context bound to %q, want cpu0", contexts[0].Device().Name)
	}
}

func TestSingleActiveContext(t *testing.T) {
	cm, _ := newTestContexts(t, testCPU("cpu0", 8<<30), testGPU("gpu0", 4<<30))

	if err := cm.Activate(0); err != nil {
		t.Fatalf("Activate(0) failed: %v", err)
	}
	if cm.Active() == nil || cm.Active().ID() != 0 {
		t.Fatal("context 0 is not active")
	}

	// A second activation must fail while the first is still active,
	// including re-activating the same context.
	if err := cm.Activate(1); !errors.Is(err, ErrContextActive) {
		t.Fatalf("Activate(1) returned %v, want ErrContextActive", err)
	}
	if err := cm.Activate(0); !errors.Is(err, ErrContextActive) {
		t.Fatalf("re-Activate(0) returned %v, want ErrContextActive", err)
	}
	if cm.Active().ID() != 0 {
		t.Error("failed activation changed the active context")
	}

	cm.Deactivate()
	if cm.Active() != nil {
		t.Fatal("context still active after Deactivate")
	}
	if err := cm.Activate(1); err != nil {
		t.Fatalf("Activate(1) after Deactivate failed: %v", err)
	}
	if cm.Active().ID() != 1 {
		t.Error("context 1 is not active")
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	cm, _ := newTestContexts(t, testCPU("cpu0", 8<<30))

	cm.Deactivate()
	cm.Deactivate()
	if cm.Active() != nil {
		t.Fatal("Deactivate with nothing active left a context active")
	}

	if err := cm.Activate(0); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	cm.Deactivate()
	cm.Deactivate()
	if cm.Active() != nil {
		t.Fatal("context still active after repeated Deactivate")
	}
}

func TestActivateUnknownContext(t *testing.T) {
	cm, _ := newTestContexts(t, testCPU("cpu0", 8<<30))

	if err := cm.Activate(3); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("Activate(3) returned %v, want ErrInvalidUsage", err)
	}
	if cm.Active() != nil {
		t.Error("failed activation left a context active")
	}
}

func TestContextIndex(t *testing.T) {
	cm, _ := newTestContexts(t, testCPU("cpu0", 8<<30), testGPU("gpu0", 4<<30))

	for i, ctx := range cm.Contexts() {
		if got := cm.Index(ctx); got != i {
			t.Errorf("Index of context %d = %d", i, got)
		}
	}
	if got := cm.Index(&Context{}); got != -1 {
		t.Errorf("Index of unknown context = %d, want -1", got)
	}
}
