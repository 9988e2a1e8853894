package compute

import (
	"errors"
	"testing"
)

// testCPU returns an available CPU device for tests.
func testCPU(name string, mem uint64) Device {
	return Device{
		Kind:             DeviceCPU,
		Name:             name,
		Vendor:           "test",
		Platform:         "Test Platform",
		GlobalMemory:     mem,
		LocalMemory:      64 << 10,
		MaxAllocation:    mem,
		ComputeUnits:     8,
		MaxWorkGroupSize: 1024,
		Available:        true,
		Profiling:        true,
	}
}

// testGPU returns an available GPU device for tests.
func testGPU(name string, mem uint64) Device {
	d := testCPU(name, mem)
	d.Kind = DeviceGPU
	return d
}

// emptyBackend reports no devices at all.
type emptyBackend struct{}

func (emptyBackend) Name() string { return "empty" }

func (emptyBackend) Devices() ([]Device, error) { return nil, nil }

func (emptyBackend) CreateContext(Device) (BackendContext, error) {
	return nil, CheckStatus(-33, "clCreateContext")
}

// failBackend fails enumeration itself.
type failBackend struct{}

func (failBackend) Name() string { return "fail" }

func (failBackend) Devices() ([]Device, error) {
	return nil, CheckStatus(-1001, "clGetPlatformIDs")
}
func (failBackend) CreateContext(Device) (BackendContext, error) {
	return nil, CheckStatus(-33, "clCreateContext")
}

func TestDiscoverAssignsPositionIDs(t *testing.T) {
	r := NewRegistry(NewMockBackend(
		testCPU("cpu0", 8<<30),
		testGPU("gpu0", 4<<30),
		testGPU("gpu1", 2<<30),
	))
	if err := r.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	devices := r.Devices()
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3", len(devices))
	}
	for i, dev := range devices {
		if dev.ID != i {
			t.Errorf("device %q has ID %d, want %d", dev.Name, dev.ID, i)
		}
	}
	if devices[0].Name != "cpu0" || devices[1].Name != "gpu0" || devices[2].Name != "gpu1" {
		t.Errorf("discovery order changed: %v", devices)
	}
}

func TestDiscoverIsIdempotent(t *testing.T) {
	r := NewRegistry(NewMockBackend(testCPU("cpu0", 8<<30)))
	if err := r.Discover(); err != nil {
		t.Fatalf("first Discover failed: %v", err)
	}
	first := r.Devices()

	if err := r.Discover(); err != nil {
		t.Fatalf("second Discover failed: %v", err)
	}
	second := r.Devices()

	if len(first) != len(second) {
		t.Fatalf("device count changed between calls: %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("device %d changed between calls", i)
		}
	}
}

func TestDiscoverKeepsUnavailableDevices(t *testing.T) {
	busy := testGPU("gpu0", 4<<30)
	busy.Available = false

	r := NewRegistry(NewMockBackend(testCPU("cpu0", 8<<30), busy))
	if err := r.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	devices := r.Devices()
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[1].Available {
		t.Error("unavailable device reported as available")
	}
}

func TestDiscoverZeroDevicesFails(t *testing.T) {
	r := NewRegistry(emptyBackend{})
	err := r.Discover()
	if !errors.Is(err, ErrNoDevices) {
		t.Fatalf("got %v, want ErrNoDevices", err)
	}
}

func TestDiscoverBackendFailure(t *testing.T) {
	r := NewRegistry(failBackend{})
	err := r.Discover()
	if err == nil {
		t.Fatal("Discover succeeded on a failing backend")
	}
	if !errors.Is(err, ErrNoDevices) {
		t.Fatalf("got %v, want the platform-not-found class", err)
	}
}

func TestDeviceLookup(t *testing.T) {
	r := NewRegistry(NewMockBackend(testCPU("cpu0", 8<<30)))
	if err := r.Discover(); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	dev, err := r.Device(0)
	if err != nil {
		t.Fatalf("Device(0) failed: %v", err)
	}
	if dev.Name != "cpu0" {
		t.Errorf("got device %q, want cpu0", dev.Name)
	}

	if _, err := r.Device(1); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("out-of-range lookup returned %v, want ErrInvalidUsage", err)
	}
	if _, err := r.Device(-1); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("negative lookup returned %v, want ErrInvalidUsage", err)
	}
}
