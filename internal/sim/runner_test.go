package sim

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/dosetrace/internal/compute"
)

const testKernelSource = `__kernel void init_primaries(__global float *dose,
                             const uint voxels,
                             __global uint *rng_states,
                             const uint seed,
                             const uint particles)
{
}

__kernel void transport_primaries(__global float *dose,
                                  __global uint *rng_states,
                                  const uint particles,
                                  const uint nx,
                                  const uint ny,
                                  const uint nz,
                                  const float voxel_size,
                                  const float energy,
                                  const float mu)
{
}
`

// writeTestKernels creates a kernel directory holding primaries.cl.
func writeTestKernels(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "primaries.cl"), []byte(testKernelSource), 0o644); err != nil {
		t.Fatalf("writing kernel source: %v", err)
	}
	return dir
}

// testRunConfig returns a small mock-backed run configuration.
func testRunConfig(kernelDir string) Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.KernelDir = kernelDir
	cfg.Particles = 1000
	cfg.BatchSize = 256
	cfg.Seed = 42
	cfg.GridX, cfg.GridY, cfg.GridZ = 4, 4, 4
	return cfg
}

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()

	backend, err := NewBackend(cfg)
	if err != nil {
		t.Fatalf("NewBackend failed: %v", err)
	}
	return NewRunner(cfg, compute.New(backend))
}

func TestRunnerFullRun(t *testing.T) {
	cfg := testRunConfig(writeTestKernels(t))
	r := newTestRunner(t, cfg)

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Backend != "mock" {
		t.Errorf("backend %q, want mock", report.Backend)
	}
	if report.DeviceKind != string(compute.DeviceCPU) {
		t.Errorf("device kind %q, want CPU", report.DeviceKind)
	}
	if report.Seed != 42 {
		t.Errorf("seed %d, want 42", report.Seed)
	}
	if report.Batches != 4 {
		t.Fatalf("got %d batches, want 4", report.Batches)
	}
	if len(report.BatchTimes) != 4 {
		t.Fatalf("got %d batch timings, want 4", len(report.BatchTimes))
	}

	// 1000 particles in batches of 256 run as 256+256+256+232, and the
	// mock device charges one nanosecond per particle.
	wantSizes := []uint64{256, 256, 256, 232}
	var sum uint64
	for i, bt := range report.BatchTimes {
		if bt.Particles != wantSizes[i] {
			t.Errorf("batch %d ran %d particles, want %d", i, bt.Particles, wantSizes[i])
		}
		if bt.Kernel != time.Duration(wantSizes[i])*time.Nanosecond {
			t.Errorf("batch %d kernel time %v, want %dns", i, bt.Kernel, wantSizes[i])
		}
		sum += bt.Particles
	}
	if sum != cfg.Particles {
		t.Errorf("batches cover %d particles, want %d", sum, cfg.Particles)
	}

	// The init pass spans max(voxels, batch) = 256 work items.
	wantKernel := time.Duration(256+1000) * time.Nanosecond
	if report.KernelTime != wantKernel {
		t.Errorf("kernel time %v, want %v", report.KernelTime, wantKernel)
	}
	if report.WallTime <= 0 {
		t.Errorf("wall time %v", report.WallTime)
	}
	if report.Throughput <= 0 {
		t.Errorf("throughput %v", report.Throughput)
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Error("report finished before it started")
	}
}

func TestRunnerProgressCallback(t *testing.T) {
	cfg := testRunConfig(writeTestKernels(t))
	r := newTestRunner(t, cfg)

	var events []Progress
	r.OnProgress(func(p Progress) { events = append(events, p) })

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(events) != 4 {
		t.Fatalf("got %d progress events, want 4", len(events))
	}
	last := events[len(events)-1]
	if last.Particles != cfg.Particles {
		t.Errorf("final progress covers %d particles, want %d", last.Particles, cfg.Particles)
	}
	if last.Batch != 3 || last.Batches != 4 {
		t.Errorf("final progress batch %d of %d, want 3 of 4", last.Batch, last.Batches)
	}
}

func TestRunnerDiagnosticsOutput(t *testing.T) {
	cfg := testRunConfig(writeTestKernels(t))
	cfg.PrintDevices = true
	cfg.PrintContexts = true
	cfg.PrintRAM = true
	cfg.PrintQueues = true

	r := newTestRunner(t, cfg)
	var buf bytes.Buffer
	r.SetDiagnostics(&buf)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Mock CPU") {
		t.Errorf("diagnostics are missing the device name:\n%s", buf.String())
	}
}

func TestRunnerHonorsCancellation(t *testing.T) {
	cfg := testRunConfig(writeTestKernels(t))
	r := newTestRunner(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestRunnerRejectsInvalidConfig(t *testing.T) {
	cfg := testRunConfig(writeTestKernels(t))
	cfg.Particles = 0

	r := newTestRunner(t, cfg)
	if _, err := r.Run(context.Background()); !errors.Is(err, compute.ErrInvalidUsage) {
		t.Fatalf("got %v, want ErrInvalidUsage", err)
	}
}

func TestRunnerNoMatchingDeviceKind(t *testing.T) {
	cfg := testRunConfig(writeTestKernels(t))
	cfg.DeviceKind = KindGPU

	// The default mock backend exposes a CPU only.
	r := newTestRunner(t, cfg)
	if _, err := r.Run(context.Background()); !errors.Is(err, compute.ErrNoDevices) {
		t.Fatalf("got %v, want ErrNoDevices", err)
	}
}

func TestRunnerMissingKernelSource(t *testing.T) {
	cfg := testRunConfig(t.TempDir())

	r := newTestRunner(t, cfg)
	if _, err := r.Run(context.Background()); !errors.Is(err, compute.ErrSourceNotFound) {
		t.Fatalf("got %v, want ErrSourceNotFound", err)
	}
}
