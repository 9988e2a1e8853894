package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cwbudde/dosetrace/internal/compute"
)

const kernelFile = "primaries.cl"

// Progress reports the state of a run after one completed batch.
type Progress struct {
	Batch     int           `json:"batch"`
	Batches   int           `json:"batches"`
	Particles uint64        `json:"particles"`
	Total     uint64        `json:"total"`
	Kernel    time.Duration `json:"kernelNs"`
}

// Runner drives one simulation run on one compute manager. It owns the
// manager's whole lifecycle: Run initializes it and tears it down again.
type Runner struct {
	cfg      Config
	manager  *compute.Manager
	diag     io.Writer
	progress func(Progress)
}

// NewRunner creates a runner for cfg on a fresh, uninitialized manager.
func NewRunner(cfg Config, manager *compute.Manager) *Runner {
	return &Runner{cfg: cfg, manager: manager, diag: io.Discard}
}

// SetDiagnostics directs the diagnostic tables enabled in the
// configuration to w.
func (r *Runner) SetDiagnostics(w io.Writer) { r.diag = w }

// OnProgress registers cb to run after every completed batch.
func (r *Runner) OnProgress(cb func(Progress)) { r.progress = cb }

// Run executes the configured simulation and returns its report. The
// context is honored between batches; work already submitted to the
// device always drains.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	seed, err := r.cfg.ResolveSeed()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	if err := r.manager.Initialize(); err != nil {
		return nil, err
	}
	defer r.manager.Close()

	total, free := HostMemory()
	slog.Info("starting run",
		"backend", r.manager.BackendName(),
		"particles", r.cfg.Particles,
		"batch", r.cfg.BatchSize,
		"seed", seed,
		"hostRAMTotal", total,
		"hostRAMFree", free,
		"cpuFeatures", compute.HostCPUFeatures(),
	)
	if r.cfg.PrintDevices {
		r.manager.PrintDeviceInfo(r.diag)
	}

	exec, err := selectContext(r.manager, r.cfg.DeviceKind, r.cfg.DeviceIndex)
	if err != nil {
		return nil, err
	}
	if err := r.manager.ActivateContext(exec.ID()); err != nil {
		return nil, err
	}
	if r.cfg.PrintContexts {
		r.manager.PrintContextInfo(r.diag)
	}
	if r.cfg.PrintQueues {
		r.manager.PrintCommandQueueInfo(r.diag)
	}

	report, err := r.transport(ctx, exec, seed)
	if err != nil {
		return nil, err
	}

	r.manager.Deactivate()
	if err := r.manager.Close(); err != nil {
		return nil, err
	}

	report.StartedAt = started
	report.FinishedAt = time.Now()
	report.WallTime = report.FinishedAt.Sub(started)
	if s := report.WallTime.Seconds(); s > 0 {
		report.Throughput = float64(report.Particles) / s
	}

	slog.Info("run complete",
		"device", report.Device,
		"particles", report.Particles,
		"batches", report.Batches,
		"kernelTime", report.KernelTime,
		"wallTime", report.WallTime,
	)
	return report, nil
}

// transport allocates the run's buffers, compiles both kernel entry
// points, and pushes every batch through the active context.
func (r *Runner) transport(ctx context.Context, exec *compute.Context, seed uint64) (*Report, error) {
	cfg := r.cfg
	voxels := uint64(cfg.GridX) * uint64(cfg.GridY) * uint64(cfg.GridZ)
	batch := cfg.BatchSize
	if batch > cfg.Particles {
		batch = cfg.Particles
	}

	dose, err := r.manager.Allocate(voxels*4, compute.MemReadWrite)
	if err != nil {
		return nil, err
	}
	defer r.manager.Deallocate(dose, dose.Size())

	rng, err := r.manager.Allocate(batch*4, compute.MemReadWrite)
	if err != nil {
		return nil, err
	}
	defer r.manager.Deallocate(rng, rng.Size())

	source := filepath.Join(cfg.KernelDir, kernelFile)
	initKernel, err := r.manager.CompileKernel(source, "init_primaries", compute.CompileOptions{})
	if err != nil {
		return nil, err
	}
	transportKernel, err := r.manager.CompileKernel(source, "transport_primaries", compute.CompileOptions{})
	if err != nil {
		return nil, err
	}

	// Fold the 64-bit seed into the kernel's 32-bit state space.
	seed32 := uint32(seed ^ (seed >> 32))

	initArgs := []any{dose, uint32(voxels), rng, seed32, uint32(batch)}
	for i, v := range initArgs {
		if err := r.manager.SetKernelArg(initKernel, i, v); err != nil {
			return nil, err
		}
	}
	initRange := voxels
	if batch > initRange {
		initRange = batch
	}
	if err := r.manager.EnqueueRange(initKernel, []uint64{initRange}, nil); err != nil {
		return nil, err
	}
	kernelTime, err := r.manager.ElapsedTime("init_primaries")
	if err != nil {
		return nil, err
	}

	fixedArgs := []any{dose, rng}
	for i, v := range fixedArgs {
		if err := r.manager.SetKernelArg(transportKernel, i, v); err != nil {
			return nil, err
		}
	}
	geomArgs := []any{cfg.GridX, cfg.GridY, cfg.GridZ, cfg.VoxelSize, cfg.Energy, cfg.Mu}
	for i, v := range geomArgs {
		if err := r.manager.SetKernelArg(transportKernel, 3+i, v); err != nil {
			return nil, err
		}
	}

	batches := int((cfg.Particles + batch - 1) / batch)
	report := &Report{
		Backend:    r.manager.BackendName(),
		Device:     exec.Device().Name,
		DeviceKind: string(exec.Device().Kind),
		Particles:  cfg.Particles,
		BatchSize:  batch,
		Batches:    batches,
		Seed:       seed,
		BatchTimes: make([]BatchTiming, 0, batches),
	}

	remaining := cfg.Particles
	for i := 0; i < batches; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("sim: run aborted before batch %d: %w", i, err)
		}

		size := batch
		if remaining < size {
			size = remaining
		}
		if err := r.manager.SetKernelArg(transportKernel, 2, uint32(size)); err != nil {
			return nil, err
		}
		if err := r.manager.EnqueueRange(transportKernel, []uint64{size}, nil); err != nil {
			return nil, err
		}
		elapsed, err := r.manager.ElapsedTime("transport_primaries")
		if err != nil {
			return nil, err
		}

		remaining -= size
		kernelTime += elapsed
		report.BatchTimes = append(report.BatchTimes, BatchTiming{Batch: i, Particles: size, Kernel: elapsed})
		slog.Debug("batch complete", "batch", i, "particles", size, "kernel", elapsed)

		if r.progress != nil {
			r.progress(Progress{
				Batch:     i,
				Batches:   batches,
				Particles: cfg.Particles - remaining,
				Total:     cfg.Particles,
				Kernel:    elapsed,
			})
		}
	}
	report.KernelTime = kernelTime

	if cfg.PrintRAM {
		r.manager.PrintRAMStatus(r.diag)
	}
	return report, nil
}

// selectContext picks the execution context by device kind and index
// within that kind's group.
func selectContext(m *compute.Manager, kind string, index int) (*compute.Context, error) {
	var group []*compute.Context
	switch kind {
	case KindCPU:
		group = m.ContextsByKind(compute.DeviceCPU)
	case KindGPU:
		group = m.ContextsByKind(compute.DeviceGPU)
	case KindAny:
		group = m.Contexts()
	default:
		return nil, fmt.Errorf("sim: unknown device kind %q: %w", kind, compute.ErrInvalidUsage)
	}
	if len(group) == 0 {
		return nil, fmt.Errorf("sim: no %s context available: %w", kind, compute.ErrNoDevices)
	}
	if index < 0 || index >= len(group) {
		return nil, fmt.Errorf("sim: device index %d with %d %s contexts: %w", index, len(group), kind, compute.ErrInvalidUsage)
	}
	return group[index], nil
}
