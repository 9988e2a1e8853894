package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/dosetrace/internal/compute"
	"github.com/cwbudde/dosetrace/internal/sim"
	"github.com/cwbudde/dosetrace/internal/store"
	"golang.org/x/sync/semaphore"
)

// worker executes submitted jobs. Every job gets its own goroutine, but a
// weight-1 semaphore admits one simulation at a time: a compute manager
// serves a single control thread, so the server serializes runs instead of
// sharing a manager across goroutines.
type worker struct {
	jm      *JobManager
	store   store.Store
	dataDir string
	sem     *semaphore.Weighted
}

// newWorker creates a worker for the given job manager. The store and
// data directory may be empty, in which case finished runs are not
// persisted (used by tests and by servers running without a store).
func newWorker(jm *JobManager, st store.Store, dataDir string) *worker {
	return &worker{
		jm:      jm,
		store:   st,
		dataDir: dataDir,
		sem:     semaphore.NewWeighted(1),
	}
}

// runJob executes a simulation job in the background, waiting for the
// device to become free first. The finished report and batch trace are
// persisted when the worker has a store.
func (w *worker) runJob(ctx context.Context, jobID string) error {
	job, exists := w.jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Wait for the device, one simulation at a time
	if err := w.sem.Acquire(ctx, 1); err != nil {
		markJobCancelled(w.jm, jobID)
		return err
	}
	defer w.sem.Release(1)

	// The job may have been cancelled while queued
	if current, ok := w.jm.GetJob(jobID); !ok || current.State != StatePending {
		return nil
	}

	err := w.jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job",
		"job_id", jobID,
		"backend", job.Config.Backend,
		"device_kind", job.Config.DeviceKind,
		"particles", job.Config.Particles,
	)

	backend, err := sim.NewBackend(job.Config)
	if err != nil {
		markJobFailed(w.jm, jobID, fmt.Errorf("failed to build backend: %w", err))
		return err
	}

	var trace *store.TraceWriter
	if w.dataDir != "" {
		trace, err = store.NewTraceWriter(w.dataDir, jobID, false)
		if err != nil {
			markJobFailed(w.jm, jobID, fmt.Errorf("failed to open trace: %w", err))
			return err
		}
		defer trace.Close()
	}

	start := time.Now()
	runner := sim.NewRunner(job.Config, compute.New(backend))
	var prevDone uint64
	runner.OnProgress(func(p sim.Progress) {
		w.jm.UpdateJob(jobID, func(j *Job) {
			j.BatchesDone = p.Batch + 1
			j.Batches = p.Batches
			j.ParticlesDone = p.Particles
			j.LastBatch = p.Kernel
		})

		var rate float64
		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			rate = float64(p.Particles) / elapsed
		}
		w.jm.broadcaster.Broadcast(ProgressEvent{
			JobID:              jobID,
			State:              StateRunning,
			Batch:              p.Batch,
			Batches:            p.Batches,
			ParticlesDone:      p.Particles,
			BatchKernel:        p.Kernel,
			ParticlesPerSecond: rate,
			Timestamp:          time.Now(),
		})

		if trace != nil {
			entry := store.TraceEntry{
				Batch:     p.Batch,
				Particles: p.Particles - prevDone,
				Kernel:    p.Kernel,
				Timestamp: time.Now(),
			}
			if err := trace.Write(entry); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
		prevDone = p.Particles
	})

	report, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			markJobCancelled(w.jm, jobID)
		} else {
			markJobFailed(w.jm, jobID, err)
		}
		return err
	}

	// Update job with results
	endTime := time.Now()
	err = w.jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Report = report
		j.BatchesDone = report.Batches
		j.Batches = report.Batches
		j.ParticlesDone = report.Particles
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	// Persistence failures do not fail the job, the results live on the job
	if err := w.saveReport(jobID, job.Config, report); err != nil {
		slog.Error("Failed to persist report", "job_id", jobID, "error", err)
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"device", report.Device,
		"particles", report.Particles,
		"kernel_time", report.KernelTime,
		"wall_time", report.WallTime,
		"particles_per_second", report.Throughput,
	)

	// Broadcast final completion event
	w.jm.broadcaster.Broadcast(ProgressEvent{
		JobID:              jobID,
		State:              StateCompleted,
		Batch:              report.Batches - 1,
		Batches:            report.Batches,
		ParticlesDone:      report.Particles,
		ParticlesPerSecond: report.Throughput,
		Timestamp:          time.Now(),
	})

	return nil
}

// saveReport persists the finished run, echoing the resolved seed into the
// stored configuration so a rerun reproduces the same particle histories.
func (w *worker) saveReport(jobID string, cfg sim.Config, report *sim.Report) error {
	if w.store == nil {
		return nil
	}

	cfg.Seed = report.Seed
	runReport := store.NewRunReport(jobID, cfg, *report)
	if err := w.store.SaveReport(jobID, runReport); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	slog.Debug("Report persisted", "job_id", jobID, "seed", report.Seed)
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateFailed,
		Timestamp: time.Now(),
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCancelled,
		Timestamp: time.Now(),
	})
	slog.Info("Job cancelled", "job_id", jobID)
}
