package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/dosetrace/internal/sim"
)

// RunReport represents a finished simulation run persisted for later
// inspection or re-execution. All fields are serialized to JSON.
//
// Reproducibility Handling:
//
// The report saves the RESOLVED CONFIGURATION and the measured timings, but
// does NOT save any device-side state (dose grid contents, RNG stream
// positions, compiled kernels). This design choice has important
// implications for reruns:
//
// SAVED STATE:
//   - Config: the full run configuration, with the seed resolved to the
//     concrete value the run actually used
//   - Report: device identity, per-batch kernel times, total kernel time,
//     wall time, throughput
//
// NOT SAVED:
//   - Dose grid contents: a rerun recomputes them from scratch
//   - RNG stream state: streams are reseeded from the saved seed
//   - Compiled kernels: the kernel cache dies with its manager
//
// RERUN STRATEGY:
// When a run is repeated from its report, the stored configuration is
// executed as a brand new run:
//  1. The same seed on the same backend reproduces the particle histories
//  2. Timings are expected to differ between runs and between machines
//  3. The run ID is never reused; a rerun gets a fresh identity
//
// IMPLICATIONS:
//   - A report is an artifact, not a checkpoint; nothing resumes mid-run
//   - Same-seed reruns on the mock backend are bit-identical
//   - Same-seed reruns on real hardware reproduce histories, not timings
//
// ALTERNATIVES NOT IMPLEMENTED:
//   - Persisting the dose grid would scale artifact size with the voxel
//     count and tie the format to the kernel's buffer layout
//   - Persisting RNG state would tie the format to the kernel's generator
type RunReport struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// Config is the configuration the run executed, seed already resolved.
	// Reruns re-execute exactly this configuration.
	Config sim.Config `json:"config"`

	// Report holds the measured results returned by the runner
	Report sim.Report `json:"report"`

	// SavedAt records when this report was persisted
	SavedAt time.Time `json:"savedAt"`
}

// ReportInfo contains metadata about a stored report without the per-batch
// timing data. Used for listing reports efficiently.
type ReportInfo struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// Backend is the compute backend the run executed on (opencl, mock)
	Backend string `json:"backend"`

	// Device is the name of the device the run executed on
	Device string `json:"device"`

	// Particles is the total number of transported particles
	Particles uint64 `json:"particles"`

	// Batches is the number of transport batches the run was split into
	Batches int `json:"batches"`

	// KernelTime is the summed device-side execution time
	KernelTime time.Duration `json:"kernelTimeNs"`

	// Throughput is particles per second of wall time
	Throughput float64 `json:"particlesPerSecond"`

	// SavedAt records when this report was persisted
	SavedAt time.Time `json:"savedAt"`
}

// NewRunReport creates a persistable report from a finished run.
func NewRunReport(runID string, cfg sim.Config, report sim.Report) *RunReport {
	return &RunReport{
		RunID:   runID,
		Config:  cfg,
		Report:  report,
		SavedAt: time.Now(),
	}
}

// ToInfo converts a full RunReport to ReportInfo (metadata only).
func (r *RunReport) ToInfo() ReportInfo {
	return ReportInfo{
		RunID:      r.RunID,
		Backend:    r.Report.Backend,
		Device:     r.Report.Device,
		Particles:  r.Report.Particles,
		Batches:    r.Report.Batches,
		KernelTime: r.Report.KernelTime,
		Throughput: r.Report.Throughput,
		SavedAt:    r.SavedAt,
	}
}

// Validate checks if the report has valid data.
// Returns an error if any required field is missing or inconsistent.
func (r *RunReport) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.SavedAt.IsZero() {
		return &ValidationError{Field: "SavedAt", Reason: "cannot be zero"}
	}
	if r.Report.Backend == "" {
		return &ValidationError{Field: "Report.Backend", Reason: "cannot be empty"}
	}
	if r.Report.Device == "" {
		return &ValidationError{Field: "Report.Device", Reason: "cannot be empty"}
	}
	if r.Report.Particles == 0 {
		return &ValidationError{Field: "Report.Particles", Reason: "must be positive"}
	}
	if r.Report.Batches <= 0 {
		return &ValidationError{Field: "Report.Batches", Reason: "must be positive"}
	}
	// A resolved seed is never zero; zero means the run was never executed
	if r.Report.Seed == 0 {
		return &ValidationError{Field: "Report.Seed", Reason: "cannot be zero"}
	}
	if r.Report.KernelTime < 0 {
		return &ValidationError{Field: "Report.KernelTime", Reason: "cannot be negative"}
	}
	if r.Report.WallTime < 0 {
		return &ValidationError{Field: "Report.WallTime", Reason: "cannot be negative"}
	}
	if r.Config.Particles == 0 {
		return &ValidationError{Field: "Config.Particles", Reason: "must be positive"}
	}
	if r.Config.BatchSize == 0 {
		return &ValidationError{Field: "Config.BatchSize", Reason: "must be positive"}
	}
	// Verify the per-batch breakdown matches the declared batch count
	if len(r.Report.BatchTimes) != r.Report.Batches {
		return &ValidationError{
			Field:  "Report.BatchTimes",
			Reason: fmt.Sprintf("length mismatch: %d entries for %d batches", len(r.Report.BatchTimes), r.Report.Batches),
		}
	}
	return nil
}

// ValidationError represents a report validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
