package store

// Store defines the interface for run report persistence operations.
// Implementations must be thread-safe and handle concurrent access gracefully.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the report doesn't exist (for Load/Delete)
//   - Return descriptive errors for I/O, serialization, or validation failures
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveReport atomically saves the report for the given run.
	// If a report already exists for this runID, it is overwritten.
	// The implementation should use atomic write strategies (e.g., temp file + rename)
	// to prevent corruption in case of failures.
	//
	// Returns an error if the report cannot be saved (e.g., disk full,
	// permission denied, serialization failure).
	SaveReport(runID string, report *RunReport) error

	// LoadReport retrieves the report for the given run.
	// Returns ErrNotFound if no report exists for this runID.
	// Returns an error if the report exists but cannot be read or deserialized.
	LoadReport(runID string) (*RunReport, error)

	// ListReports returns metadata for all available reports.
	// The returned slice may be empty if no reports exist.
	// Returns an error if the report directory cannot be scanned.
	ListReports() ([]ReportInfo, error)

	// DeleteReport removes the report and all associated artifacts
	// for the given run. This includes:
	//   - report.json
	//   - trace.jsonl
	//
	// Returns ErrNotFound if no report exists for this runID.
	// Returns an error if the report exists but cannot be deleted.
	DeleteReport(runID string) error
}

// ErrNotFound is returned when a requested report does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run report error.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run report not found: " + e.RunID
	}
	return "run report not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
