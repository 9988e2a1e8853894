package compute

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the manager surfaces. Match
// them with errors.Is; wrapped causes carry component, operation, and
// detail via *Error.
var (
	// ErrNoDevices reports that discovery found zero devices.
	ErrNoDevices = errors.New("no compute devices found")

	// ErrContextActive reports an Activate call while another context is
	// already active. Recoverable by calling Deactivate first.
	ErrContextActive = errors.New("another context is already active")

	// ErrNoActiveContext reports a resource operation issued with no
	// context activated.
	ErrNoActiveContext = errors.New("no active context")

	// ErrSourceNotFound reports a missing kernel source file, detected
	// before any backend call.
	ErrSourceNotFound = errors.New("kernel source not found")

	// ErrBuildFailed reports a kernel compilation failure. The backend
	// build log travels in the wrapped *BuildError.
	ErrBuildFailed = errors.New("kernel build failed")

	// ErrOutOfMemory reports an allocation that the context budget or the
	// backend rejected. The usage counter is never adjusted on failure.
	ErrOutOfMemory = errors.New("out of device memory")

	// ErrInvalidUsage reports a precondition violation, rejected before
	// any backend interaction.
	ErrInvalidUsage = errors.New("invalid usage")

	// ErrNoTiming reports an elapsed-time query on a context where no
	// enqueued operation has completed yet.
	ErrNoTiming = errors.New("no completed operation to time")

	// ErrNotBuilt indicates the binary was built without OpenCL support.
	ErrNotBuilt = errors.New("opencl support requires building with '-tags gpu'")
)

// Error tags a failure with the component and operation that raised it.
// Every error leaving the manager is either an *Error or wrapped by one.
type Error struct {
	Component string
	Op        string
	Detail    string
	Err       error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Component, e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Component, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// BuildError reports a kernel compilation failure. Log carries the
// backend compiler's build log verbatim so the operator can diagnose the
// kernel source.
type BuildError struct {
	Source  string
	Entry   string
	Options string
	Log     string
}

func (e *BuildError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("kernel build failed: %s:\n%s", e.Source, e.Log)
	}
	return fmt.Sprintf("kernel build failed:\n%s", e.Log)
}

func (e *BuildError) Is(target error) bool {
	return target == ErrBuildFailed
}
