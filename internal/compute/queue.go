package compute

import (
	"time"
)

// QueueEventManager attaches the per-context command queues and profiling
// events during initialization and serves elapsed-time queries against
// them. Each context gets exactly one profiling-enabled queue and one
// reusable event for the manager's lifetime.
type QueueEventManager struct{}

// CreateQueue attaches one profiling-enabled command queue to ctx.
func (q *QueueEventManager) CreateQueue(ctx *Context) error {
	queue, err := ctx.backend.CreateQueue(true)
	if err != nil {
		return &Error{Component: "queue", Op: "create", Detail: ctx.device.Name, Err: err}
	}
	ctx.queue = queue
	return nil
}

// CreateEvent attaches the single reusable profiling event to ctx. Each
// subsequent enqueue overwrites the event's timestamps.
func (q *QueueEventManager) CreateEvent(ctx *Context) error {
	event, err := ctx.backend.CreateEvent()
	if err != nil {
		return &Error{Component: "queue", Op: "create event", Detail: ctx.device.Name, Err: err}
	}
	ctx.event = event
	return nil
}

// ElapsedTime returns the device-side duration of the last operation that
// completed on ctx's queue. Rejected with ErrNoTiming until a first
// operation has completed.
func (q *QueueEventManager) ElapsedTime(ctx *Context) (time.Duration, error) {
	if !ctx.timed {
		return 0, &Error{Component: "queue", Op: "elapsed", Detail: ctx.device.Name, Err: ErrNoTiming}
	}
	d, err := ctx.event.Elapsed()
	if err != nil {
		return 0, &Error{Component: "queue", Op: "elapsed", Detail: ctx.device.Name, Err: err}
	}
	return d, nil
}
