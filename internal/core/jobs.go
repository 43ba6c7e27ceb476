package core

import (
	"context"
)

// JobDispatcher defines the contract for a system that can accept and queue
// background jobs for asynchronous processing. This interface decouples the
// event source (e.g., a webhook handler) from the job execution mechanism.
type JobDispatcher interface {
	// Dispatch accepts a ReviewEvent and queues it for processing.
	// It returns an error if the job cannot be queued, for example, if the
	// queue is full, providing a mechanism for backpressure.
	Dispatch(ctx context.Context, event *ReviewEvent) error

	// Stop shuts the dispatcher down, waiting for in-flight jobs to finish.
	Stop()
}

// Job represents a single, executable unit of work that can be processed by
// the application's job dispatcher. Each job is triggered by a ReviewEvent,
// drives it to a terminal state, and emits exactly one Outcome.
type Job interface {
	Run(ctx context.Context, event *ReviewEvent) (Outcome, error)
}
