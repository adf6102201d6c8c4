// Package jobs polls asynchronous service jobs until they reach a
// terminal state.
//
// A Job is a handle to work running somewhere else, typically a
// warehouse load or query job. Implementations refresh their view of
// the remote state with Reload; a Poller drives that loop with a fixed
// or randomized interval and full context cancellation.
package jobs

import "context"

// State is the lifecycle phase of a job. States only move forward:
// once a job reports Done or Failed it never leaves that state.
type State int

const (
	// Submitted means the job was accepted but not yet observed running.
	Submitted State = iota
	// Pending means the service reports the job as queued.
	Pending
	// Running means the service reports the job as executing.
	Running
	// Done means the job finished successfully.
	Done
	// Failed means the job finished with an error.
	Failed
)

// Terminal reports whether a job in this state will never change again.
func (s State) Terminal() bool { return s == Done || s == Failed }

func (s State) String() string {
	switch s {
	case Submitted:
		return "SUBMITTED"
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Job is a handle to an asynchronous job. A Job has a single owner;
// Reload mutates the receiver and must not be called concurrently.
type Job interface {
	// ID identifies the job at the remote service.
	ID() string

	// Reload refreshes State and Err from the remote service. It
	// returns an error only when the state could not be observed;
	// a job that failed remotely reloads successfully.
	Reload(ctx context.Context) error

	// State returns the last observed state.
	State() State

	// Err reports why a Failed job failed. It is nil for any other
	// state.
	Err() error
}

// Result pairs a finished job with its outcome.
type Result struct {
	Job Job
	Err error
}
