package stepgraph

import "github.com/stepgraph/stepgraph/pkg/stepgraph/interrupt"

// Status describes how a Run or Resume invocation ended.
type Status string

const (
	// StatusCompleted means the run reached quiescence: no active nodes
	// remained or every path reached END.
	StatusCompleted Status = "completed"

	// StatusPaused means the run stopped at an interrupt-before guard and
	// persisted a resumable checkpoint.
	StatusPaused Status = "paused"
)

// Result is the outcome of a Run or Resume invocation.
type Result struct {
	// Status is completed or paused. Failed runs return an error instead.
	Status Status

	// ThreadID identifies the thread the run executed on.
	ThreadID string

	// Step is the last committed checkpoint step. For a paused run it is
	// the step of the pause checkpoint, i.e. the step awaiting approval.
	Step int

	// Values is the final committed channel state.
	Values map[string]any

	// PendingTasks lists the tasks awaiting a decision when paused.
	PendingTasks []interrupt.PendingTask

	// FailedNodes lists nodes skipped under PolicySkipFailed, keyed by
	// node ID, with the error that sidelined each one.
	FailedNodes map[string]error
}

// Paused reports whether the run stopped at an interrupt guard.
func (r *Result) Paused() bool {
	return r.Status == StatusPaused
}
