// Package interrupt provides the pause-for-approval primitives of the
// engine: pending-task records attached to a paused thread and the
// decisions (approve, reject, edit) that resolve them.
//
// A thread has at most one outstanding interrupt. The record is persisted
// both in the controller's store and inside the pre-guard checkpoint, so a
// pause survives process restarts; the scheduler re-seeds the controller
// from the latest checkpoint on load.
package interrupt

import (
	"errors"
	"fmt"
	"time"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
)

// Sentinel errors for interrupt operations.
var (
	// ErrNoPending indicates the thread has no outstanding interrupt.
	ErrNoPending = errors.New("no pending interrupt")

	// ErrAlreadyPaused indicates the thread already has an outstanding interrupt.
	ErrAlreadyPaused = errors.New("interrupt already pending")

	// ErrInvalidDecision indicates a resume decision that cannot be applied.
	ErrInvalidDecision = errors.New("invalid resume decision")
)

// PendingTask describes one node execution suspended by the guard.
type PendingTask struct {
	// NodeID is the node that was about to run.
	NodeID string `json:"node_id"`

	// Reads are the channels the task would snapshot.
	Reads []string `json:"reads,omitempty"`

	// Guarded marks the task that tripped an interrupt-before guard.
	// A reject decision replaces guarded tasks with their fallback edges;
	// unguarded tasks caught in the same pause still run.
	Guarded bool `json:"guarded,omitempty"`
}

// Record is a pending-approval marker for a paused thread.
type Record struct {
	// ThreadID is the paused thread.
	ThreadID string `json:"thread_id"`

	// Step is the superstep that was about to execute.
	Step int `json:"step"`

	// Tasks are the proposed executions awaiting a decision.
	Tasks []PendingTask `json:"tasks"`

	// CreatedAt is when the pause was taken.
	CreatedAt time.Time `json:"created_at"`
}

// NewRecord creates a pending interrupt for a thread at a step.
func NewRecord(threadID string, step int, tasks []PendingTask) *Record {
	return &Record{
		ThreadID:  threadID,
		Step:      step,
		Tasks:     tasks,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Tasks = make([]PendingTask, len(r.Tasks))
	for i, t := range r.Tasks {
		cp.Tasks[i] = PendingTask{NodeID: t.NodeID, Reads: append([]string(nil), t.Reads...), Guarded: t.Guarded}
	}
	return &cp
}

// DecisionKind enumerates the ways a pending interrupt can be resolved.
type DecisionKind string

// Decision kinds.
const (
	// Approve re-enters execution with the originally planned task set.
	Approve DecisionKind = "approve"

	// Reject discards the pending tasks; routing follows the fallback edge.
	Reject DecisionKind = "reject"

	// Edit replaces the pending task inputs with new channel writes
	// before execution.
	Edit DecisionKind = "edit"
)

// Decision resolves a pending interrupt.
type Decision struct {
	// Kind selects approve, reject, or edit.
	Kind DecisionKind `json:"kind"`

	// Writes carries the replacement inputs for an Edit decision.
	Writes []channel.Write `json:"writes,omitempty"`
}

// Validate checks the decision shape before it is applied.
func (d Decision) Validate() error {
	switch d.Kind {
	case Approve, Reject:
		return nil
	case Edit:
		if len(d.Writes) == 0 {
			return fmt.Errorf("%w: edit decision requires writes", ErrInvalidDecision)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDecision, d.Kind)
	}
}
