package stepgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryNodes indicates SetEntry() was not called before Compile().
	ErrNoEntryNodes = errors.New("entry nodes not set")

	// ErrEntryNotFound indicates an entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry node not found")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrChannelNotDeclared indicates a node read/write references an
	// undeclared channel.
	ErrChannelNotDeclared = errors.New("channel not declared")
)

// Sentinel errors for execution.
var (
	// ErrRecursionLimit indicates the superstep counter passed the configured limit.
	ErrRecursionLimit = errors.New("recursion limit exceeded")

	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidRouterResult indicates a router returned no targets.
	ErrInvalidRouterResult = errors.New("router returned no targets")

	// ErrRouterTargetNotFound indicates a router returned an unknown node ID.
	ErrRouterTargetNotFound = errors.New("router returned unknown node")
)

// RecursionLimitError reports a run that exceeded its superstep budget.
// The thread's state is preserved at the last committed checkpoint.
type RecursionLimitError struct {
	// Limit is the configured recursion limit.
	Limit int
	// Step is the superstep that would have executed next.
	Step int
	// ThreadID is the affected thread.
	ThreadID string
}

// Error implements the error interface.
func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("thread %s: recursion limit (%d) exceeded at step %d", e.ThreadID, e.Limit, e.Step)
}

// Unwrap returns ErrRecursionLimit for errors.Is support.
func (e *RecursionLimitError) Unwrap() error { return ErrRecursionLimit }

// NodeError wraps a task's collaborator failure with node context.
type NodeError struct {
	// NodeID is the node that failed.
	NodeID string
	// Step is the superstep the task ran in.
	Step int
	// Op is the operation that failed (e.g. "execute").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (step %d): %s: %v", e.NodeID, e.Step, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error { return e.Err }

// PanicError captures panic information from a task.
type PanicError struct {
	// NodeID is the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// RouterError wraps errors from conditional edge routing.
type RouterError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Returned is the offending target the router returned.
	Returned string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouterError) Unwrap() error { return e.Err }

// CheckpointError reports a persistence failure. It is always fatal: the
// run aborts without advancing the step counter, so no unpersisted step is
// ever treated as committed.
type CheckpointError struct {
	// Op is the operation that failed ("save", "load", "restore").
	Op string
	// Step is the affected superstep.
	Step int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at step %d: %v", e.Op, e.Step, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error { return e.Err }

// InterruptConflictError reports a run or resume that does not match the
// thread's interrupt state: running a paused thread, or resuming a thread
// with no (or an already-resolved) interrupt. No state is mutated.
type InterruptConflictError struct {
	// ThreadID is the affected thread.
	ThreadID string
	// Reason describes the conflict.
	Reason string
}

// Error implements the error interface.
func (e *InterruptConflictError) Error() string {
	return fmt.Sprintf("interrupt conflict on thread %s: %s", e.ThreadID, e.Reason)
}

// ThreadBusyError reports a run issued against a thread that already has a
// run in flight in this process. Steps of one thread never interleave.
type ThreadBusyError struct {
	// ThreadID is the busy thread.
	ThreadID string
}

// Error implements the error interface.
func (e *ThreadBusyError) Error() string {
	return fmt.Sprintf("thread %s already has a run in flight", e.ThreadID)
}

// CancelledError reports a run cancelled between steps. The last durable
// checkpoint remains the authoritative resumption point.
type CancelledError struct {
	// ThreadID is the cancelled thread.
	ThreadID string
	// Step is the superstep that would have executed next.
	Step int
	// Cause is the underlying cancellation cause.
	Cause error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("thread %s cancelled before step %d: %v", e.ThreadID, e.Step, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancelledError) Unwrap() error { return e.Cause }
