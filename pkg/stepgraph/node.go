package stepgraph

import (
	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
)

// END is the terminal node identifier.
// Use this as an edge target to indicate the graph should terminate.
const END = "__end__"

// NodeFunc is the contract every node's external collaborator implements.
// A node receives an immutable snapshot of its declared input channels and
// returns write proposals for its declared output channels. Nodes never
// mutate channel values in place and never perform their own persistence;
// all durable effect flows through the returned writes.
//
// Example:
//
//	func plan(ctx stepgraph.Context, view channel.View) ([]channel.Write, error) {
//	    goal, _ := view.Get("goal")
//	    return []channel.Write{{Channel: "steps", Value: expand(goal)}}, nil
//	}
type NodeFunc func(ctx Context, view channel.View) ([]channel.Write, error)

// RouterFunc selects the next nodes after a node with conditional edges
// completes. It must be a deterministic, side-effect-free function of the
// post-commit state. Return node IDs or END.
//
// For safety-critical transitions use FlagRoute, which resolves purely
// from a typed state flag instead of re-interpreting free text.
type RouterFunc func(ctx Context, view channel.View) []string

// Task is one scheduled execution of a node within a superstep.
type Task struct {
	// NodeID is the node to execute.
	NodeID string
	// Step is the superstep the task belongs to.
	Step int
	// Reads are the channels snapshotted for the task.
	Reads []string
}

// nodeSpec is the compiled description of one node.
type nodeSpec struct {
	id     string
	fn     NodeFunc
	reads  []string
	writes []string
	// order is the declaration index; it fixes reducer apply order and
	// planning order regardless of task completion order.
	order int
	retry RetryPolicy
}

// NodeOption configures a node at declaration time.
type NodeOption func(*nodeSpec)

// Reads declares the input channels a node snapshots.
// A node is (re)activated when any of these changes version.
func Reads(channels ...string) NodeOption {
	return func(n *nodeSpec) {
		n.reads = append(n.reads, channels...)
	}
}

// Writes declares the output channels a node may propose writes to.
func Writes(channels ...string) NodeOption {
	return func(n *nodeSpec) {
		n.writes = append(n.writes, channels...)
	}
}

// WithRetry sets the retry policy for transient node failures.
// Default: no retries.
func WithRetry(p RetryPolicy) NodeOption {
	return func(n *nodeSpec) {
		n.retry = p
	}
}
