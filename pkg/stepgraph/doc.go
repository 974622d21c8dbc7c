/*
Package stepgraph executes directed graphs of nodes over versioned state
channels in discrete, checkpointed supersteps.

# Overview

stepgraph is a Go library for long-running, resumable workflows. State
lives in named channels, each with a reducer that merges concurrent
writes. Execution proceeds in supersteps: plan the active nodes, run them
in parallel against an immutable pre-step snapshot, merge their writes
through the reducers in a deterministic order, persist a checkpoint, and
plan the next step. Two runs over the same graph, inputs, and decisions
produce identical channel history.

The model follows Pregel/BSP scheduling with:
  - Channel-level state with pluggable reducers (append, last, set-union)
  - Step-boundary isolation: tasks never see mid-step writes
  - Durable checkpoints (memory, SQLite) keyed by thread and step
  - Pause-for-approval guards with approve / reject / edit resolution
  - OpenTelemetry integration for observability

# Basic Usage

Declare channels and nodes, wire edges, compile, run:

	graph := stepgraph.NewGraph().
	    AddChannel("messages", channel.Append()).
	    AddChannel("done", channel.LastValue()).
	    AddNode("work", workFn,
	        stepgraph.Reads("messages"),
	        stepgraph.Writes("messages", "done")).
	    AddEdge("work", stepgraph.END).
	    SetEntry("work")

	compiled, err := graph.Compile()
	if err != nil {
	    log.Fatal(err)
	}

	result, err := compiled.Run(context.Background(), "thread-1",
	    map[string]any{"messages": []any{"hello"}})

A node receives a read-only view of its declared channels and returns
write proposals; it never mutates state directly:

	func workFn(ctx stepgraph.Context, view channel.View) ([]channel.Write, error) {
	    msgs, _ := view.Get("messages")
	    return []channel.Write{
	        {Channel: "messages", Value: process(msgs)},
	        {Channel: "done", Value: true},
	    }, nil
	}

# Conditional Branching

Routers pick the next nodes from post-commit state. FlagRoute resolves
purely from a typed state flag:

	graph.AddConditionalEdge("review", stepgraph.FlagRoute("verdict",
	    map[string]string{
	        "approved": "publish",
	        "revise":   "draft",
	    }, stepgraph.END))

Loops are cycles through conditional edges; the recursion limit (default
25 supersteps per invocation, WithRecursionLimit to change) keeps them
from running away.

# Checkpointing and Resumption

Every committed step persists a checkpoint. Resuming a thread loads the
latest checkpoint and plans the next step directly; no step is replayed:

	saver, err := checkpoint.NewSQLiteSaver("./threads.db")
	defer saver.Close()

	result, err := compiled.Run(ctx, "thread-1", input,
	    stepgraph.WithCheckpointer(saver))

	// After a crash: same call, nil input, picks up where it left off.
	result, err = compiled.Run(ctx, "thread-1", nil,
	    stepgraph.WithCheckpointer(saver))

# Interrupts

Guard nodes with WithInterruptBefore to pause for human approval before
they run. The pause is durable; resolve it with Resume:

	result, _ := compiled.Run(ctx, "thread-1", input,
	    stepgraph.WithCheckpointer(saver),
	    stepgraph.WithInterruptBefore("deploy"))

	if result.Paused() {
	    // approve, reject (fallback edge fires), or edit state first
	    result, _ = compiled.Resume(ctx, "thread-1",
	        interrupt.Decision{Kind: interrupt.Approve},
	        stepgraph.WithCheckpointer(saver))
	}

# Streaming

Attach a bus to watch a run while it executes:

	bus := stream.NewBus()
	sub := bus.Subscribe(stream.TypeUpdates)
	go func() {
	    for evt := range sub.C {
	        log.Printf("step %d updated %v", evt.Step, evt.Updated)
	    }
	}()

	result, err := compiled.Run(ctx, "thread-1", input,
	    stepgraph.WithStream(bus, stream.TypeUpdates))

# Error Handling

Failures carry their origin:

	var nodeErr *stepgraph.NodeError
	if errors.As(err, &nodeErr) {
	    log.Printf("node %s failed at step %d: %v", nodeErr.NodeID, nodeErr.Step, nodeErr.Err)
	}
	if errors.Is(err, stepgraph.ErrRecursionLimit) {
	    // state preserved at the last committed checkpoint
	}

Panics in nodes are recovered into PanicError with a stack trace; the
step's writes are discarded and the previous checkpoint stays
authoritative.

# Thread Safety

  - Graph is NOT safe for concurrent use during construction
  - CompiledGraph IS safe for concurrent use (immutable topology)
  - Distinct thread IDs run concurrently; a second run on a busy thread
    returns ThreadBusyError
  - Saver implementations are safe for concurrent use

# Subpackages

  - channel: versioned state channels, reducers, step commit
  - checkpoint: checkpoint model and savers (memory, SQLite)
  - interrupt: pending-approval records and decisions
  - stream: run event bus (values, updates, messages modes)
  - observability: logging, metrics, and tracing helpers
  - config: YAML/JSON run settings and channel declarations
*/
package stepgraph
