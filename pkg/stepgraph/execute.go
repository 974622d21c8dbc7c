package stepgraph

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/observability"
)

// taskResult is the outcome of one node execution within a step.
type taskResult struct {
	nodeID string
	writes []channel.Write
	err    error
}

// executeStep runs all active nodes against the pre-step snapshot and
// proposes their writes to the store in node declaration order. Nothing is
// committed here; the caller commits or discards the whole step.
//
// Under PolicyFailFast any failure aborts the step and the first failing
// node's error (in declaration order) is returned. Under PolicySkipFailed
// the failures come back in the map and the successful nodes' IDs in the
// slice; only those fire edges.
func (r *runner) executeStep(ctx context.Context, step int, active []string) (ranOK []string, failed map[string]error, err error) {
	// Snapshot all views before any task runs. Every task in the step sees
	// the same pre-step state no matter when it is scheduled.
	views := make([]channel.View, len(active))
	for i, id := range active {
		v, verr := r.store.View(r.graph.nodes[id].reads)
		if verr != nil {
			return nil, nil, &NodeError{NodeID: id, Step: step, Op: "snapshot", Err: verr}
		}
		views[i] = v
	}

	results := make([]taskResult, len(active))
	run := func(i int) {
		results[i] = r.runTask(ctx, step, active[i], views[i])
	}

	if len(active) == 1 {
		run(0)
	} else if r.cfg.maxConcurrency > 0 {
		pool, perr := ants.NewPool(r.cfg.maxConcurrency)
		if perr != nil {
			return nil, nil, fmt.Errorf("stepgraph: worker pool: %w", perr)
		}
		defer pool.Release()

		var wg sync.WaitGroup
		for i := range active {
			i := i
			wg.Add(1)
			if serr := pool.Submit(func() {
				defer wg.Done()
				run(i)
			}); serr != nil {
				results[i] = taskResult{nodeID: active[i], err: &NodeError{
					NodeID: active[i], Step: step, Op: "schedule", Err: serr,
				}}
				wg.Done()
			}
		}
		wg.Wait()
	} else {
		var wg sync.WaitGroup
		for i := range active {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				run(i)
			}()
		}
		wg.Wait()
	}

	// Apply outcomes in declaration order (active is already ordered), so
	// reducer input order is a function of the graph, not of goroutine
	// scheduling.
	failed = make(map[string]error)
	for _, res := range results {
		if res.err != nil {
			observability.LogTaskError(r.cfg.logger, step, res.nodeID, res.err)
			if r.cfg.failurePolicy == PolicyFailFast {
				return nil, nil, res.err
			}
			observability.LogTaskSkipped(r.cfg.logger, step, res.nodeID, res.err)
			failed[res.nodeID] = res.err
			continue
		}
		if perr := r.store.Propose(r.graph.nodeIndex(res.nodeID), res.writes); perr != nil {
			return nil, nil, &NodeError{NodeID: res.nodeID, Step: step, Op: "propose", Err: perr}
		}
		ranOK = append(ranOK, res.nodeID)
	}
	return ranOK, failed, nil
}

// runTask executes one node with panic recovery, retries, and per-task
// observability. Every retry attempt sees the same pre-step view.
func (r *runner) runTask(ctx context.Context, step int, nodeID string, view channel.View) taskResult {
	n := r.graph.nodes[nodeID]
	execCtx := newExecutionContext(ctx, r.cfg, r.threadID, step, nodeID)

	spanCtx, span := r.cfg.spans.StartTaskSpan(ctx, nodeID)
	start := time.Now()

	writes, err := r.attemptTask(execCtx, step, n, view)

	r.cfg.metrics.RecordTask(spanCtx, nodeID, time.Since(start), err)
	r.cfg.spans.EndSpanWithError(span, err)

	if err != nil {
		return taskResult{nodeID: nodeID, err: err}
	}
	return taskResult{nodeID: nodeID, writes: writes}
}

// attemptTask runs the node function under its retry policy.
func (r *runner) attemptTask(ctx Context, step int, n *nodeSpec, view channel.View) ([]channel.Write, error) {
	backoff := n.retry.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < n.retry.attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &NodeError{NodeID: n.id, Step: step, Op: "execute", Err: err}
		}

		writes, err := invokeNode(ctx, n, view)
		if err == nil {
			if verr := validateWrites(n, writes); verr != nil {
				return nil, &NodeError{NodeID: n.id, Step: step, Op: "write", Err: verr}
			}
			return writes, nil
		}
		lastErr = err

		// Panics are never retried; the node is in an unknown state.
		if _, isPanic := err.(*PanicError); isPanic || !n.retry.retryable(err) {
			break
		}
		if attempt < n.retry.attempts()-1 {
			var sleep time.Duration
			sleep, backoff = n.retry.nextBackoff(backoff)
			select {
			case <-ctx.Done():
				return nil, &NodeError{NodeID: n.id, Step: step, Op: "execute", Err: ctx.Err()}
			case <-time.After(sleep):
			}
		}
	}

	if _, isPanic := lastErr.(*PanicError); isPanic {
		return nil, lastErr
	}
	return nil, &NodeError{NodeID: n.id, Step: step, Op: "execute", Err: lastErr}
}

// invokeNode calls the node function, converting panics into errors so one
// bad collaborator cannot take down the scheduler.
func invokeNode(ctx Context, n *nodeSpec, view channel.View) (writes []channel.Write, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			writes = nil
			err = &PanicError{NodeID: n.id, Value: rec, Stack: string(debug.Stack())}
		}
	}()
	return n.fn(ctx, view)
}

// validateWrites enforces a node's declared write set. Nodes with no
// declared writes may write any channel; the store still rejects unknown
// channel names at propose time.
func validateWrites(n *nodeSpec, writes []channel.Write) error {
	if len(n.writes) == 0 {
		return nil
	}
	declared := make(map[string]bool, len(n.writes))
	for _, ch := range n.writes {
		declared[ch] = true
	}
	for _, w := range writes {
		if !declared[w.Channel] {
			return fmt.Errorf("write to undeclared channel %q", w.Channel)
		}
	}
	return nil
}
