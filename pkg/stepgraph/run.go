package stepgraph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/checkpoint"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/interrupt"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/observability"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/stream"
)

// runner holds the state of one Run or Resume invocation on one thread.
type runner struct {
	graph    *CompiledGraph
	cfg      *runConfig
	saver    checkpoint.Saver
	ints     *interrupt.Controller
	store    *channel.Store
	threadID string

	// stepsTaken counts supersteps planned by this invocation against the
	// recursion limit. Resumed runs get a fresh budget.
	stepsTaken int

	// guardExempt suppresses the interrupt guard for the first step of a
	// resumed run, so an approved task set actually executes.
	guardExempt bool

	failedNodes map[string]error
}

// Run starts or continues a thread. A thread with no checkpoints starts
// fresh: the input (if any) is applied to the channels, persisted as
// checkpoint step 0, and the entry nodes execute at step 1. A thread with
// history continues from its latest checkpoint, applying the input as a new
// checkpoint first; pass a nil input to continue after a crash with no
// state change.
//
// An empty threadID gets a generated UUID, readable from Result.ThreadID.
//
// Run returns ThreadBusyError when the thread already has a run in flight,
// and InterruptConflictError when the thread is paused (use Resume).
func (cg *CompiledGraph) Run(ctx context.Context, threadID string, input map[string]any, opts ...RunOption) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if threadID == "" {
		threadID = uuid.New().String()
	}
	cfg := newRunConfig(opts)

	r := &runner{
		graph:    cg,
		cfg:      cfg,
		saver:    cg.resolveSaver(cfg),
		ints:     cg.resolveInterrupts(cfg),
		threadID: threadID,
	}
	return r.execute(ctx, func(ctx context.Context) (*Result, error) {
		return r.start(ctx, input)
	})
}

// Resume resolves a pending interrupt and continues the paused thread.
// Approve executes the suspended tasks as planned; Edit applies the
// decision's writes to the channels first; Reject discards the suspended
// tasks and activates each guarded node's fallback edge instead.
//
// Resuming a thread with no pending interrupt returns
// InterruptConflictError without mutating any state.
func (cg *CompiledGraph) Resume(ctx context.Context, threadID string, d interrupt.Decision, opts ...RunOption) (*Result, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	cfg := newRunConfig(opts)

	r := &runner{
		graph:    cg,
		cfg:      cfg,
		saver:    cg.resolveSaver(cfg),
		ints:     cg.resolveInterrupts(cfg),
		threadID: threadID,
	}
	return r.execute(ctx, func(ctx context.Context) (*Result, error) {
		return r.resume(ctx, d)
	})
}

// Stream runs a thread like Run while delivering progress events on the
// returned channel: the selected mode events plus the run lifecycle
// (run.start, then run.complete, run.paused, or run.error). The channel is
// closed when the run finishes. Use State or Pending afterwards to inspect
// the outcome in full.
func (cg *CompiledGraph) Stream(ctx context.Context, threadID string, input map[string]any, modes []stream.Type, opts ...RunOption) (<-chan stream.Event, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	bus := stream.NewBus()
	sub := bus.Subscribe()
	opts = append(opts, WithStream(bus, modes...))

	go func() {
		defer bus.Close()
		_, err := cg.Run(ctx, threadID, input, opts...)
		// Run publishes run.error for failures inside the run body; a
		// thread-busy rejection happens before that and is reported here.
		var busy *ThreadBusyError
		if errors.As(err, &busy) {
			evt := stream.NewEvent(stream.TypeRunError, threadID, 0)
			evt.Payload = err.Error()
			_ = bus.Publish(evt)
		}
	}()
	return sub.C, nil
}

// execute wraps a run body with the thread lock, the run span, run metrics,
// and run lifecycle events.
func (r *runner) execute(ctx context.Context, body func(context.Context) (*Result, error)) (*Result, error) {
	if err := r.graph.acquireThread(r.threadID); err != nil {
		return nil, err
	}
	defer r.graph.releaseThread(r.threadID)

	runCtx, span := r.cfg.spans.StartRunSpan(ctx, "stepgraph", r.threadID)
	observability.LogRunStart(r.cfg.logger, r.threadID, 0)
	r.publish(stream.NewEvent(stream.TypeRunStart, r.threadID, 0))
	start := time.Now()

	result, err := body(runCtx)

	elapsed := time.Since(start)
	switch {
	case err != nil:
		observability.LogRunError(r.cfg.logger, r.threadID, err, float64(elapsed.Milliseconds()), 0)
		r.cfg.metrics.RecordRun(runCtx, "error", elapsed)
		evt := stream.NewEvent(stream.TypeRunError, r.threadID, 0)
		evt.Payload = err.Error()
		r.publish(evt)
		r.cfg.spans.EndSpanWithError(span, err)
		return nil, err
	case result.Paused():
		observability.LogRunPaused(r.cfg.logger, r.threadID, result.Step, len(result.PendingTasks))
		r.cfg.metrics.RecordRun(runCtx, "paused", elapsed)
		r.publish(stream.NewEvent(stream.TypeRunPaused, r.threadID, result.Step))
		r.cfg.spans.EndSpanWithError(span, nil)
		return result, nil
	default:
		observability.LogRunComplete(r.cfg.logger, r.threadID, float64(elapsed.Milliseconds()), r.stepsTaken)
		r.cfg.metrics.RecordRun(runCtx, "completed", elapsed)
		r.publish(stream.NewEvent(stream.TypeRunComplete, r.threadID, result.Step))
		r.cfg.spans.EndSpanWithError(span, nil)
		return result, nil
	}
}

// start sets up the channel store for a fresh or continued thread and hands
// off to the superstep loop.
func (r *runner) start(ctx context.Context, input map[string]any) (*Result, error) {
	latest, err := r.saver.LoadLatest(ctx, r.threadID)
	if err != nil && !errors.Is(err, checkpoint.ErrNotFound) {
		return nil, &CheckpointError{Op: "load", Err: err}
	}

	if latest != nil && latest.Interrupt != nil {
		// Keep the controller consistent with durable state so the caller
		// can Resume right away, then refuse the Run.
		_ = r.ints.Seed(ctx, latest.Interrupt)
		return nil, &InterruptConflictError{
			ThreadID: r.threadID,
			Reason:   "thread is paused awaiting a decision, use Resume",
		}
	}

	store, err := r.graph.newStore()
	if err != nil {
		return nil, err
	}
	r.store = store

	if latest == nil {
		// Fresh thread: persist the input as step 0 before anything runs,
		// then activate the entry nodes.
		applied, err := r.applyInput(input)
		if err != nil {
			return nil, err
		}
		cp, err := r.saveCheckpoint(ctx, 0, "", applied, nil, nil)
		if err != nil {
			return nil, err
		}
		return r.advance(ctx, 1, cp.ID, r.graph.Entry())
	}

	if err := r.store.Restore(latest.Values(), latest.Versions()); err != nil {
		return nil, &CheckpointError{Op: "restore", Step: latest.Step, Err: err}
	}

	cp := latest
	if len(input) > 0 {
		applied, err := r.applyInput(input)
		if err != nil {
			return nil, err
		}
		// The input checkpoint carries forward the previous step's planner
		// state, so work that was pending before the input is not lost.
		updated := unionSorted(latest.UpdatedChannels, applied)
		cp, err = r.saveCheckpoint(ctx, latest.Step+1, latest.ID, updated, latest.RanNodes, nil)
		if err != nil {
			return nil, err
		}
	}

	active, err := r.planStep(ctx, cp.Step+1, cp.UpdatedChannels, cp.RanNodes)
	if err != nil {
		return nil, err
	}
	return r.advance(ctx, cp.Step+1, cp.ID, active)
}

// resume resolves the pending interrupt and re-enters the superstep loop at
// the paused step. The committed checkpoint of that step overwrites the
// pause placeholder, keeping exactly one checkpoint per (thread, step).
func (r *runner) resume(ctx context.Context, d interrupt.Decision) (*Result, error) {
	rec, err := r.ints.Pending(ctx, r.threadID)
	if errors.Is(err, interrupt.ErrNoPending) {
		// Process restart: recover the pause from durable state.
		latest, lerr := r.saver.LoadLatest(ctx, r.threadID)
		if lerr == nil && latest != nil && latest.Interrupt != nil {
			if serr := r.ints.Seed(ctx, latest.Interrupt); serr != nil {
				return nil, serr
			}
			rec, err = latest.Interrupt, nil
		} else {
			return nil, &InterruptConflictError{ThreadID: r.threadID, Reason: "no pending interrupt"}
		}
	}
	if err != nil {
		return nil, err
	}

	cp, err := r.saver.Load(ctx, r.threadID, rec.Step)
	if err != nil {
		return nil, &CheckpointError{Op: "load", Step: rec.Step, Err: err}
	}

	store, err := r.graph.newStore()
	if err != nil {
		return nil, err
	}
	r.store = store
	if err := r.store.Restore(cp.Values(), cp.Versions()); err != nil {
		return nil, &CheckpointError{Op: "restore", Step: cp.Step, Err: err}
	}

	// Check edit targets before the interrupt record is consumed, so a bad
	// decision leaves the pause intact.
	if d.Kind == interrupt.Edit {
		for _, w := range d.Writes {
			if !r.store.Has(w.Channel) {
				return nil, fmt.Errorf("%w: edit writes unknown channel %q", interrupt.ErrInvalidDecision, w.Channel)
			}
		}
	}

	if _, err := r.ints.Resolve(ctx, r.threadID, d); err != nil {
		return nil, err
	}

	var active []string
	switch d.Kind {
	case interrupt.Approve:
		active = r.taskNodes(rec.Tasks)

	case interrupt.Edit:
		if _, err := r.store.Apply(d.Writes); err != nil {
			return nil, err
		}
		active = r.taskNodes(rec.Tasks)

	case interrupt.Reject:
		active = r.fallbackNodes(rec.Tasks)
		if len(active) == 0 {
			// Nothing to run instead: commit an empty step over the
			// placeholder and quiesce.
			if _, err := r.saveCheckpoint(ctx, rec.Step, cp.ParentID, nil, nil, nil); err != nil {
				return nil, err
			}
			return &Result{
				Status:   StatusCompleted,
				ThreadID: r.threadID,
				Step:     rec.Step,
				Values:   r.store.Snapshot(),
			}, nil
		}
	}

	r.guardExempt = true
	return r.advance(ctx, rec.Step, cp.ParentID, active)
}

// advance is the superstep loop: guard, execute, commit, checkpoint, plan.
// active is the task set for step; parentID links the step's checkpoint.
func (r *runner) advance(ctx context.Context, step int, parentID string, active []string) (*Result, error) {
	for {
		if len(active) == 0 {
			return &Result{
				Status:      StatusCompleted,
				ThreadID:    r.threadID,
				Step:        step - 1,
				Values:      r.store.Snapshot(),
				FailedNodes: r.failedNodes,
			}, nil
		}

		r.stepsTaken++
		if r.stepsTaken > r.cfg.recursionLimit {
			return nil, &RecursionLimitError{Limit: r.cfg.recursionLimit, Step: step, ThreadID: r.threadID}
		}
		if err := ctx.Err(); err != nil {
			return nil, &CancelledError{ThreadID: r.threadID, Step: step, Cause: context.Cause(ctx)}
		}

		if !r.guardExempt && r.anyGuarded(active) {
			return r.pause(ctx, step, parentID, active)
		}
		r.guardExempt = false

		stepCtx, span := r.cfg.spans.StartStepSpan(ctx, step)
		observability.LogStepStart(r.cfg.logger, step, active)
		start := time.Now()

		ranOK, failed, err := r.executeStep(stepCtx, step, active)
		if err != nil {
			r.store.Discard()
			r.cfg.spans.EndSpanWithError(span, err)
			return nil, err
		}
		for id, ferr := range failed {
			if r.failedNodes == nil {
				r.failedNodes = make(map[string]error)
			}
			r.failedNodes[id] = ferr
		}

		updated, err := r.store.Commit()
		if err != nil {
			r.cfg.spans.EndSpanWithError(span, err)
			return nil, err
		}

		cp, err := r.saveCheckpoint(ctx, step, parentID, updated, ranOK, nil)
		if err != nil {
			r.cfg.spans.EndSpanWithError(span, err)
			return nil, err
		}

		elapsed := time.Since(start)
		r.cfg.metrics.RecordStep(stepCtx, len(active), elapsed)
		observability.LogStepComplete(r.cfg.logger, step, float64(elapsed.Milliseconds()), updated)
		r.cfg.spans.EndSpanWithError(span, nil)
		r.publishStep(step, updated)

		active, err = r.planStep(ctx, step+1, updated, ranOK)
		if err != nil {
			return nil, err
		}
		parentID = cp.ID
		step++
	}
}

// pause persists a placeholder checkpoint carrying the interrupt record and
// suspends the run. The placeholder sits at the step that was about to
// execute; resolving the interrupt executes that step and its committed
// checkpoint replaces the placeholder.
func (r *runner) pause(ctx context.Context, step int, parentID string, active []string) (*Result, error) {
	tasks := make([]interrupt.PendingTask, len(active))
	for i, id := range active {
		tasks[i] = interrupt.PendingTask{
			NodeID:  id,
			Reads:   r.graph.NodeReads(id),
			Guarded: r.cfg.interruptBefore[id],
		}
	}
	rec := interrupt.NewRecord(r.threadID, step, tasks)

	if _, err := r.saveCheckpoint(ctx, step, parentID, nil, nil, rec); err != nil {
		return nil, err
	}
	if err := r.ints.Pause(ctx, rec); err != nil {
		return nil, err
	}

	return &Result{
		Status:       StatusPaused,
		ThreadID:     r.threadID,
		Step:         step,
		Values:       r.store.Snapshot(),
		PendingTasks: rec.Tasks,
		FailedNodes:  r.failedNodes,
	}, nil
}

// saveCheckpoint snapshots the store into a checkpoint and persists it.
// Persistence failures are fatal to the run; the step is not committed
// until its checkpoint is durable.
func (r *runner) saveCheckpoint(ctx context.Context, step int, parentID string, updated, ran []string, rec *interrupt.Record) (*checkpoint.Checkpoint, error) {
	values, err := r.store.MarshalValues()
	if err != nil {
		return nil, &CheckpointError{Op: "save", Step: step, Err: err}
	}

	cp := checkpoint.New(r.threadID, step, parentID).SetChannels(values, r.store.Versions())
	cp.UpdatedChannels = updated
	cp.RanNodes = ran
	cp.Interrupt = rec

	if err := r.saver.Save(ctx, cp); err != nil {
		observability.LogCheckpointError(r.cfg.logger, step, "save", err)
		return nil, &CheckpointError{Op: "save", Step: step, Err: err}
	}

	if data, merr := cp.Marshal(); merr == nil {
		r.cfg.metrics.RecordCheckpoint(ctx, step, int64(len(data)))
		observability.LogCheckpoint(r.cfg.logger, step, len(data))
	}
	return cp, nil
}

// applyInput writes the caller's input map straight to the channels,
// bypassing reducers. Keys are applied in sorted order.
func (r *runner) applyInput(input map[string]any) ([]string, error) {
	if len(input) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writes := make([]channel.Write, len(keys))
	for i, k := range keys {
		writes[i] = channel.Write{Channel: k, Value: input[k]}
	}
	applied, err := r.store.Apply(writes)
	if err != nil {
		return nil, fmt.Errorf("stepgraph: input: %w", err)
	}
	return applied, nil
}

// anyGuarded reports whether the active set hits an interrupt-before guard.
func (r *runner) anyGuarded(active []string) bool {
	for _, id := range active {
		if r.cfg.interruptBefore[id] {
			return true
		}
	}
	return false
}

// taskNodes extracts the node IDs of pending tasks in declaration order.
func (r *runner) taskNodes(tasks []interrupt.PendingTask) []string {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		seen[t.NodeID] = true
	}
	var out []string
	for _, id := range r.graph.nodeOrder {
		if seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// fallbackNodes maps rejected tasks to their fallback targets. Guarded
// nodes without a fallback are dropped; unguarded tasks caught in the pause
// still run.
func (r *runner) fallbackNodes(tasks []interrupt.PendingTask) []string {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if !t.Guarded {
			seen[t.NodeID] = true
			continue
		}
		if to, ok := r.graph.fallback[t.NodeID]; ok && to != END {
			seen[to] = true
		}
	}
	var out []string
	for _, id := range r.graph.nodeOrder {
		if seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// publish sends a lifecycle event when a bus is attached.
func (r *runner) publish(evt stream.Event) {
	if r.cfg.bus == nil {
		return
	}
	_ = r.cfg.bus.Publish(evt)
}

// publishStep emits the per-step stream events for the enabled modes.
func (r *runner) publishStep(step int, updated []string) {
	if r.cfg.bus == nil {
		return
	}
	if r.cfg.streamModes[stream.TypeUpdates] {
		evt := stream.NewEvent(stream.TypeUpdates, r.threadID, step)
		evt.Updated = append([]string(nil), updated...)
		_ = r.cfg.bus.Publish(evt)
	}
	if r.cfg.streamModes[stream.TypeValues] {
		evt := stream.NewEvent(stream.TypeValues, r.threadID, step)
		evt.Values = r.store.Snapshot()
		_ = r.cfg.bus.Publish(evt)
	}
}

// unionSorted merges two channel-name lists without duplicates, sorted.
func unionSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
