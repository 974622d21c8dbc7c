package stepgraph

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/checkpoint"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/interrupt"
)

// ThreadSnapshot is the observable state of a thread at its latest
// checkpoint.
type ThreadSnapshot struct {
	// ThreadID identifies the thread.
	ThreadID string

	// Step is the latest checkpoint step.
	Step int

	// Values is the committed channel state at that step.
	Values map[string]any

	// Versions holds the channel version counters at that step.
	Versions map[string]uint64

	// Interrupt is the pending interrupt, nil when the thread is not
	// paused.
	Interrupt *interrupt.Record
}

// Paused reports whether the thread is waiting on a decision.
func (s *ThreadSnapshot) Paused() bool {
	return s.Interrupt != nil
}

// State returns a thread's latest committed channel state without running
// anything. Returns checkpoint.ErrNotFound for a thread with no history.
func (cg *CompiledGraph) State(ctx context.Context, threadID string, opts ...RunOption) (*ThreadSnapshot, error) {
	cfg := newRunConfig(opts)
	saver := cg.resolveSaver(cfg)

	cp, err := saver.LoadLatest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return snapshotOf(cp)
}

// StateAt returns a thread's channel state at a specific step.
func (cg *CompiledGraph) StateAt(ctx context.Context, threadID string, step int, opts ...RunOption) (*ThreadSnapshot, error) {
	cfg := newRunConfig(opts)
	saver := cg.resolveSaver(cfg)

	cp, err := saver.Load(ctx, threadID, step)
	if err != nil {
		return nil, err
	}
	return snapshotOf(cp)
}

// History lists a thread's checkpoint metadata, newest first.
func (cg *CompiledGraph) History(ctx context.Context, threadID string, opts ...RunOption) ([]checkpoint.Info, error) {
	cfg := newRunConfig(opts)
	saver := cg.resolveSaver(cfg)
	return saver.List(ctx, threadID)
}

// DeleteThread removes a thread's checkpoints and any pending interrupt.
// Deleting a thread with a run in flight returns ThreadBusyError.
func (cg *CompiledGraph) DeleteThread(ctx context.Context, threadID string, opts ...RunOption) error {
	if err := cg.acquireThread(threadID); err != nil {
		return err
	}
	defer cg.releaseThread(threadID)

	cfg := newRunConfig(opts)
	saver := cg.resolveSaver(cfg)
	ints := cg.resolveInterrupts(cfg)

	if _, err := ints.Resolve(ctx, threadID, interrupt.Decision{Kind: interrupt.Reject}); err != nil &&
		!errors.Is(err, interrupt.ErrNoPending) {
		return err
	}
	return saver.DeleteThread(ctx, threadID)
}

// Pending returns the thread's unresolved interrupt, consulting durable
// state when the in-process controller has none (e.g. after a restart).
func (cg *CompiledGraph) Pending(ctx context.Context, threadID string, opts ...RunOption) (*interrupt.Record, error) {
	cfg := newRunConfig(opts)
	ints := cg.resolveInterrupts(cfg)

	rec, err := ints.Pending(ctx, threadID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, interrupt.ErrNoPending) {
		return nil, err
	}

	saver := cg.resolveSaver(cfg)
	cp, lerr := saver.LoadLatest(ctx, threadID)
	if lerr != nil || cp.Interrupt == nil {
		return nil, err
	}
	if serr := ints.Seed(ctx, cp.Interrupt); serr != nil {
		return nil, serr
	}
	return cp.Interrupt.Clone(), nil
}

// snapshotOf decodes a checkpoint's channel values into a ThreadSnapshot.
func snapshotOf(cp *checkpoint.Checkpoint) (*ThreadSnapshot, error) {
	values := make(map[string]any, len(cp.Channels))
	for name, cs := range cp.Channels {
		var v any
		if len(cs.Value) > 0 {
			if err := json.Unmarshal(cs.Value, &v); err != nil {
				return nil, &CheckpointError{Op: "restore", Step: cp.Step, Err: err}
			}
		}
		values[name] = v
	}
	return &ThreadSnapshot{
		ThreadID:  cp.ThreadID,
		Step:      cp.Step,
		Values:    values,
		Versions:  cp.Versions(),
		Interrupt: cp.Interrupt,
	}, nil
}
