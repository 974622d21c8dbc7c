package stepgraph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/checkpoint"
)

// TestCheckpoint_StepZeroHoldsInput tests that the input is durable before
// anything executes.
func TestCheckpoint_StepZeroHoldsInput(t *testing.T) {
	saver := checkpoint.NewMemorySaver()
	compiled := NewGraph().
		AddChannel("goal", nil).
		AddNode("a", noopNode()).
		SetEntry("a").
		MustCompile()

	_, err := compiled.Run(context.Background(), "t1",
		map[string]any{"goal": "ship"}, WithCheckpointer(saver))
	require.NoError(t, err)

	cp, err := saver.Load(context.Background(), "t1", 0)
	require.NoError(t, err)
	assert.Empty(t, cp.RanNodes)
	assert.Equal(t, []string{"goal"}, cp.UpdatedChannels)
	assert.Equal(t, "", cp.ParentID)
}

// TestCheckpoint_ParentLinks tests the per-thread checkpoint chain.
func TestCheckpoint_ParentLinks(t *testing.T) {
	saver := checkpoint.NewMemorySaver()
	compiled := NewGraph().
		AddChannel("log", channel.Append()).
		AddNode("a", appendNode("a", "log"), Writes("log")).
		AddNode("b", appendNode("b", "log"), Writes("log")).
		AddEdge("a", "b").
		SetEntry("a").
		MustCompile()

	_, err := compiled.Run(context.Background(), "t1", nil, WithCheckpointer(saver))
	require.NoError(t, err)

	cp0, err := saver.Load(context.Background(), "t1", 0)
	require.NoError(t, err)
	cp1, err := saver.Load(context.Background(), "t1", 1)
	require.NoError(t, err)
	cp2, err := saver.Load(context.Background(), "t1", 2)
	require.NoError(t, err)

	assert.Equal(t, cp0.ID, cp1.ParentID)
	assert.Equal(t, cp1.ID, cp2.ParentID)
	assert.Equal(t, []string{"a"}, cp1.RanNodes)
	assert.Equal(t, []string{"b"}, cp2.RanNodes)
}

// TestCheckpoint_CrashResume tests that rerunning a thread from its latest
// checkpoint picks up exactly where it stopped: the completed steps are
// not replayed and the final state matches an uninterrupted run.
func TestCheckpoint_CrashResume(t *testing.T) {
	saver := checkpoint.NewMemorySaver()
	boom := errors.New("process died")

	// Fail node b on the first run, as if the process crashed mid-thread.
	shouldFail := true
	flaky := func(_ Context, _ channel.View) ([]channel.Write, error) {
		if shouldFail {
			return nil, boom
		}
		return []channel.Write{{Channel: "log", Value: "b"}}, nil
	}

	build := func(tr *tracker) *CompiledGraph {
		return NewGraph().
			AddChannel("log", channel.Append()).
			AddNode("a", trackingNode("a", "log", tr), Writes("log")).
			AddNode("b", flaky, Writes("log")).
			AddNode("c", trackingNode("c", "log", tr), Writes("log")).
			AddEdge("a", "b").
			AddEdge("b", "c").
			SetEntry("a").
			MustCompile()
	}

	tr := &tracker{}
	_, err := build(tr).Run(context.Background(), "t1", nil, WithCheckpointer(saver))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a"}, tr.executions())

	// "Restart" and rerun the same thread with no new input.
	shouldFail = false
	tr2 := &tracker{}
	result, err := build(tr2).Run(context.Background(), "t1", nil, WithCheckpointer(saver))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	// a was not replayed; only b and c ran after the restart.
	assert.Equal(t, []string{"c"}, tr2.executions())
	assert.Equal(t, []string{"a", "b", "c"}, asStrings(result.Values["log"]))
}

// TestCheckpoint_ResumeStateIdentical tests that a resumed thread's channel
// values and versions match an uninterrupted run of the same graph.
func TestCheckpoint_ResumeStateIdentical(t *testing.T) {
	build := func() *CompiledGraph {
		return NewGraph().
			AddChannel("count", nil).
			AddChannel("flag", nil).
			AddChannel("log", channel.Append()).
			AddNode("work", counterFlagNode(3, "more", "done"), Reads("count"), Writes("count", "flag")).
			AddNode("tail", appendNode("tail", "log"), Writes("log")).
			AddConditionalEdge("work", FlagRoute("flag", map[string]string{
				"more": "work",
				"done": "tail",
			}, END)).
			SetEntry("work").
			MustCompile()
	}

	// Uninterrupted baseline.
	baseline, err := build().Run(context.Background(), "t1", nil)
	require.NoError(t, err)

	// Same graph, interrupted after every step by the recursion limit and
	// rerun until completion.
	saver := checkpoint.NewMemorySaver()
	var result *Result
	for i := 0; i < 10; i++ {
		result, err = build().Run(context.Background(), "t2", nil,
			WithCheckpointer(saver), WithRecursionLimit(1))
		if err == nil {
			break
		}
		require.ErrorIs(t, err, ErrRecursionLimit)
	}
	require.NoError(t, err)

	assert.Equal(t, baseline.Values, result.Values)

	snap, err := build().State(context.Background(), "t2", WithCheckpointer(saver))
	require.NoError(t, err)
	assert.Equal(t, result.Values, snap.Values)
}

// TestCheckpoint_SQLiteRoundTrip tests a full run and resume through the
// SQLite saver.
func TestCheckpoint_SQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threads.db")
	saver, err := checkpoint.NewSQLiteSaver(path)
	require.NoError(t, err)
	defer saver.Close()

	tr := &tracker{}
	compiled := NewGraph().
		AddChannel("log", channel.Append()).
		AddNode("a", trackingNode("a", "log", tr), Writes("log")).
		AddNode("b", trackingNode("b", "log", tr), Writes("log")).
		AddEdge("a", "b").
		SetEntry("a").
		MustCompile()

	result, err := compiled.Run(context.Background(), "t1", nil, WithCheckpointer(saver))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, asStrings(result.Values["log"]))

	infos, err := saver.List(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, infos, 3)

	// A rerun on the durable thread plans nothing new.
	result, err = compiled.Run(context.Background(), "t1", nil, WithCheckpointer(saver))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, []string{"a", "b"}, tr.executions(), "completed steps were replayed")
}

// TestCheckpoint_SaveFailureIsFatal tests that a failing saver aborts the
// run with a CheckpointError.
func TestCheckpoint_SaveFailureIsFatal(t *testing.T) {
	saver := checkpoint.NewMemorySaver()
	require.NoError(t, saver.Close())

	compiled := NewGraph().AddNode("a", noopNode()).SetEntry("a").MustCompile()

	_, err := compiled.Run(context.Background(), "t1", nil, WithCheckpointer(saver))

	var cpErr *CheckpointError
	require.ErrorAs(t, err, &cpErr)
	assert.ErrorIs(t, err, checkpoint.ErrSaverClosed)
}
