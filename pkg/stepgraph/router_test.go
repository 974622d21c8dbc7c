package stepgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
)

// routeFixture builds decide -> {left,right} with the given router.
func routeFixture(tr *tracker, router RouterFunc) *CompiledGraph {
	return NewGraph().
		AddChannel("verdict", nil).
		AddChannel("log", channel.Append()).
		AddNode("decide", writeNode("verdict", "go-left"), Writes("verdict")).
		AddNode("left", trackingNode("left", "log", tr), Writes("log")).
		AddNode("right", trackingNode("right", "log", tr), Writes("log")).
		AddConditionalEdge("decide", router).
		SetEntry("decide").
		MustCompile()
}

// TestFlagRoute_SelectsTarget tests routing on a typed state flag.
func TestFlagRoute_SelectsTarget(t *testing.T) {
	tr := &tracker{}
	compiled := routeFixture(tr, FlagRoute("verdict", map[string]string{
		"go-left":  "left",
		"go-right": "right",
	}, END))

	result, err := compiled.Run(context.Background(), "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, []string{"left"}, tr.executions())
}

// TestFlagRoute_Fallback tests unknown and missing flag values.
func TestFlagRoute_Fallback(t *testing.T) {
	t.Run("unknown value routes to fallback", func(t *testing.T) {
		route := FlagRoute("verdict", map[string]string{"yes": "a"}, "fb")
		targets := route(nil, channel.NewView(map[string]any{"verdict": "whatever"}, nil))
		assert.Equal(t, []string{"fb"}, targets)
	})

	t.Run("missing value routes to fallback", func(t *testing.T) {
		route := FlagRoute("verdict", map[string]string{"yes": "a"}, END)
		targets := route(nil, channel.NewView(map[string]any{}, nil))
		assert.Equal(t, []string{END}, targets)
	})

	t.Run("non-string value is formatted", func(t *testing.T) {
		route := FlagRoute("attempts", map[string]string{"3": "giveup"}, "retry")
		targets := route(nil, channel.NewView(map[string]any{"attempts": 3}, nil))
		assert.Equal(t, []string{"giveup"}, targets)
	})

	t.Run("empty fallback means END", func(t *testing.T) {
		route := FlagRoute("verdict", map[string]string{"yes": "a"}, "")
		targets := route(nil, channel.NewView(map[string]any{"verdict": "whatever"}, nil))
		assert.Equal(t, []string{END}, targets)
	})
}

// TestFlagRoute_EmptyFallbackQuiesces tests that an unmapped flag with no
// fallback ends the branch instead of failing the run.
func TestFlagRoute_EmptyFallbackQuiesces(t *testing.T) {
	tr := &tracker{}
	compiled := routeFixture(tr, FlagRoute("verdict", map[string]string{
		"go-right": "right",
	}, ""))

	result, err := compiled.Run(context.Background(), "t1", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Empty(t, tr.executions())
}

// TestRouter_SeesPostCommitState tests that routers observe the state the
// step just committed, not the pre-step snapshot.
func TestRouter_SeesPostCommitState(t *testing.T) {
	var routed any
	tr := &tracker{}
	compiled := routeFixture(tr, func(_ Context, view channel.View) []string {
		routed, _ = view.Get("verdict")
		return []string{END}
	})

	_, err := compiled.Run(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, "go-left", routed)
}

// TestRouter_MultipleTargets tests fan-out from a single router.
func TestRouter_MultipleTargets(t *testing.T) {
	tr := &tracker{}
	compiled := routeFixture(tr, func(_ Context, _ channel.View) []string {
		return []string{"left", "right"}
	})

	_, err := compiled.Run(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"left", "right"}, tr.executions())
}

// TestRouter_UnknownTarget tests the unknown-node failure path.
func TestRouter_UnknownTarget(t *testing.T) {
	compiled := routeFixture(&tracker{}, func(_ Context, _ channel.View) []string {
		return []string{"ghost"}
	})

	_, err := compiled.Run(context.Background(), "t1", nil)

	var routerErr *RouterError
	require.ErrorAs(t, err, &routerErr)
	assert.Equal(t, "decide", routerErr.FromNode)
	assert.Equal(t, "ghost", routerErr.Returned)
	assert.ErrorIs(t, err, ErrRouterTargetNotFound)
}

// TestRouter_EmptyResult tests that a router returning nothing fails
// loudly instead of silently halting the thread.
func TestRouter_EmptyResult(t *testing.T) {
	compiled := routeFixture(&tracker{}, func(_ Context, _ channel.View) []string {
		return nil
	})

	_, err := compiled.Run(context.Background(), "t1", nil)
	assert.ErrorIs(t, err, ErrInvalidRouterResult)
}

// TestRouter_ConditionalWinsOverStatic tests precedence when a node has
// both edge kinds.
func TestRouter_ConditionalWinsOverStatic(t *testing.T) {
	tr := &tracker{}
	compiled := NewGraph().
		AddChannel("log", channel.Append()).
		AddNode("decide", noopNode()).
		AddNode("left", trackingNode("left", "log", tr), Writes("log")).
		AddNode("right", trackingNode("right", "log", tr), Writes("log")).
		AddEdge("decide", "right").
		AddConditionalEdge("decide", func(_ Context, _ channel.View) []string {
			return []string{"left"}
		}).
		SetEntry("decide").
		MustCompile()

	_, err := compiled.Run(context.Background(), "t1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"left"}, tr.executions())
}
