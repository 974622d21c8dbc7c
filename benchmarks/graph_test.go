package benchmarks

import (
	"fmt"
	"testing"

	"github.com/stepgraph/stepgraph/pkg/stepgraph"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
)

// noopNode does minimal work to measure framework overhead.
func noopNode(ctx stepgraph.Context, view channel.View) ([]channel.Write, error) {
	return nil, nil
}

// BenchmarkNewGraph measures graph creation overhead.
func BenchmarkNewGraph(b *testing.B) {
	for i := 0; i < b.N; i++ {
		stepgraph.NewGraph()
	}
}

// BenchmarkAddNode measures node addition overhead.
func BenchmarkAddNode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		graph := stepgraph.NewGraph()
		graph.AddNode("node", noopNode)
	}
}

// BenchmarkAddNode_10 measures adding 10 nodes.
func BenchmarkAddNode_10(b *testing.B) {
	for i := 0; i < b.N; i++ {
		graph := stepgraph.NewGraph()
		for j := 0; j < 10; j++ {
			graph.AddNode(nodeID(j), noopNode)
		}
	}
}

// BenchmarkAddNode_100 measures adding 100 nodes.
func BenchmarkAddNode_100(b *testing.B) {
	for i := 0; i < b.N; i++ {
		graph := stepgraph.NewGraph()
		for j := 0; j < 100; j++ {
			graph.AddNode(nodeID(j), noopNode)
		}
	}
}

// BenchmarkCompile_Linear_5 compiles a 5-node linear graph.
func BenchmarkCompile_Linear_5(b *testing.B) {
	benchmarkCompileLinear(b, 5)
}

// BenchmarkCompile_Linear_10 compiles a 10-node linear graph.
func BenchmarkCompile_Linear_10(b *testing.B) {
	benchmarkCompileLinear(b, 10)
}

// BenchmarkCompile_Linear_50 compiles a 50-node linear graph.
func BenchmarkCompile_Linear_50(b *testing.B) {
	benchmarkCompileLinear(b, 50)
}

// BenchmarkCompile_Linear_100 compiles a 100-node linear graph.
func BenchmarkCompile_Linear_100(b *testing.B) {
	benchmarkCompileLinear(b, 100)
}

// BenchmarkCompile_Branching compiles a graph with conditional edges.
func BenchmarkCompile_Branching(b *testing.B) {
	graph := buildBranchingGraph()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = graph.Compile()
	}
}

// BenchmarkCompile_WideFanOut compiles a graph with one entry fanning
// out to 50 parallel workers.
func BenchmarkCompile_WideFanOut(b *testing.B) {
	graph := buildFanOutGraph(50)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = graph.Compile()
	}
}

// Helper functions

func nodeID(n int) string {
	return fmt.Sprintf("n%d", n)
}

func buildLinearGraph(n int) *stepgraph.Graph {
	graph := stepgraph.NewGraph().AddChannel("value", nil)
	for i := 0; i < n; i++ {
		graph.AddNode(nodeID(i), noopNode)
	}
	for i := 0; i < n-1; i++ {
		graph.AddEdge(nodeID(i), nodeID(i+1))
	}
	graph.AddEdge(nodeID(n-1), stepgraph.END)
	graph.SetEntry(nodeID(0))
	return graph
}

func benchmarkCompileLinear(b *testing.B, n int) {
	graph := buildLinearGraph(n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = graph.Compile()
	}
}

func buildBranchingGraph() *stepgraph.Graph {
	return stepgraph.NewGraph().
		AddChannel("value", nil).
		AddChannel("parity", nil).
		AddNode("start", parityNode, stepgraph.Reads("value"), stepgraph.Writes("parity")).
		AddNode("even", noopNode).
		AddNode("odd", noopNode).
		AddNode("merge", noopNode).
		AddConditionalEdge("start", stepgraph.FlagRoute("parity", map[string]string{
			"even": "even",
			"odd":  "odd",
		}, "odd")).
		AddEdge("even", "merge").
		AddEdge("odd", "merge").
		AddEdge("merge", stepgraph.END).
		SetEntry("start")
}

func parityNode(ctx stepgraph.Context, view channel.View) ([]channel.Write, error) {
	v, _ := view.Get("value")
	parity := "odd"
	if n, ok := v.(int); ok && n%2 == 0 {
		parity = "even"
	}
	return []channel.Write{{Channel: "parity", Value: parity}}, nil
}

func buildFanOutGraph(workers int) *stepgraph.Graph {
	graph := stepgraph.NewGraph().
		AddChannel("results", channel.Append()).
		AddNode("seed", noopNode)
	for i := 0; i < workers; i++ {
		id := fmt.Sprintf("worker%d", i)
		graph.AddNode(id, noopNode, stepgraph.Writes("results"))
		graph.AddEdge("seed", id)
		graph.AddEdge(id, stepgraph.END)
	}
	graph.SetEntry("seed")
	return graph
}
