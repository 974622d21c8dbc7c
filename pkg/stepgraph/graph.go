package stepgraph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
)

// Graph is a mutable builder for execution graphs.
// Declare channels, nodes, and edges, then call Compile() to obtain an
// immutable CompiledGraph.
//
// Graph is NOT thread-safe during building. Construct it from a single
// goroutine.
//
// Example:
//
//	graph := stepgraph.NewGraph().
//	    AddChannel("messages", channel.Append()).
//	    AddChannel("verdict", channel.LastValue()).
//	    AddNode("draft", draftFn, stepgraph.Reads("messages"), stepgraph.Writes("messages")).
//	    AddNode("review", reviewFn, stepgraph.Reads("messages"), stepgraph.Writes("verdict")).
//	    AddEdge("draft", "review").
//	    AddConditionalEdge("review", stepgraph.FlagRoute("verdict", map[string]string{
//	        "approved": stepgraph.END,
//	        "revise":   "draft",
//	    }, stepgraph.END)).
//	    SetEntry("draft")
//
//	compiled, err := graph.Compile()
type Graph struct {
	mu           sync.RWMutex
	channels     []channel.Spec
	channelNames map[string]bool
	nodes        map[string]*nodeSpec
	nodeOrder    []string
	edges        map[string][]string
	conditional  map[string]RouterFunc
	fallback     map[string]string
	entry        []string
}

// NewGraph creates a new graph builder.
func NewGraph() *Graph {
	return &Graph{
		channelNames: make(map[string]bool),
		nodes:        make(map[string]*nodeSpec),
		edges:        make(map[string][]string),
		conditional:  make(map[string]RouterFunc),
		fallback:     make(map[string]string),
	}
}

// AddChannel declares a named state channel with its merge reducer.
// A nil reducer defaults to last-writer-wins in stable task order.
// Returns the graph for method chaining.
//
// Panics if the name is empty or already declared.
func (g *Graph) AddChannel(name string, r channel.Reducer) *Graph {
	if name == "" {
		panic("stepgraph: channel name cannot be empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.channelNames[name] {
		panic(fmt.Sprintf("stepgraph: duplicate channel: %s", name))
	}
	g.channelNames[name] = true
	g.channels = append(g.channels, channel.Spec{Name: name, Reducer: r})
	return g
}

// AddChannels declares multiple channels from specs, e.g. those produced
// by config.ParseChannelSpecs.
func (g *Graph) AddChannels(specs []channel.Spec) *Graph {
	for _, spec := range specs {
		g.AddChannel(spec.Name, spec.Reducer)
	}
	return g
}

// AddNode adds a named node with its declared channel reads and writes.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace
//   - fn is nil
//   - id already exists in the graph
//
// Channel declarations are validated at Compile() time.
func (g *Graph) AddNode(id string, fn NodeFunc, opts ...NodeOption) *Graph {
	if id == "" {
		panic("stepgraph: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == "__end__" {
		panic("stepgraph: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("stepgraph: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("stepgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("stepgraph: duplicate node ID: %s", id))
	}

	n := &nodeSpec{id: id, fn: fn, order: len(g.nodeOrder)}
	for _, opt := range opts {
		opt(n)
	}
	g.nodes[id] = n
	g.nodeOrder = append(g.nodeOrder, id)
	return g
}

// AddEdge adds a static edge. Targets of a node that ran in step N are
// activated in step N+1. The target can be a node ID or END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here, so edges can be
// added in any order.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a conditional edge whose RouterFunc selects the
// next nodes from the post-commit state. A node has either static edges or
// a conditional edge; if both are present the conditional edge wins.
// Returns the graph for method chaining.
func (g *Graph) AddConditionalEdge(from string, router RouterFunc) *Graph {
	if router == nil {
		panic("stepgraph: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.conditional[from] = router
	return g
}

// AddFallbackEdge declares the node activated instead of `from` when a
// pending interrupt on `from` is rejected. The target can be a node ID or
// END (reject simply discards the pending task).
// Returns the graph for method chaining.
func (g *Graph) AddFallbackEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.fallback[from] = to
	return g
}

// SetEntry designates the entry nodes activated at step 1 of a fresh
// thread. Must be called before Compile().
// Returns the graph for method chaining.
func (g *Graph) SetEntry(ids ...string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entry = append([]string(nil), ids...)
	return g
}
