package stepgraph

import (
	"errors"
	"fmt"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
)

// Compile validates the graph and returns an immutable CompiledGraph.
// All validation errors are collected and joined, so a single Compile()
// call reports everything wrong with the build at once.
//
// Validation rules:
//   - at least one entry node is set, and every entry node exists
//   - every static edge source and target exists (target may be END)
//   - every conditional-edge and fallback-edge source exists
//   - every fallback target exists (target may be END)
//   - every channel a node reads or writes is declared
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	if len(g.entry) == 0 {
		errs = append(errs, ErrNoEntryNodes)
	}
	for _, id := range g.entry {
		if _, ok := g.nodes[id]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, id))
		}
	}

	for from, targets := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, from))
		}
		for _, to := range targets {
			if to == END {
				continue
			}
			if _, ok := g.nodes[to]; !ok {
				errs = append(errs, fmt.Errorf("%w: edge %s -> %s", ErrNodeNotFound, from, to))
			}
		}
	}

	for from := range g.conditional {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: conditional edge source %s", ErrNodeNotFound, from))
		}
	}

	for from, to := range g.fallback {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: fallback edge source %s", ErrNodeNotFound, from))
		}
		if to != END {
			if _, ok := g.nodes[to]; !ok {
				errs = append(errs, fmt.Errorf("%w: fallback edge %s -> %s", ErrNodeNotFound, from, to))
			}
		}
	}

	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		for _, ch := range n.reads {
			if !g.channelNames[ch] {
				errs = append(errs, fmt.Errorf("%w: node %s reads %s", ErrChannelNotDeclared, id, ch))
			}
		}
		for _, ch := range n.writes {
			if !g.channelNames[ch] {
				errs = append(errs, fmt.Errorf("%w: node %s writes %s", ErrChannelNotDeclared, id, ch))
			}
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// Deep-copy the topology so later builder mutations cannot leak into
	// the compiled artifact.
	nodes := make(map[string]*nodeSpec, len(g.nodes))
	for id, n := range g.nodes {
		cp := *n
		cp.reads = append([]string(nil), n.reads...)
		cp.writes = append([]string(nil), n.writes...)
		nodes[id] = &cp
	}
	edges := make(map[string][]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = append([]string(nil), targets...)
	}
	conditional := make(map[string]RouterFunc, len(g.conditional))
	for from, r := range g.conditional {
		conditional[from] = r
	}
	fallback := make(map[string]string, len(g.fallback))
	for from, to := range g.fallback {
		fallback[from] = to
	}

	// Reverse index: channel name -> node IDs reading it, in declaration
	// order. Used by the planner to resolve channel-triggered activation.
	readers := make(map[string][]string)
	for _, id := range g.nodeOrder {
		for _, ch := range nodes[id].reads {
			readers[ch] = append(readers[ch], id)
		}
	}

	return &CompiledGraph{
		channels:    append([]channel.Spec(nil), g.channels...),
		nodes:       nodes,
		nodeOrder:   append([]string(nil), g.nodeOrder...),
		edges:       edges,
		conditional: conditional,
		fallback:    fallback,
		entry:       append([]string(nil), g.entry...),
		readers:     readers,
		threads:     make(map[string]*threadState),
	}, nil
}

// MustCompile is like Compile but panics on validation failure. Intended
// for graphs whose topology is fixed at program start.
func (g *Graph) MustCompile() *CompiledGraph {
	cg, err := g.Compile()
	if err != nil {
		panic(fmt.Sprintf("stepgraph: compile failed: %v", err))
	}
	return cg
}
