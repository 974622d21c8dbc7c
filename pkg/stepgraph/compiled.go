package stepgraph

import (
	"sort"
	"sync"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/checkpoint"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/interrupt"
)

// CompiledGraph is an immutable, validated execution graph. It is safe for
// concurrent use: any number of threads (distinguished by thread ID) may
// run at the same time, but at most one run per thread ID.
type CompiledGraph struct {
	channels    []channel.Spec
	nodes       map[string]*nodeSpec
	nodeOrder   []string
	edges       map[string][]string
	conditional map[string]RouterFunc
	fallback    map[string]string
	entry       []string
	readers     map[string][]string

	mu      sync.Mutex
	threads map[string]*threadState

	saverOnce     sync.Once
	defaultSaver  checkpoint.Saver
	intOnce       sync.Once
	defaultInts   *interrupt.Controller
}

// resolveSaver returns the configured saver, or a process-local in-memory
// saver shared by all runs on this graph so pauses survive across calls.
func (cg *CompiledGraph) resolveSaver(cfg *runConfig) checkpoint.Saver {
	if cfg.saver != nil {
		return cfg.saver
	}
	cg.saverOnce.Do(func() {
		cg.defaultSaver = checkpoint.NewMemorySaver()
	})
	return cg.defaultSaver
}

// resolveInterrupts returns the configured interrupt controller, or one
// shared by all runs on this graph.
func (cg *CompiledGraph) resolveInterrupts(cfg *runConfig) *interrupt.Controller {
	if cfg.interrupts != nil {
		return cfg.interrupts
	}
	cg.intOnce.Do(func() {
		cg.defaultInts = interrupt.NewController()
	})
	return cg.defaultInts
}

// threadState serializes runs on one thread ID.
type threadState struct {
	busy bool
}

// acquireThread marks a thread as running. Returns ThreadBusyError when a
// run or resume is already in flight for the same thread ID.
func (cg *CompiledGraph) acquireThread(threadID string) error {
	cg.mu.Lock()
	defer cg.mu.Unlock()

	st, ok := cg.threads[threadID]
	if !ok {
		st = &threadState{}
		cg.threads[threadID] = st
	}
	if st.busy {
		return &ThreadBusyError{ThreadID: threadID}
	}
	st.busy = true
	return nil
}

func (cg *CompiledGraph) releaseThread(threadID string) {
	cg.mu.Lock()
	defer cg.mu.Unlock()

	if st, ok := cg.threads[threadID]; ok {
		st.busy = false
	}
}

// Channels returns the declared channel specs in declaration order.
func (cg *CompiledGraph) Channels() []channel.Spec {
	return append([]channel.Spec(nil), cg.channels...)
}

// Nodes returns the node IDs in declaration order.
func (cg *CompiledGraph) Nodes() []string {
	return append([]string(nil), cg.nodeOrder...)
}

// Entry returns the entry node IDs.
func (cg *CompiledGraph) Entry() []string {
	return append([]string(nil), cg.entry...)
}

// Edges returns the static edges of a node, in declaration order.
func (cg *CompiledGraph) Edges(nodeID string) []string {
	return append([]string(nil), cg.edges[nodeID]...)
}

// HasConditionalEdge reports whether a node routes through a RouterFunc.
func (cg *CompiledGraph) HasConditionalEdge(nodeID string) bool {
	_, ok := cg.conditional[nodeID]
	return ok
}

// Fallback returns the fallback target of a node and whether one is set.
func (cg *CompiledGraph) Fallback(nodeID string) (string, bool) {
	to, ok := cg.fallback[nodeID]
	return to, ok
}

// NodeReads returns the channels a node declares as reads.
func (cg *CompiledGraph) NodeReads(nodeID string) []string {
	if n, ok := cg.nodes[nodeID]; ok {
		return append([]string(nil), n.reads...)
	}
	return nil
}

// NodeWrites returns the channels a node declares as writes.
func (cg *CompiledGraph) NodeWrites(nodeID string) []string {
	if n, ok := cg.nodes[nodeID]; ok {
		return append([]string(nil), n.writes...)
	}
	return nil
}

// Readers returns the node IDs that read a channel, in node declaration
// order.
func (cg *CompiledGraph) Readers(ch string) []string {
	return append([]string(nil), cg.readers[ch]...)
}

// GraphInfo is a static description of a compiled graph, suitable for
// rendering or debugging.
type GraphInfo struct {
	Channels    []string            `json:"channels"`
	Nodes       []NodeInfo          `json:"nodes"`
	Edges       map[string][]string `json:"edges,omitempty"`
	Conditional []string            `json:"conditional,omitempty"`
	Fallback    map[string]string   `json:"fallback,omitempty"`
	Entry       []string            `json:"entry"`
}

// NodeInfo describes a single node's declared channel access.
type NodeInfo struct {
	ID     string   `json:"id"`
	Reads  []string `json:"reads,omitempty"`
	Writes []string `json:"writes,omitempty"`
}

// Info returns a static description of the graph topology.
func (cg *CompiledGraph) Info() GraphInfo {
	info := GraphInfo{
		Entry:    append([]string(nil), cg.entry...),
		Edges:    make(map[string][]string, len(cg.edges)),
		Fallback: make(map[string]string, len(cg.fallback)),
	}
	for _, spec := range cg.channels {
		info.Channels = append(info.Channels, spec.Name)
	}
	for _, id := range cg.nodeOrder {
		n := cg.nodes[id]
		info.Nodes = append(info.Nodes, NodeInfo{
			ID:     id,
			Reads:  append([]string(nil), n.reads...),
			Writes: append([]string(nil), n.writes...),
		})
	}
	for from, targets := range cg.edges {
		info.Edges[from] = append([]string(nil), targets...)
	}
	for from := range cg.conditional {
		info.Conditional = append(info.Conditional, from)
	}
	sort.Strings(info.Conditional)
	for from, to := range cg.fallback {
		info.Fallback[from] = to
	}
	return info
}

// newStore builds a fresh channel store from the graph's channel specs.
func (cg *CompiledGraph) newStore() (*channel.Store, error) {
	return channel.NewStore(cg.channels)
}

// nodeIndex returns the declaration index of a node, used as the
// deterministic apply order for concurrent writes.
func (cg *CompiledGraph) nodeIndex(nodeID string) int {
	if n, ok := cg.nodes[nodeID]; ok {
		return n.order
	}
	return len(cg.nodeOrder)
}
