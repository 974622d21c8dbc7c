package stepgraph

import (
	"context"
)

// planStep computes the active node set for the step following a committed
// checkpoint: every node whose declared reads intersect the channels that
// changed, plus the edge targets of the nodes that ran. The result is in
// node declaration order, so planning is deterministic regardless of task
// completion order in the previous step.
//
// Conditional edges are resolved here, against the post-commit state held
// by the store. A router that returns no targets or an unknown node fails
// the plan with a RouterError.
func (r *runner) planStep(ctx context.Context, step int, updated, ran []string) ([]string, error) {
	active := make(map[string]bool)

	for _, ch := range updated {
		for _, id := range r.graph.readers[ch] {
			active[id] = true
		}
	}

	for _, from := range ran {
		if router, ok := r.graph.conditional[from]; ok {
			rctx := newExecutionContext(ctx, r.cfg, r.threadID, step, from)
			targets := router(rctx, r.store.ViewAll())
			valid, err := r.graph.validateRouterResult(from, targets)
			if err != nil {
				return nil, err
			}
			for _, t := range valid {
				active[t] = true
			}
			continue
		}
		for _, to := range r.graph.edges[from] {
			if to != END {
				active[to] = true
			}
		}
	}

	if len(active) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(active))
	for _, id := range r.graph.nodeOrder {
		if active[id] {
			out = append(out, id)
		}
	}
	return out, nil
}
