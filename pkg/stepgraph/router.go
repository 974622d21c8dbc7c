package stepgraph

import (
	"fmt"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
)

// FlagRoute builds a RouterFunc that reads one channel and maps its string
// value to a target node. Unknown or missing values route to fallback; an
// empty fallback (or route target) means END, so an unmapped flag quiesces
// the branch instead of failing the run. Non-string values are formatted
// with %v before lookup, so a reducer that stores numbers or booleans
// still routes.
func FlagRoute(channelName string, routes map[string]string, fallback string) RouterFunc {
	return func(_ Context, view channel.View) []string {
		v, ok := view.Get(channelName)
		if !ok || v == nil {
			return []string{orEnd(fallback)}
		}
		key, ok := v.(string)
		if !ok {
			key = fmt.Sprintf("%v", v)
		}
		if target, ok := routes[key]; ok {
			return []string{orEnd(target)}
		}
		return []string{orEnd(fallback)}
	}
}

func orEnd(target string) string {
	if target == "" {
		return END
	}
	return target
}

// validateRouterResult checks a router's returned targets against the
// graph topology. Routers signal termination by returning END, never by
// returning nothing; END entries are dropped from the activation set.
func (cg *CompiledGraph) validateRouterResult(fromNode string, targets []string) ([]string, error) {
	if len(targets) == 0 {
		return nil, &RouterError{FromNode: fromNode, Err: ErrInvalidRouterResult}
	}
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if t == "" {
			return nil, &RouterError{
				FromNode: fromNode,
				Returned: t,
				Err:      ErrInvalidRouterResult,
			}
		}
		if t == END {
			continue
		}
		if _, ok := cg.nodes[t]; !ok {
			return nil, &RouterError{
				FromNode: fromNode,
				Returned: t,
				Err:      ErrRouterTargetNotFound,
			}
		}
		out = append(out, t)
	}
	return out, nil
}
