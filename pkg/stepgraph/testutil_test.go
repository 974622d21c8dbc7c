package stepgraph

import (
	"sync"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
)

// Helper node builders shared across tests.

// writeNode returns a node that writes a fixed value to one channel.
func writeNode(ch string, value any) NodeFunc {
	return func(_ Context, _ channel.View) ([]channel.Write, error) {
		return []channel.Write{{Channel: ch, Value: value}}, nil
	}
}

// appendNode returns a node that appends its own ID to a channel.
func appendNode(id, ch string) NodeFunc {
	return func(_ Context, _ channel.View) ([]channel.Write, error) {
		return []channel.Write{{Channel: ch, Value: id}}, nil
	}
}

// noopNode returns a node that writes nothing.
func noopNode() NodeFunc {
	return func(_ Context, _ channel.View) ([]channel.Write, error) {
		return nil, nil
	}
}

// failingNode returns a node that always fails with err.
func failingNode(err error) NodeFunc {
	return func(_ Context, _ channel.View) ([]channel.Write, error) {
		return nil, err
	}
}

// panicNode returns a node that panics with the given value.
func panicNode(value any) NodeFunc {
	return func(_ Context, _ channel.View) ([]channel.Write, error) {
		panic(value)
	}
}

// tracker records node executions across goroutines.
type tracker struct {
	mu  sync.Mutex
	ran []string
}

func (tr *tracker) record(id string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.ran = append(tr.ran, id)
}

func (tr *tracker) executions() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.ran...)
}

// trackingNode records its execution and writes its ID to a channel.
func trackingNode(id, ch string, tr *tracker) NodeFunc {
	return func(_ Context, _ channel.View) ([]channel.Write, error) {
		tr.record(id)
		return []channel.Write{{Channel: ch, Value: id}}, nil
	}
}

// counterFlagNode increments a "count" channel up to limit, keeping a
// "flag" channel at loopValue while counting and switching it to doneValue
// once count saturates. The node reads its own count channel, so it keeps
// re-activating until the count stops changing. Used for loop tests.
func counterFlagNode(limit int, loopValue, doneValue string) NodeFunc {
	return func(_ Context, view channel.View) ([]channel.Write, error) {
		count := 0
		if v, ok := view.Get("count"); ok {
			switch n := v.(type) {
			case int:
				count = n
			case float64:
				// Values restored from a checkpoint come back as float64.
				count = int(n)
			}
		}
		if count >= limit {
			return []channel.Write{{Channel: "flag", Value: doneValue}}, nil
		}
		return []channel.Write{
			{Channel: "count", Value: float64(count + 1)},
			{Channel: "flag", Value: loopValue},
		}, nil
	}
}

// strings pulls the string elements out of an appended []any channel value.
func asStrings(v any) []string {
	seq, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(seq))
	for _, e := range seq {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
