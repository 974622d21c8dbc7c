package config

import (
	"fmt"
	"sort"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/channel"
)

// RunSettings is the deployment-level engine configuration loadable from a
// file. Zero values mean "use the engine default".
//
// Example YAML:
//
//	recursion_limit: 25
//	max_concurrency: 8
//	failure_policy: fail_fast
//	interrupt_before: [deploy]
//	checkpoint:
//	  path: ./checkpoints.db
//	channels:
//	  messages: append
//	  verdict: last
type RunSettings struct {
	// RecursionLimit caps the number of supersteps per invocation.
	RecursionLimit int

	// MaxConcurrency caps parallel task execution within a step.
	MaxConcurrency int

	// FailurePolicy names the task failure policy: "fail_fast",
	// "skip_failed", or "abort_step".
	FailurePolicy string

	// InterruptBefore lists interrupt-guarded node IDs.
	InterruptBefore []string

	// CheckpointPath is the SQLite file for durable checkpoints.
	// Empty means an in-memory saver.
	CheckpointPath string
}

// ParseRunSettings extracts engine run settings from a Config.
func ParseRunSettings(c Config) RunSettings {
	return RunSettings{
		RecursionLimit:  c.Int("recursion_limit", 0),
		MaxConcurrency:  c.Int("max_concurrency", 0),
		FailurePolicy:   c.String("failure_policy", ""),
		InterruptBefore: c.StringSlice("interrupt_before", nil),
		CheckpointPath:  c.Sub("checkpoint").String("path", ""),
	}
}

// ParseChannelSpecs builds channel declarations from the "channels" map,
// resolving reducers by registry name. Custom reducers must be registered
// via channel.RegisterReducer before loading the file.
func ParseChannelSpecs(c Config) ([]channel.Spec, error) {
	sub := c.Sub("channels")
	keys := sub.Keys()
	sort.Strings(keys)

	specs := make([]channel.Spec, 0, len(keys))
	for _, name := range keys {
		reducerName := sub.String(name, "")
		if reducerName == "" {
			return nil, fmt.Errorf("channel %q: reducer name must be a string", name)
		}
		r, ok := channel.LookupReducer(reducerName)
		if !ok {
			return nil, fmt.Errorf("channel %q: unknown reducer %q", name, reducerName)
		}
		specs = append(specs, channel.Spec{Name: name, Reducer: r})
	}
	return specs, nil
}
