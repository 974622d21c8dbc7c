package stepgraph

import (
	"fmt"
	"log/slog"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/checkpoint"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/config"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/interrupt"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/observability"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/stream"
)

// DefaultRecursionLimit caps the number of supersteps per Run or Resume
// invocation when no explicit limit is set.
const DefaultRecursionLimit = 25

// FailurePolicy controls what happens when one node in a step fails while
// siblings succeed.
type FailurePolicy int

const (
	// PolicyFailFast discards all of the step's pending writes, skips the
	// checkpoint, and fails the run. The default.
	PolicyFailFast FailurePolicy = iota

	// PolicySkipFailed commits the writes of successful nodes; failed
	// nodes do not activate their outgoing edges and are reported in
	// Result.FailedNodes.
	PolicySkipFailed
)

// String returns the policy's config-file spelling.
func (p FailurePolicy) String() string {
	switch p {
	case PolicySkipFailed:
		return "skip_failed"
	default:
		return "fail_fast"
	}
}

// ParseFailurePolicy parses a policy name as it appears in config files.
// "abort_step" is accepted as an alias for "fail_fast".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "fail_fast", "abort_step":
		return PolicyFailFast, nil
	case "skip_failed":
		return PolicySkipFailed, nil
	default:
		return PolicyFailFast, fmt.Errorf("stepgraph: unknown failure policy: %q", s)
	}
}

// runConfig carries the resolved per-run configuration.
type runConfig struct {
	recursionLimit int
	maxConcurrency int
	failurePolicy  FailurePolicy

	saver           checkpoint.Saver
	interrupts      *interrupt.Controller
	interruptBefore map[string]bool

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	bus         *stream.Bus
	streamModes map[stream.Type]bool
}

func newRunConfig(opts []RunOption) *runConfig {
	cfg := &runConfig{
		recursionLimit:  DefaultRecursionLimit,
		interruptBefore: make(map[string]bool),
		streamModes:     make(map[stream.Type]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.metrics == nil {
		cfg.metrics = observability.NoopMetrics{}
	}
	if cfg.spans == nil {
		cfg.spans = observability.NoopSpanManager{}
	}
	return cfg
}

// RunOption configures a Run or Resume invocation.
type RunOption func(*runConfig)

// WithCheckpointer sets the checkpoint saver. Without one, runs use an
// in-memory saver that lives only for the CompiledGraph's lifetime.
func WithCheckpointer(s checkpoint.Saver) RunOption {
	return func(cfg *runConfig) {
		cfg.saver = s
	}
}

// WithRecursionLimit caps the number of supersteps per invocation.
// Values < 1 keep the default.
func WithRecursionLimit(n int) RunOption {
	return func(cfg *runConfig) {
		if n >= 1 {
			cfg.recursionLimit = n
		}
	}
}

// WithMaxConcurrency caps how many node executions run in parallel within
// one step. Zero or negative means unbounded (one goroutine per task).
func WithMaxConcurrency(n int) RunOption {
	return func(cfg *runConfig) {
		cfg.maxConcurrency = n
	}
}

// WithFailurePolicy sets the partial-failure behavior for a step.
func WithFailurePolicy(p FailurePolicy) RunOption {
	return func(cfg *runConfig) {
		cfg.failurePolicy = p
	}
}

// WithInterruptBefore pauses the run before any of the listed nodes
// executes, persisting a resumable checkpoint.
func WithInterruptBefore(nodeIDs ...string) RunOption {
	return func(cfg *runConfig) {
		for _, id := range nodeIDs {
			cfg.interruptBefore[id] = true
		}
	}
}

// WithInterruptController sets the controller that tracks pending
// interrupts. Share one controller across Run and Resume calls on the
// same threads.
func WithInterruptController(c *interrupt.Controller) RunOption {
	return func(cfg *runConfig) {
		cfg.interrupts = c
	}
}

// WithLogger sets the structured logger for run, step, and task events.
func WithLogger(logger *slog.Logger) RunOption {
	return func(cfg *runConfig) {
		cfg.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Use
// observability.NewMetricsRecorder() for OpenTelemetry instruments.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(cfg *runConfig) {
		cfg.metrics = m
	}
}

// WithTracing enables OpenTelemetry spans around the run, each step, and
// each task.
func WithTracing() RunOption {
	return func(cfg *runConfig) {
		cfg.spans = observability.NewSpanManager()
	}
}

// WithStream attaches an event bus and enables the given stream modes.
// stream.TypeValues emits full post-commit state per step,
// stream.TypeUpdates emits per-node deltas, stream.TypeMessages forwards
// Context.Emit payloads. Lifecycle events (run start/complete/paused/error)
// are always published when a bus is attached.
func WithStream(bus *stream.Bus, modes ...stream.Type) RunOption {
	return func(cfg *runConfig) {
		cfg.bus = bus
		for _, m := range modes {
			cfg.streamModes[m] = true
		}
	}
}

// NewSaverFromSettings builds a checkpoint saver from file-loaded settings:
// a SQLite saver when a checkpoint path is configured, an in-memory saver
// otherwise. The caller owns Close.
func NewSaverFromSettings(s config.RunSettings) (checkpoint.Saver, error) {
	if s.CheckpointPath == "" {
		return checkpoint.NewMemorySaver(), nil
	}
	return checkpoint.NewSQLiteSaver(s.CheckpointPath)
}

// WithSettings applies file-loaded run settings. Explicit options placed
// after WithSettings override its values.
func WithSettings(s config.RunSettings) RunOption {
	return func(cfg *runConfig) {
		if s.RecursionLimit >= 1 {
			cfg.recursionLimit = s.RecursionLimit
		}
		if s.MaxConcurrency > 0 {
			cfg.maxConcurrency = s.MaxConcurrency
		}
		if p, err := ParseFailurePolicy(s.FailurePolicy); err == nil {
			cfg.failurePolicy = p
		}
		for _, id := range s.InterruptBefore {
			cfg.interruptBefore[id] = true
		}
	}
}
