package stepgraph

import (
	"context"
	"log/slog"

	"github.com/stepgraph/stepgraph/pkg/stepgraph/observability"
	"github.com/stepgraph/stepgraph/pkg/stepgraph/stream"
)

// Context is the execution context handed to nodes and routers.
// It extends context.Context with scheduler metadata and services.
//
// Contexts are immutable; the scheduler derives one per task with the
// node ID and an enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with thread, step,
	// and node fields. Never nil - defaults to slog.Default().
	Logger() *slog.Logger

	// ThreadID returns the thread this run belongs to.
	ThreadID() string

	// NodeID returns the node currently executing.
	// Empty for router evaluation contexts until set.
	NodeID() string

	// Step returns the current superstep number.
	Step() int

	// Emit passes an opaque payload through to messages-mode stream
	// subscribers. It is a no-op when no stream is attached; the
	// scheduler never interprets the payload.
	Emit(payload any)
}

// executionContext is the internal Context implementation.
type executionContext struct {
	context.Context

	logger   *slog.Logger
	threadID string
	nodeID   string
	step     int
	bus      *stream.Bus
}

// Logger returns the enriched logger.
func (c *executionContext) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// ThreadID returns the thread identifier.
func (c *executionContext) ThreadID() string { return c.threadID }

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string { return c.nodeID }

// Step returns the current superstep number.
func (c *executionContext) Step() int { return c.step }

// Emit publishes a messages event for this node, if a stream is attached.
func (c *executionContext) Emit(payload any) {
	if c.bus == nil {
		return
	}
	evt := stream.NewEvent(stream.TypeMessages, c.threadID, c.step)
	evt.NodeID = c.nodeID
	evt.Payload = payload
	_ = c.bus.Publish(evt)
}

// newExecutionContext builds the per-task context.
func newExecutionContext(ctx context.Context, cfg *runConfig, threadID string, step int, nodeID string) *executionContext {
	var logger *slog.Logger
	if cfg.logger != nil {
		logger = observability.EnrichLogger(cfg.logger, threadID, step, nodeID)
	}
	var bus *stream.Bus
	if cfg.streamModes[stream.TypeMessages] {
		bus = cfg.bus
	}
	return &executionContext{
		Context:  ctx,
		logger:   logger,
		threadID: threadID,
		nodeID:   nodeID,
		step:     step,
		bus:      bus,
	}
}
