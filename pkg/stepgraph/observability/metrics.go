package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records scheduler metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordRun records a completed scheduler run.
	RecordRun(ctx context.Context, outcome string, duration time.Duration)

	// RecordStep records a committed superstep with its task count.
	RecordStep(ctx context.Context, tasks int, duration time.Duration)

	// RecordTask records one task execution with duration and error status.
	RecordTask(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordCheckpoint records a checkpoint save.
	RecordCheckpoint(ctx context.Context, step int, sizeBytes int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
	steps          metric.Int64Counter
	stepLatency    metric.Float64Histogram
	stepTasks      metric.Int64Histogram
	taskExecutions metric.Int64Counter
	taskLatency    metric.Float64Histogram
	taskErrors     metric.Int64Counter
	checkpointSize metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("stepgraph")

	runs, err := meter.Int64Counter("stepgraph.run.total",
		metric.WithDescription("Number of scheduler runs by outcome"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("stepgraph.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	steps, err := meter.Int64Counter("stepgraph.step.total",
		metric.WithDescription("Number of committed supersteps"),
	)
	if err != nil {
		return nil, err
	}

	stepLatency, err := meter.Float64Histogram("stepgraph.step.latency_ms",
		metric.WithDescription("Superstep latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stepTasks, err := meter.Int64Histogram("stepgraph.step.tasks",
		metric.WithDescription("Tasks executed per superstep"),
	)
	if err != nil {
		return nil, err
	}

	taskExecutions, err := meter.Int64Counter("stepgraph.task.executions",
		metric.WithDescription("Number of task executions"),
	)
	if err != nil {
		return nil, err
	}

	taskLatency, err := meter.Float64Histogram("stepgraph.task.latency_ms",
		metric.WithDescription("Task execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	taskErrors, err := meter.Int64Counter("stepgraph.task.errors",
		metric.WithDescription("Number of task execution errors"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("stepgraph.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		runs:           runs,
		runLatency:     runLatency,
		steps:          steps,
		stepLatency:    stepLatency,
		stepTasks:      stepTasks,
		taskExecutions: taskExecutions,
		taskLatency:    taskLatency,
		taskErrors:     taskErrors,
		checkpointSize: checkpointSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder and logs the
// failure through the default slog logger.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before first use:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Default().Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordRun implements MetricsRecorder.
func (m *otelMetrics) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordStep implements MetricsRecorder.
func (m *otelMetrics) RecordStep(ctx context.Context, tasks int, duration time.Duration) {
	m.steps.Add(ctx, 1)
	m.stepLatency.Record(ctx, float64(duration.Milliseconds()))
	m.stepTasks.Record(ctx, int64(tasks))
}

// RecordTask implements MetricsRecorder.
func (m *otelMetrics) RecordTask(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node.id", nodeID))
	m.taskExecutions.Add(ctx, 1, attrs)
	m.taskLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.taskErrors.Add(ctx, 1, attrs)
	}
}

// RecordCheckpoint implements MetricsRecorder.
func (m *otelMetrics) RecordCheckpoint(ctx context.Context, step int, sizeBytes int64) {
	m.checkpointSize.Record(ctx, sizeBytes, metric.WithAttributes(attribute.Int("step", step)))
}
