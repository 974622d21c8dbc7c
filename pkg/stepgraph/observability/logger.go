// Package observability provides structured logging, metrics, and tracing
// helpers for the step scheduler.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
)

// EnrichLogger adds scheduler context to a logger.
// Returns a new logger with thread_id, step, and node_id fields.
func EnrichLogger(logger *slog.Logger, threadID string, step int, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.Int("step", step),
		slog.String("node_id", nodeID),
	)
}

// LogRunStart logs the start of a scheduler run.
func LogRunStart(logger *slog.Logger, threadID string, fromStep int) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("thread_id", threadID),
		slog.Int("from_step", fromStep),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, threadID string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("thread_id", threadID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
	)
}

// LogRunPaused logs a run suspending on an interrupt guard.
func LogRunPaused(logger *slog.Logger, threadID string, step int, pendingTasks int) {
	if logger == nil {
		return
	}
	logger.Info("run paused",
		slog.String("thread_id", threadID),
		slog.Int("step", step),
		slog.Int("pending_tasks", pendingTasks),
	)
}

// LogRunError logs run failure.
func LogRunError(logger *slog.Logger, threadID string, err error, durationMs float64, step int) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.Int("step", step),
	)
}

// LogStepStart logs the start of a superstep with its planned task set.
func LogStepStart(logger *slog.Logger, step int, nodes []string) {
	if logger == nil {
		return
	}
	logger.Debug("step starting",
		slog.Int("step", step),
		slog.Any("nodes", nodes),
	)
}

// LogStepComplete logs a committed superstep.
func LogStepComplete(logger *slog.Logger, step int, durationMs float64, updated []string) {
	if logger == nil {
		return
	}
	logger.Debug("step committed",
		slog.Int("step", step),
		slog.Float64("duration_ms", durationMs),
		slog.Any("updated_channels", updated),
	)
}

// LogTaskError logs a task failure within a step.
func LogTaskError(logger *slog.Logger, step int, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("task failed",
		slog.Int("step", step),
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogTaskSkipped logs a failed task whose writes were dropped under the
// skip-failed policy.
func LogTaskSkipped(logger *slog.Logger, step int, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("task writes skipped",
		slog.Int("step", step),
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, step int, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.Int("step", step),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a checkpoint failure.
func LogCheckpointError(logger *slog.Logger, step int, op string, err error) {
	if logger == nil {
		return
	}
	logger.Error("checkpoint failed",
		slog.Int("step", step),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}
