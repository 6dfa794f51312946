// Package observability provides logging, metrics and tracing for the
// agent instance lifecycle and the dispatch path.
//
// Logging uses slog. Metrics and tracing use OpenTelemetry and are opt-in:
// every feature has a no-op implementation for when it is disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger scopes a logger to one agent instance.
//
//	enriched := EnrichLogger(logger, "orders-by-region", 3)
//	enriched.Info("loaded") // includes statement and agent_instance_id
func EnrichLogger(logger *slog.Logger, statement string, agentInstanceID int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("statement", statement),
		slog.Int("agent_instance_id", agentInstanceID),
	)
}

// LogAgentInstanceStart logs a completed start.
func LogAgentInstanceStart(logger *slog.Logger, statement string, agentInstanceID int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("agent instance started",
		slog.String("statement", statement),
		slog.Int("agent_instance_id", agentInstanceID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogAgentInstanceStartError logs a start that failed and was unwound.
func LogAgentInstanceStartError(logger *slog.Logger, statement string, agentInstanceID int, err error) {
	if logger == nil {
		return
	}
	logger.Error("agent instance start failed",
		slog.String("statement", statement),
		slog.Int("agent_instance_id", agentInstanceID),
		slog.String("error", err.Error()),
	)
}

// LogAgentInstanceStop logs a completed stop.
func LogAgentInstanceStop(logger *slog.Logger, statement string, agentInstanceID int, statementStop bool) {
	if logger == nil {
		return
	}
	logger.Debug("agent instance stopped",
		slog.String("statement", statement),
		slog.Int("agent_instance_id", agentInstanceID),
		slog.Bool("statement_stop", statementStop),
	)
}

// LogStopFailure logs a stop step that failed. Stop continues past it.
func LogStopFailure(logger *slog.Logger, statement string, agentInstanceID int, step string, err error) {
	if logger == nil {
		return
	}
	logger.Error("agent instance stop step failed",
		slog.String("statement", statement),
		slog.Int("agent_instance_id", agentInstanceID),
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
}

// LogDispatchError logs a callback or dispatch failure for one event.
func LogDispatchError(logger *slog.Logger, statement string, agentInstanceID int, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Error("event processing failed",
		slog.String("statement", statement),
		slog.Int("agent_instance_id", agentInstanceID),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogPreemption logs an event consumed by a preemptive agent instance.
func LogPreemption(logger *slog.Logger, statement string, agentInstanceID int, skipped int) {
	if logger == nil {
		return
	}
	logger.Debug("dispatch preempted",
		slog.String("statement", statement),
		slog.Int("agent_instance_id", agentInstanceID),
		slog.Int("skipped_instances", skipped),
	)
}

// LogFilterFault logs a re-evaluation after a filter changed under an event.
func LogFilterFault(logger *slog.Logger, eventType string, version int64, reevaluated int) {
	if logger == nil {
		return
	}
	logger.Debug("filter fault handled",
		slog.String("event_type", eventType),
		slog.Int64("version", version),
		slog.Int("reevaluated", reevaluated),
	)
}

// LogStaleMatch logs a match skipped because its filter was removed
// while the event was in flight.
func LogStaleMatch(logger *slog.Logger, statement string, agentInstanceID int, eventType string, version int64) {
	if logger == nil {
		return
	}
	logger.Debug("stale filter match skipped",
		slog.String("statement", statement),
		slog.Int("agent_instance_id", agentInstanceID),
		slog.String("event_type", eventType),
		slog.Int64("version", version),
	)
}

// LogSnapshotError logs a snapshot failure that does not fail the
// operation it occurred in, such as a save during stop.
func LogSnapshotError(logger *slog.Logger, statement, partition, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("snapshot failed",
		slog.String("statement", statement),
		slog.String("partition", partition),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation returns a function reporting elapsed milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
