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

// MetricsRecorder records lifecycle and dispatch metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStart records one agent instance start attempt.
	RecordStart(ctx context.Context, statement string, duration time.Duration, err error)

	// RecordStop records one agent instance stop and how many of its
	// steps failed.
	RecordStop(ctx context.Context, statement string, failures int)

	// RecordDispatch records one event routed to a set of matches.
	RecordDispatch(ctx context.Context, matches int, duration time.Duration)

	// RecordCallbackError records a failed callback or internal dispatch.
	RecordCallbackError(ctx context.Context, statement string)

	// RecordPreemption records dispatch stopped by a preemptive handle.
	RecordPreemption(ctx context.Context, statement string)

	// RecordFilterFault records a fault re-evaluation.
	RecordFilterFault(ctx context.Context, reevaluated int)
}

type otelMetrics struct {
	starts         metric.Int64Counter
	startFailures  metric.Int64Counter
	startLatency   metric.Float64Histogram
	stops          metric.Int64Counter
	stopFailures   metric.Int64Counter
	dispatches     metric.Int64Counter
	dispatchFanout metric.Int64Histogram
	dispatchTime   metric.Float64Histogram
	callbackErrors metric.Int64Counter
	preemptions    metric.Int64Counter
	filterFaults   metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(provider metric.MeterProvider) (*otelMetrics, error) {
	meter := provider.Meter("streamcore")
	m := &otelMetrics{}
	var err error

	if m.starts, err = meter.Int64Counter("streamcore.agent_instance.starts",
		metric.WithDescription("Number of agent instance starts"),
	); err != nil {
		return nil, err
	}
	if m.startFailures, err = meter.Int64Counter("streamcore.agent_instance.start_failures",
		metric.WithDescription("Number of agent instance starts that failed and were unwound"),
	); err != nil {
		return nil, err
	}
	if m.startLatency, err = meter.Float64Histogram("streamcore.agent_instance.start_latency_ms",
		metric.WithDescription("Agent instance start latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.stops, err = meter.Int64Counter("streamcore.agent_instance.stops",
		metric.WithDescription("Number of agent instance stops"),
	); err != nil {
		return nil, err
	}
	if m.stopFailures, err = meter.Int64Counter("streamcore.agent_instance.stop_failures",
		metric.WithDescription("Number of stop steps that failed"),
	); err != nil {
		return nil, err
	}
	if m.dispatches, err = meter.Int64Counter("streamcore.dispatch.events",
		metric.WithDescription("Number of events dispatched to agent instances"),
	); err != nil {
		return nil, err
	}
	if m.dispatchFanout, err = meter.Int64Histogram("streamcore.dispatch.matches",
		metric.WithDescription("Matching callbacks per dispatched event"),
	); err != nil {
		return nil, err
	}
	if m.dispatchTime, err = meter.Float64Histogram("streamcore.dispatch.latency_ms",
		metric.WithDescription("Dispatch latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.callbackErrors, err = meter.Int64Counter("streamcore.dispatch.callback_errors",
		metric.WithDescription("Number of failed callbacks"),
	); err != nil {
		return nil, err
	}
	if m.preemptions, err = meter.Int64Counter("streamcore.dispatch.preemptions",
		metric.WithDescription("Number of dispatches ended by a preemptive handle"),
	); err != nil {
		return nil, err
	}
	if m.filterFaults, err = meter.Int64Counter("streamcore.filter.faults",
		metric.WithDescription("Number of filter fault re-evaluations"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder on the global OTel meter
// provider. Configure the provider with otel.SetMeterProvider first.
// If instrument creation fails, a no-op recorder is returned.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithProvider returns a MetricsRecorder bound to provider.
func NewMetricsRecorderWithProvider(provider metric.MeterProvider) (MetricsRecorder, error) {
	m, err := newOtelMetrics(provider)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func statementAttr(statement string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("statement", statement))
}

func (m *otelMetrics) RecordStart(ctx context.Context, statement string, duration time.Duration, err error) {
	attrs := statementAttr(statement)
	m.starts.Add(ctx, 1, attrs)
	m.startLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.startFailures.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordStop(ctx context.Context, statement string, failures int) {
	attrs := statementAttr(statement)
	m.stops.Add(ctx, 1, attrs)
	if failures > 0 {
		m.stopFailures.Add(ctx, int64(failures), attrs)
	}
}

func (m *otelMetrics) RecordDispatch(ctx context.Context, matches int, duration time.Duration) {
	m.dispatches.Add(ctx, 1)
	m.dispatchFanout.Record(ctx, int64(matches))
	m.dispatchTime.Record(ctx, float64(duration.Microseconds())/1000)
}

func (m *otelMetrics) RecordCallbackError(ctx context.Context, statement string) {
	m.callbackErrors.Add(ctx, 1, statementAttr(statement))
}

func (m *otelMetrics) RecordPreemption(ctx context.Context, statement string) {
	m.preemptions.Add(ctx, 1, statementAttr(statement))
}

func (m *otelMetrics) RecordFilterFault(ctx context.Context, reevaluated int) {
	m.filterFaults.Add(ctx, 1, metric.WithAttributes(attribute.Int("reevaluated", reevaluated)))
}
