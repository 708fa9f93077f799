// Package observe provides application-wide observability for Oratio:
// OpenTelemetry metrics, tracing, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// over a Prometheus bridge set up by [InitProvider], so the standard /metrics
// scrape endpoint keeps working. A package-level default [Metrics] instance
// ([DefaultMetrics]) exists for convenience; tests should use [NewMetrics]
// with their own [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Oratio metrics.
const meterName = "github.com/oratiohq/oratio"

// Metrics holds the OpenTelemetry instruments for the interview pipeline.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// STTDuration tracks time from capture start to the final transcript.
	STTDuration metric.Float64Histogram

	// TurnDuration tracks AI turn latency (opening, continuation, feedback).
	// Use with attribute.String("operation", ...).
	TurnDuration metric.Float64Histogram

	// TTSDuration tracks time to first synthesized audio chunk.
	TTSDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attribute.String("method", ...), attribute.String("route", ...).
	HTTPRequestDuration metric.Float64Histogram

	// SessionsStarted counts interviews that reached the interviewing stage.
	SessionsStarted metric.Int64Counter

	// SessionsCompleted counts interviews that produced a feedback report.
	SessionsCompleted metric.Int64Counter

	// Turns counts interviewer turns by outcome. Use with
	// attribute.String("status", ...).
	Turns metric.Int64Counter

	// TrialsRecorded counts free-trial usages written to the gate.
	TrialsRecorded metric.Int64Counter

	// ProviderErrors counts backend errors. Use with
	// attribute.String("provider", ...), attribute.String("kind", ...).
	ProviderErrors metric.Int64Counter

	// ActiveSessions tracks the number of live interview sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram boundaries (in seconds) sized for a voice
// loop: sub-second capture ticks up to multi-second model calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.STTDuration, err = m.Float64Histogram("oratio.stt.duration",
		metric.WithDescription("Time from capture start to final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("oratio.turn.duration",
		metric.WithDescription("AI turn latency by operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("oratio.tts.duration",
		metric.WithDescription("Time to first synthesized audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("oratio.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.SessionsStarted, err = m.Int64Counter("oratio.sessions.started",
		metric.WithDescription("Interviews that reached the interviewing stage."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("oratio.sessions.completed",
		metric.WithDescription("Interviews that produced a feedback report."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("oratio.turns",
		metric.WithDescription("Interviewer turns by status."),
	); err != nil {
		return nil, err
	}
	if met.TrialsRecorded, err = m.Int64Counter("oratio.trials.recorded",
		metric.WithDescription("Free-trial usages written to the gate."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("oratio.provider.errors",
		metric.WithDescription("Backend errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("oratio.active_sessions",
		metric.WithDescription("Number of live interview sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], creating it on first
// call from [otel.GetMeterProvider]. Panics if instrument creation fails,
// which cannot happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTurn records an interviewer turn with its latency and outcome.
func (m *Metrics) RecordTurn(ctx context.Context, operation, status string, seconds float64) {
	m.TurnDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("operation", operation)))
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderError records a backend error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
