// Package observe provides application-wide observability primitives for
// samvad: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all samvad metrics.
const meterName = "github.com/samvad-xr/samvad"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks the time from send to applied response for one
	// voice turn. Use with attribute:
	//   attribute.String("status", ...)
	TurnDuration metric.Float64Histogram

	// BackendDuration tracks the latency of the backend HTTP exchange.
	BackendDuration metric.Float64Histogram

	// RecordedSeconds tracks the length of utterances handed to the backend.
	RecordedSeconds metric.Float64Histogram

	// --- Counters ---

	// BackendRequests counts backend exchanges. Use with attribute:
	//   attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// BackendErrors counts failed backend exchanges. Use with attribute:
	//   attribute.String("kind", "network"|"protocol")
	BackendErrors metric.Int64Counter

	// Recordings counts finished recordings. Use with attribute:
	//   attribute.String("outcome", "sent"|"cancelled"|"failed")
	Recordings metric.Int64Counter

	// SuggestionsRevealed counts suggestions shown after the quiet period.
	SuggestionsRevealed metric.Int64Counter

	// --- Gauges ---

	// Happiness reports the last happiness score applied to the conversation.
	Happiness metric.Int64Gauge

	// ActiveTurns tracks the number of turns waiting on the backend.
	ActiveTurns metric.Int64UpDownCounter

	// UIClients tracks the number of connected UI websocket clients.
	UIClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// backend round trips, which include speech synthesis on the server.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// utteranceBuckets covers recordings up to the five minute capture limit.
var utteranceBuckets = []float64{
	0.5, 1, 2, 4, 8, 15, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("samvad.turn.duration",
		metric.WithDescription("Time from send to applied response for a voice turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("samvad.backend.duration",
		metric.WithDescription("Latency of the backend HTTP exchange."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordedSeconds, err = m.Float64Histogram("samvad.recording.length",
		metric.WithDescription("Length of recorded utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(utteranceBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.BackendRequests, err = m.Int64Counter("samvad.backend.requests",
		metric.WithDescription("Total backend requests by status."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrors, err = m.Int64Counter("samvad.backend.errors",
		metric.WithDescription("Total backend errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.Recordings, err = m.Int64Counter("samvad.recordings",
		metric.WithDescription("Total finished recordings by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SuggestionsRevealed, err = m.Int64Counter("samvad.suggestions.revealed",
		metric.WithDescription("Total suggestions revealed after the quiet period."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.Happiness, err = m.Int64Gauge("samvad.happiness",
		metric.WithDescription("Last happiness score reported by the backend."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTurns, err = m.Int64UpDownCounter("samvad.active_turns",
		metric.WithDescription("Number of turns waiting on the backend."),
	); err != nil {
		return nil, err
	}
	if met.UIClients, err = m.Int64UpDownCounter("samvad.ui.clients",
		metric.WithDescription("Number of connected UI clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("samvad.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails.
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordBackendRequest records one backend exchange with its duration and
// status ("ok" or "error").
func (m *Metrics) RecordBackendRequest(ctx context.Context, status string, seconds float64) {
	m.BackendRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.BackendDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBackendError records a backend error of the given kind.
func (m *Metrics) RecordBackendError(ctx context.Context, kind string) {
	m.BackendErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRecording records a finished recording. seconds is ignored unless
// the outcome is "sent".
func (m *Metrics) RecordRecording(ctx context.Context, outcome string, seconds float64) {
	m.Recordings.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome == "sent" {
		m.RecordedSeconds.Record(ctx, seconds)
	}
}

// RecordTurn records the end-to-end duration of a turn.
func (m *Metrics) RecordTurn(ctx context.Context, status string, seconds float64) {
	m.TurnDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("status", status)))
}
