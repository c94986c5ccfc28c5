// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, structured logging setup, and HTTP middleware.
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/intervoxa"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per turn stage ---

	// TurnDuration tracks the end-to-end latency of one answer turn.
	TurnDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM call latency. Use with attribute:
	//   attribute.String("op", "evaluate"|"followup"|"recommendations")
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// VectorDuration tracks similarity scoring latency.
	VectorDuration metric.Float64Histogram

	// --- Counters ---

	// FramesIn counts inbound session frames by type.
	FramesIn metric.Int64Counter

	// FramesOut counts outbound session frames by type.
	FramesOut metric.Int64Counter

	// FollowUps counts generated follow-up questions by decision reason.
	FollowUps metric.Int64Counter

	// Completions counts finished interviews by outcome.
	Completions metric.Int64Counter

	// ProviderErrors counts adapter errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live interview sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// adapter calls that range from sub-second vector lookups to 20s LLM calls.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.TurnDuration, "intervoxa.turn.duration", "End-to-end latency of one answer turn."},
		{&met.STTDuration, "intervoxa.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "intervoxa.llm.duration", "Latency of LLM calls by operation."},
		{&met.TTSDuration, "intervoxa.tts.duration", "Latency of text-to-speech synthesis."},
		{&met.VectorDuration, "intervoxa.vector.duration", "Latency of similarity scoring."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.FramesIn, err = m.Int64Counter("intervoxa.frames.in",
		metric.WithDescription("Inbound session frames by type."),
	); err != nil {
		return nil, err
	}
	if met.FramesOut, err = m.Int64Counter("intervoxa.frames.out",
		metric.WithDescription("Outbound session frames by type."),
	); err != nil {
		return nil, err
	}
	if met.FollowUps, err = m.Int64Counter("intervoxa.followups.generated",
		metric.WithDescription("Generated follow-up questions by decision reason."),
	); err != nil {
		return nil, err
	}
	if met.Completions, err = m.Int64Counter("intervoxa.completions",
		metric.WithDescription("Finished interviews by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("intervoxa.provider.errors",
		metric.WithDescription("Adapter errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("intervoxa.active_sessions",
		metric.WithDescription("Number of live interview sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("intervoxa.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordFrameIn increments the inbound frame counter.
func (m *Metrics) RecordFrameIn(ctx context.Context, frameType string) {
	m.FramesIn.Add(ctx, 1, metric.WithAttributes(attribute.String("type", frameType)))
}

// RecordFrameOut increments the outbound frame counter.
func (m *Metrics) RecordFrameOut(ctx context.Context, frameType string) {
	m.FramesOut.Add(ctx, 1, metric.WithAttributes(attribute.String("type", frameType)))
}

// RecordFollowUp increments the follow-up counter with the decision reason.
func (m *Metrics) RecordFollowUp(ctx context.Context, reason string) {
	m.FollowUps.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordProviderError increments the adapter error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
