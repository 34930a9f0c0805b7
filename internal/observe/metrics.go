// Package observe provides application-wide observability primitives for
// IDENTIA: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all IDENTIA metrics.
const meterName = "github.com/identia-project/identia"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// AssistDuration tracks responder chain latency per conversation turn.
	AssistDuration metric.Float64Histogram

	// BackendDuration tracks institutional backend request latency.
	BackendDuration metric.Float64Histogram

	// DocumentDuration tracks document OCR extraction latency.
	DocumentDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts conversation turns. Use with attribute:
	//   attribute.String("source", "text"|"voice")
	Turns metric.Int64Counter

	// Intents counts routed intents. Use with attribute:
	//   attribute.String("intent", ...)
	Intents metric.Int64Counter

	// Verifications counts identity verification attempts. Use with attributes:
	//   attribute.String("kind", "facial"|"huella"|"voz"), attribute.String("status", ...)
	Verifications metric.Int64Counter

	// PinsIssued counts tracking PINs issued. Use with attribute:
	//   attribute.String("procedure", ...)
	PinsIssued metric.Int64Counter

	// Appointments counts booked appointments.
	Appointments metric.Int64Counter

	// Fallbacks counts responder or backend fallback activations. Use with
	// attribute: attribute.String("target", ...)
	Fallbacks metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live kiosk sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveVoiceStreams tracks the number of open capture streams.
	ActiveVoiceStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for conversational latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("identia.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("identia.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AssistDuration, err = m.Float64Histogram("identia.assist.duration",
		metric.WithDescription("Latency of the responder chain per turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("identia.backend.duration",
		metric.WithDescription("Latency of institutional backend requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DocumentDuration, err = m.Float64Histogram("identia.document.duration",
		metric.WithDescription("Latency of document OCR extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("identia.turns",
		metric.WithDescription("Total conversation turns by input source."),
	); err != nil {
		return nil, err
	}
	if met.Intents, err = m.Int64Counter("identia.intents",
		metric.WithDescription("Total routed intents by intent name."),
	); err != nil {
		return nil, err
	}
	if met.Verifications, err = m.Int64Counter("identia.verifications",
		metric.WithDescription("Total identity verification attempts by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.PinsIssued, err = m.Int64Counter("identia.pins.issued",
		metric.WithDescription("Total tracking PINs issued by procedure."),
	); err != nil {
		return nil, err
	}
	if met.Appointments, err = m.Int64Counter("identia.appointments.booked",
		metric.WithDescription("Total appointments booked."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("identia.fallbacks",
		metric.WithDescription("Total fallback activations by target."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("identia.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("identia.active_sessions",
		metric.WithDescription("Number of live kiosk sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveVoiceStreams, err = m.Int64UpDownCounter("identia.active_voice_streams",
		metric.WithDescription("Number of open voice capture streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("identia.http.request.duration",
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

// RecordTurn records one conversation turn from the given input source.
func (m *Metrics) RecordTurn(ctx context.Context, source string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordIntent records one routed intent.
func (m *Metrics) RecordIntent(ctx context.Context, intent string) {
	m.Intents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("intent", intent)),
	)
}

// RecordVerification records one identity verification attempt.
func (m *Metrics) RecordVerification(ctx context.Context, kind, status string) {
	m.Verifications.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordPinIssued records one issued tracking PIN.
func (m *Metrics) RecordPinIssued(ctx context.Context, procedure string) {
	m.PinsIssued.Add(ctx, 1,
		metric.WithAttributes(attribute.String("procedure", procedure)),
	)
}

// RecordFallback records one fallback activation.
func (m *Metrics) RecordFallback(ctx context.Context, target string) {
	m.Fallbacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("target", target)),
	)
}

// RecordProviderError records one provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
