// Package observe provides application-wide observability primitives for
// Maddieply: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Maddieply metrics.
const meterName = "github.com/Mizu36/maddieply"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per reaction pipeline stage ---

	// LLMDuration tracks chat-completion latency.
	LLMDuration metric.Float64Histogram

	// SynthDuration tracks text-to-speech synthesis latency.
	SynthDuration metric.Float64Histogram

	// STTDuration tracks microphone transcription latency.
	STTDuration metric.Float64Histogram

	// PlaybackDuration tracks how long one clip presentation takes,
	// animation included.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// ItemsQueued counts items admitted to the queue. Use with attributes:
	//   attribute.String("lane", "priority"|"ordinary")
	ItemsQueued metric.Int64Counter

	// ItemsPlayed counts completed playbacks. Use with attribute:
	//   attribute.String("outcome", "ok"|"skipped"|"failed")
	ItemsPlayed metric.Int64Counter

	// ReactionsDropped counts reactions lost to synthesis or completion
	// outages. Use with attribute: attribute.String("reason", ...)
	ReactionsDropped metric.Int64Counter

	// Signals counts operator control signals. Use with attribute:
	//   attribute.String("signal", ...)
	Signals metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// fast local operations and multi-second provider round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMDuration, err = m.Float64Histogram("maddieply.llm.duration",
		metric.WithDescription("Latency of chat completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthDuration, err = m.Float64Histogram("maddieply.synth.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("maddieply.stt.duration",
		metric.WithDescription("Latency of microphone transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("maddieply.playback.duration",
		metric.WithDescription("Duration of one clip presentation, animation included."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ItemsQueued, err = m.Int64Counter("maddieply.queue.items",
		metric.WithDescription("Total items admitted to the queue by lane."),
	); err != nil {
		return nil, err
	}
	if met.ItemsPlayed, err = m.Int64Counter("maddieply.queue.played",
		metric.WithDescription("Total playbacks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ReactionsDropped, err = m.Int64Counter("maddieply.reactions.dropped",
		metric.WithDescription("Total reactions dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.Signals, err = m.Int64Counter("maddieply.control.signals",
		metric.WithDescription("Total operator control signals by name."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("maddieply.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("maddieply.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RegisterQueueDepth registers an observable gauge reporting the pending
// queue depth through the given callback.
func RegisterQueueDepth(mp metric.MeterProvider, depth func() int) error {
	m := mp.Meter(meterName)
	gauge, err := m.Int64ObservableGauge("maddieply.queue.depth",
		metric.WithDescription("Number of items waiting in the queue."),
	)
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(depth()))
		return nil
	}, gauge)
	return err
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

// RecordQueued records one queue admission for the given lane.
func (m *Metrics) RecordQueued(ctx context.Context, lane string) {
	m.ItemsQueued.Add(ctx, 1,
		metric.WithAttributes(attribute.String("lane", lane)),
	)
}

// RecordPlayed records one completed playback with its outcome.
func (m *Metrics) RecordPlayed(ctx context.Context, outcome string) {
	m.ItemsPlayed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordDropped records one dropped reaction with its reason.
func (m *Metrics) RecordDropped(ctx context.Context, reason string) {
	m.ReactionsDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordSignal records one operator control signal.
func (m *Metrics) RecordSignal(ctx context.Context, signal string) {
	m.Signals.Add(ctx, 1,
		metric.WithAttributes(attribute.String("signal", signal)),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
