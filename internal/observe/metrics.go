// Package observe provides application-wide observability primitives for
// streamtts: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all streamtts metrics.
const meterName = "github.com/MrWong99/streamtts"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// PlaybackDuration tracks how long playback of one clip took.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// ChatEvents counts inbound chat events. Use with attribute:
	//   attribute.String("kind", ...)
	ChatEvents metric.Int64Counter

	// DedupSuppressed counts events dropped by the dedup cache. Use with attribute:
	//   attribute.String("kind", ...)
	DedupSuppressed metric.Int64Counter

	// SpeechJobs counts completed speech jobs. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	SpeechJobs metric.Int64Counter

	// ConnectAttempts counts chat connection attempts. Use with attributes:
	//   attribute.String("platform", ...), attribute.String("outcome", ...)
	ConnectAttempts metric.Int64Counter

	// StreamChecks counts live-status checks. Use with attribute:
	//   attribute.String("status", ...)
	StreamChecks metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks speech jobs waiting for a worker.
	QueueDepth metric.Int64UpDownCounter

	// ActiveSessions tracks live chat sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks control API request time, labelled by
	// method, route pattern and status code.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) tuned for
// synthesis and playback of short chat clips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TTSDuration, err = m.Float64Histogram("streamtts.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("streamtts.playback.duration",
		metric.WithDescription("Duration of audio playback per clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChatEvents, err = m.Int64Counter("streamtts.chat.events",
		metric.WithDescription("Total inbound chat events by kind."),
	); err != nil {
		return nil, err
	}
	if met.DedupSuppressed, err = m.Int64Counter("streamtts.dedup.suppressed",
		metric.WithDescription("Total chat events suppressed as duplicates by kind."),
	); err != nil {
		return nil, err
	}
	if met.SpeechJobs, err = m.Int64Counter("streamtts.speech.jobs",
		metric.WithDescription("Total speech jobs by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ConnectAttempts, err = m.Int64Counter("streamtts.chat.connect_attempts",
		metric.WithDescription("Total chat connection attempts by platform and outcome."),
	); err != nil {
		return nil, err
	}
	if met.StreamChecks, err = m.Int64Counter("streamtts.stream.checks",
		metric.WithDescription("Total live-status checks by resulting status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("streamtts.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("streamtts.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("streamtts.speech.queue_depth",
		metric.WithDescription("Number of speech jobs waiting for a worker."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("streamtts.chat.active_sessions",
		metric.WithDescription("Number of live chat sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("streamtts.http.request.duration",
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

// RecordChatEvent records one inbound chat event.
func (m *Metrics) RecordChatEvent(ctx context.Context, kind string) {
	m.ChatEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDedupSuppressed records one event dropped by the dedup cache.
func (m *Metrics) RecordDedupSuppressed(ctx context.Context, kind string) {
	m.DedupSuppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSpeechJob records a finished speech job with its outcome.
func (m *Metrics) RecordSpeechJob(ctx context.Context, kind, status string) {
	m.SpeechJobs.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordConnectAttempt records a chat connection attempt and its outcome
// ("connected" or an error class name).
func (m *Metrics) RecordConnectAttempt(ctx context.Context, platform, outcome string) {
	m.ConnectAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("platform", platform),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordStreamCheck records one live-status probe.
func (m *Metrics) RecordStreamCheck(ctx context.Context, status string) {
	m.StreamChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
