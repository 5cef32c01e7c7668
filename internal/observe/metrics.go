// Package observe provides application-wide observability primitives for
// Lenslate: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Lenslate metrics.
const meterName = "github.com/lenslate/lenslate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// StabilizerConfidence tracks the overall confidence score reported per
	// interim. Use with attribute:
	//   attribute.String("heuristic", ...)
	StabilizerConfidence metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// TranslationEvents counts upstream translation events. Use with attributes:
	//   attribute.String("finality", "interim"|"final"),
	//   attribute.String("direction", "to_user"|"from_user")
	TranslationEvents metric.Int64Counter

	// GlassesFrames counts text frames written to the glasses display. Use
	// with attribute:
	//   attribute.String("kind", "interim"|"final"|"clear")
	GlassesFrames metric.Int64Counter

	// CoalescedFrames counts interim frames the debouncer merged away
	// without a glasses write.
	CoalescedFrames metric.Int64Counter

	// FanoutEvents counts events broadcast to viewers. Use with attribute:
	//   attribute.String("type", ...)
	FanoutEvents metric.Int64Counter

	// DroppedSubscribers counts viewers disconnected for not keeping up.
	DroppedSubscribers metric.Int64Counter

	// SessionsOpened counts session starts. Use with attribute:
	//   attribute.String("mode", "new"|"supersede")
	SessionsOpened metric.Int64Counter

	// --- Error counters ---

	// UpstreamErrors counts upstream connection problems. Use with attribute:
	//   attribute.String("kind", "dial"|"decode"|"closed")
	UpstreamErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live translation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveSubscribers tracks the number of connected viewers across all
	// users.
	ActiveSubscribers metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for HTTP
// handling. Webhook and REST calls are fast; the long tail is SSE streams.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// confidenceBuckets spans the stabiliser's 0..1 score range.
var confidenceBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StabilizerConfidence, err = m.Float64Histogram("lenslate.stabilizer.confidence",
		metric.WithDescription("Overall confidence score per stabilised interim."),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("lenslate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TranslationEvents, err = m.Int64Counter("lenslate.translation.events",
		metric.WithDescription("Total upstream translation events by finality and direction."),
	); err != nil {
		return nil, err
	}
	if met.GlassesFrames, err = m.Int64Counter("lenslate.glasses.frames",
		metric.WithDescription("Total frames written to the glasses display by kind."),
	); err != nil {
		return nil, err
	}
	if met.CoalescedFrames, err = m.Int64Counter("lenslate.debounce.coalesced",
		metric.WithDescription("Interim frames merged away by the write debouncer."),
	); err != nil {
		return nil, err
	}
	if met.FanoutEvents, err = m.Int64Counter("lenslate.fanout.events",
		metric.WithDescription("Total events broadcast to viewers by type."),
	); err != nil {
		return nil, err
	}
	if met.DroppedSubscribers, err = m.Int64Counter("lenslate.fanout.dropped_subscribers",
		metric.WithDescription("Viewers disconnected because their queue overflowed."),
	); err != nil {
		return nil, err
	}
	if met.SessionsOpened, err = m.Int64Counter("lenslate.sessions.opened",
		metric.WithDescription("Session starts by mode."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.UpstreamErrors, err = m.Int64Counter("lenslate.upstream.errors",
		metric.WithDescription("Upstream connection problems by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("lenslate.active_sessions",
		metric.WithDescription("Number of live translation sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSubscribers, err = m.Int64UpDownCounter("lenslate.active_subscribers",
		metric.WithDescription("Number of connected viewers across all users."),
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

// RecordTranslationEvent records one upstream translation event with the
// standard attribute set.
func (m *Metrics) RecordTranslationEvent(ctx context.Context, isFinal bool, direction string) {
	finality := "interim"
	if isFinal {
		finality = "final"
	}
	m.TranslationEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("finality", finality),
			attribute.String("direction", direction),
		),
	)
}

// RecordGlassesFrame records one frame written to the glasses display.
func (m *Metrics) RecordGlassesFrame(ctx context.Context, kind string) {
	m.GlassesFrames.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordFanoutEvent records a broadcast to viewers alongside any subscribers
// dropped while delivering it. Dropped subscribers leave the active gauge
// here because the hub removes them without an unsubscribe call.
func (m *Metrics) RecordFanoutEvent(ctx context.Context, eventType string, dropped int) {
	m.FanoutEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
	if dropped > 0 {
		m.DroppedSubscribers.Add(ctx, int64(dropped))
		m.ActiveSubscribers.Add(ctx, int64(-dropped))
	}
}

// RecordSessionOpened records a session start. Mode is "new" for a fresh
// session or "supersede" when it replaced a live one.
func (m *Metrics) RecordSessionOpened(ctx context.Context, mode string) {
	m.SessionsOpened.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordConfidence records the overall confidence score of one stabilised
// interim.
func (m *Metrics) RecordConfidence(ctx context.Context, heuristic string, score float64) {
	m.StabilizerConfidence.Record(ctx, score,
		metric.WithAttributes(attribute.String("heuristic", heuristic)),
	)
}

// RecordUpstreamError records one upstream connection problem.
func (m *Metrics) RecordUpstreamError(ctx context.Context, kind string) {
	m.UpstreamErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
