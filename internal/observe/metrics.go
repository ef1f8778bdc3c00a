// Package observe provides application-wide observability primitives for
// greenroom: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all greenroom metrics.
const meterName = "github.com/greenroomhq/greenroom"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per analysis stage ---

	// AnalyzeDuration tracks end-to-end analysis latency for one clip.
	AnalyzeDuration metric.Float64Histogram

	// TranscribeDuration tracks speech-to-text transcription latency.
	TranscribeDuration metric.Float64Histogram

	// ScoreDuration tracks per-turn rubric scoring latency.
	ScoreDuration metric.Float64Histogram

	// RewriteDuration tracks per-turn rewrite generation latency.
	RewriteDuration metric.Float64Histogram

	// TTSDuration tracks question playback synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// TurnsAnalyzed counts answer turns that completed the scoring stage,
	// degraded or not.
	TurnsAnalyzed metric.Int64Counter

	// ScoringDegraded counts turns whose score degraded to unknown criteria
	// because the scoring call timed out or returned an unusable reply.
	ScoringDegraded metric.Int64Counter

	// StaleResultsDiscarded counts analysis completions dropped because a
	// retry superseded their attempt before they finished.
	StaleResultsDiscarded metric.Int64Counter

	// SessionsStarted counts guided sessions that left Setup.
	SessionsStarted metric.Int64Counter

	// SessionsCompleted counts guided sessions that reached Complete.
	SessionsCompleted metric.Int64Counter

	// ProviderErrors counts collaborator errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// AnalysesInFlight tracks analyses currently running.
	AnalysesInFlight metric.Int64UpDownCounter

	// ActiveSessions tracks guided sessions between Setup and Complete.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Analysis
// calls are batch work against local inference: transcription runs seconds,
// scoring tens of seconds, so the buckets stretch well past the sub-second
// range.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AnalyzeDuration, err = m.Float64Histogram("greenroom.analyze.duration",
		metric.WithDescription("End-to-end latency of one clip analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("greenroom.transcribe.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScoreDuration, err = m.Float64Histogram("greenroom.score.duration",
		metric.WithDescription("Latency of per-turn rubric scoring."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RewriteDuration, err = m.Float64Histogram("greenroom.rewrite.duration",
		metric.WithDescription("Latency of per-turn rewrite generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("greenroom.tts.duration",
		metric.WithDescription("Latency of question playback synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TurnsAnalyzed, err = m.Int64Counter("greenroom.turns.analyzed",
		metric.WithDescription("Total answer turns that completed scoring, degraded or not."),
	); err != nil {
		return nil, err
	}
	if met.ScoringDegraded, err = m.Int64Counter("greenroom.scoring.degraded",
		metric.WithDescription("Total turns whose score degraded to unknown criteria."),
	); err != nil {
		return nil, err
	}
	if met.StaleResultsDiscarded, err = m.Int64Counter("greenroom.results.stale_discarded",
		metric.WithDescription("Total analysis completions discarded because a retry superseded them."),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("greenroom.sessions.started",
		metric.WithDescription("Total guided sessions started."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("greenroom.sessions.completed",
		metric.WithDescription("Total guided sessions that reached Complete."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("greenroom.provider.errors",
		metric.WithDescription("Total collaborator errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.AnalysesInFlight, err = m.Int64UpDownCounter("greenroom.analyses.in_flight",
		metric.WithDescription("Number of analyses currently running."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("greenroom.active_sessions",
		metric.WithDescription("Number of guided sessions between Setup and Complete."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("greenroom.http.request.duration",
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

// RecordProviderError is a convenience method that records a collaborator
// error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
