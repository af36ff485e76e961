// Package observe provides application-wide observability primitives for the
// kiosk: OpenTelemetry metrics, tracing, trace-aware logging, and the echo
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping via the Prometheus exporter installed by [InitProvider]. Tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kiosk metrics.
const meterName = "github.com/MrWong99/kioskvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	STTDuration      metric.Float64Histogram
	LLMFirstFragment metric.Float64Histogram
	LLMDuration      metric.Float64Histogram
	TTSDuration      metric.Float64Histogram
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider calls by kind and status.
	ProviderRequests metric.Int64Counter

	// Turns counts completed dialogue turns.
	Turns metric.Int64Counter

	// UnitOutcomes counts playback units by outcome
	// (played, failed, timeout, dropped).
	UnitOutcomes metric.Int64Counter

	// FilteredTranscripts counts transcripts discarded as empty or artifacts.
	FilteredTranscripts metric.Int64Counter

	// --- Gauges ---

	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP ---

	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	hist := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.STTDuration, err = hist("kioskvoice.stt.duration", "Latency of speech-to-text transcription."); err != nil {
		return nil, err
	}
	if met.LLMFirstFragment, err = hist("kioskvoice.llm.first_token", "Time until the first response fragment arrives."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = hist("kioskvoice.llm.duration", "Duration of a full streamed response."); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = hist("kioskvoice.tts.duration", "Latency of text-to-speech synthesis per unit."); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = hist("kioskvoice.playback.duration", "Time a unit held the speaker."); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("kioskvoice.provider.requests",
		metric.WithDescription("Total provider calls by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("kioskvoice.dialogue.turns",
		metric.WithDescription("Completed dialogue turns by mode."),
	); err != nil {
		return nil, err
	}
	if met.UnitOutcomes, err = m.Int64Counter("kioskvoice.playback.units",
		metric.WithDescription("Playback units by outcome."),
	); err != nil {
		return nil, err
	}
	if met.FilteredTranscripts, err = m.Int64Counter("kioskvoice.stt.filtered",
		metric.WithDescription("Transcripts discarded by reason."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("kioskvoice.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("kioskvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call. kind is stt, llm or tts;
// status is ok or error.
func (m *Metrics) RecordProviderRequest(ctx context.Context, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(Attr("kind", kind), Attr("status", status)),
	)
}

// ObserveProvider records the latency of one provider call on h and counts it.
func (m *Metrics) ObserveProvider(ctx context.Context, h metric.Float64Histogram, kind string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(Attr("status", status)))
	m.RecordProviderRequest(ctx, kind, status)
}

// RecordUnit counts one playback unit outcome.
func (m *Metrics) RecordUnit(ctx context.Context, outcome string) {
	m.UnitOutcomes.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordFiltered counts one discarded transcript.
func (m *Metrics) RecordFiltered(ctx context.Context, reason string) {
	m.FilteredTranscripts.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordTurn counts one completed turn. degraded marks a canned reply.
func (m *Metrics) RecordTurn(ctx context.Context, degraded bool) {
	mode := "live"
	if degraded {
		mode = "degraded"
	}
	m.Turns.Add(ctx, 1, metric.WithAttributes(Attr("mode", mode)))
}
