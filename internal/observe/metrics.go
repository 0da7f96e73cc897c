// Package observe provides application-wide observability primitives for
// Voxline: OpenTelemetry metrics and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs a Prometheus exporter as the global meter provider so metrics can
// be scraped via a standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"fmt"
	"sync"

	otelprom "go.opentelemetry.io/otel/exporters/prometheus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// meterName is the instrumentation scope name used for all Voxline metrics.
const meterName = "github.com/voxline/voxline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// ChunksSent counts encoded microphone chunks sent over the channel.
	ChunksSent metric.Int64Counter

	// ChunksQueued counts chunks buffered while the channel was still
	// connecting.
	ChunksQueued metric.Int64Counter

	// ChunksDropped counts chunks evicted from the outbound queue on
	// overflow.
	ChunksDropped metric.Int64Counter

	// AudioReceived counts synthesized audio fragments scheduled for
	// playback.
	AudioReceived metric.Int64Counter

	// Interruptions counts server-initiated barge-in signals.
	Interruptions metric.Int64Counter

	// Turns counts finalized conversation turns. Use with attribute:
	//   attribute.String("role", ...)
	Turns metric.Int64Counter

	// ChannelErrors counts channel-level failures. Use with attribute:
	//   attribute.String("kind", ...)
	ChannelErrors metric.Int64Counter

	// --- Histograms ---

	// ScheduleLag tracks how far behind the cursor the output clock was at
	// schedule time (0 = gap-free delivery).
	ScheduleLag metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of live engine sessions (0 or 1).
	ActiveSessions metric.Int64UpDownCounter
}

// lagBuckets defines histogram bucket boundaries (in seconds) sized for
// playback scheduling slack.
var lagBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunksSent, err = m.Int64Counter("voxline.capture.chunks_sent",
		metric.WithDescription("Encoded microphone chunks sent to the engine."),
	); err != nil {
		return nil, err
	}
	if met.ChunksQueued, err = m.Int64Counter("voxline.capture.chunks_queued",
		metric.WithDescription("Microphone chunks buffered before the channel opened."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("voxline.capture.chunks_dropped",
		metric.WithDescription("Microphone chunks evicted from the outbound queue on overflow."),
	); err != nil {
		return nil, err
	}
	if met.AudioReceived, err = m.Int64Counter("voxline.playback.fragments",
		metric.WithDescription("Synthesized audio fragments scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("voxline.session.interruptions",
		metric.WithDescription("Server-initiated barge-in signals."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("voxline.session.turns",
		metric.WithDescription("Finalized conversation turns by role."),
	); err != nil {
		return nil, err
	}
	if met.ChannelErrors, err = m.Int64Counter("voxline.session.channel_errors",
		metric.WithDescription("Channel-level failures by classified kind."),
	); err != nil {
		return nil, err
	}

	if met.ScheduleLag, err = m.Float64Histogram("voxline.playback.schedule_lag",
		metric.WithDescription("Output-clock lag behind the scheduling cursor at schedule time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(lagBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voxline.session.active",
		metric.WithDescription("Number of live engine sessions."),
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

// InitProvider installs a Prometheus-backed meter provider as the OTel
// global. Instruments created afterwards (including [DefaultMetrics]) are
// exposed on the default Prometheus registry, ready to be served with
// promhttp. The returned shutdown function flushes and stops the provider.
func InitProvider() (shutdown func(context.Context) error, err error) {
	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("observe: create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return provider.Shutdown, nil
}

// RecordTurn records one finalized turn for the given role.
func (m *Metrics) RecordTurn(ctx context.Context, role string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// RecordChannelError records one channel-level failure of the given kind.
func (m *Metrics) RecordChannelError(ctx context.Context, kind string) {
	m.ChannelErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
