// Package metrics provides custom Prometheus metrics for the audio engine.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/automarker/internal/playback"
)

// StreamerStatsFunc returns the current playback streamer counters.
type StreamerStatsFunc func() playback.Stats

// EngineMetrics contains Prometheus metrics for the load pipeline, the
// transport and the connected application watcher. All Record methods are
// safe to call on a nil receiver.
type EngineMetrics struct {
	registry *prometheus.Registry

	loadsTotal           *prometheus.CounterVec
	loadErrorsTotal      *prometheus.CounterVec
	stageDuration        *prometheus.HistogramVec
	beatsPerTrack        prometheus.Histogram
	cacheLookupsTotal    *prometheus.CounterVec
	transportTransitions *prometheus.CounterVec
	connectedApp         *prometheus.GaugeVec

	silentFillsDesc *prometheus.Desc
	wrapsDesc       *prometheus.Desc
	framesOutDesc   *prometheus.Desc
	streamerStats   atomic.Pointer[StreamerStatsFunc]
}

// NewEngineMetrics creates and registers the engine metrics.
func NewEngineMetrics(registry *prometheus.Registry) (*EngineMetrics, error) {
	m := &EngineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EngineMetrics) initMetrics() {
	m.loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automarker_loads_total",
			Help: "Total number of track loads by outcome",
		},
		[]string{"result"}, // completed, cancelled, failed
	)

	m.loadErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automarker_load_errors_total",
			Help: "Total number of failed loads by error kind",
		},
		[]string{"kind"},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "automarker_stage_duration_seconds",
			Help:    "Time spent in each load stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"stage"}, // decode, analyze, load
	)

	m.beatsPerTrack = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "automarker_beats_per_track",
			Help:    "Number of beats detected per completed track",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	m.cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automarker_analysis_cache_lookups_total",
			Help: "Total number of analysis cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	m.transportTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automarker_transport_transitions_total",
			Help: "Total number of transport state changes",
		},
		[]string{"from", "to"},
	)

	m.connectedApp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "automarker_connected_app",
			Help: "Set to 1 for the external application currently detected",
		},
		[]string{"app"},
	)

	m.silentFillsDesc = prometheus.NewDesc(
		"automarker_playback_silent_fills_total",
		"Total number of output periods filled with silence", nil, nil)
	m.wrapsDesc = prometheus.NewDesc(
		"automarker_playback_wraps_total",
		"Total number of times playback wrapped to the selection start", nil, nil)
	m.framesOutDesc = prometheus.NewDesc(
		"automarker_playback_frames_total",
		"Total number of frames delivered to the output device", nil, nil)
}

// Describe implements the prometheus.Collector interface
func (m *EngineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.loadsTotal.Describe(ch)
	m.loadErrorsTotal.Describe(ch)
	m.stageDuration.Describe(ch)
	m.beatsPerTrack.Describe(ch)
	m.cacheLookupsTotal.Describe(ch)
	m.transportTransitions.Describe(ch)
	m.connectedApp.Describe(ch)
	ch <- m.silentFillsDesc
	ch <- m.wrapsDesc
	ch <- m.framesOutDesc
}

// Collect implements the prometheus.Collector interface
func (m *EngineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.loadsTotal.Collect(ch)
	m.loadErrorsTotal.Collect(ch)
	m.stageDuration.Collect(ch)
	m.beatsPerTrack.Collect(ch)
	m.cacheLookupsTotal.Collect(ch)
	m.transportTransitions.Collect(ch)
	m.connectedApp.Collect(ch)

	if fn := m.streamerStats.Load(); fn != nil {
		stats := (*fn)()
		ch <- prometheus.MustNewConstMetric(m.silentFillsDesc, prometheus.CounterValue, float64(stats.SilentFills))
		ch <- prometheus.MustNewConstMetric(m.wrapsDesc, prometheus.CounterValue, float64(stats.Wraps))
		ch <- prometheus.MustNewConstMetric(m.framesOutDesc, prometheus.CounterValue, float64(stats.FramesOut))
	}
}

// ObserveStreamer exports the counters returned by fn on every scrape.
func (m *EngineMetrics) ObserveStreamer(fn StreamerStatsFunc) {
	if m == nil || fn == nil {
		return
	}
	m.streamerStats.Store(&fn)
}

// RecordLoad counts a finished load with its outcome.
func (m *EngineMetrics) RecordLoad(result string) {
	if m == nil {
		return
	}
	m.loadsTotal.WithLabelValues(result).Inc()
}

// RecordLoadError counts a failed load by error kind.
func (m *EngineMetrics) RecordLoadError(kind string) {
	if m == nil {
		return
	}
	m.loadErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordStage records how long a load stage took.
func (m *EngineMetrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordBeats records the beat count of a completed track.
func (m *EngineMetrics) RecordBeats(n int) {
	if m == nil {
		return
	}
	m.beatsPerTrack.Observe(float64(n))
}

// RecordCacheLookup counts an analysis cache hit or miss.
func (m *EngineMetrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordTransport counts a transport state change.
func (m *EngineMetrics) RecordTransport(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transportTransitions.WithLabelValues(from, to).Inc()
}

// SetConnectedApp marks app as the detected application. An empty name
// clears the gauge.
func (m *EngineMetrics) SetConnectedApp(app string) {
	if m == nil {
		return
	}
	m.connectedApp.Reset()
	if app != "" {
		m.connectedApp.WithLabelValues(app).Set(1)
	}
}
