// Package metrics exposes Prometheus collectors for the radio pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fetch metrics
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_segment_fetches_total",
		Help: "Total number of segment fetch attempts by outcome",
	}, []string{"outcome"}) // outcome: success, validation, configuration, upstream, busy

	fetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radio_segment_fetch_duration_seconds",
		Help:    "Duration of a full script plus speech fetch in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
	})

	// Upstream collaborator metrics
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_upstream_requests_total",
		Help: "Total number of collaborator requests",
	}, []string{"step", "status"})

	upstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "radio_upstream_latency_seconds",
		Help:    "Collaborator request latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	}, []string{"step"})

	// Playback metrics
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "radio_queue_depth",
		Help: "Number of ready segments waiting for playback",
	}, []string{"session"})

	playbackState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "radio_playback_state",
		Help: "Playback state (0=idle, 1=loading, 2=playing, 3=paused)",
	}, []string{"session"})

	segmentsPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radio_segments_played_total",
		Help: "Total number of segments handed to a sink",
	})

	playbackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radio_playback_failures_total",
		Help: "Total number of segments the sink refused to play",
	})

	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_audio_bytes_total",
		Help: "Total synthesized audio bytes",
	}, []string{"direction"}) // direction: "in" (fetched) or "out" (served)

	speechCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radio_speech_cache_lookups_total",
		Help: "Speech cache lookups by result",
	}, []string{"result"}) // result: memory, disk, miss

	// Station feed metrics
	stationClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radio_station_clients",
		Help: "Number of connected station feed clients",
	})
)

// RecordFetch records the outcome and duration of one fetch attempt
func RecordFetch(outcome string, d time.Duration) {
	fetchesTotal.WithLabelValues(outcome).Inc()
	if outcome != "busy" {
		fetchLatency.Observe(d.Seconds())
	}
}

// RecordUpstream records one collaborator call
func RecordUpstream(step string, success bool, d time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	upstreamRequests.WithLabelValues(step, status).Inc()
	upstreamLatency.WithLabelValues(step).Observe(d.Seconds())
}

// SetQueueDepth updates the queue depth gauge of a session
func SetQueueDepth(session string, depth int) {
	queueDepth.WithLabelValues(session).Set(float64(depth))
}

// SetPlaybackState updates the playback state gauge of a session
func SetPlaybackState(session string, state int) {
	playbackState.WithLabelValues(session).Set(float64(state))
}

// ForgetSession drops the per-session series once a session closes
func ForgetSession(session string) {
	queueDepth.DeleteLabelValues(session)
	playbackState.DeleteLabelValues(session)
}

// RecordSegmentPlayed increments the played counter
func RecordSegmentPlayed() {
	segmentsPlayed.Inc()
}

// RecordPlaybackFailure increments the sink failure counter
func RecordPlaybackFailure() {
	playbackFailures.Inc()
}

// RecordAudioBytes records audio bytes moved in the given direction
func RecordAudioBytes(direction string, n int) {
	audioBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordSpeechCacheLookup counts a speech cache lookup
func RecordSpeechCacheLookup(result string) {
	speechCacheLookups.WithLabelValues(result).Inc()
}

// StationClientConnected increments the station client gauge
func StationClientConnected() {
	stationClients.Inc()
}

// StationClientDisconnected decrements the station client gauge
func StationClientDisconnected() {
	stationClients.Dec()
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
