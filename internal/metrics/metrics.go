// Package metrics содержит метрики Prometheus для циклов речь-ответ.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicetutor"

// Metrics - все метрики приложения. Методы безопасны для nil-получателя.
type Metrics struct {
	Registry *prometheus.Registry

	// Запись
	RecordingsStarted prometheus.Counter
	RecordingDuration prometheus.Histogram
	ClipSize          prometheus.Histogram

	// Запросы к модели
	RoundTrips        *prometheus.CounterVec
	RoundTripDuration prometheus.Histogram

	// Воспроизведение
	PlaybackFailures prometheus.Counter

	// Состояние контроллера
	Phase *prometheus.GaugeVec

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New создаёт метрики в собственном реестре.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RecordingsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_started_total",
			Help:      "Total number of started recordings",
		}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Duration of finished recordings",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms - 32s
		}),
		ClipSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clip_size_bytes",
			Help:      "Size of encoded WAV clips",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),

		RoundTrips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_trips_total",
			Help:      "Total number of tutor round trips by outcome",
		}, []string{"outcome"}),
		RoundTripDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_trip_duration_seconds",
			Help:      "Duration of tutor round trips",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),

		PlaybackFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_failures_total",
			Help:      "Total number of reply playback failures",
		}),

		Phase: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "Current controller phase (1 for the active one)",
		}, []string{"phase"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordRecordingStarted увеличивает счётчик начатых записей.
func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

// RecordRecordingStopped фиксирует длительность записи и размер клипа.
func (m *Metrics) RecordRecordingStopped(durationSeconds float64, clipBytes int) {
	if m == nil {
		return
	}
	m.RecordingDuration.Observe(durationSeconds)
	if clipBytes > 0 {
		m.ClipSize.Observe(float64(clipBytes))
	}
}

// RecordRoundTrip фиксирует завершённый запрос к модели.
// outcome: "ok", "timeout", "transport", "endpoint", "error".
func (m *Metrics) RecordRoundTrip(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RoundTrips.WithLabelValues(outcome).Inc()
	m.RoundTripDuration.Observe(durationSeconds)
}

// RecordPlaybackFailure увеличивает счётчик ошибок воспроизведения.
func (m *Metrics) RecordPlaybackFailure() {
	if m == nil {
		return
	}
	m.PlaybackFailures.Inc()
}

// SetPhase отмечает текущую фазу контроллера.
func (m *Metrics) SetPhase(current string, all []string) {
	if m == nil {
		return
	}
	for _, p := range all {
		v := 0.0
		if p == current {
			v = 1
		}
		m.Phase.WithLabelValues(p).Set(v)
	}
}

// RecordHTTPRequest фиксирует HTTP-запрос к локальному API.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
