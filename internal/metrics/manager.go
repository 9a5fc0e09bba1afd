// Package metrics exposes Prometheus instrumentation for the rep counter.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SetupPrometheus returns a registry with the Go runtime, process and build
// collectors plus any extra collectors (e.g. the database pool).
func SetupPrometheus(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(extra...)
	return reg
}

// Manager holds every metric the service records. It satisfies the engine's
// Recorder interface.
type Manager struct {
	// counters
	CounterSessions     *prometheus.CounterVec
	CounterSessionsEnd  *prometheus.CounterVec
	CounterFrames       *prometheus.CounterVec
	CounterReps         *prometheus.CounterVec
	CounterHints        *prometheus.CounterVec
	CounterArchiveSaves *prometheus.CounterVec

	// gauges
	GaugeActiveSessions prometheus.Gauge

	// histograms
	HistogramRequestDuration  *prometheus.HistogramVec
	HistogramDetectorDuration *prometheus.HistogramVec
}

// NewTestManager returns a Manager on a throwaway registry.
func NewTestManager() *Manager {
	return NewManager("repcam", "test", prometheus.NewRegistry())
}

// NewManager registers all metrics on reg.
func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_started_total",
			Help:      "Sessions created, by exercise",
		}, []string{"exercise"}),
		CounterSessionsEnd: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_ended_total",
			Help:      "Sessions ended by the client or evicted as idle",
		}, []string{"exercise", "reason"}),
		CounterFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_total",
			Help:      "Frames processed, split by whether the tracked joints were confident",
		}, []string{"exercise", "confidence"}),
		CounterReps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reps_total",
			Help:      "Repetitions counted, full or partial",
		}, []string{"exercise", "kind"}),
		CounterHints: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hints_total",
			Help:      "Form hints shown to users",
		}, []string{"exercise", "category"}),
		CounterArchiveSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "archive_saves_total",
			Help:      "Finished sessions written to the archive",
		}, []string{"result"}),

		GaugeActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		}),

		HistogramRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Histogram of response time for requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"route", "method", "status_code"}),
		HistogramDetectorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "detector_duration_seconds",
			Help:      "Round trip to the pose detector in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"result"}),
	}
}

func (m *Manager) SessionStarted(exercise string) {
	m.CounterSessions.WithLabelValues(exercise).Inc()
	m.GaugeActiveSessions.Inc()
}

func (m *Manager) SessionEnded(exercise, reason string) {
	m.CounterSessionsEnd.WithLabelValues(exercise, reason).Inc()
	m.GaugeActiveSessions.Dec()
}

func (m *Manager) FrameProcessed(exercise string, lowConfidence bool) {
	label := "ok"
	if lowConfidence {
		label = "low"
	}
	m.CounterFrames.WithLabelValues(exercise, label).Inc()
}

func (m *Manager) RepCounted(exercise string, full bool) {
	kind := "partial"
	if full {
		kind = "full"
	}
	m.CounterReps.WithLabelValues(exercise, kind).Inc()
}

func (m *Manager) HintShown(exercise, category string) {
	m.CounterHints.WithLabelValues(exercise, category).Inc()
}

// ArchiveSaved records the outcome of one archive write.
func (m *Manager) ArchiveSaved(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CounterArchiveSaves.WithLabelValues(result).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Manager) ObserveRequest(route, method string, status int, d time.Duration) {
	m.HistogramRequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveDetector records one detector round trip.
func (m *Manager) ObserveDetector(err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.HistogramDetectorDuration.WithLabelValues(result).Observe(d.Seconds())
}
