// Package metrics exposes Prometheus metrics for attendance taking.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/rollcall/internal/attendance"
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

// AttendanceMetrics records face service calls and attendance outcomes. It
// implements attendance.Observer and attendance.SessionObserver.
type AttendanceMetrics struct {
	registry *prometheus.Registry

	detectionsTotal    *prometheus.CounterVec
	facesDetectedTotal prometheus.Counter
	comparisonsTotal   *prometheus.CounterVec
	comparisonDuration prometheus.Histogram
	draftsTotal        prometheus.Counter
	sessionsTotal      prometheus.Counter
	decisionsTotal     *prometheus.CounterVec
	correctionsTotal   prometheus.Counter
}

// NewAttendanceMetrics creates and registers attendance metrics.
func NewAttendanceMetrics(registry *prometheus.Registry) (*AttendanceMetrics, error) {
	m := &AttendanceMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AttendanceMetrics) initMetrics() {
	m.detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_face_detections_total",
			Help: "Total number of photos sent for face detection",
		},
		[]string{"result"},
	)
	m.facesDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_faces_detected_total",
		Help: "Total number of faces found in class photos",
	})
	m.comparisonsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_face_comparisons_total",
			Help: "Total number of face to reference comparisons",
		},
		[]string{"result"},
	)
	m.comparisonDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollcall_face_comparison_duration_seconds",
		Help:    "Time taken by one face comparison",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
	})
	m.draftsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_drafts_total",
		Help: "Total number of attendance drafts created",
	})
	m.sessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_committed_total",
		Help: "Total number of attendance sessions committed",
	})
	m.decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_committed_decisions_total",
			Help: "Student decisions in committed sessions by status",
		},
		[]string{"status"},
	)
	m.correctionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_committed_corrections_total",
		Help: "Manually corrected decisions in committed sessions",
	})
}

// Registry returns the registry the metrics are registered with.
func (m *AttendanceMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDetection records one detection call.
func (m *AttendanceMetrics) ObserveDetection(faces int, err error) {
	if err != nil {
		m.detectionsTotal.WithLabelValues(resultError).Inc()
		return
	}
	m.detectionsTotal.WithLabelValues(resultSuccess).Inc()
	m.facesDetectedTotal.Add(float64(faces))
}

// ObserveComparison records one comparison call.
func (m *AttendanceMetrics) ObserveComparison(elapsed time.Duration, err error) {
	m.comparisonDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.comparisonsTotal.WithLabelValues(resultError).Inc()
		return
	}
	m.comparisonsTotal.WithLabelValues(resultSuccess).Inc()
}

// ObserveDraft records a new draft.
func (m *AttendanceMetrics) ObserveDraft(attendance.Tally) {
	m.draftsTotal.Inc()
}

// ObserveCommit records the decisions of a committed session.
func (m *AttendanceMetrics) ObserveCommit(t attendance.Tally) {
	m.sessionsTotal.Inc()
	m.decisionsTotal.WithLabelValues(string(attendance.StatusPresent)).Add(float64(t.Present))
	m.decisionsTotal.WithLabelValues(string(attendance.StatusAbsent)).Add(float64(t.Absent))
	m.correctionsTotal.Add(float64(t.Corrected))
}

// Describe implements prometheus.Collector.
func (m *AttendanceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.detectionsTotal.Describe(ch)
	m.facesDetectedTotal.Describe(ch)
	m.comparisonsTotal.Describe(ch)
	m.comparisonDuration.Describe(ch)
	m.draftsTotal.Describe(ch)
	m.sessionsTotal.Describe(ch)
	m.decisionsTotal.Describe(ch)
	m.correctionsTotal.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *AttendanceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.detectionsTotal.Collect(ch)
	m.facesDetectedTotal.Collect(ch)
	m.comparisonsTotal.Collect(ch)
	m.comparisonDuration.Collect(ch)
	m.draftsTotal.Collect(ch)
	m.sessionsTotal.Collect(ch)
	m.decisionsTotal.Collect(ch)
	m.correctionsTotal.Collect(ch)
}

var (
	_ attendance.Observer        = (*AttendanceMetrics)(nil)
	_ attendance.SessionObserver = (*AttendanceMetrics)(nil)
)
