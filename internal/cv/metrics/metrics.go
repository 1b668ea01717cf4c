package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the CV module. Tracks version creation,
// lifecycle transitions and read-path durations.
type Metrics struct {
	CVCreated         prometheus.Counter
	CVSubmitted       prometheus.Counter
	CVLockedFinal     prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	CreateDuration    prometheus.Histogram
	HistoryDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all CV module metrics registered.
func New() *Metrics {
	return &Metrics{
		CVCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "experthub_cvs_created_total",
			Help: "Total number of CV versions created",
		}),
		CVSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "experthub_cvs_submitted_total",
			Help: "Total number of CVs submitted for completion",
		}),
		CVLockedFinal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "experthub_cvs_locked_final_total",
			Help: "Total number of CVs reaching the terminal locked status",
		}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "experthub_cv_status_transitions_total",
			Help: "CV status transitions by source and target status",
		}, []string{"from", "to"}),
		CreateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "experthub_cv_create_duration_seconds",
			Help:    "Duration of CV creation including auto-copy of locked content",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		HistoryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "experthub_cv_history_duration_seconds",
			Help:    "Duration of CV history queries with assignment summaries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCVCreated records a successful CV version creation.
func (m *Metrics) IncrementCVCreated() {
	m.CVCreated.Inc()
}

// IncrementCVSubmitted records a draft passing validation into completed.
func (m *Metrics) IncrementCVSubmitted() {
	m.CVSubmitted.Inc()
}

// IncrementCVLockedFinal records a CV reaching locked_final.
func (m *Metrics) IncrementCVLockedFinal() {
	m.CVLockedFinal.Inc()
}

// ObserveTransition records one status transition edge.
func (m *Metrics) ObserveTransition(from, to string) {
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

// ObserveCreate records the duration of a Create operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}

// ObserveHistory records the duration of a History query.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveHistory(start time.Time) {
	m.HistoryDuration.Observe(time.Since(start).Seconds())
}
