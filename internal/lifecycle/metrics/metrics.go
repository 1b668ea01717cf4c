package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the lifecycle coordinator. Tracks
// review decisions, auto-locks and lock-time training resolution.
type Metrics struct {
	Decisions          *prometheus.CounterVec
	AutoLocks          prometheus.Counter
	TrainingResolution *prometheus.CounterVec
	DecideDuration     prometheus.Histogram
}

// New creates a new Metrics instance with all coordinator metrics registered.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "experthub_assignment_decisions_total",
			Help: "Review decisions applied to assignments by outcome",
		}, []string{"decision"}),
		AutoLocks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "experthub_cv_auto_locks_total",
			Help: "CVs auto-locked after their last pending assignment was decided",
		}),
		TrainingResolution: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "experthub_training_resolutions_total",
			Help: "Lock-time training resolutions by resulting status",
		}, []string{"status"}),
		DecideDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "experthub_lifecycle_decide_duration_seconds",
			Help:    "Duration of assignment decisions including auto-lock",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementDecision records one applied review decision.
func (m *Metrics) IncrementDecision(decision string) {
	m.Decisions.WithLabelValues(decision).Inc()
}

// IncrementAutoLock records a CV reaching locked_final through a decision.
func (m *Metrics) IncrementAutoLock() {
	m.AutoLocks.Inc()
}

// ObserveResolution records one lock-time training resolution outcome.
func (m *Metrics) ObserveResolution(status string) {
	m.TrainingResolution.WithLabelValues(status).Inc()
}

// ObserveDecide records the duration of a Decide operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveDecide(start time.Time) {
	m.DecideDuration.Observe(time.Since(start).Seconds())
}
