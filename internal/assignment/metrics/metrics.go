package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the assignment module.
type Metrics struct {
	AssignmentsCreated  prometheus.Counter
	AssignmentsDeleted  prometheus.Counter
	TrainingTransitions *prometheus.CounterVec
	CheckoffsRecorded   prometheus.Counter
}

// New creates a new Metrics instance with all assignment module metrics
// registered.
func New() *Metrics {
	return &Metrics{
		AssignmentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "experthub_assignments_created_total",
			Help: "Total number of service assignments created",
		}),
		AssignmentsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "experthub_assignments_deleted_total",
			Help: "Total number of service assignments deleted",
		}),
		TrainingTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "experthub_assignment_training_transitions_total",
			Help: "Training status transitions by target status",
		}, []string{"to"}),
		CheckoffsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "experthub_requirement_checkoffs_total",
			Help: "Total number of requirement check-offs recorded",
		}),
	}
}

// IncrementCreated records a successful assignment creation.
func (m *Metrics) IncrementCreated() {
	m.AssignmentsCreated.Inc()
}

// IncrementDeleted records an assignment deletion.
func (m *Metrics) IncrementDeleted() {
	m.AssignmentsDeleted.Inc()
}

// ObserveTrainingTransition records one training status move.
func (m *Metrics) ObserveTrainingTransition(to string) {
	m.TrainingTransitions.WithLabelValues(to).Inc()
}

// IncrementCheckoff records a requirement check-off.
func (m *Metrics) IncrementCheckoff() {
	m.CheckoffsRecorded.Inc()
}
