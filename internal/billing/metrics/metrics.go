package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the billing module.
type Metrics struct {
	ApprovalsRecorded *prometheus.CounterVec
	AnnualFeesPaid    prometheus.Counter
}

// New creates a new Metrics instance with all billing metrics registered.
func New() *Metrics {
	return &Metrics{
		ApprovalsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "experthub_service_approvals_total",
			Help: "Organization service approvals recorded by status",
		}, []string{"status"}),
		AnnualFeesPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "experthub_annual_fees_paid_total",
			Help: "Annual fee payments recorded against approved services",
		}),
	}
}

// IncrementApproval records one approval record by status.
func (m *Metrics) IncrementApproval(status string) {
	m.ApprovalsRecorded.WithLabelValues(status).Inc()
}

// IncrementAnnualFee records one successful annual fee payment.
func (m *Metrics) IncrementAnnualFee() {
	m.AnnualFeesPaid.Inc()
}
