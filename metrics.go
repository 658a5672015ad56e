package deeptrace

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Report outcomes, used as metric label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics about records and their delivery.
type Metrics struct {
	RecordsTotal   prometheus.Counter
	ReportsTotal   *prometheus.CounterVec
	ReportDuration prometheus.Histogram
}

// NewMetrics constructs the metrics and registers them with reg. A nil reg
// produces working, unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "deeptrace",
			Name:      "records_total",
			Help:      "Records created, one per observed request.",
		}),
		ReportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deeptrace",
			Name:      "reports_total",
			Help:      "Finished records by delivery outcome.",
		}, []string{"outcome"}),
		ReportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deeptrace",
			Name:      "report_duration_seconds",
			Help:      "Duration of delivery attempts.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) observeReport(err error, took time.Duration) {
	m.ReportDuration.Observe(took.Seconds())
	if err != nil {
		m.ReportsTotal.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	m.ReportsTotal.WithLabelValues(OutcomeSuccess).Inc()
}
