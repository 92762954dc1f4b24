package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics records scheduled maintenance jobs.
type MaintenanceMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	drift    prometheus.Gauge
}

func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job executions by outcome.",
	}, []string{"job", "outcome"})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stock_drift_products",
		Help: "Stocked products whose stock disagrees with the ledger at the last scan.",
	})
	reg.MustRegister(duration, runs, drift)
	return &MaintenanceMetrics{duration: duration, runs: runs, drift: drift}
}

// ObserveRun records one job execution.
func (m *MaintenanceMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	name := normalizeLabel(job)
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.runs.WithLabelValues(name, outcome).Inc()
}

func (m *MaintenanceMetrics) SetDriftedProducts(n int) {
	if m == nil || m.drift == nil {
		return
	}
	m.drift.Set(float64(n))
}
