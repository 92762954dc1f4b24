package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// StockMetrics records stock mutations and purchasing transitions.
type StockMetrics struct {
	transitions  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	ledger       *prometheus.CounterVec
	skippedLines *prometheus.CounterVec
}

// NewStockMetrics registers the stock metrics on the provided registerer.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_operations_total",
		Help: "Stock mutations and purchasing transitions by outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_operation_duration_seconds",
		Help:    "Duration of stock mutations and purchasing transitions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	ledger := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_ledger_entries_total",
		Help: "Stock history entries written by type.",
	}, []string{"type"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchasing_lines_skipped_total",
		Help: "Purchasing lines skipped during a transition.",
	}, []string{"operation", "reason"})
	reg.MustRegister(transitions, duration, ledger, skipped)
	return &StockMetrics{
		transitions:  transitions,
		duration:     duration,
		ledger:       ledger,
		skippedLines: skipped,
	}
}

// Observe records the outcome and duration of one operation.
func (m *StockMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.transitions == nil {
		return
	}
	op := normalizeLabel(operation)
	m.transitions.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncLedgerEntry counts a written stock history row.
func (m *StockMetrics) IncLedgerEntry(entryType string) {
	if m == nil || m.ledger == nil {
		return
	}
	m.ledger.WithLabelValues(normalizeLabel(entryType)).Inc()
}

// IncSkippedLine counts a purchasing line that produced no stock effect.
func (m *StockMetrics) IncSkippedLine(operation, reason string) {
	if m == nil || m.skippedLines == nil {
		return
	}
	m.skippedLines.WithLabelValues(normalizeLabel(operation), normalizeLabel(reason)).Inc()
}

// OutcomeOf classifies an operation result. Caller mistakes count as rejected.
func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return OutcomeError
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict, pkgerrors.CodeConflict:
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
