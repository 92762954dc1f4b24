package maintenance

import (
	"context"
	"fmt"

	"github.com/angelmondragon/pos-inventory-backend/internal/stockquery"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
)

type driftScanner interface {
	ScanDrift(ctx context.Context) ([]stockquery.Reconciliation, error)
}

type stockDriftJob struct {
	logg    *logger.Logger
	scanner driftScanner
	metrics *metrics.MaintenanceMetrics
}

// NewStockDriftJob reports products whose stock no longer matches the ledger.
// Drift is logged and exported, never corrected.
func NewStockDriftJob(logg *logger.Logger, scanner driftScanner, m *metrics.MaintenanceMetrics) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if scanner == nil {
		return nil, fmt.Errorf("drift scanner required")
	}
	return &stockDriftJob{logg: logg, scanner: scanner, metrics: m}, nil
}

func (j *stockDriftJob) Name() string { return "stock-drift" }

func (j *stockDriftJob) Run(ctx context.Context) error {
	drifted, err := j.scanner.ScanDrift(ctx)
	if err != nil {
		return err
	}
	j.metrics.SetDriftedProducts(len(drifted))
	for _, row := range drifted {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"product_id": row.ProductID.String(),
			"stock":      row.Stock.String(),
			"ledger_sum": row.LedgerSum.String(),
			"drift":      row.Drift.String(),
		}), "stock drifted from ledger")
	}
	j.logg.Info(j.logg.WithField(ctx, "drifted_products", len(drifted)), "stock drift scan complete")
	return nil
}
