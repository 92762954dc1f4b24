package stockquery

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	product "github.com/angelmondragon/pos-inventory-backend/internal/products"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
)

// Repository runs read-only aggregates over products.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CountBuckets counts non-service products by the sign of their stock.
func (r *Repository) CountBuckets(ctx context.Context, filter product.Filter) (Buckets, error) {
	notService := false
	filter.Service = &notService

	var buckets Buckets
	err := filter.Apply(r.db.WithContext(ctx).Model(&models.Product{})).
		Select(`COALESCE(SUM(CASE WHEN stock < 0 THEN 1 ELSE 0 END), 0) AS negative,
			COALESCE(SUM(CASE WHEN stock = 0 THEN 1 ELSE 0 END), 0) AS zero,
			COALESCE(SUM(CASE WHEN stock > 0 THEN 1 ELSE 0 END), 0) AS positive`).
		Scan(&buckets).Error
	if err != nil {
		return Buckets{}, err
	}
	return buckets, nil
}

type ledgerTotal struct {
	ProductID uuid.UUID
	Stock     decimal.Decimal
	LedgerSum decimal.Decimal
}

// LedgerTotals pairs every stocked product with the signed sum of its ledger.
func (r *Repository) LedgerTotals(ctx context.Context) ([]ledgerTotal, error) {
	var rows []ledgerTotal
	err := r.db.WithContext(ctx).Raw(`
		SELECT p.id AS product_id, p.stock AS stock, COALESCE(h.total, 0) AS ledger_sum
		FROM products p
		LEFT JOIN (
			SELECT product_id, SUM(CASE WHEN type = ? THEN -ABS(qty) ELSE qty END) AS total
			FROM stock_histories
			GROUP BY product_id
		) h ON h.product_id = p.id
		WHERE p.service = ?
		ORDER BY p.id`, enums.StockHistoryReturn, false).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
