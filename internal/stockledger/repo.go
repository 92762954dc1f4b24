package stockledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	"github.com/angelmondragon/pos-inventory-backend/pkg/pagination"
)

// Repository persists stock history rows. It has no update or delete path.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.StockHistory) error
	List(ctx context.Context, filter ListFilter) ([]models.StockHistory, error)
	SumSigned(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
	SumMagnitudeByProduct(ctx context.Context, purchasingID uuid.UUID, entryType enums.StockHistoryType) (map[uuid.UUID]decimal.Decimal, error)
}

// ListFilter narrows a stock card query. Limit should already include the look-ahead row.
type ListFilter struct {
	ProductID    uuid.UUID
	PurchasingID *uuid.UUID
	Type         *enums.StockHistoryType
	Cursor       *pagination.Cursor
	Limit        int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a stock history repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.StockHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.StockHistory, error) {
	query := r.db.WithContext(ctx).Model(&models.StockHistory{})
	if filter.ProductID != uuid.Nil {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.PurchasingID != nil {
		query = query.Where("purchasing_id = ?", *filter.PurchasingID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.StockHistory
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SumSigned folds every entry of a product into its net stock effect. Return
// rows hold a magnitude, so they are subtracted regardless of their stored sign.
func (r *repository) SumSigned(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.StockHistory{}).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN -ABS(qty) ELSE qty END), 0) AS total", enums.StockHistoryReturn).
		Where("product_id = ?", productID).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// SumMagnitudeByProduct totals |qty| of one entry type per product for a purchasing document.
func (r *repository) SumMagnitudeByProduct(ctx context.Context, purchasingID uuid.UUID, entryType enums.StockHistoryType) (map[uuid.UUID]decimal.Decimal, error) {
	var rows []struct {
		ProductID uuid.UUID
		Total     decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.StockHistory{}).
		Select("product_id, SUM(ABS(qty)) AS total").
		Where("purchasing_id = ? AND type = ?", purchasingID, entryType).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.ProductID] = row.Total
	}
	return out, nil
}
