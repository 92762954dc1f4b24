package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
)

// StockHistory is one append-only ledger row. Qty is the signed stock delta,
// except for return rows which hold the returned magnitude.
type StockHistory struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID    uuid.UUID              `gorm:"column:product_id;type:uuid;not null;index:idx_stock_histories_product_created,priority:1" json:"product_id"`
	PurchasingID *uuid.UUID             `gorm:"column:purchasing_id;type:uuid;index:idx_stock_histories_purchasing" json:"purchasing_id,omitempty"`
	Type         enums.StockHistoryType `gorm:"column:type;type:stock_history_type;not null" json:"type"`
	Qty          decimal.Decimal        `gorm:"column:qty;type:numeric(18,4);not null" json:"qty"`
	Note         string                 `gorm:"column:note;not null;default:''" json:"note"`
	CreatedBy    string                 `gorm:"column:created_by;not null;default:'system'" json:"created_by"`
	CreatedAt    time.Time              `gorm:"column:created_at;not null;index:idx_stock_histories_product_created,priority:2" json:"created_at"`
}

func (StockHistory) TableName() string {
	return "stock_histories"
}

func (h *StockHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	return nil
}

// SignedDelta returns the entry's effect on product stock.
func (h StockHistory) SignedDelta() decimal.Decimal {
	if h.Type.StoresMagnitude() {
		return h.Qty.Abs().Neg()
	}
	return h.Qty
}
