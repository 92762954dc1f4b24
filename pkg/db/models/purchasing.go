package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
)

// Purchasing is a stock intake document received from a supplier.
type Purchasing struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SupplierID   uuid.UUID              `gorm:"column:supplier_id;type:uuid;not null;index:idx_purchasings_supplier" json:"supplier_id"`
	NotaNumber   string                 `gorm:"column:nota_number;not null" json:"nota_number"`
	Date         time.Time              `gorm:"column:date;not null" json:"date"`
	Total        decimal.Decimal        `gorm:"column:total;type:numeric(18,4);not null;default:0" json:"total"`
	Note         string                 `gorm:"column:note;not null;default:''" json:"note"`
	AttachedFile *string                `gorm:"column:attached_file" json:"attached_file,omitempty"`
	Status       enums.PurchasingStatus `gorm:"column:status;type:purchasing_status;not null;default:'draft';index:idx_purchasings_status" json:"status"`
	Version      int                    `gorm:"column:version;not null;default:0" json:"version"`
	CreatedBy    string                 `gorm:"column:created_by;not null;default:'system'" json:"created_by"`
	Lines        []PurchasingLine       `gorm:"foreignKey:PurchasingID;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Purchasing) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return nil
}

// PurchasingLine is immutable once its document exists.
type PurchasingLine struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PurchasingID uuid.UUID       `gorm:"column:purchasing_id;type:uuid;not null;index:idx_purchasing_lines_purchasing" json:"purchasing_id"`
	Position     int             `gorm:"column:position;not null" json:"position"`
	ProductID    uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index:idx_purchasing_lines_product" json:"product_id"`
	Qty          decimal.Decimal `gorm:"column:qty;type:numeric(18,4);not null" json:"qty"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(18,4);not null" json:"price"`
	UpdateCost   bool            `gorm:"column:update_cost;not null;default:false" json:"update_cost"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (l *PurchasingLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Subtotal returns qty x price for the line.
func (l PurchasingLine) Subtotal() decimal.Decimal {
	return l.Qty.Mul(l.Price)
}
