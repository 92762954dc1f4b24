package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog item. Stock and cost are owned by the stock store and
// must only change through its operations.
type Product struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SKU       *string         `gorm:"column:sku;uniqueIndex:ux_products_sku" json:"sku,omitempty"`
	Name      string          `gorm:"column:name;not null" json:"name"`
	Category  *string         `gorm:"column:category;index:idx_products_category" json:"category,omitempty"`
	Stock     decimal.Decimal `gorm:"column:stock;type:numeric(18,4);not null;default:0" json:"stock"`
	Cost      decimal.Decimal `gorm:"column:cost;type:numeric(18,4);not null;default:0" json:"cost"`
	SalePrice decimal.Decimal `gorm:"column:sale_price;type:numeric(18,4);not null;default:0" json:"sale_price"`
	Service   bool            `gorm:"column:service;not null;default:false" json:"service"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return nil
}
