package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
)

// PurchasingCreatedEvent is emitted when a draft purchasing document is stored.
type PurchasingCreatedEvent struct {
	PurchasingID uuid.UUID       `json:"purchasing_id"`
	SupplierID   uuid.UUID       `json:"supplier_id"`
	NotaNumber   string          `json:"nota_number"`
	Total        decimal.Decimal `json:"total"`
	LineCount    int             `json:"line_count"`
}

// LineEffect describes the stock effect one purchasing line had on a product.
type LineEffect struct {
	LineID    uuid.UUID         `json:"line_id"`
	ProductID uuid.UUID         `json:"product_id"`
	Qty       decimal.Decimal   `json:"qty"`
	Outcome   enums.LineOutcome `json:"outcome"`
	Reason    string            `json:"reason,omitempty"`
}

// PurchasingTransitionEvent is emitted on complete and cancel.
type PurchasingTransitionEvent struct {
	PurchasingID uuid.UUID              `json:"purchasing_id"`
	FromStatus   enums.PurchasingStatus `json:"from_status"`
	ToStatus     enums.PurchasingStatus `json:"to_status"`
	Version      int                    `json:"version"`
	Lines        []LineEffect           `json:"lines"`
}

// PurchasingReturnedEvent is emitted when items are returned to the supplier.
type PurchasingReturnedEvent struct {
	PurchasingID uuid.UUID    `json:"purchasing_id"`
	Note         string       `json:"note,omitempty"`
	Items        []LineEffect `json:"items"`
}

// ProductCreatedEvent is emitted when a catalog item is added.
type ProductCreatedEvent struct {
	ProductID    uuid.UUID       `json:"product_id"`
	Name         string          `json:"name"`
	Service      bool            `json:"service"`
	OpeningStock decimal.Decimal `json:"opening_stock"`
}

// StockChangedEvent is emitted for direct stock mutations (add, adjust, sale).
type StockChangedEvent struct {
	ProductID   uuid.UUID              `json:"product_id"`
	Type        enums.StockHistoryType `json:"type"`
	Delta       decimal.Decimal        `json:"delta"`
	StockBefore decimal.Decimal        `json:"stock_before"`
	StockAfter  decimal.Decimal        `json:"stock_after"`
}
