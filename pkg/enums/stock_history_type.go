package enums

import "fmt"

// StockHistoryType maps to the stock_history_type enum in Postgres.
type StockHistoryType string

const (
	StockHistoryAdd      StockHistoryType = "add"
	StockHistoryAdjust   StockHistoryType = "adjust"
	StockHistoryPurchase StockHistoryType = "purchase"
	StockHistoryCancel   StockHistoryType = "cancel"
	StockHistoryReturn   StockHistoryType = "return"
	StockHistorySale     StockHistoryType = "sale"
)

var validStockHistoryTypes = []StockHistoryType{
	StockHistoryAdd,
	StockHistoryAdjust,
	StockHistoryPurchase,
	StockHistoryCancel,
	StockHistoryReturn,
	StockHistorySale,
}

// String implements fmt.Stringer.
func (t StockHistoryType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical stock history enum.
func (t StockHistoryType) IsValid() bool {
	for _, candidate := range validStockHistoryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// StoresMagnitude reports whether entries of this type keep a positive
// magnitude in qty even though they decrease stock.
func (t StockHistoryType) StoresMagnitude() bool {
	return t == StockHistoryReturn
}

// RequiresPurchasing reports whether entries of this type reference a purchasing document.
func (t StockHistoryType) RequiresPurchasing() bool {
	switch t {
	case StockHistoryPurchase, StockHistoryCancel, StockHistoryReturn:
		return true
	default:
		return false
	}
}

// ParseStockHistoryType converts raw input into StockHistoryType.
func ParseStockHistoryType(value string) (StockHistoryType, error) {
	for _, candidate := range validStockHistoryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock history type %q", value)
}
