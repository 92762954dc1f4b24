package models

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Product{},
		&Purchasing{},
		&PurchasingLine{},
		&StockHistory{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
