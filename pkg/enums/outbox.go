package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePurchasing OutboxAggregateType = "purchasing"
	AggregateProduct    OutboxAggregateType = "product"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregatePurchasing || a == AggregateProduct
}

// OutboxEventType maps to the event_type enum in Postgres. Every type
// belongs to exactly one aggregate.
type OutboxEventType string

const (
	EventPurchasingCreated   OutboxEventType = "purchasing_created"
	EventPurchasingCompleted OutboxEventType = "purchasing_completed"
	EventPurchasingCancelled OutboxEventType = "purchasing_cancelled"
	EventPurchasingReturned  OutboxEventType = "purchasing_returned"
	EventProductCreated      OutboxEventType = "product_created"
	EventStockChanged        OutboxEventType = "stock_changed"
)

var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventPurchasingCreated:   AggregatePurchasing,
	EventPurchasingCompleted: AggregatePurchasing,
	EventPurchasingCancelled: AggregatePurchasing,
	EventPurchasingReturned:  AggregatePurchasing,
	EventProductCreated:      AggregateProduct,
	EventStockChanged:        AggregateProduct,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate an event type is emitted for, or "" for
// unknown types.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}
