package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/pos-inventory-backend/pkg/config"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox/payloads"
)

// payloadSchemas lists the typed payload each event type decodes into.
var payloadSchemas = map[enums.OutboxEventType]func() any{
	enums.EventPurchasingCreated:   func() any { return &payloads.PurchasingCreatedEvent{} },
	enums.EventPurchasingCompleted: func() any { return &payloads.PurchasingTransitionEvent{} },
	enums.EventPurchasingCancelled: func() any { return &payloads.PurchasingTransitionEvent{} },
	enums.EventPurchasingReturned:  func() any { return &payloads.PurchasingReturnedEvent{} },
	enums.EventProductCreated:      func() any { return &payloads.ProductCreatedEvent{} },
	enums.EventStockChanged:        func() any { return &payloads.StockChangedEvent{} },
}

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry routes outbox rows to topics: purchasing aggregates to the
// purchasing topic, product aggregates to the stock topic.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	var err error
	if cfg.PurchasingTopic == "" {
		err = multierr.Append(err, errors.New("purchasing topic is required"))
	}
	if cfg.StockTopic == "" {
		err = multierr.Append(err, errors.New("stock topic is required"))
	}
	if err != nil {
		return nil, err
	}

	topics := map[enums.OutboxAggregateType]string{
		enums.AggregatePurchasing: cfg.PurchasingTopic,
		enums.AggregateProduct:    cfg.StockTopic,
	}
	entries := make(map[enums.OutboxEventType]EventDescriptor, len(payloadSchemas))
	for eventType, schema := range payloadSchemas {
		aggregate := eventType.Aggregate()
		entries[eventType] = EventDescriptor{
			EventType:     eventType,
			AggregateType: aggregate,
			Topic:         topics[aggregate],
			newPayload:    schema,
		}
	}
	return &EventRegistry{entries: entries}, nil
}

// Resolve checks the row against its descriptor and decodes the typed
// payload. Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("%s: missing aggregate_id", event.EventType))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
