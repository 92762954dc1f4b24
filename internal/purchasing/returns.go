package purchasing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox/payloads"
)

// ReturnItems sends part of a completed document back to the supplier. Return
// ledger rows hold the returned magnitude; the stock goes down by the same amount.
func (s *service) ReturnItems(ctx context.Context, input ReturnInput) (*ReturnResult, error) {
	if err := validateReturn(input); err != nil {
		s.metrics.Observe(opReturn, metrics.OutcomeRejected, 0)
		return nil, err
	}

	var result *ReturnResult
	err := s.transition(ctx, opReturn, input.PurchasingID, input.Actor, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			doc, err := repo.FindForUpdate(ctx, input.PurchasingID)
			if err != nil {
				return mapLoadError(err)
			}
			if doc.Status != enums.PurchasingStatusCompleted {
				return stateConflict("only completed purchasings accept returns", doc.Status)
			}

			inDocument := make(map[uuid.UUID]bool, len(doc.Lines))
			for _, line := range doc.Lines {
				inDocument[line.ProductID] = true
			}
			purchased, err := s.ledger.PurchasedByProduct(ctx, tx, doc.ID)
			if err != nil {
				return err
			}
			returned, err := s.ledger.ReturnedByProduct(ctx, tx, doc.ID)
			if err != nil {
				return err
			}

			requested := make(map[uuid.UUID]decimal.Decimal, len(input.Items))
			for _, item := range input.Items {
				if !inDocument[item.ProductID] {
					return pkgerrors.New(pkgerrors.CodeValidation, "product is not part of this purchasing").
						WithDetails(map[string]any{"product_id": item.ProductID.String()})
				}
				requested[item.ProductID] = requested[item.ProductID].Add(item.Qty)
				total := returned[item.ProductID].Add(requested[item.ProductID])
				if total.GreaterThan(purchased[item.ProductID]) {
					return pkgerrors.New(pkgerrors.CodeValidation, "return exceeds purchased quantity").
						WithDetails(map[string]any{
							"product_id": item.ProductID.String(),
							"purchased":  purchased[item.ProductID].String(),
							"returned":   returned[item.ProductID].String(),
							"requested":  requested[item.ProductID].String(),
						})
				}
			}

			note := strings.TrimSpace(input.Note)
			var extra map[string]any
			if note != "" {
				extra = map[string]any{"note": appendReturnNote(doc.Note, note)}
			}
			if err := s.swapStatus(ctx, repo, doc, enums.PurchasingStatusCompleted, extra); err != nil {
				return err
			}

			entryNote := fmt.Sprintf("Return for purchase #%s", doc.ID)
			if note != "" {
				entryNote += " | " + note
			}
			items := make([]LineResult, 0, len(input.Items))
			for _, item := range input.Items {
				product, err := s.stock.LockForUpdate(ctx, tx, item.ProductID)
				if err != nil {
					return err
				}
				if err := s.stock.ApplyDelta(ctx, tx, product, item.Qty.Neg()); err != nil {
					return err
				}
				if _, err := s.ledger.Record(ctx, tx, stockledger.RecordInput{
					ProductID:    product.ID,
					PurchasingID: &doc.ID,
					Type:         enums.StockHistoryReturn,
					Qty:          item.Qty,
					Note:         entryNote,
					CreatedBy:    input.Actor,
				}); err != nil {
					return err
				}
				items = append(items, LineResult{
					ProductID: item.ProductID,
					Qty:       item.Qty,
					Outcome:   enums.LineOutcomeApplied,
				})
			}

			if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:   enums.EventPurchasingReturned,
				AggregateID: doc.ID,
				Actor:       outbox.Actor(input.Actor),
				Data: payloads.PurchasingReturnedEvent{
					PurchasingID: doc.ID,
					Note:         note,
					Items:        lineEffects(items),
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit purchasing event")
			}

			reloaded, err := repo.FindByID(ctx, doc.ID)
			if err != nil {
				return mapLoadError(err)
			}
			result = &ReturnResult{Purchasing: reloaded, Items: items}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validateReturn(input ReturnInput) error {
	if input.PurchasingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "purchasing id is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "add at least one item to return")
	}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: product is required", i+1))
		}
		if !item.Qty.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: qty must be greater than zero", i+1))
		}
	}
	return nil
}

func appendReturnNote(existing, note string) string {
	suffix := "RETURN: " + note
	if strings.TrimSpace(existing) == "" {
		return suffix
	}
	return existing + "\n" + suffix
}
