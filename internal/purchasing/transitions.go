package purchasing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox/payloads"
)

// ReasonNotApplied marks a line whose completion never reached the stock.
const ReasonNotApplied = "not applied at completion"

// Complete applies every line's stock and cost effect and moves draft to completed.
// Lines whose product is missing or is a service are skipped and reported.
func (s *service) Complete(ctx context.Context, id uuid.UUID, actor string) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.transition(ctx, opComplete, id, actor, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			doc, err := repo.FindForUpdate(ctx, id)
			if err != nil {
				return mapLoadError(err)
			}
			if doc.Status != enums.PurchasingStatusDraft {
				return stateConflict("purchasing already finalized", doc.Status)
			}
			if err := s.swapStatus(ctx, repo, doc, enums.PurchasingStatusCompleted, nil); err != nil {
				return err
			}

			note := fmt.Sprintf("Purchase #%s", id)
			lines := make([]LineResult, 0, len(doc.Lines))
			for _, line := range doc.Lines {
				res := LineResult{LineID: lineID(line.ID), ProductID: line.ProductID, Qty: line.Qty}
				item, skip, err := s.lockLineProduct(ctx, tx, line.ProductID)
				if err != nil {
					return err
				}
				if skip != "" {
					s.skipLine(ctx, opComplete, &res, skip)
					lines = append(lines, res)
					continue
				}
				if err := s.stock.ApplyDelta(ctx, tx, item, line.Qty); err != nil {
					return err
				}
				if line.UpdateCost {
					if err := s.stock.SetCost(ctx, tx, item, line.Price); err != nil {
						return err
					}
				}
				if _, err := s.ledger.Record(ctx, tx, stockledger.RecordInput{
					ProductID:    item.ID,
					PurchasingID: &doc.ID,
					Type:         enums.StockHistoryPurchase,
					Qty:          line.Qty,
					Note:         note,
					CreatedBy:    actor,
				}); err != nil {
					return err
				}
				res.Outcome = enums.LineOutcomeApplied
				lines = append(lines, res)
			}

			if err := s.emitTransition(ctx, tx, enums.EventPurchasingCompleted, doc, enums.PurchasingStatusDraft, actor, lines); err != nil {
				return err
			}
			reloaded, err := repo.FindByID(ctx, id)
			if err != nil {
				return mapLoadError(err)
			}
			result = &TransitionResult{Purchasing: reloaded, Lines: lines}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cancel moves a draft or completed document to cancelled. For completed
// documents it reverses what completion applied, less anything already
// returned. Cost is left as completion set it.
func (s *service) Cancel(ctx context.Context, id uuid.UUID, actor string) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.transition(ctx, opCancel, id, actor, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			doc, err := repo.FindForUpdate(ctx, id)
			if err != nil {
				return mapLoadError(err)
			}
			from := doc.Status
			if from == enums.PurchasingStatusCancelled {
				return stateConflict("purchasing already cancelled", from)
			}
			if err := s.swapStatus(ctx, repo, doc, enums.PurchasingStatusCancelled, nil); err != nil {
				return err
			}

			lines := []LineResult{}
			if from == enums.PurchasingStatusCompleted {
				lines, err = s.reverseLines(ctx, tx, doc, actor)
				if err != nil {
					return err
				}
			}

			if err := s.emitTransition(ctx, tx, enums.EventPurchasingCancelled, doc, from, actor, lines); err != nil {
				return err
			}
			reloaded, err := repo.FindByID(ctx, id)
			if err != nil {
				return mapLoadError(err)
			}
			result = &TransitionResult{Purchasing: reloaded, Lines: lines}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reverseLines allocates the still-outstanding quantity per product across the
// document's lines in position order, so returned stock is never reversed twice.
func (s *service) reverseLines(ctx context.Context, tx *gorm.DB, doc *models.Purchasing, actor string) ([]LineResult, error) {
	purchased, err := s.ledger.PurchasedByProduct(ctx, tx, doc.ID)
	if err != nil {
		return nil, err
	}
	returned, err := s.ledger.ReturnedByProduct(ctx, tx, doc.ID)
	if err != nil {
		return nil, err
	}
	outstanding := make(map[uuid.UUID]decimal.Decimal, len(purchased))
	for productID, qty := range purchased {
		remaining := qty.Sub(returned[productID])
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		outstanding[productID] = remaining
	}

	note := fmt.Sprintf("Cancellation of purchase #%s", doc.ID)
	lines := make([]LineResult, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		res := LineResult{LineID: lineID(line.ID), ProductID: line.ProductID, Qty: decimal.Zero}
		item, skip, err := s.lockLineProduct(ctx, tx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if skip == "" && !purchased[line.ProductID].IsPositive() {
			skip = ReasonNotApplied
		}
		if skip != "" {
			s.skipLine(ctx, opCancel, &res, skip)
			lines = append(lines, res)
			continue
		}

		reverse := decimal.Min(line.Qty, outstanding[line.ProductID])
		if !reverse.IsPositive() {
			s.skipLine(ctx, opCancel, &res, ReasonFullyReturned)
			lines = append(lines, res)
			continue
		}
		outstanding[line.ProductID] = outstanding[line.ProductID].Sub(reverse)

		if err := s.stock.ApplyDelta(ctx, tx, item, reverse.Neg()); err != nil {
			return nil, err
		}
		if _, err := s.ledger.Record(ctx, tx, stockledger.RecordInput{
			ProductID:    item.ID,
			PurchasingID: &doc.ID,
			Type:         enums.StockHistoryCancel,
			Qty:          reverse.Neg(),
			Note:         note,
			CreatedBy:    actor,
		}); err != nil {
			return nil, err
		}
		res.Qty = reverse
		res.Outcome = enums.LineOutcomeApplied
		lines = append(lines, res)
	}
	return lines, nil
}

// lockLineProduct returns a skip reason instead of an error for lines that
// cannot carry stock.
func (s *service) lockLineProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, string, error) {
	item, err := s.stock.LockForUpdate(ctx, tx, productID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, ReasonProductNotFound, nil
		}
		return nil, "", err
	}
	if item.Service {
		return item, ReasonServiceProduct, nil
	}
	return item, "", nil
}

func (s *service) swapStatus(ctx context.Context, repo *Repository, doc *models.Purchasing, to enums.PurchasingStatus, extra map[string]any) error {
	if !doc.Status.CanTransitionTo(to) && doc.Status != to {
		return stateConflict(fmt.Sprintf("cannot move purchasing from %s to %s", doc.Status, to), doc.Status)
	}
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	swapped, err := repo.CompareAndSwap(ctx, doc.ID, doc.Status, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update purchasing status")
	}
	if !swapped {
		return stateConflict("purchasing was modified concurrently", doc.Status)
	}
	doc.Status = to
	doc.Version++
	return nil
}

func (s *service) emitTransition(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, doc *models.Purchasing, from enums.PurchasingStatus, actor string, lines []LineResult) error {
	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:   eventType,
		AggregateID: doc.ID,
		Actor:       outbox.Actor(actor),
		Data: payloads.PurchasingTransitionEvent{
			PurchasingID: doc.ID,
			FromStatus:   from,
			ToStatus:     doc.Status,
			Version:      doc.Version,
			Lines:        lineEffects(lines),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit purchasing event")
	}
	return nil
}

func lineEffects(lines []LineResult) []payloads.LineEffect {
	effects := make([]payloads.LineEffect, 0, len(lines))
	for _, line := range lines {
		effect := payloads.LineEffect{
			ProductID: line.ProductID,
			Qty:       line.Qty,
			Outcome:   line.Outcome,
			Reason:    line.Reason,
		}
		if line.LineID != nil {
			effect.LineID = *line.LineID
		}
		effects = append(effects, effect)
	}
	return effects
}

func stateConflict(message string, status enums.PurchasingStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"status": status})
}
