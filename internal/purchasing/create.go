package purchasing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox/payloads"
)

// Create stores a draft document. Drafts have no stock effect.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Purchasing, error) {
	started := time.Now()
	doc, err := s.create(ctx, input)
	s.metrics.Observe(opCreate, metrics.OutcomeOf(err), time.Since(started))
	return doc, err
}

func (s *service) create(ctx context.Context, input CreateInput) (*models.Purchasing, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	actor := strings.TrimSpace(input.Actor)
	if actor == "" {
		actor = stockledger.DefaultActor
	}
	doc := &models.Purchasing{
		SupplierID:   input.SupplierID,
		NotaNumber:   strings.TrimSpace(input.NotaNumber),
		Date:         s.now(),
		Note:         strings.TrimSpace(input.Note),
		AttachedFile: input.AttachedFile,
		Status:       enums.PurchasingStatusDraft,
		CreatedBy:    actor,
	}
	total := decimal.Zero
	for i, line := range input.Lines {
		row := models.PurchasingLine{
			Position:   i + 1,
			ProductID:  line.ProductID,
			Qty:        line.Qty,
			Price:      line.Price,
			UpdateCost: line.UpdateCost,
		}
		total = total.Add(row.Subtotal())
		doc.Lines = append(doc.Lines, row)
	}
	doc.Total = total

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, doc); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchasing")
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventPurchasingCreated,
			AggregateID: doc.ID,
			Actor:       outbox.Actor(actor),
			Data: payloads.PurchasingCreatedEvent{
				PurchasingID: doc.ID,
				SupplierID:   doc.SupplierID,
				NotaNumber:   doc.NotaNumber,
				Total:        doc.Total,
				LineCount:    len(doc.Lines),
			},
		})
	})
	if err != nil {
		return nil, asServiceError(err, "create purchasing")
	}
	return doc, nil
}

func validateCreate(input CreateInput) error {
	if input.SupplierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "supplier is required")
	}
	if strings.TrimSpace(input.NotaNumber) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "nota number is required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "add at least one item")
	}
	for i, line := range input.Lines {
		details := map[string]any{"line": i + 1}
		if line.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: product is required", i+1)).WithDetails(details)
		}
		if !line.Qty.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: qty must be greater than zero", i+1)).WithDetails(details)
		}
		if line.Price.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: price must be non-negative", i+1)).WithDetails(details)
		}
	}
	return nil
}
