package stockledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
	"github.com/angelmondragon/pos-inventory-backend/pkg/pagination"
)

// DefaultActor is written to created_by when the caller does not identify itself.
const DefaultActor = "system"

// Service records and reads the stock history ledger.
type Service interface {
	// Record appends one entry inside the caller's transaction.
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.StockHistory, error)
	List(ctx context.Context, productID uuid.UUID, params ListParams) (*ListResult, error)
	SumSigned(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error)
	ReturnedByProduct(ctx context.Context, tx *gorm.DB, purchasingID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	PurchasedByProduct(ctx context.Context, tx *gorm.DB, purchasingID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

// RecordInput captures the immutable data a ledger entry requires.
type RecordInput struct {
	ProductID    uuid.UUID
	PurchasingID *uuid.UUID
	Type         enums.StockHistoryType
	Qty          decimal.Decimal
	Note         string
	CreatedBy    string
}

type ListParams struct {
	Type *enums.StockHistoryType
	pagination.Params
}

type ListResult struct {
	Entries    []models.StockHistory `json:"entries"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type service struct {
	repo    Repository
	logg    *logger.Logger
	metrics *metrics.StockMetrics
	now     func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, logg *logger.Logger, m *metrics.StockMetrics) (Service, error) {
	if repo == nil {
		return nil, errors.New("stock ledger repository required")
	}
	return &service{
		repo:    repo,
		logg:    logg,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.StockHistory, error) {
	if err := validateRecord(input); err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"product_id": input.ProductID.String(),
				"type":       input.Type,
			})
			s.logg.Warn(logCtx, "rejected malformed stock history entry: "+err.Message())
		}
		return nil, err
	}

	createdBy := strings.TrimSpace(input.CreatedBy)
	if createdBy == "" {
		createdBy = DefaultActor
	}
	entry := &models.StockHistory{
		ProductID:    input.ProductID,
		PurchasingID: input.PurchasingID,
		Type:         input.Type,
		Qty:          input.Qty,
		Note:         input.Note,
		CreatedBy:    createdBy,
		CreatedAt:    s.now(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write stock history")
	}
	s.metrics.IncLedgerEntry(string(input.Type))
	return entry, nil
}

func validateRecord(input RecordInput) *pkgerrors.Error {
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock history requires a product id")
	}
	if !input.Type.IsValid() {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid stock history type %q", input.Type)
	}
	if input.Type.RequiresPurchasing() && (input.PurchasingID == nil || *input.PurchasingID == uuid.Nil) {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "%s entries require a purchasing id", input.Type)
	}
	if input.Type.StoresMagnitude() && input.Qty.IsNegative() {
		return pkgerrors.Errorf(pkgerrors.CodeValidation, "%s entries store a positive magnitude", input.Type)
	}
	return nil
}

func (s *service) List(ctx context.Context, productID uuid.UUID, params ListParams) (*ListResult, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if params.Type != nil && !params.Type.IsValid() {
		return nil, pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid stock history type %q", *params.Type)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, ListFilter{
		ProductID: productID,
		Type:      params.Type,
		Cursor:    cursor,
		Limit:     pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock history")
	}

	entries, next := pagination.Trim(rows, params.Limit, func(h models.StockHistory) pagination.Cursor {
		return pagination.Cursor{CreatedAt: h.CreatedAt, ID: h.ID}
	})
	return &ListResult{Entries: entries, NextCursor: next}, nil
}

func (s *service) SumSigned(ctx context.Context, productID uuid.UUID) (decimal.Decimal, error) {
	total, err := s.repo.SumSigned(ctx, productID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum stock history")
	}
	return total, nil
}

// ReturnedByProduct totals return magnitudes per product for one document.
func (s *service) ReturnedByProduct(ctx context.Context, tx *gorm.DB, purchasingID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	return s.totals(ctx, tx, purchasingID, enums.StockHistoryReturn, "aggregate returns")
}

// PurchasedByProduct totals the stock a completion actually applied per product.
func (s *service) PurchasedByProduct(ctx context.Context, tx *gorm.DB, purchasingID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	return s.totals(ctx, tx, purchasingID, enums.StockHistoryPurchase, "aggregate purchases")
}

func (s *service) totals(ctx context.Context, tx *gorm.DB, purchasingID uuid.UUID, entryType enums.StockHistoryType, action string) (map[uuid.UUID]decimal.Decimal, error) {
	totals, err := s.repo.WithTx(tx).SumMagnitudeByProduct(ctx, purchasingID, entryType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
	return totals, nil
}
