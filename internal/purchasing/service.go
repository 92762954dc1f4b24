package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	product "github.com/angelmondragon/pos-inventory-backend/internal/products"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/lock"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
	"github.com/angelmondragon/pos-inventory-backend/pkg/pagination"
)

const (
	lockScope = "purchasing"

	opCreate   = "purchasing_create"
	opComplete = "purchasing_complete"
	opCancel   = "purchasing_cancel"
	opReturn   = "purchasing_return"

	ReasonProductNotFound = "product not found"
	ReasonServiceProduct  = "service product has no stock"
	ReasonFullyReturned   = "fully returned"
)

// Service drives the purchasing document state machine.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Purchasing, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Purchasing, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)
	Complete(ctx context.Context, id uuid.UUID, actor string) (*TransitionResult, error)
	Cancel(ctx context.Context, id uuid.UUID, actor string) (*TransitionResult, error)
	ReturnItems(ctx context.Context, input ReturnInput) (*ReturnResult, error)
}

type LineInput struct {
	ProductID  uuid.UUID
	Qty        decimal.Decimal
	Price      decimal.Decimal
	UpdateCost bool
}

type CreateInput struct {
	SupplierID   uuid.UUID
	NotaNumber   string
	Lines        []LineInput
	Note         string
	AttachedFile *string
	Actor        string
}

type ReturnItem struct {
	ProductID uuid.UUID
	Qty       decimal.Decimal
}

type ReturnInput struct {
	PurchasingID uuid.UUID
	Items        []ReturnItem
	Note         string
	Actor        string
}

type ListInput struct {
	Status     *enums.PurchasingStatus
	SupplierID *uuid.UUID
	Pagination pagination.Params
}

type ListResult struct {
	Purchasings []models.Purchasing `json:"purchasings"`
	NextCursor  string              `json:"next_cursor,omitempty"`
}

// LineResult reports what a transition did to one line or return item.
type LineResult struct {
	LineID    *uuid.UUID        `json:"line_id,omitempty"`
	ProductID uuid.UUID         `json:"product_id"`
	Qty       decimal.Decimal   `json:"qty"`
	Outcome   enums.LineOutcome `json:"outcome"`
	Reason    string            `json:"reason,omitempty"`
}

type TransitionResult struct {
	Purchasing *models.Purchasing `json:"purchasing"`
	Lines      []LineResult       `json:"lines"`
}

type ReturnResult struct {
	Purchasing *models.Purchasing `json:"purchasing"`
	Items      []LineResult       `json:"items"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups the purchasing service collaborators.
type ServiceParams struct {
	Repo    *Repository
	Stock   product.StockStore
	Ledger  stockledger.Service
	Outbox  outbox.Emitter
	DB      txRunner
	Locker  lock.Locker
	Logger  *logger.Logger
	Metrics *metrics.StockMetrics
}

type service struct {
	repo    *Repository
	stock   product.StockStore
	ledger  stockledger.Service
	events  outbox.Emitter
	tx      txRunner
	locker  lock.Locker
	logg    *logger.Logger
	metrics *metrics.StockMetrics
	now     func() time.Time
}

// NewService constructs the purchasing lifecycle. A nil Locker runs transitions
// under the status compare-and-swap only.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("purchasing repository required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	locker := params.Locker
	if locker == nil {
		locker = lock.Noop{}
	}
	return &service{
		repo:    params.Repo,
		stock:   params.Stock,
		ledger:  params.Ledger,
		events:  params.Outbox,
		tx:      params.DB,
		locker:  locker,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Purchasing, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	return doc, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.Errorf(pkgerrors.CodeValidation, "invalid status %q", *input.Status)
	}
	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, ListFilter{
		Status:     input.Status,
		SupplierID: input.SupplierID,
		Cursor:     cursor,
		Limit:      pagination.LimitWithBuffer(input.Pagination.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchasings")
	}
	docs, next := pagination.Trim(rows, input.Pagination.Limit, func(p models.Purchasing) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return &ListResult{Purchasings: docs, NextCursor: next}, nil
}

// transition runs fn under the document lock and records the operation metric.
func (s *service) transition(ctx context.Context, operation string, id uuid.UUID, actor string, fn func(ctx context.Context) error) error {
	started := time.Now()
	if s.logg != nil {
		ctx = s.logg.WithPurchasingID(ctx, id.String())
		if actor != "" {
			ctx = s.logg.WithActor(ctx, actor)
		}
	}

	err := s.locker.WithLock(ctx, lockScope, id.String(), fn)
	if err != nil {
		err = asServiceError(err, operation)
	}

	outcome := metrics.OutcomeOf(err)
	s.metrics.Observe(operation, outcome, time.Since(started))
	if s.logg != nil {
		switch outcome {
		case metrics.OutcomeError:
			s.logg.Error(ctx, operation+" failed", err)
		case metrics.OutcomeRejected:
			s.logg.Warn(ctx, operation+" rejected: "+err.Error())
		default:
			s.logg.Info(ctx, operation+" succeeded")
		}
	}
	return err
}

func (s *service) skipLine(ctx context.Context, operation string, result *LineResult, reason string) {
	result.Outcome = enums.LineOutcomeSkipped
	result.Reason = reason
	s.metrics.IncSkippedLine(operation, strings.ReplaceAll(reason, " ", "_"))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"product_id": result.ProductID.String(),
			"reason":     reason,
		})
		s.logg.Warn(logCtx, "purchasing line skipped")
	}
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "purchasing not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchasing")
}

func asServiceError(err error, action string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func lineID(id uuid.UUID) *uuid.UUID {
	return &id
}
