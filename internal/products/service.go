package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/pos-inventory-backend/pkg/pagination"
)

const (
	opCreateProduct = "product_create"
	opAddStock      = "stock_add"
	opAdjustStock   = "stock_adjust"
	opSale          = "stock_sale"
	opApplyCost     = "cost_apply"
)

// Service exposes catalog reads and the direct stock mutations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Product, error)
	Get(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	List(ctx context.Context, input ListInput) (*ListResult, error)
	AddStock(ctx context.Context, input StockInput) (*models.Product, error)
	AdjustStockTo(ctx context.Context, input StockInput) (*models.Product, error)
	DeductForSale(ctx context.Context, input StockInput) (*models.Product, error)
	ApplyCostIfFlagged(ctx context.Context, productID uuid.UUID, newCost decimal.Decimal, shouldUpdate bool) (*models.Product, error)
}

// CreateInput holds the validated payload to create a product.
type CreateInput struct {
	SKU       *string
	Name      string
	Category  *string
	Stock     decimal.Decimal
	Cost      decimal.Decimal
	SalePrice decimal.Decimal
	Service   bool
	Actor     string
}

// StockInput is shared by add, adjust and sale. Qty is the delta for add, the
// counted value for adjust and the sold quantity for sale.
type StockInput struct {
	ProductID uuid.UUID
	Qty       decimal.Decimal
	Note      string
	Actor     string
}

type ListInput struct {
	Filter     Filter
	Pagination pagination.Params
}

type ListResult struct {
	Products   []models.Product `json:"products"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    *Repository
	store   StockStore
	ledger  stockledger.Service
	events  outbox.Emitter
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.StockMetrics
}

// ServiceParams groups the product service collaborators.
type ServiceParams struct {
	Repo    *Repository
	Ledger  stockledger.Service
	Outbox  outbox.Emitter
	DB      txRunner
	Logger  *logger.Logger
	Metrics *metrics.StockMetrics
}

// NewService constructs a product service instance.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
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
	return &service{
		repo:    params.Repo,
		store:   NewStockStore(params.Repo),
		ledger:  params.Ledger,
		events:  params.Outbox,
		tx:      params.DB,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Product, error) {
	started := time.Now()
	product, err := s.create(ctx, input)
	s.metrics.Observe(opCreateProduct, metrics.OutcomeOf(err), time.Since(started))
	return product, err
}

func (s *service) create(ctx context.Context, input CreateInput) (*models.Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.Cost.IsNegative() || input.SalePrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cost and sale price must be non-negative")
	}
	if input.Service && !input.Stock.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service products have no stock")
	}

	product := &models.Product{
		SKU:       trimOptional(input.SKU),
		Name:      name,
		Category:  trimOptional(input.Category),
		Stock:     input.Stock,
		Cost:      input.Cost,
		SalePrice: input.SalePrice,
		Service:   input.Service,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, product); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sku already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
		}
		if !product.Service && !product.Stock.IsZero() {
			if _, err := s.ledger.Record(ctx, tx, stockledger.RecordInput{
				ProductID: product.ID,
				Type:      enums.StockHistoryAdd,
				Qty:       product.Stock,
				Note:      "Opening stock",
				CreatedBy: input.Actor,
			}); err != nil {
				return err
			}
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventProductCreated,
			AggregateID: product.ID,
			Actor:       outbox.Actor(input.Actor),
			Data: payloads.ProductCreatedEvent{
				ProductID:    product.ID,
				Name:         product.Name,
				Service:      product.Service,
				OpeningStock: product.Stock,
			},
		})
	})
	if err != nil {
		return nil, asServiceError(err, "create product")
	}
	return product, nil
}

func (s *service) Get(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) List(ctx context.Context, input ListInput) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, input.Filter, cursor, pagination.LimitWithBuffer(input.Pagination.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	products, next := pagination.Trim(rows, input.Pagination.Limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return &ListResult{Products: products, NextCursor: next}, nil
}

func (s *service) AddStock(ctx context.Context, input StockInput) (*models.Product, error) {
	return s.mutate(ctx, opAddStock, input, func(product *models.Product) (decimal.Decimal, enums.StockHistoryType, string, error) {
		return input.Qty, enums.StockHistoryAdd, input.Note, nil
	})
}

func (s *service) AdjustStockTo(ctx context.Context, input StockInput) (*models.Product, error) {
	return s.mutate(ctx, opAdjustStock, input, func(product *models.Product) (decimal.Decimal, enums.StockHistoryType, string, error) {
		note := input.Note
		if strings.TrimSpace(note) == "" {
			note = fmt.Sprintf("Stock opname: %s -> %s", product.Stock.String(), input.Qty.String())
		}
		return input.Qty.Sub(product.Stock), enums.StockHistoryAdjust, note, nil
	})
}

// DeductForSale allows the stock to go negative.
func (s *service) DeductForSale(ctx context.Context, input StockInput) (*models.Product, error) {
	return s.mutate(ctx, opSale, input, func(product *models.Product) (decimal.Decimal, enums.StockHistoryType, string, error) {
		if !input.Qty.IsPositive() {
			return decimal.Zero, "", "", pkgerrors.New(pkgerrors.CodeValidation, "sale quantity must be greater than zero")
		}
		note := input.Note
		if strings.TrimSpace(note) == "" {
			note = "Sale"
		}
		return input.Qty.Neg(), enums.StockHistorySale, note, nil
	})
}

type deltaFunc func(product *models.Product) (decimal.Decimal, enums.StockHistoryType, string, error)

func (s *service) mutate(ctx context.Context, operation string, input StockInput, compute deltaFunc) (*models.Product, error) {
	started := time.Now()
	if s.logg != nil {
		ctx = s.logg.WithProductID(ctx, input.ProductID.String())
	}

	var updated *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.store.LockForUpdate(ctx, tx, input.ProductID)
		if err != nil {
			return err
		}
		if err := GuardStock(product); err != nil {
			return err
		}

		before := product.Stock
		delta, entryType, note, err := compute(product)
		if err != nil {
			return err
		}
		if err := s.store.ApplyDelta(ctx, tx, product, delta); err != nil {
			return err
		}
		if _, err := s.ledger.Record(ctx, tx, stockledger.RecordInput{
			ProductID: product.ID,
			Type:      entryType,
			Qty:       delta,
			Note:      note,
			CreatedBy: input.Actor,
		}); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventStockChanged,
			AggregateID: product.ID,
			Actor:       outbox.Actor(input.Actor),
			Data: payloads.StockChangedEvent{
				ProductID:   product.ID,
				Type:        entryType,
				Delta:       delta,
				StockBefore: before,
				StockAfter:  product.Stock,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit stock event")
		}
		updated = product
		return nil
	})

	s.metrics.Observe(operation, metrics.OutcomeOf(err), time.Since(started))
	if err != nil {
		err = asServiceError(err, operation)
		if s.logg != nil && metrics.OutcomeOf(err) == metrics.OutcomeError {
			s.logg.Error(ctx, "stock mutation failed", err)
		}
		return nil, err
	}
	return updated, nil
}

func (s *service) ApplyCostIfFlagged(ctx context.Context, productID uuid.UUID, newCost decimal.Decimal, shouldUpdate bool) (*models.Product, error) {
	started := time.Now()
	var updated *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.store.LockForUpdate(ctx, tx, productID)
		if err != nil {
			return err
		}
		if shouldUpdate {
			if err := s.store.SetCost(ctx, tx, product, newCost); err != nil {
				return err
			}
		}
		updated = product
		return nil
	})
	s.metrics.Observe(opApplyCost, metrics.OutcomeOf(err), time.Since(started))
	if err != nil {
		return nil, asServiceError(err, "apply cost")
	}
	return updated, nil
}

// GuardStock rejects stock operations on service products.
func GuardStock(product *models.Product) error {
	if product != nil && product.Service {
		return pkgerrors.New(pkgerrors.CodeValidation, "service products have no stock")
	}
	return nil
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

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
