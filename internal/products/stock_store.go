package product

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
)

// StockStore mutates product stock and cost inside a caller-owned transaction.
// Callers lock the row first, then write the product, then the ledger entry.
type StockStore interface {
	LockForUpdate(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error)
	ApplyDelta(ctx context.Context, tx *gorm.DB, product *models.Product, delta decimal.Decimal) error
	SetCost(ctx context.Context, tx *gorm.DB, product *models.Product, cost decimal.Decimal) error
}

type stockStore struct {
	repo *Repository
}

// NewStockStore returns the transaction-scoped stock API backed by repo.
func NewStockStore(repo *Repository) StockStore {
	return &stockStore{repo: repo}
}

// LockForUpdate returns a NOT_FOUND error when the product does not exist.
func (s *stockStore) LockForUpdate(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.WithTx(tx).LockForUpdate(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": productID.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock product")
	}
	return product, nil
}

// ApplyDelta adds delta to the stock and updates product in place.
func (s *stockStore) ApplyDelta(ctx context.Context, tx *gorm.DB, product *models.Product, delta decimal.Decimal) error {
	if product == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "product required")
	}
	if err := GuardStock(product); err != nil {
		return err
	}
	next := product.Stock.Add(delta)
	if err := s.repo.WithTx(tx).UpdateStock(ctx, product.ID, next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock")
	}
	product.Stock = next
	return nil
}

func (s *stockStore) SetCost(ctx context.Context, tx *gorm.DB, product *models.Product, cost decimal.Decimal) error {
	if product == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "product required")
	}
	if cost.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "cost must be non-negative")
	}
	if err := s.repo.WithTx(tx).UpdateCost(ctx, product.ID, cost); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cost")
	}
	product.Cost = cost
	return nil
}
