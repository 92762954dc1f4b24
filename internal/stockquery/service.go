package stockquery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	product "github.com/angelmondragon/pos-inventory-backend/internal/products"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
)

// Service answers stock reports from product state and the ledger.
type Service interface {
	ReturnedQuantityByProduct(ctx context.Context, purchasingID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	StockBuckets(ctx context.Context, filter product.Filter) (*Buckets, error)
	ValuateCatalog(ctx context.Context, filter product.Filter) (*Valuation, error)
	Reconcile(ctx context.Context, productID uuid.UUID) (*Reconciliation, error)
	ScanDrift(ctx context.Context) ([]Reconciliation, error)
}

type Buckets struct {
	Negative int64 `json:"negative"`
	Zero     int64 `json:"zero"`
	Positive int64 `json:"positive"`
}

type ValuationRow struct {
	ProductID   uuid.UUID       `json:"product_id"`
	Name        string          `json:"name"`
	Service     bool            `json:"service"`
	Qty         decimal.Decimal `json:"qty"`
	Cost        decimal.Decimal `json:"cost"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	ValueAtCost decimal.Decimal `json:"value_at_cost"`
	ValueAtSale decimal.Decimal `json:"value_at_sale"`
}

type Valuation struct {
	Rows        []ValuationRow  `json:"rows"`
	TotalAtCost decimal.Decimal `json:"total_at_cost"`
	TotalAtSale decimal.Decimal `json:"total_at_sale"`
}

// Reconciliation compares a product's stock with its ledger.
type Reconciliation struct {
	ProductID uuid.UUID       `json:"product_id"`
	Stock     decimal.Decimal `json:"stock"`
	LedgerSum decimal.Decimal `json:"ledger_sum"`
	Drift     decimal.Decimal `json:"drift"`
	InSync    bool            `json:"in_sync"`
}

type purchasingReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Purchasing, error)
}

type productReader interface {
	Get(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	List(ctx context.Context, input product.ListInput) (*product.ListResult, error)
}

type service struct {
	repo        *Repository
	products    *product.Repository
	catalog     productReader
	purchasings purchasingReader
	ledger      stockledger.Service
}

// NewService wires the stock query service.
func NewService(repo *Repository, products *product.Repository, catalog productReader, purchasings purchasingReader, ledger stockledger.Service) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock query repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product service required")
	}
	if purchasings == nil {
		return nil, fmt.Errorf("purchasing reader required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	return &service{
		repo:        repo,
		products:    products,
		catalog:     catalog,
		purchasings: purchasings,
		ledger:      ledger,
	}, nil
}

// ReturnedQuantityByProduct maps every product on the document to its total
// returned magnitude, zero when nothing was returned.
func (s *service) ReturnedQuantityByProduct(ctx context.Context, purchasingID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	doc, err := s.purchasings.Get(ctx, purchasingID)
	if err != nil {
		return nil, err
	}
	totals, err := s.ledger.ReturnedByProduct(ctx, nil, purchasingID)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]decimal.Decimal, len(doc.Lines))
	for _, line := range doc.Lines {
		out[line.ProductID] = decimal.Zero
	}
	for productID, qty := range totals {
		out[productID] = qty
	}
	return out, nil
}

func (s *service) StockBuckets(ctx context.Context, filter product.Filter) (*Buckets, error) {
	buckets, err := s.repo.CountBuckets(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count stock buckets")
	}
	return &buckets, nil
}

func (s *service) ValuateCatalog(ctx context.Context, filter product.Filter) (*Valuation, error) {
	rows, err := s.products.List(ctx, filter, nil, 0)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products for valuation")
	}
	valuation := ValuateInventory(rows)
	return &valuation, nil
}

func (s *service) Reconcile(ctx context.Context, productID uuid.UUID) (*Reconciliation, error) {
	item, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	sum, err := s.ledger.SumSigned(ctx, productID)
	if err != nil {
		return nil, err
	}
	drift := item.Stock.Sub(sum)
	if item.Service {
		drift = decimal.Zero
	}
	return &Reconciliation{
		ProductID: item.ID,
		Stock:     item.Stock,
		LedgerSum: sum,
		Drift:     drift,
		InSync:    drift.IsZero(),
	}, nil
}

// ScanDrift returns every stocked product whose stock disagrees with its ledger.
func (s *service) ScanDrift(ctx context.Context) ([]Reconciliation, error) {
	totals, err := s.repo.LedgerTotals(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger totals")
	}
	drifted := []Reconciliation{}
	for _, row := range totals {
		drift := row.Stock.Sub(row.LedgerSum)
		if drift.IsZero() {
			continue
		}
		drifted = append(drifted, Reconciliation{
			ProductID: row.ProductID,
			Stock:     row.Stock,
			LedgerSum: row.LedgerSum,
			Drift:     drift,
		})
	}
	return drifted, nil
}

// ValuateInventory values services as one unit and stock items at their
// current stock, negative stock included.
func ValuateInventory(products []models.Product) Valuation {
	valuation := Valuation{
		Rows:        make([]ValuationRow, 0, len(products)),
		TotalAtCost: decimal.Zero,
		TotalAtSale: decimal.Zero,
	}
	for _, p := range products {
		qty := p.Stock
		if p.Service {
			qty = decimal.NewFromInt(1)
		}
		row := ValuationRow{
			ProductID:   p.ID,
			Name:        p.Name,
			Service:     p.Service,
			Qty:         qty,
			Cost:        p.Cost,
			SalePrice:   p.SalePrice,
			ValueAtCost: qty.Mul(p.Cost),
			ValueAtSale: qty.Mul(p.SalePrice),
		}
		valuation.Rows = append(valuation.Rows, row)
		valuation.TotalAtCost = valuation.TotalAtCost.Add(row.ValueAtCost)
		valuation.TotalAtSale = valuation.TotalAtSale.Add(row.ValueAtSale)
	}
	return valuation
}
