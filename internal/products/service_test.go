package product

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/dbtest"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/pos-inventory-backend/pkg/pagination"
)

type testEnv struct {
	conn    *gorm.DB
	svc     Service
	ledger  stockledger.Service
	outbox  *outbox.Repository
	metrics *metrics.StockMetrics
	reg     *prometheus.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn := dbtest.Open(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewStockMetrics(reg)
	ledger, err := stockledger.NewService(stockledger.NewRepository(conn), nil, m)
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Ledger:  ledger,
		Outbox:  outbox.NewService(outboxRepo, nil),
		DB:      db.NewWithConn(conn),
		Metrics: m,
	})
	require.NoError(t, err)
	return &testEnv{conn: conn, svc: svc, ledger: ledger, outbox: outboxRepo, metrics: m, reg: reg}
}

func (e *testEnv) seedProduct(t *testing.T, stock int64, service bool) *models.Product {
	t.Helper()
	product := &models.Product{
		Name:      "Item " + uuid.NewString()[:8],
		Stock:     decimal.NewFromInt(stock),
		Cost:      decimal.NewFromInt(100),
		SalePrice: decimal.NewFromInt(150),
		Service:   service,
	}
	require.NoError(t, e.conn.Create(product).Error)
	return product
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *models.Product {
	t.Helper()
	var product models.Product
	require.NoError(t, e.conn.First(&product, "id = ?", id).Error)
	return &product
}

func (e *testEnv) entries(t *testing.T, productID uuid.UUID) []models.StockHistory {
	t.Helper()
	var rows []models.StockHistory
	require.NoError(t, e.conn.Where("product_id = ?", productID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func requireDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(decimal.NewFromInt(want)), "expected %d, got %s", want, got)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestAddStockIncrementsAndRecords(t *testing.T) {
	env := newTestEnv(t)
	product := env.seedProduct(t, 10, false)

	updated, err := env.svc.AddStock(context.Background(), StockInput{
		ProductID: product.ID,
		Qty:       decimal.NewFromInt(5),
		Note:      "restock",
		Actor:     "clerk-1",
	})
	require.NoError(t, err)
	requireDecimal(t, 15, updated.Stock)
	requireDecimal(t, 15, env.reload(t, product.ID).Stock)

	rows := env.entries(t, product.ID)
	require.Len(t, rows, 1)
	require.Equal(t, enums.StockHistoryAdd, rows[0].Type)
	requireDecimal(t, 5, rows[0].Qty)
	require.Equal(t, "restock", rows[0].Note)
	require.Equal(t, "clerk-1", rows[0].CreatedBy)

	events, err := env.outbox.ListByAggregate(nil, product.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventStockChanged, events[0].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload payloads.StockChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	requireDecimal(t, 10, payload.StockBefore)
	requireDecimal(t, 15, payload.StockAfter)
}

func TestAdjustStockToRecordsDifference(t *testing.T) {
	env := newTestEnv(t)
	product := env.seedProduct(t, 10, false)

	updated, err := env.svc.AdjustStockTo(context.Background(), StockInput{
		ProductID: product.ID,
		Qty:       decimal.NewFromInt(7),
	})
	require.NoError(t, err)
	requireDecimal(t, 7, updated.Stock)

	rows := env.entries(t, product.ID)
	require.Len(t, rows, 1)
	require.Equal(t, enums.StockHistoryAdjust, rows[0].Type)
	requireDecimal(t, -3, rows[0].Qty)
	require.Equal(t, "Stock opname: 10 -> 7", rows[0].Note)
	require.Equal(t, stockledger.DefaultActor, rows[0].CreatedBy)
}

func TestServiceProductGuardRejectsWithoutLedger(t *testing.T) {
	env := newTestEnv(t)
	product := env.seedProduct(t, 0, true)

	for _, qty := range []int64{0, 1, -4} {
		_, err := env.svc.AddStock(context.Background(), StockInput{ProductID: product.ID, Qty: decimal.NewFromInt(qty)})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "add %d: %v", qty, err)
		require.Contains(t, err.Error(), "service products have no stock")

		_, err = env.svc.AdjustStockTo(context.Background(), StockInput{ProductID: product.ID, Qty: decimal.NewFromInt(qty)})
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "adjust %d: %v", qty, err)
	}

	require.Empty(t, env.entries(t, product.ID))
	requireDecimal(t, 0, env.reload(t, product.ID).Stock)
}

func TestStockOperationsOnMissingProduct(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.AddStock(context.Background(), StockInput{ProductID: uuid.New(), Qty: decimal.NewFromInt(1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = env.svc.Get(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestDeductForSaleAllowsNegativeStock(t *testing.T) {
	env := newTestEnv(t)
	product := env.seedProduct(t, 2, false)

	updated, err := env.svc.DeductForSale(context.Background(), StockInput{ProductID: product.ID, Qty: decimal.NewFromInt(5), Note: "receipt 991"})
	require.NoError(t, err)
	requireDecimal(t, -3, updated.Stock)

	rows := env.entries(t, product.ID)
	require.Len(t, rows, 1)
	require.Equal(t, enums.StockHistorySale, rows[0].Type)
	requireDecimal(t, -5, rows[0].Qty)

	_, err = env.svc.DeductForSale(context.Background(), StockInput{ProductID: product.ID, Qty: decimal.Zero})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Len(t, env.entries(t, product.ID), 1)
}

func TestApplyCostIfFlagged(t *testing.T) {
	env := newTestEnv(t)
	product := env.seedProduct(t, 0, false)

	unchanged, err := env.svc.ApplyCostIfFlagged(context.Background(), product.ID, decimal.NewFromInt(120), false)
	require.NoError(t, err)
	requireDecimal(t, 100, unchanged.Cost)

	updated, err := env.svc.ApplyCostIfFlagged(context.Background(), product.ID, decimal.NewFromInt(120), true)
	require.NoError(t, err)
	requireDecimal(t, 120, updated.Cost)
	requireDecimal(t, 120, env.reload(t, product.ID).Cost)
	require.Empty(t, env.entries(t, product.ID))
}

func TestLedgerSumMatchesStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.Create(ctx, CreateInput{Name: "Rice 5kg", Stock: decimal.NewFromInt(4)})
	require.NoError(t, err)

	_, err = env.svc.AddStock(ctx, StockInput{ProductID: created.ID, Qty: decimal.RequireFromString("2.5")})
	require.NoError(t, err)
	_, err = env.svc.DeductForSale(ctx, StockInput{ProductID: created.ID, Qty: decimal.NewFromInt(3)})
	require.NoError(t, err)
	_, err = env.svc.AdjustStockTo(ctx, StockInput{ProductID: created.ID, Qty: decimal.NewFromInt(11)})
	require.NoError(t, err)
	_, err = env.svc.AddStock(ctx, StockInput{ProductID: created.ID, Qty: decimal.NewFromInt(-1)})
	require.NoError(t, err)

	sum, err := env.ledger.SumSigned(ctx, created.ID)
	require.NoError(t, err)
	stock := env.reload(t, created.ID).Stock
	requireDecimal(t, 10, stock)
	require.True(t, sum.Equal(stock), "ledger %s != stock %s", sum, stock)
}

func TestCreateValidatesAndRejectsDuplicateSKU(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sku := "SKU-1"

	_, err := env.svc.Create(ctx, CreateInput{Name: "  "})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = env.svc.Create(ctx, CreateInput{Name: "Haircut", Service: true, Stock: decimal.NewFromInt(1)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	first, err := env.svc.Create(ctx, CreateInput{Name: "Soap", SKU: &sku})
	require.NoError(t, err)
	require.Empty(t, env.entries(t, first.ID))

	_, err = env.svc.Create(ctx, CreateInput{Name: "Soap again", SKU: &sku})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestListFiltersAndPaginates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	drinks := "drinks"

	for _, name := range []string{"Cola", "Cola Zero", "Lemon Tea"} {
		_, err := env.svc.Create(ctx, CreateInput{Name: name, Category: &drinks})
		require.NoError(t, err)
	}
	_, err := env.svc.Create(ctx, CreateInput{Name: "Delivery", Service: true})
	require.NoError(t, err)

	res, err := env.svc.List(ctx, ListInput{Filter: Filter{Search: "cola"}})
	require.NoError(t, err)
	require.Len(t, res.Products, 2)

	notService := false
	res, err = env.svc.List(ctx, ListInput{Filter: Filter{Category: "drinks", Service: &notService}})
	require.NoError(t, err)
	require.Len(t, res.Products, 3)

	page, err := env.svc.List(ctx, ListInput{Pagination: pagination.Params{Limit: 3}})
	require.NoError(t, err)
	require.Len(t, page.Products, 3)
	require.NotEmpty(t, page.NextCursor)

	rest, err := env.svc.List(ctx, ListInput{Pagination: pagination.Params{Limit: 3, Cursor: page.NextCursor}})
	require.NoError(t, err)
	require.Len(t, rest.Products, 1)
	require.Empty(t, rest.NextCursor)

	_, err = env.svc.List(ctx, ListInput{Pagination: pagination.Params{Cursor: "%%%"}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
