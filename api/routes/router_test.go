package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	product "github.com/angelmondragon/pos-inventory-backend/internal/products"
	"github.com/angelmondragon/pos-inventory-backend/internal/purchasing"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockquery"
	"github.com/angelmondragon/pos-inventory-backend/pkg/config"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/dbtest"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
	pkgredis "github.com/angelmondragon/pos-inventory-backend/pkg/redis"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewWithConn(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	redisClient := pkgredis.NewWithRaw(raw)

	reg := prometheus.NewRegistry()
	stockMetrics := metrics.NewStockMetrics(reg)

	ledger, err := stockledger.NewService(stockledger.NewRepository(conn), logg, stockMetrics)
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	productRepo := product.NewRepository(conn)
	products, err := product.NewService(product.ServiceParams{
		Repo:    productRepo,
		Ledger:  ledger,
		Outbox:  emitter,
		DB:      client,
		Logger:  logg,
		Metrics: stockMetrics,
	})
	require.NoError(t, err)
	purchasings, err := purchasing.NewService(purchasing.ServiceParams{
		Repo:    purchasing.NewRepository(conn),
		Stock:   product.NewStockStore(productRepo),
		Ledger:  ledger,
		Outbox:  emitter,
		DB:      client,
		Logger:  logg,
		Metrics: stockMetrics,
	})
	require.NoError(t, err)
	query, err := stockquery.NewService(stockquery.NewRepository(conn), productRepo, products, purchasings, ledger)
	require.NoError(t, err)

	cfg := &config.Config{
		App:      config.AppConfig{Env: "test"},
		HTTP:     config.HTTPConfig{RateLimitRequests: 1000, RateLimitWindow: time.Minute},
		Eventing: config.EventingConfig{IdempotencyTTL: time.Hour},
	}
	return NewRouter(Dependencies{
		Config:      cfg,
		Logger:      logg,
		DB:          client,
		Redis:       redisClient,
		Idempotency: redisClient,
		Gatherer:    reg,
		Products:    products,
		Ledger:      ledger,
		Purchasings: purchasings,
		StockQuery:  query,
		DeadLetters: outbox.NewDLQRepository(conn),
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Data
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t)

	live := do(t, h, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, live.Code)
	require.NotEmpty(t, live.Header().Get("X-Request-Id"))

	ready := do(t, h, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, ready.Code, ready.Body.String())

	do(t, h, http.MethodPost, "/api/v1/products", `{"name":"Tea","stock":1}`, nil)
	scrape := do(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, scrape.Code)
	require.Contains(t, scrape.Body.String(), "stock_operations_total")
}

func TestStockMutationRequiresIdempotencyKey(t *testing.T) {
	h := newTestRouter(t)
	created := do(t, h, http.MethodPost, "/api/v1/products", `{"name":"Tea","stock":1}`, nil)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	item := decodeData[models.Product](t, created)

	resp := do(t, h, http.MethodPost, "/api/v1/products/"+item.ID.String()+"/stock/add", `{"qty":2}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, h, http.MethodPost, "/api/v1/products/"+item.ID.String()+"/stock/add", `{"qty":2}`, map[string]string{"Idempotency-Key": "add-1"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.True(t, decodeData[models.Product](t, resp).Stock.Equal(decimal.NewFromInt(3)))

	replay := do(t, h, http.MethodPost, "/api/v1/products/"+item.ID.String()+"/stock/add", `{"qty":2}`, map[string]string{"Idempotency-Key": "add-1"})
	require.Equal(t, http.StatusOK, replay.Code)

	current := do(t, h, http.MethodGet, "/api/v1/products/"+item.ID.String(), "", nil)
	require.True(t, decodeData[models.Product](t, current).Stock.Equal(decimal.NewFromInt(3)), "replayed request must not add stock twice")
}

func TestPurchasingLifecycleOverHTTP(t *testing.T) {
	h := newTestRouter(t)
	actor := map[string]string{"X-Actor-Id": "owner"}

	created := do(t, h, http.MethodPost, "/api/v1/products", `{"name":"Coffee","stock":5,"cost":80,"sale_price":120}`, actor)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	item := decodeData[models.Product](t, created)

	body := `{"supplier_id":"8f7b1f52-7a4c-4c9e-9a38-3f9a1b8f0c11","nota_number":"INV-1","lines":[{"product_id":"` + item.ID.String() + `","qty":10,"price":100,"update_cost":true}]}`
	draft := do(t, h, http.MethodPost, "/api/v1/purchasings", body, map[string]string{"Idempotency-Key": "p-1", "X-Actor-Id": "owner"})
	require.Equal(t, http.StatusCreated, draft.Code, draft.Body.String())
	doc := decodeData[models.Purchasing](t, draft)
	require.True(t, doc.Total.Equal(decimal.NewFromInt(1000)))

	base := "/api/v1/purchasings/" + doc.ID.String()
	completed := do(t, h, http.MethodPost, base+"/complete", "", map[string]string{"Idempotency-Key": "c-1"})
	require.Equal(t, http.StatusOK, completed.Code, completed.Body.String())

	again := do(t, h, http.MethodPost, base+"/complete", "", map[string]string{"Idempotency-Key": "c-2"})
	require.Equal(t, http.StatusUnprocessableEntity, again.Code)

	returned := do(t, h, http.MethodPost, base+"/returns", `{"items":[{"product_id":"`+item.ID.String()+`","qty":4}],"note":"damaged"}`, map[string]string{"Idempotency-Key": "r-1"})
	require.Equal(t, http.StatusOK, returned.Code, returned.Body.String())

	quantities := do(t, h, http.MethodGet, base+"/returns", "", nil)
	require.Equal(t, http.StatusOK, quantities.Code)
	totals := decodeData[struct {
		Returned map[string]decimal.Decimal `json:"returned"`
	}](t, quantities)
	require.True(t, totals.Returned[item.ID.String()].Equal(decimal.NewFromInt(4)))

	current := decodeData[models.Product](t, do(t, h, http.MethodGet, "/api/v1/products/"+item.ID.String(), "", nil))
	require.True(t, current.Stock.Equal(decimal.NewFromInt(11)))
	require.True(t, current.Cost.Equal(decimal.NewFromInt(100)))

	history := do(t, h, http.MethodGet, "/api/v1/products/"+item.ID.String()+"/stock/history?type=return", "", nil)
	require.Equal(t, http.StatusOK, history.Code)
	entries := decodeData[stockledger.ListResult](t, history)
	require.Len(t, entries.Entries, 1)
	require.Equal(t, "owner", decodeData[models.Purchasing](t, draft).CreatedBy)

	reconcile := decodeData[stockquery.Reconciliation](t, do(t, h, http.MethodGet, "/api/v1/products/"+item.ID.String()+"/stock/reconcile", "", nil))
	require.True(t, reconcile.InSync)

	drift := decodeData[[]stockquery.Reconciliation](t, do(t, h, http.MethodGet, "/api/v1/stock/drift", "", nil))
	require.Empty(t, drift)

	dead := decodeData[[]models.OutboxDLQ](t, do(t, h, http.MethodGet, "/api/v1/ops/outbox/dlq?reason=max_attempts", "", nil))
	require.Empty(t, dead)
	badReason := do(t, h, http.MethodGet, "/api/v1/ops/outbox/dlq?reason=whatever", "", nil)
	require.Equal(t, http.StatusBadRequest, badReason.Code)

	buckets := decodeData[stockquery.Buckets](t, do(t, h, http.MethodGet, "/api/v1/stock/buckets", "", nil))
	require.Equal(t, int64(1), buckets.Positive)

	listed := do(t, h, http.MethodGet, "/api/v1/purchasings?status=completed", "", nil)
	require.Equal(t, http.StatusOK, listed.Code)
	require.Len(t, decodeData[purchasing.ListResult](t, listed).Purchasings, 1)

	bad := do(t, h, http.MethodGet, "/api/v1/purchasings?status=archived", "", nil)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}
