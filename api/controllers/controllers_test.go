package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-inventory-backend/api/middleware"
	product "github.com/angelmondragon/pos-inventory-backend/internal/products"
	"github.com/angelmondragon/pos-inventory-backend/internal/purchasing"
	"github.com/angelmondragon/pos-inventory-backend/pkg/config"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

type stubProductService struct {
	product.Service
	lastStock  product.StockInput
	lastCreate product.CreateInput
	lastList   product.ListInput
	err        error
}

func (s *stubProductService) Create(_ context.Context, input product.CreateInput) (*models.Product, error) {
	s.lastCreate = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Product{ID: uuid.New(), Name: input.Name, Stock: input.Stock}, nil
}

func (s *stubProductService) List(_ context.Context, input product.ListInput) (*product.ListResult, error) {
	s.lastList = input
	return &product.ListResult{}, nil
}

func (s *stubProductService) AddStock(_ context.Context, input product.StockInput) (*models.Product, error) {
	s.lastStock = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Product{ID: input.ProductID, Stock: input.Qty}, nil
}

func (s *stubProductService) AdjustStockTo(_ context.Context, input product.StockInput) (*models.Product, error) {
	s.lastStock = input
	return &models.Product{ID: input.ProductID, Stock: input.Qty}, nil
}

type stubPurchasingService struct {
	purchasing.Service
	lastCreate purchasing.CreateInput
	lastReturn purchasing.ReturnInput
	actor      string
	err        error
}

func (s *stubPurchasingService) Create(_ context.Context, input purchasing.CreateInput) (*models.Purchasing, error) {
	s.lastCreate = input
	return &models.Purchasing{ID: uuid.New(), Status: enums.PurchasingStatusDraft}, nil
}

func (s *stubPurchasingService) Complete(_ context.Context, id uuid.UUID, actor string) (*purchasing.TransitionResult, error) {
	s.actor = actor
	if s.err != nil {
		return nil, s.err
	}
	return &purchasing.TransitionResult{
		Purchasing: &models.Purchasing{ID: id, Status: enums.PurchasingStatusCompleted},
		Lines:      []purchasing.LineResult{{ProductID: uuid.New(), Outcome: enums.LineOutcomeSkipped, Reason: purchasing.ReasonProductNotFound}},
	}, nil
}

func (s *stubPurchasingService) ReturnItems(_ context.Context, input purchasing.ReturnInput) (*purchasing.ReturnResult, error) {
	s.lastReturn = input
	return &purchasing.ReturnResult{Purchasing: &models.Purchasing{ID: input.PurchasingID}}, nil
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return payload.Error.Code
}

func TestCreateProduct(t *testing.T) {
	svc := &stubProductService{}
	body := `{"name":"  Rice 5kg ","sku":" ","stock":"12.5","cost":100,"sale_price":"120"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body))
	req = req.WithContext(middleware.WithActor(req.Context(), "cashier-1"))
	rec := httptest.NewRecorder()
	CreateProduct(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastCreate.Name != "Rice 5kg" {
		t.Fatalf("expected trimmed name, got %q", svc.lastCreate.Name)
	}
	if svc.lastCreate.SKU != nil {
		t.Fatalf("expected blank sku to be dropped")
	}
	if !svc.lastCreate.Stock.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected stock %s", svc.lastCreate.Stock)
	}
	if svc.lastCreate.Actor != "cashier-1" {
		t.Fatalf("expected actor from context, got %q", svc.lastCreate.Actor)
	}
}

func TestCreateProductRejectsNonNumericQuantity(t *testing.T) {
	svc := &stubProductService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"name":"Tea","stock":"a lot"}`))
	rec := httptest.NewRecorder()
	CreateProduct(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("expected validation code, got %s", code)
	}
}

func TestAdjustStockRequiresQuantity(t *testing.T) {
	productID := uuid.New()
	for _, body := range []string{`{"note":"forgot qty"}`, `{"qty":null}`, `{}`} {
		svc := &stubProductService{}
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "productId", productID.String())
		rec := httptest.NewRecorder()
		AdjustStock(svc, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", body, rec.Code)
		}
		if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %s", body, code)
		}
		if svc.lastStock.ProductID != uuid.Nil {
			t.Fatalf("%s: service must not be called", body)
		}
	}

	svc := &stubProductService{}
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":0}`)), "productId", productID.String())
	rec := httptest.NewRecorder()
	AdjustStock(svc, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("explicit zero count: expected 200 got %d", rec.Code)
	}
	if !svc.lastStock.Qty.IsZero() || svc.lastStock.ProductID != productID {
		t.Fatalf("unexpected stock input %+v", svc.lastStock)
	}
}

func TestAddStock(t *testing.T) {
	productID := uuid.New()

	t.Run("invalid product id", func(t *testing.T) {
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":1}`)), "productId", "nope")
		rec := httptest.NewRecorder()
		AddStock(&stubProductService{}, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":1,"delta":2}`)), "productId", productID.String())
		rec := httptest.NewRecorder()
		AddStock(&stubProductService{}, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	})

	t.Run("service error", func(t *testing.T) {
		svc := &stubProductService{err: pkgerrors.New(pkgerrors.CodeValidation, "service products have no stock")}
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":1}`)), "productId", productID.String())
		rec := httptest.NewRecorder()
		AddStock(svc, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		svc := &stubProductService{}
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":"3","note":"  restock "}`)), "productId", productID.String())
		rec := httptest.NewRecorder()
		AddStock(svc, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
		if svc.lastStock.ProductID != productID || svc.lastStock.Note != "restock" {
			t.Fatalf("unexpected stock input %+v", svc.lastStock)
		}
		if svc.lastStock.Actor != middleware.DefaultActor {
			t.Fatalf("expected default actor, got %q", svc.lastStock.Actor)
		}
	})
}

func TestListProductsParsesFilter(t *testing.T) {
	svc := &stubProductService{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?search=rice&category=food&service=false&limit=10", nil)
	rec := httptest.NewRecorder()
	ListProducts(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastList.Filter.Search != "rice" || svc.lastList.Filter.Category != "food" {
		t.Fatalf("unexpected filter %+v", svc.lastList.Filter)
	}
	if svc.lastList.Filter.Service == nil || *svc.lastList.Filter.Service {
		t.Fatalf("expected service=false filter")
	}
	if svc.lastList.Pagination.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", svc.lastList.Pagination.Limit)
	}

	bad := httptest.NewRecorder()
	ListProducts(svc, testLogger()).ServeHTTP(bad, httptest.NewRequest(http.MethodGet, "/api/v1/products?service=maybe", nil))
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", bad.Code)
	}
}

func TestCreatePurchasing(t *testing.T) {
	productID := uuid.New()
	supplierID := uuid.New()

	t.Run("requires lines", func(t *testing.T) {
		body := `{"supplier_id":"` + supplierID.String() + `","nota_number":"N-1","lines":[]}`
		rec := httptest.NewRecorder()
		CreatePurchasing(&stubPurchasingService{}, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	})

	t.Run("invalid product id", func(t *testing.T) {
		body := `{"supplier_id":"` + supplierID.String() + `","nota_number":"N-1","lines":[{"product_id":"x","qty":1,"price":1}]}`
		rec := httptest.NewRecorder()
		CreatePurchasing(&stubPurchasingService{}, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		svc := &stubPurchasingService{}
		body := `{"supplier_id":"` + supplierID.String() + `","nota_number":" N-1 ","lines":[{"product_id":"` + productID.String() + `","qty":"10","price":"100","update_cost":true}]}`
		rec := httptest.NewRecorder()
		CreatePurchasing(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
		}
		if svc.lastCreate.NotaNumber != "N-1" || len(svc.lastCreate.Lines) != 1 {
			t.Fatalf("unexpected input %+v", svc.lastCreate)
		}
		line := svc.lastCreate.Lines[0]
		if line.ProductID != productID || !line.UpdateCost || !line.Qty.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("unexpected line %+v", line)
		}
	})
}

func TestCompletePurchasing(t *testing.T) {
	id := uuid.New()

	t.Run("reports skipped lines", func(t *testing.T) {
		svc := &stubPurchasingService{}
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "purchasingId", id.String())
		req = req.WithContext(middleware.WithActor(req.Context(), "owner"))
		rec := httptest.NewRecorder()
		CompletePurchasing(svc, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d", rec.Code)
		}
		if svc.actor != "owner" {
			t.Fatalf("expected actor passed through, got %q", svc.actor)
		}
		var body struct {
			Data purchasing.TransitionResult `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Data.Lines) != 1 || body.Data.Lines[0].Outcome != enums.LineOutcomeSkipped {
			t.Fatalf("expected skipped line in response, got %+v", body.Data.Lines)
		}
	})

	t.Run("state conflict", func(t *testing.T) {
		svc := &stubPurchasingService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "purchasing already completed")}
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "purchasingId", id.String())
		rec := httptest.NewRecorder()
		CompletePurchasing(svc, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 got %d", rec.Code)
		}
		if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeStateConflict) {
			t.Fatalf("unexpected code %s", code)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		svc := &stubPurchasingService{err: errors.New("connection reset")}
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "purchasingId", id.String())
		rec := httptest.NewRecorder()
		CompletePurchasing(svc, testLogger()).ServeHTTP(rec, req)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500 got %d", rec.Code)
		}
	})
}

func TestReturnPurchasingItems(t *testing.T) {
	id := uuid.New()
	productID := uuid.New()
	svc := &stubPurchasingService{}
	body := `{"items":[{"product_id":"` + productID.String() + `","qty":2}],"note":"damaged"}`
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "purchasingId", id.String())
	rec := httptest.NewRecorder()
	ReturnPurchasingItems(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastReturn.PurchasingID != id || svc.lastReturn.Note != "damaged" {
		t.Fatalf("unexpected return input %+v", svc.lastReturn)
	}
	if len(svc.lastReturn.Items) != 1 || !svc.lastReturn.Items[0].Qty.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected items %+v", svc.lastReturn.Items)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	rec := httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": fakePinger{}, "redis": nil}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": fakePinger{err: errors.New("down")}}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}
