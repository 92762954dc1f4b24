package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
)

type memStore map[string]string

func (m memStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key], _ = value.(string)
	return true, nil
}

func (m memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m[key], _ = value.(string)
	return nil
}

func (m memStore) Del(_ context.Context, key string) error {
	delete(m, key)
	return nil
}

func (m memStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

// countingHandler writes status and body and counts executions.
type countingHandler struct {
	calls  int
	status int
	body   string
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	if h.body != "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(h.status)
	_, _ = io.WriteString(w, h.body)
}

type call struct {
	path, pattern, body, key, actor string
}

func (c call) send(h http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, c.path, strings.NewReader(c.body))
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{c.pattern}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	if c.actor != "" {
		ctx = WithActor(ctx, c.actor)
	}
	req = req.WithContext(ctx)
	if c.key != "" {
		req.Header.Set(idempotencyHeader, c.key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createPurchasing(body, key string) call {
	return call{path: "/api/v1/purchasings", pattern: "/api/v1/purchasings", body: body, key: key}
}

func TestRequiresIdempotency(t *testing.T) {
	tests := []struct {
		method  string
		pattern string
		want    bool
	}{
		{http.MethodPost, "/api/v1/purchasings", true},
		{http.MethodPost, "/api/v1/purchasings/{purchasingId}/complete", true},
		{http.MethodPost, "/api/v1/purchasings/{purchasingId}/cancel", true},
		{http.MethodPost, "/api/v1/purchasings/{purchasingId}/returns", true},
		{http.MethodPost, "/api/v1/purchasings/7c9e6679-7425-40de-944b-e07fc1f90ae7/returns", true},
		{http.MethodGet, "/api/v1/purchasings/{purchasingId}/returns", false},
		{http.MethodPost, "/api/v1/products/{productId}/stock/sale", true},
		{http.MethodPost, "/api/v1/products/{productId}/stock/adjust", true},
		{http.MethodPost, "/api/v1/products", false},
		{http.MethodPost, "/api/v1/purchasings/{purchasingId}/complete/extra", false},
		{http.MethodPost, "", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, requiresIdempotency(tt.method, tt.pattern), "%s %s", tt.method, tt.pattern)
	}
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	rec := createPurchasing(`{}`, "").send(Idempotency(memStore{}, time.Hour, nil)(next))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, next.calls)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	next := &countingHandler{status: http.StatusAccepted, body: `{"ok":true}`}
	h := Idempotency(memStore{}, time.Hour, nil)(next)

	first := createPurchasing(`{"foo":"bar"}`, "abc").send(h)
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Empty(t, first.Header().Get("Idempotent-Replayed"))

	replay := createPurchasing(`{"foo":"bar"}`, "abc").send(h)
	require.Equal(t, http.StatusAccepted, replay.Code)
	require.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	require.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, `{"ok":true}`, replay.Body.String())
	require.Equal(t, 1, next.calls)
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	h := Idempotency(memStore{}, time.Hour, nil)(&countingHandler{status: http.StatusOK})

	createPurchasing(`{"foo":"bar"}`, "xyz").send(h)
	rec := createPurchasing(`{"foo":"diff"}`, "xyz").send(h)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotencyRejectsDuplicateWhileInFlight(t *testing.T) {
	var (
		h      http.Handler
		nested *httptest.ResponseRecorder
		calls  int
	)
	h = Idempotency(memStore{}, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		nested = createPurchasing(`{"foo":"bar"}`, "busy").send(h)
		w.WriteHeader(http.StatusCreated)
	}))

	first := createPurchasing(`{"foo":"bar"}`, "busy").send(h)

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, 1, calls)
	require.NotNil(t, nested)
	require.Equal(t, http.StatusConflict, nested.Code)
	require.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, nested))

	replay := createPurchasing(`{"foo":"bar"}`, "busy").send(h)
	require.Equal(t, http.StatusCreated, replay.Code)
	require.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	require.Equal(t, 1, calls)
}

func TestIdempotencyPendingKeyWithDifferentBody(t *testing.T) {
	store := memStore{}
	next := &countingHandler{status: http.StatusOK}
	h := Idempotency(store, time.Hour, nil)(next)

	key := store.IdempotencyKey(DefaultActor+"|POST|/api/v1/purchasings", "held")
	store[key] = `{"status":0,"body":null,"request_hash":"other","pending":true}`

	rec := createPurchasing(`{"foo":"bar"}`, "held").send(h)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
	require.Zero(t, next.calls)
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	store := memStore{}
	next := &countingHandler{status: http.StatusServiceUnavailable}
	h := Idempotency(store, time.Hour, nil)(next)

	complete := call{
		path:    "/api/v1/purchasings/1/complete",
		pattern: "/api/v1/purchasings/{purchasingId}/complete",
		body:    `{}`,
		key:     "retry-me",
	}
	complete.send(h)
	complete.send(h)

	require.Equal(t, 2, next.calls)
	require.Empty(t, store)
}

func TestIdempotencyScopesByActor(t *testing.T) {
	next := &countingHandler{status: http.StatusCreated}
	h := Idempotency(memStore{}, time.Hour, nil)(next)

	for _, actor := range []string{"cashier-1", "cashier-2"} {
		c := createPurchasing(`{}`, "same")
		c.actor = actor
		c.send(h)
	}
	require.Equal(t, 2, next.calls)
}

func TestIdempotencyDisabledWithoutStore(t *testing.T) {
	rec := createPurchasing(`{}`, "").send(Idempotency(nil, time.Hour, nil)(&countingHandler{status: http.StatusCreated}))
	require.Equal(t, http.StatusCreated, rec.Code)
}
