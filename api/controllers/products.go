package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-inventory-backend/api/middleware"
	"github.com/angelmondragon/pos-inventory-backend/api/responses"
	"github.com/angelmondragon/pos-inventory-backend/api/validators"
	product "github.com/angelmondragon/pos-inventory-backend/internal/products"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockquery"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/pagination"
)

const (
	maxSearchLen = 120
	maxNoteLen   = 500
)

type createProductRequest struct {
	SKU       *string         `json:"sku,omitempty" validate:"omitempty,max=64"`
	Name      string          `json:"name" validate:"required,max=200"`
	Category  *string         `json:"category,omitempty" validate:"omitempty,max=100"`
	Stock     decimal.Decimal `json:"stock"`
	Cost      decimal.Decimal `json:"cost"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Service   bool            `json:"service"`
}

// Qty is a pointer so a missing or null quantity is rejected instead of
// decoding to zero.
type stockRequest struct {
	Qty  *decimal.Decimal `json:"qty" validate:"required"`
	Note string           `json:"note,omitempty" validate:"max=500"`
}

// CreateProduct registers a catalog item with its opening stock.
func CreateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Create(r.Context(), product.CreateInput{
			SKU:       trimOptional(payload.SKU),
			Name:      strings.TrimSpace(payload.Name),
			Category:  trimOptional(payload.Category),
			Stock:     payload.Stock,
			Cost:      payload.Cost,
			SalePrice: payload.SalePrice,
			Service:   payload.Service,
			Actor:     middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func ListProducts(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := parseProductFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), product.ListInput{Filter: filter, Pagination: params})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

type stockOperation func(ctx context.Context, input product.StockInput) (*models.Product, error)

func AddStock(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return stockHandler(svc.AddStock, logg)
}

// AdjustStock sets the counted quantity; qty is the target, not a delta.
func AdjustStock(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return stockHandler(svc.AdjustStockTo, logg)
}

func SellStock(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return stockHandler(svc.DeductForSale, logg)
}

func stockHandler(op stockOperation, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload stockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, id.String())
		}
		item, err := op(ctx, product.StockInput{
			ProductID: id,
			Qty:       *payload.Qty,
			Note:      validators.SanitizeString(payload.Note, maxNoteLen),
			Actor:     middleware.ActorFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// StockHistory lists a product's ledger entries, newest first.
func StockHistory(ledger stockledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listParams := stockledger.ListParams{Params: params}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			entryType, err := enums.ParseStockHistoryType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type"))
				return
			}
			listParams.Type = &entryType
		}

		result, err := ledger.List(r.Context(), id, listParams)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ReconcileStock(svc stockquery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Reconcile(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func parsePagination(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func parseProductFilter(r *http.Request) (product.Filter, error) {
	q := r.URL.Query()
	filter := product.Filter{
		Search:   validators.SanitizeString(q.Get("search"), maxSearchLen),
		Category: strings.TrimSpace(q.Get("category")),
	}
	if raw := strings.TrimSpace(q.Get("service")); raw != "" {
		switch strings.ToLower(raw) {
		case "true":
			v := true
			filter.Service = &v
		case "false":
			v := false
			filter.Service = &v
		default:
			return product.Filter{}, pkgerrors.New(pkgerrors.CodeValidation, "service must be true or false").
				WithDetails(map[string]any{"field": "service"})
		}
	}
	return filter, nil
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
