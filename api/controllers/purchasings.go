package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pos-inventory-backend/api/middleware"
	"github.com/angelmondragon/pos-inventory-backend/api/responses"
	"github.com/angelmondragon/pos-inventory-backend/api/validators"
	"github.com/angelmondragon/pos-inventory-backend/internal/purchasing"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockquery"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
)

type purchasingLineRequest struct {
	ProductID  string          `json:"product_id" validate:"required,uuid"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	UpdateCost bool            `json:"update_cost"`
}

type createPurchasingRequest struct {
	SupplierID   string                  `json:"supplier_id" validate:"required,uuid"`
	NotaNumber   string                  `json:"nota_number" validate:"required,max=100"`
	Lines        []purchasingLineRequest `json:"lines" validate:"required,min=1,dive"`
	Note         string                  `json:"note,omitempty" validate:"max=500"`
	AttachedFile *string                 `json:"attached_file,omitempty" validate:"omitempty,max=500"`
}

type returnItemRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Qty       decimal.Decimal `json:"qty"`
}

type returnRequest struct {
	Items []returnItemRequest `json:"items" validate:"required,min=1,dive"`
	Note  string              `json:"note,omitempty" validate:"max=500"`
}

func (r createPurchasingRequest) toInput(actor string) purchasing.CreateInput {
	lines := make([]purchasing.LineInput, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, purchasing.LineInput{
			ProductID:  uuid.MustParse(line.ProductID),
			Qty:        line.Qty,
			Price:      line.Price,
			UpdateCost: line.UpdateCost,
		})
	}
	return purchasing.CreateInput{
		SupplierID:   uuid.MustParse(r.SupplierID),
		NotaNumber:   strings.TrimSpace(r.NotaNumber),
		Lines:        lines,
		Note:         validators.SanitizeString(r.Note, maxNoteLen),
		AttachedFile: trimOptional(r.AttachedFile),
		Actor:        actor,
	}
}

// CreatePurchasing stores a draft document; stock is untouched until completion.
func CreatePurchasing(svc purchasing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createPurchasingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		doc, err := svc.Create(r.Context(), payload.toInput(middleware.ActorFromContext(r.Context())))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, doc)
	}
}

func ListPurchasings(svc purchasing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := purchasing.ListInput{Pagination: params}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParsePurchasingStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}
		supplierID, err := validators.ParseOptionalQueryUUID(r, "supplier_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.SupplierID = supplierID

		result, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetPurchasing(svc purchasing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "purchasingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, doc)
	}
}

type transitionOperation func(ctx context.Context, id uuid.UUID, actor string) (*purchasing.TransitionResult, error)

// CompletePurchasing applies every line to stock. Lines whose product is gone
// come back with a skipped outcome instead of failing the request.
func CompletePurchasing(svc purchasing.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.Complete, logg)
}

func CancelPurchasing(svc purchasing.Service, logg *logger.Logger) http.HandlerFunc {
	return transitionHandler(svc.Cancel, logg)
}

func transitionHandler(op transitionOperation, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "purchasingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPurchasingID(ctx, id.String())
		}
		result, err := op(ctx, id, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ReturnPurchasingItems(svc purchasing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "purchasingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload returnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPurchasingID(ctx, id.String())
		}
		items := make([]purchasing.ReturnItem, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, purchasing.ReturnItem{
				ProductID: uuid.MustParse(item.ProductID),
				Qty:       item.Qty,
			})
		}
		result, err := svc.ReturnItems(ctx, purchasing.ReturnInput{
			PurchasingID: id,
			Items:        items,
			Note:         validators.SanitizeString(payload.Note, maxNoteLen),
			Actor:        middleware.ActorFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ReturnedQuantities(svc stockquery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "purchasingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		returned, err := svc.ReturnedQuantityByProduct(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"purchasing_id": id,
			"returned":      returned,
		})
	}
}
