package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/pos-inventory-backend/api/responses"
	"github.com/angelmondragon/pos-inventory-backend/api/validators"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db/models"
	"github.com/angelmondragon/pos-inventory-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-inventory-backend/pkg/errors"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
)

type DeadLetterLister interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
}

// ListDeadLetters shows outbox rows the publisher gave up on, newest first.
// Optional filters: event_type, reason, limit.
func ListDeadLetters(repo DeadLetterLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseDLQFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := repo.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

func parseDLQFilter(r *http.Request) (outbox.DLQFilter, error) {
	var filter outbox.DLQFilter
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("event_type")); raw != "" {
		eventType, err := enums.ParseOutboxEventType(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event_type")
		}
		filter.EventType = eventType
	}
	if raw := strings.TrimSpace(q.Get("reason")); raw != "" {
		reason, err := enums.ParseOutboxDLQErrorReason(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason")
		}
		filter.Reason = reason
	}
	limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	return filter, nil
}
