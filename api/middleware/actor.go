package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
)

const (
	actorHeader   = "X-Actor-Id"
	maxActorBytes = 64
)

// Actor reads the caller identity recorded on ledger entries and events.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(actorHeader))
			if len(actor) > maxActorBytes {
				actor = actor[:maxActorBytes]
			}
			if actor == "" {
				actor = DefaultActor
			}

			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
