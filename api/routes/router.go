package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/pos-inventory-backend/api/controllers"
	"github.com/angelmondragon/pos-inventory-backend/api/middleware"
	product "github.com/angelmondragon/pos-inventory-backend/internal/products"
	"github.com/angelmondragon/pos-inventory-backend/internal/purchasing"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockquery"
	"github.com/angelmondragon/pos-inventory-backend/pkg/config"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/pos-inventory-backend/pkg/redis"
)

// Dependencies bundles everything the HTTP surface needs. Idempotency and the
// Redis readiness check are skipped when their fields are nil.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Products    product.Service
	Ledger      stockledger.Service
	Purchasings purchasing.Service
	StockQuery  stockquery.Service
	DeadLetters controllers.DeadLetterLister
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.SecureHeaders(cfg.App.IsDev()),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow, logg))
		r.Use(middleware.Actor(logg))
		r.Use(middleware.Idempotency(deps.Idempotency, cfg.Eventing.IdempotencyTTL, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(deps.Products, logg))
			r.Post("/", controllers.CreateProduct(deps.Products, logg))
			r.Route("/{productId}", func(r chi.Router) {
				r.Get("/", controllers.GetProduct(deps.Products, logg))
				r.Post("/stock/add", controllers.AddStock(deps.Products, logg))
				r.Post("/stock/adjust", controllers.AdjustStock(deps.Products, logg))
				r.Post("/stock/sale", controllers.SellStock(deps.Products, logg))
				r.Get("/stock/history", controllers.StockHistory(deps.Ledger, logg))
				r.Get("/stock/reconcile", controllers.ReconcileStock(deps.StockQuery, logg))
			})
		})

		r.Route("/purchasings", func(r chi.Router) {
			r.Get("/", controllers.ListPurchasings(deps.Purchasings, logg))
			r.Post("/", controllers.CreatePurchasing(deps.Purchasings, logg))
			r.Route("/{purchasingId}", func(r chi.Router) {
				r.Get("/", controllers.GetPurchasing(deps.Purchasings, logg))
				r.Post("/complete", controllers.CompletePurchasing(deps.Purchasings, logg))
				r.Post("/cancel", controllers.CancelPurchasing(deps.Purchasings, logg))
				r.Post("/returns", controllers.ReturnPurchasingItems(deps.Purchasings, logg))
				r.Get("/returns", controllers.ReturnedQuantities(deps.StockQuery, logg))
			})
		})

		r.Route("/stock", func(r chi.Router) {
			r.Get("/buckets", controllers.StockBuckets(deps.StockQuery, logg))
			r.Get("/valuation", controllers.StockValuation(deps.StockQuery, logg))
			r.Get("/drift", controllers.StockDrift(deps.StockQuery, logg))
		})

		if deps.DeadLetters != nil {
			r.Get("/ops/outbox/dlq", controllers.ListDeadLetters(deps.DeadLetters, logg))
		}
	})

	return r
}
