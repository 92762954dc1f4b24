package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/pos-inventory-backend/api/controllers"
	"github.com/angelmondragon/pos-inventory-backend/api/middleware"
	"github.com/angelmondragon/pos-inventory-backend/internal/maintenance"
	product "github.com/angelmondragon/pos-inventory-backend/internal/products"
	"github.com/angelmondragon/pos-inventory-backend/internal/purchasing"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockquery"
	"github.com/angelmondragon/pos-inventory-backend/pkg/config"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db"
	"github.com/angelmondragon/pos-inventory-backend/pkg/lock"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
	"github.com/angelmondragon/pos-inventory-backend/pkg/migrate"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
	"github.com/angelmondragon/pos-inventory-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "maintenance-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "maintenance-worker"

	logg = logger.New(logger.Options{
		ServiceName: "maintenance-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "maintenance worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "maintenance worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var locker lock.Locker = lock.Noop{}
	if cfg.Redis.Enabled() {
		var redisClient *redis.Client
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		var redisLocker *lock.RedisLocker
		redisLocker, err = lock.NewRedisLocker(redisClient, cfg.Maintenance.LockTTL, logg)
		if err != nil {
			return err
		}
		locker = redisLocker
	} else {
		logg.Warn(ctx, "redis not configured; maintenance cycles are not coordinated across replicas")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	maintenanceMetrics := metrics.NewMaintenanceMetrics(reg)

	query, err := newStockQuery(dbClient, logg)
	if err != nil {
		return err
	}
	driftJob, err := maintenance.NewStockDriftJob(logg, query, maintenanceMetrics)
	if err != nil {
		return err
	}
	retentionJob, err := maintenance.NewOutboxRetentionJob(maintenance.OutboxRetentionParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outbox.NewRepository(dbClient.DB()),
		Retention:        cfg.Maintenance.OutboxRetention,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return err
	}

	service, err := maintenance.NewService(maintenance.ServiceParams{
		Logger:   logg,
		Locker:   locker,
		Metrics:  maintenanceMetrics,
		Jobs:     []maintenance.Job{driftJob, retentionJob},
		Interval: cfg.Maintenance.Interval,
		LockID:   cfg.App.Env,
	})
	if err != nil {
		return err
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer(logg))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Get("/health/live", controllers.HealthLive(cfg))
	mux.Get("/health/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{"db": dbClient}))
	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logg.Info(ctx, "starting maintenance worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return service.Run(groupCtx)
	})
	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func newStockQuery(dbClient *db.Client, logg *logger.Logger) (stockquery.Service, error) {
	conn := dbClient.DB()
	ledger, err := stockledger.NewService(stockledger.NewRepository(conn), logg, nil)
	if err != nil {
		return nil, err
	}
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	productRepo := product.NewRepository(conn)
	products, err := product.NewService(product.ServiceParams{
		Repo:   productRepo,
		Ledger: ledger,
		Outbox: emitter,
		DB:     dbClient,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}
	purchasings, err := purchasing.NewService(purchasing.ServiceParams{
		Repo:   purchasing.NewRepository(conn),
		Stock:  product.NewStockStore(productRepo),
		Ledger: ledger,
		Outbox: emitter,
		DB:     dbClient,
		Logger: logg,
	})
	if err != nil {
		return nil, err
	}
	return stockquery.NewService(stockquery.NewRepository(conn), productRepo, products, purchasings, ledger)
}
