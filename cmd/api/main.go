package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/pos-inventory-backend/api/routes"
	product "github.com/angelmondragon/pos-inventory-backend/internal/products"
	"github.com/angelmondragon/pos-inventory-backend/internal/purchasing"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockledger"
	"github.com/angelmondragon/pos-inventory-backend/internal/stockquery"
	"github.com/angelmondragon/pos-inventory-backend/pkg/config"
	"github.com/angelmondragon/pos-inventory-backend/pkg/db"
	"github.com/angelmondragon/pos-inventory-backend/pkg/env"
	"github.com/angelmondragon/pos-inventory-backend/pkg/lock"
	"github.com/angelmondragon/pos-inventory-backend/pkg/logger"
	"github.com/angelmondragon/pos-inventory-backend/pkg/metrics"
	"github.com/angelmondragon/pos-inventory-backend/pkg/migrate"
	"github.com/angelmondragon/pos-inventory-backend/pkg/outbox"
	"github.com/angelmondragon/pos-inventory-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stockMetrics := metrics.NewStockMetrics(reg)

	deps := routes.Dependencies{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Gatherer: reg,
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
		redisLocker, err = lock.NewRedisLocker(redisClient, cfg.Lock.TTL, logg)
		if err != nil {
			return err
		}
		locker = redisLocker
		deps.Redis = redisClient
		deps.Idempotency = redisClient
	} else {
		logg.Warn(ctx, "redis not configured; document locks and idempotency disabled")
	}

	conn := dbClient.DB()
	ledger, err := stockledger.NewService(stockledger.NewRepository(conn), logg, stockMetrics)
	if err != nil {
		return err
	}
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	productRepo := product.NewRepository(conn)

	products, err := product.NewService(product.ServiceParams{
		Repo:    productRepo,
		Ledger:  ledger,
		Outbox:  emitter,
		DB:      dbClient,
		Logger:  logg,
		Metrics: stockMetrics,
	})
	if err != nil {
		return err
	}

	purchasings, err := purchasing.NewService(purchasing.ServiceParams{
		Repo:    purchasing.NewRepository(conn),
		Stock:   product.NewStockStore(productRepo),
		Ledger:  ledger,
		Outbox:  emitter,
		DB:      dbClient,
		Locker:  locker,
		Logger:  logg,
		Metrics: stockMetrics,
	})
	if err != nil {
		return err
	}

	query, err := stockquery.NewService(stockquery.NewRepository(conn), productRepo, products, purchasings, ledger)
	if err != nil {
		return err
	}

	deps.Products = products
	deps.Ledger = ledger
	deps.Purchasings = purchasings
	deps.StockQuery = query
	deps.DeadLetters = outbox.NewDLQRepository(conn)

	addr := ":" + serverPort(cfg)
	server := &http.Server{
		Addr:         addr,
		Handler:      routes.NewRouter(deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logg.Info(logCtx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func serverPort(cfg *config.Config) string {
	return env.Get("PORT", cfg.App.Port)
}
