package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/syncstock/syncstock-backend/internal/inventory/events"
	"github.com/syncstock/syncstock-backend/internal/inventory/filters"
	"github.com/syncstock/syncstock-backend/internal/inventory/handler"
	"github.com/syncstock/syncstock-backend/internal/inventory/jobs"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/internal/inventory/memstore"
	"github.com/syncstock/syncstock-backend/internal/inventory/repository"
	"github.com/syncstock/syncstock-backend/internal/inventory/service"
	"github.com/syncstock/syncstock-backend/pkg/config"
	"github.com/syncstock/syncstock-backend/pkg/database"
	"github.com/syncstock/syncstock-backend/pkg/httputil"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/messaging"
	"github.com/syncstock/syncstock-backend/pkg/metrics"
)

const serviceName = "ledger-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Str("storage", cfg.Storage.Driver).Msg("starting Ledger Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := metrics.NewRegistry()
	ledgerMetrics := metrics.NewLedger(registry.Registerer())

	// Balance store
	var (
		store    service.Store
		dbHealth func(context.Context) map[string]string
	)
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		log.Warn().Msg("using in-memory balance store; data is lost on restart")
		store = memstore.New(memstore.WithLockTimeout(cfg.Ledger.LockTimeout))
		dbHealth = func(context.Context) map[string]string { return map[string]string{"status": "memory"} }
	default:
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := repository.Migrate(ctx, db.DB); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		pg := repository.NewStore(db, log, repository.WithLockTimeout(cfg.Ledger.LockTimeout))
		store, dbHealth = pg, pg.Health
	}

	engineOpts := []service.EngineOption{
		service.WithMetrics(ledgerMetrics),
		service.WithRetryMaxElapsed(cfg.Ledger.RetryMaxElapsed),
	}

	// Commit events are optional
	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQ.URL != "" {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err := events.NewCommitPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create commit publisher")
		}
		engineOpts = append(engineOpts, service.WithPublisher(publisher))
	} else {
		log.Warn().Msg("RabbitMQ URL not set; commit events are not published")
	}

	// Redis backs the filter choices cache and the reconcile queue
	var (
		cache    *filters.Cache
		enqueuer jobs.Enqueuer
		rdb      *redis.Client
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		cache = filters.NewCache(rdb, cfg.Redis.CacheTTL, log)
		engineOpts = append(engineOpts, service.WithChoicesInvalidator(cache))

		client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		enqueuer = client
	} else {
		log.Warn().Msg("Redis address not set; filter choices are uncached and reconciliation runs inline")
	}

	coordinator := ledger.NewCoordinator(log,
		ledger.WithMetrics(ledgerMetrics),
		ledger.WithImplicitRekey(cfg.Ledger.AllowImplicitRekey))
	engine := service.NewEngine(store, coordinator, log, engineOpts...)

	var choices service.ChoicesCache
	if cache != nil {
		choices = cache
	}
	handlers := &handler.Handlers{
		Locations:      handler.NewLocationHandler(service.NewLocationService(engine), log),
		Categories:     handler.NewCategoryHandler(service.NewCategoryService(engine), log),
		Receipts:       handler.NewReceiptHandler(service.NewReceiptService(engine), log),
		Adjustments:    handler.NewAdjustmentHandler(service.NewAdjustmentService(engine), log),
		Transfers:      handler.NewTransferHandler(service.NewTransferService(engine), log),
		Balances:       handler.NewBalanceHandler(service.NewBalanceService(engine, choices), log),
		Reconcile:      handler.NewReconcileHandler(enqueuer, service.NewReconcileService(engine), log),
		WriteRateLimit: cfg.Server.WriteRateLimit,
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.SecureHeaders(cfg.Server.IsProductionLike()))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Tenant-ID", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(registry.Middleware)
	r.Use(httputil.TenantMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": dbHealth(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		if rdb != nil {
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				status["redis"] = map[string]string{"status": "unhealthy", "error": err.Error()}
			} else {
				status["redis"] = map[string]string{"status": "healthy"}
			}
		}
		httputil.JSON(w, http.StatusOK, status)
	})
	r.Method(http.MethodGet, "/metrics", registry.Handler())

	r.Route("/api/v1/inventory", handlers.Routes)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
