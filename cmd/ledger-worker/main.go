package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/syncstock/syncstock-backend/internal/inventory/consumers"
	"github.com/syncstock/syncstock-backend/internal/inventory/events"
	"github.com/syncstock/syncstock-backend/internal/inventory/filters"
	"github.com/syncstock/syncstock-backend/internal/inventory/jobs"
	"github.com/syncstock/syncstock-backend/internal/inventory/ledger"
	"github.com/syncstock/syncstock-backend/internal/inventory/repository"
	"github.com/syncstock/syncstock-backend/internal/inventory/service"
	"github.com/syncstock/syncstock-backend/pkg/config"
	"github.com/syncstock/syncstock-backend/pkg/database"
	"github.com/syncstock/syncstock-backend/pkg/httputil"
	"github.com/syncstock/syncstock-backend/pkg/logger"
	"github.com/syncstock/syncstock-backend/pkg/messaging"
	"github.com/syncstock/syncstock-backend/pkg/metrics"
)

const serviceName = "ledger-worker"

func main() {
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Ledger Worker")

	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Fatal().Msg("the worker reconciles the shared database; the memory store is not supported")
	}
	if cfg.Redis.Addr == "" {
		log.Fatal().Msg("SYNCSTOCK_REDIS_ADDR is required by the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metrics.NewRegistry()
	ledgerMetrics := metrics.NewLedger(registry.Registerer())

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	store := repository.NewStore(db, log, repository.WithLockTimeout(cfg.Ledger.LockTimeout))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	client := jobs.NewClient(redisOpts)
	defer client.Close()

	engineOpts := []service.EngineOption{
		service.WithMetrics(ledgerMetrics),
		service.WithRetryMaxElapsed(cfg.Ledger.RetryMaxElapsed),
		service.WithChoicesInvalidator(filters.NewCache(rdb, cfg.Redis.CacheTTL, log)),
	}

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

		watcher, err := consumers.NewDriftWatcher(rmq, client, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create drift watcher")
		}
		if err := watcher.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start drift watcher")
		}
	}

	coordinator := ledger.NewCoordinator(log,
		ledger.WithMetrics(ledgerMetrics),
		ledger.WithImplicitRekey(cfg.Ledger.AllowImplicitRekey))
	engine := service.NewEngine(store, coordinator, log, engineOpts...)

	job := jobs.NewReconcileJob(service.NewReconcileService(engine), client, log)

	var cron []jobs.CronRegistration
	if cfg.Worker.ReconcileCron != "" && len(cfg.Worker.ReconcileTenants) > 0 {
		sweep, err := jobs.NewSweepTask(cfg.Worker.ReconcileTenants, false)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build reconcile sweep")
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.Worker.ReconcileCron, Task: sweep})
		log.Info().
			Str("cron", cfg.Worker.ReconcileCron).
			Int("tenants", len(cfg.Worker.ReconcileTenants)).
			Msg("scheduled reconciliation sweep")
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Concurrency: cfg.Worker.Concurrency,
		Logger:      log,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcile, Handler: job.Handle},
			{Type: jobs.TaskReconcileSweep, Handler: job.HandleSweep},
		},
		Cron: cron,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker")
	}

	r := chi.NewRouter()
	r.Use(httputil.Recoverer(log))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, status)
	})
	r.Method(http.MethodGet, "/metrics", registry.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("health endpoint listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("worker stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
