package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/transfer-engine/internal/clock"
	"github.com/josh-kwaku/transfer-engine/internal/config"
	"github.com/josh-kwaku/transfer-engine/internal/events"
	"github.com/josh-kwaku/transfer-engine/internal/handler"
	"github.com/josh-kwaku/transfer-engine/internal/lock"
	"github.com/josh-kwaku/transfer-engine/internal/logging"
	"github.com/josh-kwaku/transfer-engine/internal/middleware"
	"github.com/josh-kwaku/transfer-engine/internal/repository"
	"github.com/josh-kwaku/transfer-engine/internal/service/account"
	"github.com/josh-kwaku/transfer-engine/internal/service/schedule"
	"github.com/josh-kwaku/transfer-engine/internal/service/transfer"
	"github.com/josh-kwaku/transfer-engine/internal/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("transfer-engine", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := repository.NewStore(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)
	clk := clock.System{}

	checks := map[string]handler.Pinger{"database": store}

	var locker lock.Locker
	var redisClient *redis.Client
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.LockPrefix, cfg.LockTTL, cfg.LockWait, logger)
		checks["redis"] = redisPinger{redisClient}
	default:
		locker = lock.NewKeyedMutex(cfg.LockWait)
	}
	slog.Info("account lock backend selected", "backend", cfg.LockBackend)

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	settler := settlement.NewClient(cfg.SettlementURL, cfg.SettlementTimeout, cfg.SettlementRPS, cfg.SettlementBurst)

	transferSvc := transfer.NewService(store, settler, locker, clk, publisher, cfg.LimitDefaults())
	accountSvc := account.NewService(store, clk)
	scheduleSvc := schedule.NewService(store, clk)

	driver := schedule.NewDriver(store, transferSvc, clk, logger, cfg.SweepBatchSize, cfg.SweepConcurrency)
	jobs := schedule.NewJobs(driver, transferSvc, clk, logger, cfg.RetryMinAge, cfg.RetryBatchSize).
		WithPurger(idempotencyRepo)
	scheduler := schedule.NewScheduler(jobs, logger, schedule.Schedules{
		Sweep: cfg.SweepSchedule,
		Retry: cfg.RetrySchedule,
		Purge: cfg.IdempotencyPurgeSchedule,
	})
	if err := scheduler.Start(); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	healthHandler := handler.NewHealthHandler(checks)
	accountHandler := handler.NewAccountHandler(accountSvc, transferSvc)
	transferHandler := handler.NewTransferHandler(transferSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.HandleFunc("POST /api/v1/accounts", accountHandler.Open)
	mux.HandleFunc("GET /api/v1/accounts/{id}", accountHandler.Get)
	mux.HandleFunc("GET /api/v1/accounts/{id}/transactions", accountHandler.Transactions)
	mux.HandleFunc("GET /api/v1/accounts/{id}/transfers", accountHandler.Transfers)
	mux.HandleFunc("GET /api/v1/accounts/{id}/limits", accountHandler.Limits)
	mux.HandleFunc("GET /api/v1/accounts/{id}/schedules", scheduleHandler.ListForAccount)

	mux.HandleFunc("POST /api/v1/transfers", transferHandler.Create)
	mux.HandleFunc("GET /api/v1/transfers/{id}", transferHandler.Get)
	mux.HandleFunc("GET /api/v1/transfers/{id}/events", transferHandler.Events)
	mux.HandleFunc("POST /api/v1/transfers/{id}/cancel", transferHandler.Cancel)
	mux.HandleFunc("POST /api/v1/transfers/{id}/retry", transferHandler.Retry)

	mux.HandleFunc("POST /api/v1/schedules", scheduleHandler.Create)
	mux.HandleFunc("GET /api/v1/schedules/{id}", scheduleHandler.Get)
	mux.HandleFunc("POST /api/v1/schedules/{id}/pause", scheduleHandler.Pause)
	mux.HandleFunc("POST /api/v1/schedules/{id}/resume", scheduleHandler.Resume)
	mux.HandleFunc("POST /api/v1/schedules/{id}/cancel", scheduleHandler.Cancel)

	root := middleware.Chain(mux,
		middleware.Tracing,
		middleware.Logging,
		middleware.Recovery,
		middleware.Idempotency(idempotencyRepo, clk, cfg.IdempotencyTTL),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second + cfg.SettlementTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	select {
	case <-scheduler.Stop().Done():
		slog.Info("scheduler stopped")
	case <-ctx.Done():
		slog.Warn("scheduler jobs still running at shutdown deadline")
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}
	return repository.Connect(context.Background(), cfg.DatabaseURL, pool, 30, time.Second)
}

// newPublisher connects to RabbitMQ when configured. A broker that cannot be
// reached at startup degrades to dropping events rather than failing boot.
func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if cfg.RabbitMQURL == "" {
		slog.Info("RABBITMQ_URL not set, transfer events will not be published")
		return events.NopPublisher{Logger: logger}
	}

	p, err := events.NewProducer(cfg.RabbitMQURL, cfg.EventsExchange, logger)
	if err != nil {
		slog.Error("failed to connect to rabbitmq, transfer events will not be published", "error", err)
		return events.NopPublisher{Logger: logger}
	}
	slog.Info("publishing transfer events", "exchange", cfg.EventsExchange)
	return p
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
