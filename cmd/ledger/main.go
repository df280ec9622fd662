package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/marco-erp/ledger/internal/app"
	"github.com/marco-erp/ledger/internal/audit"
	"github.com/marco-erp/ledger/internal/inventory"
	"github.com/marco-erp/ledger/internal/ledger/accounts"
	"github.com/marco-erp/ledger/internal/ledger/journals"
	"github.com/marco-erp/ledger/internal/ledger/periods"
	"github.com/marco-erp/ledger/internal/ledger/sequence"
	"github.com/marco-erp/ledger/internal/observability"
	"github.com/marco-erp/ledger/internal/platform/cache"
	"github.com/marco-erp/ledger/internal/platform/db"
	"github.com/marco-erp/ledger/internal/shared"
	"github.com/marco-erp/ledger/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	idempotency := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()
	validate := validator.New()

	queueClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	movementEvents := jobs.NewMovementEvents(queueClient, logger)
	auditRecorder := jobs.NewAuditEvents(queueClient, shared.NewAuditLogger(pool), logger)

	periodsRepo := periods.NewRepository(pool)
	gateCache := periods.NewCache(redisClient, cfg.GateCacheTTL)
	periodsService := periods.NewService(periodsRepo, gateCache, auditRecorder)

	accountsService := accounts.NewService(accounts.NewRepository(pool), auditRecorder)

	allocator := sequence.NewAllocator(sequence.NewRepository(pool))
	journalsService := journals.NewService(journals.NewRepository(pool), allocator, periodsService, auditRecorder)

	inventoryService := inventory.NewService(
		inventory.NewRepository(pool),
		auditRecorder,
		idempotency,
		movementEvents,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock},
	)

	auditService := audit.NewService(audit.NewRepository(pool))

	journalsHandler := journals.NewHandler(logger, journalsService, validate)
	journalsHandler.ObservePostings(metrics.ObservePosting)

	inventoryHandler := inventory.NewHandler(logger, inventoryService, validate)
	inventoryHandler.ObserveMovements(metrics.ObserveMovement)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		AccountsHandler:  accounts.NewHandler(logger, accountsService, validate),
		JournalsHandler:  journalsHandler,
		PeriodsHandler:   periods.NewHandler(logger, periodsService, periodsRepo, validate),
		InventoryHandler: inventoryHandler,
		AuditHandler:     audit.NewHandler(logger, auditService),
		Health: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("ledger listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("ledger stopped")
}
