package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/application/services"
	"github.com/servilink/escrow-engine/internal/config"
	"github.com/servilink/escrow-engine/internal/domain"
	"github.com/servilink/escrow-engine/internal/infrastructure/booking"
	"github.com/servilink/escrow-engine/internal/infrastructure/cache"
	"github.com/servilink/escrow-engine/internal/infrastructure/gateway"
	"github.com/servilink/escrow-engine/internal/infrastructure/notify"
	"github.com/servilink/escrow-engine/internal/infrastructure/persistence/postgres"
	"github.com/servilink/escrow-engine/internal/interfaces/rest/handlers"
	"github.com/servilink/escrow-engine/internal/interfaces/rest/middleware"
	"github.com/servilink/escrow-engine/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting escrow engine",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	gatewayClient := gateway.NewGatewayClient(cfg.Gateway)
	retryGatewayClient := gateway.NewRetryGatewayClient(gatewayClient, cfg.Retry)

	bookingClient := booking.NewBookingClient(cfg.Booking)

	var notifier application.Notifier
	if cfg.Notify.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.Notify, logger)
		if err != nil {
			logger.Warn("notification broker unavailable, continuing without", "error", err)
			notifier = notify.NewNopNotifier(logger)
		} else {
			defer amqpNotifier.Close()
			notifier = amqpNotifier
		}
	} else {
		notifier = notify.NewNopNotifier(logger)
	}

	var statsCache application.Cache
	if cfg.Cache.Addr != "" {
		redisClient, err := cache.Connect(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			logger.Warn("redis unavailable, stats served uncached", "error", err)
		} else {
			defer redisClient.Close()
			statsCache = cache.NewRedisCache(redisClient)
		}
	}

	feePolicy := domain.DefaultFeePolicy()
	if cfg.Fees.CommissionRate > 0 {
		feePolicy.CommissionRate = cfg.Fees.CommissionRate
	}
	if cfg.Fees.ProcessingRate > 0 {
		feePolicy.ProcessingRate = cfg.Fees.ProcessingRate
	}
	if cfg.Fees.ProcessingFlatCents > 0 {
		feePolicy.ProcessingFlatCents = cfg.Fees.ProcessingFlatCents
	}

	intentService := services.NewIntentService(store, retryGatewayClient, bookingClient, feePolicy, cfg.Escrow.HoldWindow, logger)
	reconcilerService := services.NewReconcilerService(store, bookingClient, notifier, logger)
	escrowService := services.NewEscrowService(store, retryGatewayClient, bookingClient, logger)
	refundService := services.NewRefundService(store, retryGatewayClient, bookingClient, notifier, logger)
	queryService := services.NewQueryService(store, statsCache, cfg.Cache.StatsTTL, logger)

	h := handlers.NewHandlers(
		intentService,
		escrowService,
		refundService,
		reconcilerService,
		queryService,
		logger,
	)

	router := http.Handler(handlers.NewRouter(h))

	handler := middleware.Recovery(logger)(router)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Timeout(cfg.Server.ReadTimeout)(handler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	releaseWorker := worker.NewReleaseWorker(
		store,
		escrowService,
		cfg.Escrow.ReleaseSchedule,
		cfg.Escrow.BatchSize,
		logger,
	)

	confirmWorker := worker.NewConfirmWorker(
		store,
		retryGatewayClient,
		reconcilerService,
		cfg.Escrow.ConfirmInterval,
		cfg.Escrow.ConfirmAfter,
		cfg.Escrow.BatchSize,
		logger,
	)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	if err := releaseWorker.Start(workerCtx); err != nil {
		logger.Error("failed to start release sweep", "error", err)
		os.Exit(1)
	}
	go confirmWorker.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	logger.Info("server stopped")
}
