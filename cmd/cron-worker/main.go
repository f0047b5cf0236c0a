package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hiddengems/hiddengems-backend/internal/cron"
	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/internal/notifications"
	"github.com/hiddengems/hiddengems-backend/internal/payments"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/metrics"
	"github.com/hiddengems/hiddengems-backend/pkg/migrate"
	"github.com/hiddengems/hiddengems-backend/pkg/mpesa"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	exitOnErr(ctx, logg, "load config", err)
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOnErr(ctx, logg, "bootstrap database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	exitOnErr(ctx, logg, "run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	exitOnErr(ctx, logg, "bootstrap redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient)
	exitOnErr(ctx, logg, "build cron jobs", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), cfg.Cron.LockTTL)
	exitOnErr(ctx, logg, "create cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	exitOnErr(ctx, logg, "create cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(runCtx, "starting cron worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

// buildRegistry wires every scheduled job against the shared database.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	outboxStore := outbox.NewStore(dbClient.DB())
	emitter := outbox.NewService(outboxStore, logg)
	gemRepo := gems.NewRepository(dbClient.DB())

	gateway, err := mpesa.NewClient(cfg.Mpesa)
	if err != nil {
		return nil, fmt.Errorf("mpesa client: %w", err)
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:       payments.NewRepository(dbClient.DB()),
		GemRepo:    gemRepo,
		DB:         dbClient,
		Gateway:    gateway,
		Outbox:     emitter,
		Metrics:    metrics.NewPaymentMetrics(prometheus.DefaultRegisterer),
		TermMonths: cfg.Listings.TermMonths,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payment service: %w", err)
	}

	expiringSoon, err := cron.NewGemExpiringSoonJob(cron.GemExpiringSoonJobParams{
		Logger: logg,
		DB:     dbClient,
		Gems:   gemRepo,
		Outbox: emitter,
		Days:   cfg.Listings.ExpiringSoonDays,
	})
	if err != nil {
		return nil, err
	}
	termExpiry, err := cron.NewGemTermExpiryJob(cron.GemTermExpiryJobParams{
		Logger: logg,
		DB:     dbClient,
		Gems:   gemRepo,
		Outbox: emitter,
	})
	if err != nil {
		return nil, err
	}
	cleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:        logg,
		Notifications: notifications.NewRepository(dbClient.DB()),
		Retention:     cfg.Cron.NotificationRetention,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:    logg,
		Outbox:    outboxStore,
		DLQ:       outboxStore,
		Retention: cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, err
	}
	reconcile, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:   logg,
		Payments: paymentService,
		Grace:    cfg.Cron.PaymentPendingGrace,
		Timeout:  cfg.Cron.PaymentPendingTimeout,
	})
	if err != nil {
		return nil, err
	}

	// Reconcile runs before expiry so a late payment extends the term first.
	return cron.NewRegistry(reconcile, expiringSoon, termExpiry, cleanup, retention), nil
}

func exitOnErr(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("failed to %s", step), err)
	os.Exit(1)
}
