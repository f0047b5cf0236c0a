package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hiddengems/hiddengems-backend/internal/analytics"
	"github.com/hiddengems/hiddengems-backend/internal/analytics/worker"
	"github.com/hiddengems/hiddengems-backend/internal/analytics/writer"
	"github.com/hiddengems/hiddengems-backend/pkg/bigquery"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/idempotency"
	"github.com/hiddengems/hiddengems-backend/pkg/pubsub"
	"github.com/hiddengems/hiddengems-backend/pkg/redis"
)

// The analytics worker mirrors every domain event into the BigQuery
// marketplace_events table. It exits immediately when the feature flag is off.
func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "analytics-worker"}).Error(ctx, "load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "analytics-worker"

	logg := logger.New(logger.Options{
		ServiceName: cfg.Service.Kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	if !cfg.FeatureFlags.Analytics {
		logg.Info(ctx, "analytics disabled by feature flag, exiting")
		return
	}

	must := func(step string, err error) {
		if err != nil {
			logg.Error(logg.WithField(ctx, "step", step), "analytics worker bootstrap failed", err)
			os.Exit(1)
		}
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	must("redis", err)
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	must("pubsub", err)
	defer closeQuietly(ctx, logg, "pubsub", pubsubClient.Close)
	must("analytics subscription", pubsubClient.CheckSubscription(ctx, cfg.PubSub.AnalyticsSubscription))

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	must("bigquery", err)
	defer closeQuietly(ctx, logg, "bigquery", bqClient.Close)
	must("marketplace table", bqClient.EnsureTable(ctx, bqClient.MarketplaceTable(), analytics.Schema(), analytics.PartitionField))

	guard, err := idempotency.NewGuard(redisClient, worker.ConsumerName, cfg.Eventing.OutboxIdempotencyTTL)
	must("idempotency guard", err)

	rows, err := writer.New(bqClient, writer.Config{
		Table:     bqClient.MarketplaceTable(),
		BatchSize: cfg.BigQuery.BatchSize,
	})
	must("bigquery writer", err)

	service, err := worker.NewService(pubsubClient.AnalyticsSubscription(), rows, guard, logg)
	must("analytics service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})
	logg.Info(runCtx, "analytics worker ready")

	runErr := service.Run(runCtx)
	// Buffered rows are flushed on a fresh context; runCtx is already done.
	if err := rows.Flush(context.Background()); err != nil {
		logg.Error(ctx, "flush buffered analytics rows", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(runCtx, "analytics worker stopped unexpectedly", runErr)
		os.Exit(1)
	}
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
