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

	"github.com/hiddengems/hiddengems-backend/internal/relay"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/metrics"
	"github.com/hiddengems/hiddengems-backend/pkg/migrate"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox/registry"
	"github.com/hiddengems/hiddengems-backend/pkg/pubsub"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	exitOnErr(ctx, logg, "load config", err)
	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOnErr(ctx, logg, "bootstrap database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	exitOnErr(ctx, logg, "run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	exitOnErr(ctx, logg, "bootstrap pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()
	exitOnErr(ctx, logg, "find domain topic", pubsubClient.CheckTopic(ctx))

	router, err := registry.NewRouter(cfg.PubSub)
	exitOnErr(ctx, logg, "build event router", err)

	sender, err := relay.NewPubSubSender(pubsubClient)
	exitOnErr(ctx, logg, "build pubsub sender", err)
	defer sender.Stop()

	store := outbox.NewStore(dbClient.DB())
	r, err := relay.New(relay.Params{
		Settings: relay.SettingsFrom(cfg.Outbox),
		Logger:   logg,
		DB:       dbClient,
		Outbox:   store,
		DLQ:      store,
		Resolver: router,
		Sender:   sender,
		Metrics:  metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	exitOnErr(ctx, logg, "create outbox relay", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "starting outbox publisher")

	if err := r.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "outbox publisher shutting down gracefully")
}

func exitOnErr(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("failed to %s", step), err)
	os.Exit(1)
}
