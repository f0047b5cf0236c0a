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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/hiddengems/hiddengems-backend/api/routes"
	"github.com/hiddengems/hiddengems-backend/internal/admin"
	"github.com/hiddengems/hiddengems-backend/internal/auth"
	"github.com/hiddengems/hiddengems-backend/internal/favorites"
	"github.com/hiddengems/hiddengems-backend/internal/gems"
	"github.com/hiddengems/hiddengems-backend/internal/media"
	"github.com/hiddengems/hiddengems-backend/internal/notifications"
	"github.com/hiddengems/hiddengems-backend/internal/payments"
	"github.com/hiddengems/hiddengems-backend/internal/ratings"
	"github.com/hiddengems/hiddengems-backend/internal/realtime"
	"github.com/hiddengems/hiddengems-backend/internal/traffic"
	"github.com/hiddengems/hiddengems-backend/internal/users"
	mpesawebhook "github.com/hiddengems/hiddengems-backend/internal/webhooks/mpesa"
	"github.com/hiddengems/hiddengems-backend/pkg/auth/session"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/metrics"
	"github.com/hiddengems/hiddengems-backend/pkg/migrate"
	"github.com/hiddengems/hiddengems-backend/pkg/mpesa"
	"github.com/hiddengems/hiddengems-backend/pkg/oauth"
	"github.com/hiddengems/hiddengems-backend/pkg/outbox"
	"github.com/hiddengems/hiddengems-backend/pkg/redis"
	"github.com/hiddengems/hiddengems-backend/pkg/storage/cloudinary"
)

const (
	shutdownTimeout    = 15 * time.Second
	readHeaderTimeout  = 10 * time.Second
	mpesaCallbackScope = "mpesa-callback"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	exitOnErr(ctx, logg, "load config", err)
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	exitOnErr(ctx, logg, "create session manager", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	hub := realtime.NewHub(logg)
	broadcaster, err := realtime.NewRedisBroadcaster(redisClient, cfg.Realtime.Channel)
	exitOnErr(ctx, logg, "create realtime broadcaster", err)
	bridge, err := realtime.NewBridge(hub, redisClient, cfg.Realtime.Channel, logg)
	exitOnErr(ctx, logg, "create realtime bridge", err)

	params, err := buildParams(cfg, logg, dbClient, redisClient, sessionManager, broadcaster, registry)
	exitOnErr(ctx, logg, "wire services", err)
	params.Hub = hub
	params.Upgrader = realtime.NewUpgrader(cfg.Realtime.AllowedOrigins)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	go hub.Run(runCtx)
	go func() {
		if err := bridge.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(runCtx, "realtime bridge stopped", err)
		}
	}()

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(runCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down")
	}
}

// buildParams constructs repositories and services for the HTTP surface.
func buildParams(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	sessions *session.Manager,
	broadcaster realtime.Broadcaster,
	registry *prometheus.Registry,
) (routes.Params, error) {
	gdb := dbClient.DB()
	userRepo := users.NewRepository(gdb)
	gemRepo := gems.NewRepository(gdb)
	emitter := outbox.NewService(outbox.NewStore(gdb), logg)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessions,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return routes.Params{}, fmt.Errorf("auth service: %w", err)
	}

	assets, err := cloudinary.NewClient(cfg.Cloudinary, logg)
	if err != nil {
		return routes.Params{}, fmt.Errorf("cloudinary: %w", err)
	}

	gemService, err := gems.NewService(gems.ServiceParams{
		Repo:   gemRepo,
		DB:     dbClient,
		Outbox: emitter,
		Users: func(tx *gorm.DB) gems.OwnerPromoter {
			return users.NewRepository(tx)
		},
		Assets:   assets,
		Listings: cfg.Listings,
		Logger:   logg,
	})
	if err != nil {
		return routes.Params{}, fmt.Errorf("gem service: %w", err)
	}

	mediaService, err := media.NewService(media.NewRepository(gdb), gemRepo, dbClient, assets, cfg.Cloudinary, cfg.Listings, logg)
	if err != nil {
		return routes.Params{}, fmt.Errorf("media service: %w", err)
	}

	gateway, err := mpesa.NewClient(cfg.Mpesa)
	if err != nil {
		return routes.Params{}, fmt.Errorf("mpesa client: %w", err)
	}
	guard, err := mpesawebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL, mpesaCallbackScope)
	if err != nil {
		return routes.Params{}, fmt.Errorf("mpesa callback guard: %w", err)
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:       payments.NewRepository(gdb),
		GemRepo:    gemRepo,
		DB:         dbClient,
		Gateway:    gateway,
		Outbox:     emitter,
		Guard:      guard,
		Metrics:    metrics.NewPaymentMetrics(registry),
		TermMonths: cfg.Listings.TermMonths,
		Logger:     logg,
	})
	if err != nil {
		return routes.Params{}, fmt.Errorf("payment service: %w", err)
	}

	ratingService, err := ratings.NewService(ratings.ServiceParams{
		Repo:     ratings.NewRepository(gdb),
		GemRepo:  gemRepo,
		DB:       dbClient,
		Outbox:   emitter,
		Listings: cfg.Listings,
		Logger:   logg,
	})
	if err != nil {
		return routes.Params{}, fmt.Errorf("rating service: %w", err)
	}

	favoriteService, err := favorites.NewService(favorites.ServiceParams{
		Repo:     favorites.NewRepository(gdb),
		GemRepo:  gemRepo,
		DB:       dbClient,
		Outbox:   emitter,
		Listings: cfg.Listings,
	})
	if err != nil {
		return routes.Params{}, fmt.Errorf("favorite service: %w", err)
	}

	trafficService, err := traffic.NewService(traffic.ServiceParams{
		Store:    traffic.NewRepository(gdb),
		Users:    userRepo,
		Gems:     gemRepo,
		CacheTTL: cfg.Traffic.CacheTTL,
	})
	if err != nil {
		return routes.Params{}, fmt.Errorf("traffic service: %w", err)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(gdb), broadcaster, logg)
	if err != nil {
		return routes.Params{}, fmt.Errorf("notification service: %w", err)
	}

	adminService, err := admin.NewService(admin.ServiceParams{
		Gate:     admin.NewGate(userRepo),
		Users:    userRepo,
		Gems:     gemService,
		Payments: paymentService,
		DB:       dbClient,
		Outbox:   emitter,
		Logger:   logg,
	})
	if err != nil {
		return routes.Params{}, fmt.Errorf("admin service: %w", err)
	}

	params := routes.Params{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		Limits:        redisClient,
		Idem:          redisClient,
		Sessions:      sessions,
		Viewers:       users.NewViewerResolver(userRepo),
		Metrics:       metrics.NewHTTPMetrics(registry),
		Gatherer:      registry,
		Auth:          authService,
		Gems:          gemService,
		Media:         mediaService,
		Payments:      paymentService,
		Ratings:       ratingService,
		Favorites:     favoriteService,
		Traffic:       trafficService,
		Notifications: notificationService,
		Admin:         adminService,
	}
	// Google sign-in stays off until both client credentials are set.
	if cfg.OAuth.Enabled() {
		google, err := oauth.NewGoogle(cfg.OAuth)
		if err != nil {
			return routes.Params{}, fmt.Errorf("google oauth: %w", err)
		}
		params.OAuth = google
	}
	return params, nil
}

func exitOnErr(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("failed to %s", step), err)
	os.Exit(1)
}
