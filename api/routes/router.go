package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hiddengems/hiddengems-backend/api/controllers"
	"github.com/hiddengems/hiddengems-backend/api/middleware"
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
	"github.com/hiddengems/hiddengems-backend/pkg/auth/session"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	"github.com/hiddengems/hiddengems-backend/pkg/logger"
	"github.com/hiddengems/hiddengems-backend/pkg/metrics"
	"github.com/hiddengems/hiddengems-backend/pkg/oauth"
	"github.com/hiddengems/hiddengems-backend/pkg/redis"
)

// RateLimitStore backs the Redis fixed-window auth limits.
type RateLimitStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Params wires the HTTP surface. Nil Redis-backed stores disable the
// middleware that needs them.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    redis.Pinger
	Limits   RateLimitStore
	Idem     redis.IdempotencyStore
	Sessions session.AccessSessionChecker
	Viewers  middleware.ViewerResolver
	Metrics  *metrics.HTTPMetrics
	Gatherer prometheus.Gatherer

	Auth          auth.Service
	OAuth         oauth.Exchanger
	Gems          gems.Service
	Media         media.Service
	Payments      payments.Service
	Ratings       ratings.Service
	Favorites     favorites.Service
	Traffic       traffic.Service
	Notifications notifications.Service
	Admin         admin.Service
	Hub           *realtime.Hub
	Upgrader      *websocket.Upgrader
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.AccessLog(logg),
		middleware.Metrics(p.Metrics),
		middleware.CORS(cfg.Realtime.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	trafficLimiter := middleware.NewIPRateLimiter(cfg.Traffic.RatePerIP, cfg.Traffic.Burst)

	requireAuth := middleware.Auth(cfg.JWT, p.Sessions, p.Viewers, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, p.Sessions, p.Viewers, logg)
	idem := middleware.Idempotency(p.Idem, middleware.IdempotencyOptional, logg)
	idemRequired := middleware.Idempotency(p.Idem, middleware.IdempotencyRequired, logg)

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google", controllers.AuthOAuthStart(cfg, p.OAuth, logg))
		r.Get("/callback", controllers.AuthCallback(cfg, p.OAuth, p.Auth, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, p.Limits, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, p.Limits, logg)).Post("/register", controllers.AuthRegister(p.Auth, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(p.Auth, logg))
	})

	r.Route("/api", func(r chi.Router) {
		// Gateway webhook: no auth, always 200.
		r.Post("/payments/mpesa/callback", controllers.PaymentCallback(p.Payments, logg))

		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/gems", controllers.GemList(p.Gems, logg))
			r.Get("/gems/nearby", controllers.GemNearby(p.Gems, logg))
			r.Get("/gems/{gemId}", controllers.GemGet(p.Gems, logg))
			r.Get("/ratings/{gemId}", controllers.RatingList(p.Ratings, logg))
			r.With(trafficLimiter.Handler(logg)).Post("/traffic", controllers.TrafficRecord(p.Traffic, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.With(idem).Post("/gems", controllers.GemCreate(p.Gems, logg))
			r.Patch("/gems/{gemId}", controllers.GemUpdate(p.Gems, logg))
			r.Delete("/gems/{gemId}", controllers.GemDelete(p.Gems, logg))
			r.With(idem).Post("/gems/{gemId}/media", controllers.MediaUpload(p.Media, cfg.Cloudinary.MaxUploadMB, logg))
			r.Patch("/gems/{gemId}/media/{mediaId}", controllers.MediaUpdate(p.Media, logg))
			r.Delete("/gems/{gemId}/media/{mediaId}", controllers.MediaDelete(p.Media, logg))

			r.With(idemRequired).Post("/payments/initiate", controllers.PaymentInitiate(p.Payments, logg))
			r.Get("/payments", controllers.PaymentListMine(p.Payments, logg))
			r.Get("/payments/{paymentId}/status", controllers.PaymentStatus(p.Payments, logg))

			r.With(idem).Post("/ratings/{gemId}", controllers.RatingCreate(p.Ratings, logg))
			r.Put("/ratings/{gemId}", controllers.RatingUpdate(p.Ratings, logg))
			r.Delete("/ratings/{gemId}", controllers.RatingDelete(p.Ratings, logg))

			r.Get("/favorites", controllers.FavoriteList(p.Favorites, logg))
			r.Post("/favorites/{gemId}", controllers.FavoriteAdd(p.Favorites, logg))
			r.Delete("/favorites/{gemId}", controllers.FavoriteRemove(p.Favorites, logg))

			r.Get("/traffic", controllers.TrafficStats(p.Traffic, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(p.Notifications, logg))
				r.Get("/unread-count", controllers.UnreadNotificationCount(p.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
				r.Delete("/{notificationId}", controllers.DeleteNotification(p.Notifications, logg))
			})
		})

		r.With(middleware.QueryToken(), requireAuth).Get("/realtime", controllers.RealtimeConnect(p.Hub, p.Upgrader, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
			r.Get("/users", controllers.AdminListUsers(p.Admin, logg))
			r.Patch("/users/{userId}/role", controllers.AdminSetUserRole(p.Admin, logg))
			r.Get("/payments", controllers.AdminListPayments(p.Admin, logg))
			r.Get("/payments/stats", controllers.AdminPaymentStats(p.Admin, logg))
			r.With(idem).Post("/gems/{gemId}/approve", controllers.AdminApproveGem(p.Admin, logg))
			r.With(idem).Post("/gems/{gemId}/reject", controllers.AdminRejectGem(p.Admin, logg))
			r.Patch("/gems/{gemId}/tier", controllers.AdminSetGemTier(p.Admin, logg))
			r.With(idem).Post("/announcements", controllers.AdminAnnounce(p.Admin, logg))
		})
	})

	return r
}
