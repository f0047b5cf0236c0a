package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Mpesa         MpesaConfig
	Cloudinary    CloudinaryConfig
	OAuth         OAuthConfig
	Listings      ListingsConfig
	Cron          CronConfig
	Traffic       TrafficConfig
	Realtime      RealtimeConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HIDDENGEMS_APP_ENV" required:"true"`
	Port         string `envconfig:"HIDDENGEMS_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"HIDDENGEMS_APP_BASE_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"HIDDENGEMS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HIDDENGEMS_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"HIDDENGEMS_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HIDDENGEMS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HIDDENGEMS_DB_DSN"`
	Driver string `envconfig:"HIDDENGEMS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"HIDDENGEMS_DB_HOST"`
	Port     int    `envconfig:"HIDDENGEMS_DB_PORT" default:"5432"`
	User     string `envconfig:"HIDDENGEMS_DB_USER"`
	Password string `envconfig:"HIDDENGEMS_DB_PASSWORD"`
	Name     string `envconfig:"HIDDENGEMS_DB_NAME"`
	SSLMode  string `envconfig:"HIDDENGEMS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HIDDENGEMS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HIDDENGEMS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HIDDENGEMS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HIDDENGEMS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HIDDENGEMS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HIDDENGEMS_REDIS_ADDR"`
	Password     string        `envconfig:"HIDDENGEMS_REDIS_PASSWORD"`
	DB           int           `envconfig:"HIDDENGEMS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HIDDENGEMS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HIDDENGEMS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HIDDENGEMS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HIDDENGEMS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HIDDENGEMS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"HIDDENGEMS_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"HIDDENGEMS_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"HIDDENGEMS_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"HIDDENGEMS_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"HIDDENGEMS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"HIDDENGEMS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"HIDDENGEMS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"HIDDENGEMS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"HIDDENGEMS_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"HIDDENGEMS_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"HIDDENGEMS_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"HIDDENGEMS_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"HIDDENGEMS_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"HIDDENGEMS_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"HIDDENGEMS_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"HIDDENGEMS_AUTO_MIGRATE" default:"false"`
	Analytics   bool `envconfig:"HIDDENGEMS_FEATURE_ANALYTICS" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"HIDDENGEMS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HIDDENGEMS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"HIDDENGEMS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HIDDENGEMS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"HIDDENGEMS_PUBSUB_DOMAIN_TOPIC" default:"hg-domain-events"`
	NotificationSubscription string `envconfig:"HIDDENGEMS_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"hg-notifications"`
	AnalyticsSubscription    string `envconfig:"HIDDENGEMS_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"hg-analytics"`
}

type BigQueryConfig struct {
	Dataset                string `envconfig:"HIDDENGEMS_BIGQUERY_DATASET" default:"hidden_gems"`
	MarketplaceEventsTable string `envconfig:"HIDDENGEMS_BIGQUERY_MARKETPLACE_TABLE" default:"marketplace_events"`
	BatchSize              int    `envconfig:"HIDDENGEMS_BIGQUERY_BATCH_SIZE" default:"1"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"HIDDENGEMS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"HIDDENGEMS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"HIDDENGEMS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"HIDDENGEMS_OUTBOX_RETENTION" default:"720h"`
}

// MpesaConfig holds the Daraja credentials used for STK push payments.
type MpesaConfig struct {
	Environment    string        `envconfig:"HIDDENGEMS_MPESA_ENV" default:"sandbox"`
	ConsumerKey    string        `envconfig:"HIDDENGEMS_MPESA_CONSUMER_KEY"`
	ConsumerSecret string        `envconfig:"HIDDENGEMS_MPESA_CONSUMER_SECRET"`
	ShortCode      string        `envconfig:"HIDDENGEMS_MPESA_SHORTCODE" default:"174379"`
	PassKey        string        `envconfig:"HIDDENGEMS_MPESA_PASSKEY"`
	CallbackURL    string        `envconfig:"HIDDENGEMS_MPESA_CALLBACK_URL"`
	Timeout        time.Duration `envconfig:"HIDDENGEMS_MPESA_TIMEOUT" default:"30s"`
}

// BaseURL returns the Daraja host for the configured environment.
func (m MpesaConfig) BaseURL() string {
	if strings.EqualFold(strings.TrimSpace(m.Environment), "production") {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

type CloudinaryConfig struct {
	URL         string `envconfig:"HIDDENGEMS_CLOUDINARY_URL"`
	Folder      string `envconfig:"HIDDENGEMS_CLOUDINARY_FOLDER" default:"hidden-gems"`
	MaxUploadMB int    `envconfig:"HIDDENGEMS_MAX_UPLOAD_MB" default:"25"`
}

type OAuthConfig struct {
	GoogleClientID     string `envconfig:"HIDDENGEMS_OAUTH_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"HIDDENGEMS_OAUTH_GOOGLE_CLIENT_SECRET"`
	RedirectURL        string `envconfig:"HIDDENGEMS_OAUTH_REDIRECT_URL"`
}

// Enabled reports whether the OAuth code exchange can run.
func (o OAuthConfig) Enabled() bool {
	return strings.TrimSpace(o.GoogleClientID) != "" && strings.TrimSpace(o.GoogleClientSecret) != ""
}

type ListingsConfig struct {
	FreeTrialUntil   time.Time `envconfig:"HIDDENGEMS_LISTINGS_FREE_TRIAL_UNTIL"`
	TermMonths       int       `envconfig:"HIDDENGEMS_LISTINGS_TERM_MONTHS" default:"6"`
	ExpiringSoonDays int       `envconfig:"HIDDENGEMS_LISTINGS_EXPIRING_SOON_DAYS" default:"7"`
}

// InFreeTrial reports whether the promotional window is still open at now.
func (l ListingsConfig) InFreeTrial(now time.Time) bool {
	return !l.FreeTrialUntil.IsZero() && now.Before(l.FreeTrialUntil)
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"HIDDENGEMS_CRON_INTERVAL" default:"1h"`
	LockTTL               time.Duration `envconfig:"HIDDENGEMS_CRON_LOCK_TTL" default:"10m"`
	NotificationRetention time.Duration `envconfig:"HIDDENGEMS_CRON_NOTIFICATION_RETENTION" default:"2160h"`
	PaymentPendingGrace   time.Duration `envconfig:"HIDDENGEMS_CRON_PAYMENT_PENDING_GRACE" default:"2m"`
	PaymentPendingTimeout time.Duration `envconfig:"HIDDENGEMS_CRON_PAYMENT_PENDING_TIMEOUT" default:"24h"`
}

type TrafficConfig struct {
	CacheTTL  time.Duration `envconfig:"HIDDENGEMS_TRAFFIC_CACHE_TTL" default:"30s"`
	RatePerIP float64       `envconfig:"HIDDENGEMS_TRAFFIC_RATE_PER_SECOND" default:"2"`
	Burst     int           `envconfig:"HIDDENGEMS_TRAFFIC_BURST" default:"10"`
}

type RealtimeConfig struct {
	Channel        string   `envconfig:"HIDDENGEMS_REALTIME_CHANNEL" default:"realtime:notifications"`
	AllowedOrigins []string `envconfig:"HIDDENGEMS_REALTIME_ALLOWED_ORIGINS"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dsnPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
