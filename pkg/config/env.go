package config

const (
	EnvPrefix = "HIDDENGEMS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv                 = "HIDDENGEMS_APP_ENV"
	EnvPort                   = "HIDDENGEMS_APP_PORT"
	EnvDBDSN                  = "HIDDENGEMS_DB_DSN"
	EnvDBHost                 = "HIDDENGEMS_DB_HOST"
	EnvDBUser                 = "HIDDENGEMS_DB_USER"
	EnvDBName                 = "HIDDENGEMS_DB_NAME"
	EnvDBPassword             = "HIDDENGEMS_DB_PASSWORD"
	EnvRedisURL               = "HIDDENGEMS_REDIS_URL"
	EnvJWTSecret              = "HIDDENGEMS_JWT_SECRET"
	EnvJWTIssuer              = "HIDDENGEMS_JWT_ISSUER"
	EnvJWTExpMins             = "HIDDENGEMS_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "HIDDENGEMS_REFRESH_TOKEN_TTL_MINUTES"
	EnvGCPProjectID           = "HIDDENGEMS_GCP_PROJECT_ID"
	EnvPubSubDomainTopic      = "HIDDENGEMS_PUBSUB_DOMAIN_TOPIC"
	EnvMpesaEnv               = "HIDDENGEMS_MPESA_ENV"
	EnvFreeTrialUntil         = "HIDDENGEMS_LISTINGS_FREE_TRIAL_UNTIL"
	EnvTrafficCacheTTL        = "HIDDENGEMS_TRAFFIC_CACHE_TTL"
)

// dsnPartEnvVars must all be set when no DSN is provided.
var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
