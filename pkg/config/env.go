package config

// EnvPrefix is handed to envconfig; every field declares its full key explicitly.
const EnvPrefix = "COMANDA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "COMANDA_APP_ENV"
	EnvPort     = "COMANDA_APP_PORT"
	EnvLogLevel = "COMANDA_LOG_LEVEL"

	EnvDBDSN  = "COMANDA_DB_DSN"
	EnvDBHost = "COMANDA_DB_HOST"
	EnvDBUser = "COMANDA_DB_USER"
	EnvDBName = "COMANDA_DB_NAME"

	EnvUseSQLite          = "COMANDA_USE_SQLITE"
	EnvAllowNegativeStock = "COMANDA_ALLOW_NEGATIVE_STOCK"
	EnvStrictQuota        = "COMANDA_STRICT_QUOTA"

	EnvRedisURL = "COMANDA_REDIS_URL"

	EnvOrdersDefaultPrepMinutes = "COMANDA_ORDERS_DEFAULT_PREP_MINUTES"
	EnvFieldEncryptionKey       = "COMANDA_FIELD_ENCRYPTION_KEY"
	EnvGCPProjectID             = "COMANDA_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic        = "COMANDA_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
