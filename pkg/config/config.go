package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Orders       OrdersConfig
	Loyalty      LoyaltyConfig
	Crypto       CryptoConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"COMANDA_APP_ENV" required:"true"`
	Port         string `envconfig:"COMANDA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"COMANDA_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"COMANDA_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"COMANDA_LOG_WARN_STACK" default:"false"`
	// MetricsAddr enables a /metrics listener on background workers when set.
	MetricsAddr string `envconfig:"COMANDA_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COMANDA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"COMANDA_DB_DSN"`

	LegacyHost     string `envconfig:"COMANDA_DB_HOST"`
	LegacyPort     int    `envconfig:"COMANDA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COMANDA_DB_USER"`
	LegacyPassword string `envconfig:"COMANDA_DB_PASSWORD"`
	LegacyName     string `envconfig:"COMANDA_DB_NAME"`
	LegacySSLMode  string `envconfig:"COMANDA_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"COMANDA_SQLITE_PATH" default:"comanda.db"`

	MaxOpenConns    int           `envconfig:"COMANDA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COMANDA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COMANDA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COMANDA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery is the duration above which a statement is logged as a warning; 0 disables.
	SlowQuery time.Duration `envconfig:"COMANDA_DB_SLOW_QUERY" default:"200ms"`

	// UseSQLite is copied from the feature flags during Load.
	UseSQLite bool `ignored:"true"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COMANDA_REDIS_URL"`
	Address      string        `envconfig:"COMANDA_REDIS_ADDR"`
	Password     string        `envconfig:"COMANDA_REDIS_PASSWORD"`
	DB           int           `envconfig:"COMANDA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COMANDA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COMANDA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COMANDA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COMANDA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COMANDA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite          bool `envconfig:"COMANDA_USE_SQLITE" default:"false"`
	AutoMigrate        bool `envconfig:"COMANDA_AUTO_MIGRATE" default:"false"`
	AllowNegativeStock bool `envconfig:"COMANDA_ALLOW_NEGATIVE_STOCK" default:"true"`
	StrictQuota        bool `envconfig:"COMANDA_STRICT_QUOTA" default:"true"`
}

type OrdersConfig struct {
	DefaultPreparationMinutes int `envconfig:"COMANDA_ORDERS_DEFAULT_PREP_MINUTES" default:"30"`
}

// DefaultPreparationTime returns the fallback preparation budget used when a
// tenant has not configured its own.
func (o OrdersConfig) DefaultPreparationTime() time.Duration {
	if o.DefaultPreparationMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(o.DefaultPreparationMinutes) * time.Minute
}

type LoyaltyConfig struct {
	DefaultPointsPerCurrency string `envconfig:"COMANDA_LOYALTY_POINTS_PER_CURRENCY" default:"1"`
}

type CryptoConfig struct {
	// FieldKey is a base64 encoded 32 byte key used for customer PII columns.
	FieldKey string `envconfig:"COMANDA_FIELD_ENCRYPTION_KEY"`
	// FieldKeySalt is used when FieldKey is a passphrase rather than raw key material.
	FieldKeySalt string `envconfig:"COMANDA_FIELD_ENCRYPTION_SALT" default:"comanda-field-key"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"COMANDA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"COMANDA_PUBSUB_ORDERS_TOPIC" default:"comanda-order-events"`
	InventoryTopic    string `envconfig:"COMANDA_PUBSUB_INVENTORY_TOPIC" default:"comanda-inventory-events"`
	LoyaltyTopic      string `envconfig:"COMANDA_PUBSUB_LOYALTY_TOPIC" default:"comanda-loyalty-events"`
	NotificationTopic string `envconfig:"COMANDA_PUBSUB_NOTIFICATION_TOPIC" default:"comanda-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"COMANDA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"COMANDA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"COMANDA_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"COMANDA_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"COMANDA_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"COMANDA_CRON_LOCK_TTL" default:"5m"`
	// OutboxMaintenanceEvery spaces retention sweeps; late-order detection runs every cycle.
	OutboxMaintenanceEvery time.Duration `envconfig:"COMANDA_CRON_OUTBOX_MAINTENANCE_EVERY" default:"1h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	db.UseSQLite = useSQLite
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
