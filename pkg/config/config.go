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
	JWT          JWTConfig
	HTTP         HTTPConfig
	FeatureFlags FeatureFlagsConfig
	Locks        LocksConfig
	GroupOrders  GroupOrdersConfig
	Cron         CronConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Locks.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MANDI_APP_ENV" required:"true"`
	Port         string `envconfig:"MANDI_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MANDI_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MANDI_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"MANDI_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"MANDI_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MANDI_DB_DSN"`
	Driver string `envconfig:"MANDI_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MANDI_DB_HOST"`
	Port     int    `envconfig:"MANDI_DB_PORT" default:"5432"`
	User     string `envconfig:"MANDI_DB_USER"`
	Password string `envconfig:"MANDI_DB_PASSWORD"`
	Name     string `envconfig:"MANDI_DB_NAME"`
	SSLMode  string `envconfig:"MANDI_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MANDI_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MANDI_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MANDI_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MANDI_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"MANDI_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the configured driver is the embedded SQLite one.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"MANDI_REDIS_URL"`
	Address      string        `envconfig:"MANDI_REDIS_ADDR"`
	Password     string        `envconfig:"MANDI_REDIS_PASSWORD"`
	DB           int           `envconfig:"MANDI_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MANDI_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MANDI_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MANDI_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MANDI_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MANDI_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"MANDI_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MANDI_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MANDI_JWT_EXPIRATION_MINUTES" default:"60"`
}

// HTTPConfig tunes the API surface.
type HTTPConfig struct {
	CORSOrigins     []string      `envconfig:"MANDI_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimit       int           `envconfig:"MANDI_RATE_LIMIT_PER_WINDOW" default:"120"`
	RateLimitWindow time.Duration `envconfig:"MANDI_RATE_LIMIT_WINDOW" default:"1m"`
	ReadTimeout     time.Duration `envconfig:"MANDI_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"MANDI_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"MANDI_HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"MANDI_AUTO_MIGRATE" default:"false"`
	RequireIdemKey bool `envconfig:"MANDI_REQUIRE_IDEMPOTENCY_KEY" default:"true"`
}

// LocksConfig selects how per-entity write locks are held.
type LocksConfig struct {
	Backend string        `envconfig:"MANDI_LOCK_BACKEND" default:"local"`
	TTL     time.Duration `envconfig:"MANDI_LOCK_TTL" default:"15s"`
	Wait    time.Duration `envconfig:"MANDI_LOCK_WAIT" default:"5s"`
}

func (l LocksConfig) validate() error {
	switch strings.ToLower(l.Backend) {
	case LockBackendLocal, LockBackendRedis:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvLockBackend, LockBackendLocal, LockBackendRedis)
	}
}

type GroupOrdersConfig struct {
	ExpirySweepBatch int `envconfig:"MANDI_GROUP_ORDER_EXPIRY_BATCH" default:"200"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"MANDI_CRON_INTERVAL" default:"1m"`
	LockTTL               time.Duration `envconfig:"MANDI_CRON_LOCK_TTL" default:"5m"`
	OutboxRetentionDays   int           `envconfig:"MANDI_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxRetentionBatch  int           `envconfig:"MANDI_OUTBOX_RETENTION_BATCH" default:"500"`
	DeadLetterRetention   int           `envconfig:"MANDI_DEAD_LETTER_RETENTION_DAYS" default:"90"`
	SettlementScanEnabled bool          `envconfig:"MANDI_SETTLEMENT_SCAN_ENABLED" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MANDI_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MANDI_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MANDI_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic      string `envconfig:"MANDI_PUBSUB_ORDERS_TOPIC" default:"mandi-order-events"`
	GroupOrdersTopic string `envconfig:"MANDI_PUBSUB_GROUP_ORDERS_TOPIC" default:"mandi-group-order-events"`
	CatalogTopic     string `envconfig:"MANDI_PUBSUB_CATALOG_TOPIC" default:"mandi-catalog-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MANDI_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MANDI_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MANDI_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// PollInterval returns the publisher poll interval.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:mandi.db?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
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
