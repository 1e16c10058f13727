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
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKLEDGER_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKLEDGER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKLEDGER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOCKLEDGER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOCKLEDGER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKLEDGER_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKLEDGER_DB_DSN"`
	Driver string `envconfig:"STOCKLEDGER_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOCKLEDGER_DB_HOST"`
	Port     int    `envconfig:"STOCKLEDGER_DB_PORT" default:"5432"`
	User     string `envconfig:"STOCKLEDGER_DB_USER"`
	Password string `envconfig:"STOCKLEDGER_DB_PASSWORD"`
	Name     string `envconfig:"STOCKLEDGER_DB_NAME"`
	SSLMode  string `envconfig:"STOCKLEDGER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKLEDGER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKLEDGER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKLEDGER_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// LockTimeout bounds how long a transaction waits on a stock balance row lock.
	LockTimeout time.Duration `envconfig:"STOCKLEDGER_DB_LOCK_TIMEOUT" default:"5s"`
	// SlowQuery is the duration past which a statement is logged at warn.
	SlowQuery time.Duration `envconfig:"STOCKLEDGER_DB_SLOW_QUERY" default:"250ms"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKLEDGER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKLEDGER_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKLEDGER_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKLEDGER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKLEDGER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKLEDGER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKLEDGER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKLEDGER_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"STOCKLEDGER_REDIS_KEY_PREFIX" default:"sl"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOCKLEDGER_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOCKLEDGER_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOCKLEDGER_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TokenTTL returns the access token lifetime configured in minutes.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKLEDGER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKLEDGER_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"STOCKLEDGER_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	// InFlightTTL bounds a claim whose handler never finished.
	InFlightTTL time.Duration `envconfig:"STOCKLEDGER_EVENTING_IN_FLIGHT_TTL" default:"5m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOCKLEDGER_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"STOCKLEDGER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOCKLEDGER_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	StockTopic            string `envconfig:"STOCKLEDGER_PUBSUB_STOCK_TOPIC" required:"true"`
	OrdersTopic           string `envconfig:"STOCKLEDGER_PUBSUB_ORDERS_TOPIC" required:"true"`
	DocumentsTopic        string `envconfig:"STOCKLEDGER_PUBSUB_DOCUMENTS_TOPIC" default:"stock-document-events"`
	AnalyticsTopic        string `envconfig:"STOCKLEDGER_PUBSUB_ANALYTICS_TOPIC"`
	OrdersSubscription    string `envconfig:"STOCKLEDGER_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	ReceiptsSubscription  string `envconfig:"STOCKLEDGER_PUBSUB_RECEIPTS_SUBSCRIPTION" required:"true"`
	AnalyticsSubscription string `envconfig:"STOCKLEDGER_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"STOCKLEDGER_BIGQUERY_DATASET" default:"stockledger"`
	StockLevelsTable string `envconfig:"STOCKLEDGER_BIGQUERY_STOCK_LEVELS_TABLE" default:"stock_levels"`
	Location         string `envconfig:"STOCKLEDGER_BIGQUERY_LOCATION" default:"US"`
	CreateMissing    bool   `envconfig:"STOCKLEDGER_BIGQUERY_CREATE_MISSING" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOCKLEDGER_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOCKLEDGER_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOCKLEDGER_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOCKLEDGER_OUTBOX_RETENTION_DAYS" default:"30"`

	DeadLetterRetentionDays int `envconfig:"STOCKLEDGER_OUTBOX_DEAD_LETTER_RETENTION_DAYS" default:"90"`
	PurgeBatchSize          int `envconfig:"STOCKLEDGER_OUTBOX_PURGE_BATCH_SIZE" default:"1000"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"STOCKLEDGER_CRON_INTERVAL" default:"1h"`
	ReconcilePageSize int           `envconfig:"STOCKLEDGER_CRON_RECONCILE_PAGE_SIZE" default:"100"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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
