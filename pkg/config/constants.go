package config

const (
	EnvPrefix = "STOCKLEDGER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:stockledger.db?cache=shared&_busy_timeout=5000"
)

const (
	EnvAppEnv   = "STOCKLEDGER_APP_ENV"
	EnvPort     = "STOCKLEDGER_APP_PORT"
	EnvLogLevel = "STOCKLEDGER_LOG_LEVEL"

	EnvDBDSN         = "STOCKLEDGER_DB_DSN"
	EnvDBDriver      = "STOCKLEDGER_DB_DRIVER"
	EnvDBHost        = "STOCKLEDGER_DB_HOST"
	EnvDBPort        = "STOCKLEDGER_DB_PORT"
	EnvDBUser        = "STOCKLEDGER_DB_USER"
	EnvDBPassword    = "STOCKLEDGER_DB_PASSWORD"
	EnvDBName        = "STOCKLEDGER_DB_NAME"
	EnvDBLockTimeout = "STOCKLEDGER_DB_LOCK_TIMEOUT"

	EnvRedisURL = "STOCKLEDGER_REDIS_URL"

	EnvJWTSecret  = "STOCKLEDGER_JWT_SECRET"
	EnvJWTIssuer  = "STOCKLEDGER_JWT_ISSUER"
	EnvJWTExpMins = "STOCKLEDGER_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite   = "STOCKLEDGER_USE_SQLITE"
	EnvAutoMigrate = "STOCKLEDGER_AUTO_MIGRATE"

	EnvGCPProjectID = "STOCKLEDGER_GCP_PROJECT_ID"

	EnvPubSubStockTopic     = "STOCKLEDGER_PUBSUB_STOCK_TOPIC"
	EnvPubSubOrdersTopic    = "STOCKLEDGER_PUBSUB_ORDERS_TOPIC"
	EnvPubSubDocumentsTopic = "STOCKLEDGER_PUBSUB_DOCUMENTS_TOPIC"
	EnvPubSubAnalyticsTopic = "STOCKLEDGER_PUBSUB_ANALYTICS_TOPIC"
	EnvPubSubOrdersSub      = "STOCKLEDGER_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubReceiptsSub    = "STOCKLEDGER_PUBSUB_RECEIPTS_SUBSCRIPTION"
	EnvPubSubAnalyticsSub   = "STOCKLEDGER_PUBSUB_ANALYTICS_SUBSCRIPTION"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
