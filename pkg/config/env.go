package config

const (
	EnvPrefix = "POS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "POS_APP_ENV"
	EnvPort      = "POS_APP_PORT"
	EnvDBDSN     = "POS_DB_DSN"
	EnvDBHost    = "POS_DB_HOST"
	EnvDBUser    = "POS_DB_USER"
	EnvDBName    = "POS_DB_NAME"
	EnvRedisURL  = "POS_REDIS_URL"
	EnvUseSQLite = "POS_USE_SQLITE"

	DefaultSQLiteDSN = "file:pos_inventory.db?cache=shared"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
