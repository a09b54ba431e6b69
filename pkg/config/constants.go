package config

const EnvPrefix = "MANDI"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

const (
	EnvAppEnv       = "MANDI_APP_ENV"
	EnvPort         = "MANDI_APP_PORT"
	EnvDBDSN        = "MANDI_DB_DSN"
	EnvDBDriver     = "MANDI_DB_DRIVER"
	EnvDBHost       = "MANDI_DB_HOST"
	EnvDBUser       = "MANDI_DB_USER"
	EnvDBName       = "MANDI_DB_NAME"
	EnvRedisURL     = "MANDI_REDIS_URL"
	EnvJWTSecret    = "MANDI_JWT_SECRET"
	EnvJWTIssuer    = "MANDI_JWT_ISSUER"
	EnvLockBackend  = "MANDI_LOCK_BACKEND"
	EnvGCPProjectID = "MANDI_GCP_PROJECT_ID"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
