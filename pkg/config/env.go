package config

const EnvPrefix = "SNAPSPEND"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageDriverGCS  = "gcs"
	StorageDriverS3   = "s3"
	StorageDriverNone = "none"
)

const (
	EnvAppEnv                 = "SNAPSPEND_APP_ENV"
	EnvPort                   = "SNAPSPEND_APP_PORT"
	EnvDBDSN                  = "SNAPSPEND_DB_DSN"
	EnvDBHost                 = "SNAPSPEND_DB_HOST"
	EnvDBUser                 = "SNAPSPEND_DB_USER"
	EnvDBName                 = "SNAPSPEND_DB_NAME"
	EnvDBPassword             = "SNAPSPEND_DB_PASSWORD"
	EnvRedisURL               = "SNAPSPEND_REDIS_URL"
	EnvJWTSecret              = "SNAPSPEND_JWT_SECRET"
	EnvJWTIssuer              = "SNAPSPEND_JWT_ISSUER"
	EnvJWTExpMins             = "SNAPSPEND_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "SNAPSPEND_REFRESH_TOKEN_TTL_MINUTES"
	EnvStorageDriver          = "SNAPSPEND_STORAGE_DRIVER"
	EnvGCSBucket              = "SNAPSPEND_GCS_BUCKET_NAME"
	EnvS3Bucket               = "SNAPSPEND_S3_BUCKET"
	EnvOpenAIKey              = "SNAPSPEND_OPENAI_API_KEY"
	EnvAnalyticsCacheTTL      = "SNAPSPEND_ANALYTICS_CACHE_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
