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
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	OpenAI        OpenAIConfig
	Scan          ScanConfig
	Storage       StorageConfig
	GCP           GCPConfig
	GCS           GCSConfig
	S3            S3Config
	Analytics     AnalyticsConfig
	Logo          LogoConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SNAPSPEND_APP_ENV" required:"true"`
	Port         string `envconfig:"SNAPSPEND_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SNAPSPEND_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SNAPSPEND_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SNAPSPEND_LOG_FORMAT" default:"json"`
	CORSOrigins  string `envconfig:"SNAPSPEND_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

type DBConfig struct {
	DSN    string `envconfig:"SNAPSPEND_DB_DSN"`
	Driver string `envconfig:"SNAPSPEND_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SNAPSPEND_DB_HOST"`
	LegacyPort     int    `envconfig:"SNAPSPEND_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SNAPSPEND_DB_USER"`
	LegacyPassword string `envconfig:"SNAPSPEND_DB_PASSWORD"`
	LegacyName     string `envconfig:"SNAPSPEND_DB_NAME"`
	LegacySSLMode  string `envconfig:"SNAPSPEND_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SNAPSPEND_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SNAPSPEND_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SNAPSPEND_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SNAPSPEND_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"SNAPSPEND_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SNAPSPEND_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SNAPSPEND_REDIS_ADDR"`
	Password     string        `envconfig:"SNAPSPEND_REDIS_PASSWORD"`
	DB           int           `envconfig:"SNAPSPEND_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SNAPSPEND_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SNAPSPEND_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SNAPSPEND_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SNAPSPEND_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SNAPSPEND_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"SNAPSPEND_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"SNAPSPEND_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"SNAPSPEND_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"SNAPSPEND_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SNAPSPEND_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SNAPSPEND_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SNAPSPEND_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SNAPSPEND_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SNAPSPEND_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"SNAPSPEND_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"SNAPSPEND_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"SNAPSPEND_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"SNAPSPEND_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"SNAPSPEND_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"SNAPSPEND_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
	GuestWindow        time.Duration `envconfig:"SNAPSPEND_AUTH_RATE_LIMIT_GUEST_WINDOW" default:"10m"`
	GuestIPLimit       int           `envconfig:"SNAPSPEND_AUTH_RATE_LIMIT_GUEST_IP_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SNAPSPEND_AUTO_MIGRATE" default:"false"`
	GuestMode   bool `envconfig:"SNAPSPEND_FEATURE_GUEST_MODE" default:"true"`
}

type OpenAIConfig struct {
	APIKey  string        `envconfig:"SNAPSPEND_OPENAI_API_KEY"`
	BaseURL string        `envconfig:"SNAPSPEND_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	Model   string        `envconfig:"SNAPSPEND_OPENAI_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"SNAPSPEND_OPENAI_TIMEOUT" default:"60s"`
}

type ScanConfig struct {
	MaxImageMB      int           `envconfig:"SNAPSPEND_SCAN_MAX_IMAGE_MB" default:"10"`
	UserLimit       int           `envconfig:"SNAPSPEND_SCAN_USER_LIMIT" default:"30"`
	UserWindow      time.Duration `envconfig:"SNAPSPEND_SCAN_USER_WINDOW" default:"1h"`
	DefaultCurrency string        `envconfig:"SNAPSPEND_SCAN_DEFAULT_CURRENCY" default:"USD"`
}

// MaxImageBytes returns the scan upload limit in bytes.
func (s ScanConfig) MaxImageBytes() int64 {
	if s.MaxImageMB <= 0 {
		return 10 << 20
	}
	return int64(s.MaxImageMB) << 20
}

type StorageConfig struct {
	Driver            string        `envconfig:"SNAPSPEND_STORAGE_DRIVER" default:"gcs"`
	UploadURLExpiry   time.Duration `envconfig:"SNAPSPEND_STORAGE_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"SNAPSPEND_STORAGE_DOWNLOAD_URL_EXPIRY" default:"24h"`
	MaxUploadMB       int           `envconfig:"SNAPSPEND_STORAGE_MAX_UPLOAD_MB" default:"20"`
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case StorageDriverGCS, StorageDriverS3, StorageDriverNone:
		return nil
	}
	return fmt.Errorf("unsupported %s %q", EnvStorageDriver, s.Driver)
}

// NormalizedDriver returns the lower-cased driver name.
func (s StorageConfig) NormalizedDriver() string {
	return strings.ToLower(strings.TrimSpace(s.Driver))
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SNAPSPEND_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SNAPSPEND_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SNAPSPEND_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"SNAPSPEND_GCS_BUCKET_NAME"`
}

type S3Config struct {
	Bucket          string `envconfig:"SNAPSPEND_S3_BUCKET"`
	Region          string `envconfig:"SNAPSPEND_S3_REGION" default:"us-east-1"`
	Endpoint        string `envconfig:"SNAPSPEND_S3_ENDPOINT"`
	AccessKeyID     string `envconfig:"SNAPSPEND_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"SNAPSPEND_S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `envconfig:"SNAPSPEND_S3_USE_PATH_STYLE" default:"false"`
}

type AnalyticsConfig struct {
	CacheTTL    time.Duration `envconfig:"SNAPSPEND_ANALYTICS_CACHE_TTL" default:"10m"`
	TopStores   int           `envconfig:"SNAPSPEND_ANALYTICS_TOP_STORES" default:"5"`
	MaxReceipts int           `envconfig:"SNAPSPEND_ANALYTICS_MAX_RECEIPTS" default:"5000"`
}

type LogoConfig struct {
	BaseURL string `envconfig:"SNAPSPEND_LOGO_BASE_URL" default:"https://img.logo.dev"`
	Token   string `envconfig:"SNAPSPEND_LOGO_TOKEN"`
	Size    int    `envconfig:"SNAPSPEND_LOGO_SIZE" default:"128"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
