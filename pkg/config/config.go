package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "PLANMINT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PLANMINT_DB_DSN"
	EnvDBHost = "PLANMINT_DB_HOST"
	EnvDBUser = "PLANMINT_DB_USER"
	EnvDBName = "PLANMINT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Razorpay     RazorpayConfig
	Billing      BillingConfig
	Gemini       GeminiConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PLANMINT_APP_ENV" required:"true"`
	Port         string `envconfig:"PLANMINT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PLANMINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PLANMINT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PLANMINT_DB_DSN"`
	Driver string `envconfig:"PLANMINT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PLANMINT_DB_HOST"`
	LegacyPort     int    `envconfig:"PLANMINT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PLANMINT_DB_USER"`
	LegacyPassword string `envconfig:"PLANMINT_DB_PASSWORD"`
	LegacyName     string `envconfig:"PLANMINT_DB_NAME"`
	LegacySSLMode  string `envconfig:"PLANMINT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PLANMINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PLANMINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PLANMINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PLANMINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PLANMINT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PLANMINT_REDIS_ADDR"`
	Password     string        `envconfig:"PLANMINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"PLANMINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PLANMINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PLANMINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PLANMINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PLANMINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PLANMINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the tokens minted by the external identity provider.
// The API only validates them; it never issues tokens itself.
type JWTConfig struct {
	Secret string `envconfig:"PLANMINT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"PLANMINT_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PLANMINT_AUTO_MIGRATE" default:"false"`
	SeedCatalog bool `envconfig:"PLANMINT_SEED_CATALOG" default:"false"`
}

type RazorpayConfig struct {
	KeyID         string `envconfig:"PLANMINT_RAZORPAY_KEY_ID"`
	KeySecret     string `envconfig:"PLANMINT_RAZORPAY_KEY_SECRET"`
	WebhookSecret string `envconfig:"PLANMINT_RAZORPAY_WEBHOOK_SECRET"`
	Env           string `envconfig:"PLANMINT_RAZORPAY_ENV" default:"test"`
}

// Environment returns the normalized Razorpay environment (test/live).
func (r RazorpayConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(r.Env))
	if env == "" {
		return "test"
	}
	return env
}

type BillingConfig struct {
	// GrantWindowDays is how long a one-shot payment entitles the buyer.
	// Razorpay orders carry no recurrence, so the grant window is policy here
	// rather than provider data.
	GrantWindowDays int `envconfig:"PLANMINT_BILLING_GRANT_WINDOW_DAYS" default:"30"`

	WebhookEventTTL time.Duration `envconfig:"PLANMINT_BILLING_WEBHOOK_EVENT_TTL" default:"168h"`
}

// GrantWindow returns the entitlement window as a duration.
func (b BillingConfig) GrantWindow() time.Duration {
	days := b.GrantWindowDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// RateLimitConfig bounds the abuse-prone surfaces: AI generation burns paid
// model calls, and the webhook endpoint is unauthenticated.
type RateLimitConfig struct {
	AIWindow    time.Duration `envconfig:"PLANMINT_RATE_LIMIT_AI_WINDOW" default:"1m"`
	AIIPLimit   int           `envconfig:"PLANMINT_RATE_LIMIT_AI_IP_LIMIT" default:"30"`
	AIUserLimit int           `envconfig:"PLANMINT_RATE_LIMIT_AI_USER_LIMIT" default:"10"`

	WebhookWindow  time.Duration `envconfig:"PLANMINT_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
	WebhookIPLimit int           `envconfig:"PLANMINT_RATE_LIMIT_WEBHOOK_IP_LIMIT" default:"120"`
}

type GeminiConfig struct {
	APIKey string `envconfig:"PLANMINT_GEMINI_API_KEY"`
	Model  string `envconfig:"PLANMINT_GEMINI_MODEL" default:"gemini-2.5-flash"`
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
