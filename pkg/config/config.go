package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix  = ""
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	Terminal TerminalConfig
	Local    LocalStoreConfig
	Remote   RemoteStoreConfig
	Sync     SyncConfig
	Sales    SalesConfig
	Session  SessionConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TILLPOINT_APP_ENV" default:"dev"`
	Port         string `envconfig:"TILLPOINT_APP_PORT" default:"7070"`
	LogLevel     string `envconfig:"TILLPOINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TILLPOINT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// TerminalConfig identifies this register within the wider retail system.
// StoreCode and TerminalCode prefix every invoice id minted on this device.
type TerminalConfig struct {
	StoreCode    string `envconfig:"TILLPOINT_STORE_CODE" required:"true" validate:"alphanum,uppercase"`
	TerminalCode string `envconfig:"TILLPOINT_TERMINAL_CODE" required:"true" validate:"alphanum,uppercase"`
}

type LocalStoreConfig struct {
	Path string `envconfig:"TILLPOINT_LOCAL_DB_PATH" default:"tillpoint.db"`
}

type RemoteStoreConfig struct {
	URL      string        `envconfig:"TILLPOINT_REMOTE_URL"`
	Database string        `envconfig:"TILLPOINT_REMOTE_DATABASE" default:"tillpoint"`
	Username string        `envconfig:"TILLPOINT_REMOTE_USERNAME"`
	Password string        `envconfig:"TILLPOINT_REMOTE_PASSWORD"`
	Timeout  time.Duration `envconfig:"TILLPOINT_REMOTE_TIMEOUT" default:"10s"`
}

// Configured reports whether a remote endpoint is set at all. A terminal can
// run entirely offline with no remote configured.
func (r RemoteStoreConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != ""
}

type SyncConfig struct {
	Timeout       time.Duration `envconfig:"TILLPOINT_SYNC_TIMEOUT" default:"15s"`
	SyncOnStartup bool          `envconfig:"TILLPOINT_SYNC_ON_STARTUP" default:"true"`
}

type SalesConfig struct {
	// TaxRate is the fixed proportional tax applied to the invoice subtotal.
	TaxRate decimal.Decimal `envconfig:"TILLPOINT_TAX_RATE" default:"0.15"`
}

type SessionConfig struct {
	// Backend selects the durable session storage: "file" or "redis".
	Backend string `envconfig:"TILLPOINT_SESSION_BACKEND" default:"file" validate:"oneof=file redis"`
	Dir     string `envconfig:"TILLPOINT_SESSION_DIR" default:".tillpoint"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TILLPOINT_REDIS_URL"`
	Address      string        `envconfig:"TILLPOINT_REDIS_ADDR"`
	Password     string        `envconfig:"TILLPOINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"TILLPOINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TILLPOINT_REDIS_POOL_SIZE" default:"5"`
	MinIdleConns int           `envconfig:"TILLPOINT_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"TILLPOINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TILLPOINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TILLPOINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type AuthConfig struct {
	ServiceURL string        `envconfig:"TILLPOINT_AUTH_URL"`
	JWTSecret  string        `envconfig:"TILLPOINT_AUTH_JWT_SECRET"`
	Timeout    time.Duration `envconfig:"TILLPOINT_AUTH_TIMEOUT" default:"10s"`
}

type MetricsConfig struct {
	Enabled bool `envconfig:"TILLPOINT_METRICS_ENABLED" default:"true"`
}
