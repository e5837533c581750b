package app

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/fernandezvara/gatekit"
)

// Config holds runtime configuration for gatekitd and gatekit-worker.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout   time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"20s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`

	RedisAddr         string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	NotifyQueue       string        `envconfig:"NOTIFY_QUEUE" default:"notifications"`
	NotifyMaxRetry    int           `envconfig:"NOTIFY_MAX_RETRY" default:"5"`
	NotifyTimeout     time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
	WorkerConcurrency int           `envconfig:"WORKER_CONCURRENCY" default:"5"`

	HierarchyExemptPermissions []string `envconfig:"HIERARCHY_EXEMPT_PERMISSIONS" default:"admin.bypass_hierarchy"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("database url must be provided")
	}
	if c.NotifyMaxRetry < 0 {
		return errors.New("notify max retry cannot be negative")
	}
	for _, p := range c.HierarchyExemptPermissions {
		if err := gatekit.ValidatePermissionID(p); err != nil {
			return err
		}
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// PoolConfig returns the database pool settings.
func (c *Config) PoolConfig() gatekit.PoolConfig {
	pool := gatekit.DefaultPoolConfig()
	pool.MaxOpenConnections = c.DBMaxOpenConns
	pool.MaxIdleConnections = c.DBMaxIdleConns
	pool.ConnectionMaxLifetime = c.DBConnMaxLifetime
	return pool
}
