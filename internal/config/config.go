package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Primary store drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Config holds the application configuration
type Config struct {
	Port string `mapstructure:"PORT"`

	// Primary store
	PrimaryDriver string `mapstructure:"PRIMARY_DRIVER"`
	DBPath        string `mapstructure:"DB_PATH"`
	PostgresURL   string `mapstructure:"POSTGRES_URL"`

	// Device-local store for offline trails and the recording snapshot
	OfflineBackend string `mapstructure:"OFFLINE_BACKEND"`
	OfflinePath    string `mapstructure:"OFFLINE_PATH"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	DeviceID      string `mapstructure:"DEVICE_ID"`

	SnapshotEvery    int           `mapstructure:"SNAPSHOT_EVERY"`
	SnapshotInterval time.Duration `mapstructure:"SNAPSHOT_INTERVAL"`

	GatewayAttempts   int           `mapstructure:"GATEWAY_ATTEMPTS"`
	GatewayRetryDelay time.Duration `mapstructure:"GATEWAY_RETRY_DELAY"`

	SyncInterval    time.Duration `mapstructure:"SYNC_INTERVAL"`
	SyncBackoffBase time.Duration `mapstructure:"SYNC_BACKOFF_BASE"`
	SyncBackoffMax  time.Duration `mapstructure:"SYNC_BACKOFF_MAX"`

	// Empty disables owner identification
	JWTSecret string `mapstructure:"JWT_SECRET"`

	RateLimit       int           `mapstructure:"RATE_LIMIT"`
	RateLimitWindow time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`

	// meters; 0 exports every point
	GPXSimplifyEpsilon float64 `mapstructure:"GPX_SIMPLIFY_EPSILON"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", ":8080")
	v.SetDefault("PRIMARY_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "./data/trails/trails.db")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("OFFLINE_BACKEND", "badger")
	v.SetDefault("OFFLINE_PATH", "./data/offline")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("DEVICE_ID", "local")
	v.SetDefault("SNAPSHOT_EVERY", 10)
	v.SetDefault("SNAPSHOT_INTERVAL", 30*time.Second)
	v.SetDefault("GATEWAY_ATTEMPTS", 3)
	v.SetDefault("GATEWAY_RETRY_DELAY", 200*time.Millisecond)
	v.SetDefault("SYNC_INTERVAL", time.Minute)
	v.SetDefault("SYNC_BACKOFF_BASE", time.Second)
	v.SetDefault("SYNC_BACKOFF_MAX", 5*time.Minute)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("RATE_LIMIT", 600)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("GPX_SIMPLIFY_EPSILON", 0.0)
}

// Load reads TRAILS_* environment variables over the optional config file
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TRAILS")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option combinations
func (c *Config) Validate() error {
	c.PrimaryDriver = strings.ToLower(c.PrimaryDriver)
	c.OfflineBackend = strings.ToLower(c.OfflineBackend)

	switch c.PrimaryDriver {
	case DriverSQLite, DriverNone:
	case DriverPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown primary driver %q", c.PrimaryDriver)
	}

	switch c.OfflineBackend {
	case "badger", "sqlite":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis offline backend")
		}
	default:
		return fmt.Errorf("unknown offline backend %q", c.OfflineBackend)
	}

	if c.SnapshotEvery < 1 {
		return fmt.Errorf("SNAPSHOT_EVERY must be at least 1")
	}
	if c.GatewayAttempts < 1 {
		return fmt.Errorf("GATEWAY_ATTEMPTS must be at least 1")
	}
	return nil
}
