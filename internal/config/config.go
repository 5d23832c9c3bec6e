// Package config loads the pipeline's process configuration (§6
// "Configuration"). Config loading itself is out of scope per spec.md §1
// ("CLI/config loading"), but the shape is still carried through viper the
// way the rest of the pack configures its services: an optional file and
// INTELFLOW_-prefixed env vars (which take precedence over the file),
// decoded into a typed struct.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/go-faster/errors"
)

// Database holds the relational store's connection parameters (§6
// "database host/port/name/user/password; connection pool size").
type Database struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Webhook holds the ingestor's shared secret and source rate limit (§6
// "webhook shared secret", §5 "rate-limited by source address").
type Webhook struct {
	Secret           string  `mapstructure:"secret"`
	RatePerSecond    float64 `mapstructure:"rate_per_second"`
	RateBurst        int     `mapstructure:"rate_burst"`
}

// Alignment holds the LM collaborator's endpoint and retry/rate-limit
// contract (§6 "LM endpoint URL, model, timeout, max retries, retry delay,
// rate-limit window and max").
type Alignment struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Model           string        `mapstructure:"model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMax    int           `mapstructure:"rate_limit_max"`
}

// Config is the top-level process configuration (§6 "Configuration").
type Config struct {
	BindPort                 string        `mapstructure:"bind_port"`
	DefaultActivityWindowHrs int           `mapstructure:"default_activity_window_hours"`
	Database                 Database      `mapstructure:"database"`
	Webhook                  Webhook       `mapstructure:"webhook"`
	Alignment                Alignment     `mapstructure:"alignment"`
	ProbeInterval            time.Duration `mapstructure:"probe_interval"`
}

// setDefaults installs §6's named defaults before env/file overrides apply.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bind_port", "8080")
	v.SetDefault("default_activity_window_hours", 72)
	v.SetDefault("probe_interval", 30*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "intelflow")
	v.SetDefault("database.user", "intelflow")
	v.SetDefault("database.pool_size", 20)

	v.SetDefault("webhook.rate_per_second", 5.0)
	v.SetDefault("webhook.rate_burst", 20)

	v.SetDefault("alignment.model", "claude-3-5-haiku-latest")
	v.SetDefault("alignment.timeout", 15*time.Second)
	v.SetDefault("alignment.max_retries", 1)
	v.SetDefault("alignment.retry_delay", 1500*time.Millisecond)
	v.SetDefault("alignment.rate_limit_window", 60*time.Second)
	v.SetDefault("alignment.rate_limit_max", 10)
}

// Load reads configuration from (in ascending precedence) defaults, an
// optional config file named "intelflow" on the search path, and
// INTELFLOW_-prefixed environment variables (e.g. INTELFLOW_DATABASE_HOST).
// No CLI flag parsing is added — out of scope per spec.md §1 stays out of
// scope; cmd/intelflow calls only this.
func Load(configPaths ...string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("intelflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("intelflow")
	v.SetConfigType("yaml")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	return cfg, nil
}

// DSN builds the libpq-style connection string pgx expects from the
// Database section.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		d.Host, d.Port, d.Name, d.User, d.Password)
}
