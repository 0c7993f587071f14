/*
Package config loads server configuration and builds the logger.

SOURCES (highest precedence first):
  1. Command-line flags bound by cmd/server
  2. Environment variables (a .env file is loaded into the environment first)
  3. config.yaml in the working directory or ./config
  4. Defaults below

KEYS:
  PORT                                 HTTP port (8080)
  DB_PATH                              SQLite path, ":memory:" allowed (toil.db)
  ENV                                  development | production
  LOG_LEVEL                            debug | info | warn | error
  CORS_ORIGINS                         comma separated origins
  RATE_LIMIT_RPS / RATE_LIMIT_BURST    per-user token bucket
  TOIL_MAX_BALANCE_HOURS               40
  TOIL_MIN_BALANCE_HOURS               0
  TOIL_MAX_CONSECUTIVE_REDUCTION_HOURS 16
*/
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/warp/toil-engine/toil"
)

type Config struct {
	Port     int    `mapstructure:"PORT"`
	DBPath   string `mapstructure:"DB_PATH"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	CORSOrigins    string  `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	MaxBalanceHours              float64 `mapstructure:"TOIL_MAX_BALANCE_HOURS"`
	MinBalanceHours              float64 `mapstructure:"TOIL_MIN_BALANCE_HOURS"`
	MaxConsecutiveReductionHours float64 `mapstructure:"TOIL_MAX_CONSECUTIVE_REDUCTION_HOURS"`
}

// SetDefaults registers every key's default on v. AutomaticEnv only sees
// keys viper already knows about, so this must run before Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "toil.db")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("TOIL_MAX_BALANCE_HOURS", 40)
	v.SetDefault("TOIL_MIN_BALANCE_HOURS", 0)
	v.SetDefault("TOIL_MAX_CONSECUTIVE_REDUCTION_HOURS", 16)
}

// Load reads configuration into a Config. configFile may be empty, in
// which case config.yaml is looked up and silently skipped when absent.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
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

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH is required")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	limits := c.Limits()
	if limits.MinBalance > limits.MaxBalance {
		return fmt.Errorf("TOIL_MIN_BALANCE_HOURS (%s) exceeds TOIL_MAX_BALANCE_HOURS (%s)",
			limits.MinBalance, limits.MaxBalance)
	}
	if limits.MaxConsecutiveReduction < 0 {
		return errors.New("TOIL_MAX_CONSECUTIVE_REDUCTION_HOURS must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Origins splits CORS_ORIGINS, dropping blanks.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Limits converts the hour settings to validator limits, rounded to the minute.
func (c *Config) Limits() toil.Limits {
	return toil.Limits{
		MaxBalance:              hoursToDuration(c.MaxBalanceHours),
		MinBalance:              hoursToDuration(c.MinBalanceHours),
		MaxConsecutiveReduction: hoursToDuration(c.MaxConsecutiveReductionHours),
	}
}

func hoursToDuration(h float64) toil.Duration {
	minutes := decimal.NewFromFloat(h).Mul(decimal.NewFromInt(60)).Round(0)
	return toil.Duration(minutes.IntPart())
}
