// Package config loads marketd settings from flags, MARKET_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/cloudx-io/openmarket/core"
)

const (
	EnvPrefix = "MARKET"
	HomeFlag  = "home"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
	LockLocal     = "local"
	LockRedis     = "redis"
)

// Config is the full daemon configuration.
type Config struct {
	Home        string `mapstructure:"home"`
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	Store       string        `mapstructure:"store"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	Lock        string        `mapstructure:"lock"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	NATSURL       string `mapstructure:"nats_url"`

	SweepInterval    time.Duration   `mapstructure:"sweep_interval"`
	OfferWindow      time.Duration   `mapstructure:"offer_window"`
	DefaultIncrement decimal.Decimal `mapstructure:"-"`
	MinOfferPercent  decimal.Decimal `mapstructure:"-"`
	FeePercent       decimal.Decimal `mapstructure:"-"`
	FlatFee          decimal.Decimal `mapstructure:"-"`

	ReceiptKeyFile    string `mapstructure:"receipt_key_file"`
	// CollaboratorToken authorizes the payment and fulfilment callbacks.
	CollaboratorToken string `mapstructure:"collaborator_token"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("store", StoreMemory)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("lock", LockLocal)
	v.SetDefault("lock_timeout", 2*time.Second)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("nats_url", "")
	v.SetDefault("sweep_interval", 15*time.Second)
	v.SetDefault("offer_window", 48*time.Hour)
	v.SetDefault("default_increment", "1.00")
	v.SetDefault("min_offer_percent", "50")
	v.SetDefault("fee_percent", "0")
	v.SetDefault("flat_fee", "0")
	v.SetDefault("receipt_key_file", "")
	v.SetDefault("collaborator_token", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// InitEnv makes v read MARKET_* environment variables.
func InitEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// ReadFile reads config.{toml,yaml,json} from home or home/config when
// one exists.
func ReadFile(v *viper.Viper, home string) error {
	if home == "" {
		return nil
	}
	v.SetConfigName("config")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, "config"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	money := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"default_increment", &cfg.DefaultIncrement},
		{"min_offer_percent", &cfg.MinOfferPercent},
		{"fee_percent", &cfg.FeePercent},
		{"flat_fee", &cfg.FlatFee},
	}
	for _, m := range money {
		d, err := decimal.NewFromString(v.GetString(m.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", m.key, v.GetString(m.key), err)
		}
		*m.dst = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required with store=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	switch c.Lock {
	case LockLocal:
	case LockRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required with lock=redis"))
		}
		if c.Store != StoreMemory {
			errs = append(errs, errors.New("lock=redis only applies to store=memory"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock %q", c.Lock))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("lock_timeout must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}
	if c.OfferWindow <= 0 {
		errs = append(errs, errors.New("offer_window must be positive"))
	}
	if !core.ValidMoney(c.DefaultIncrement) {
		errs = append(errs, errors.New("default_increment must be positive in whole cents"))
	}
	if c.MinOfferPercent.IsNegative() || c.MinOfferPercent.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, errors.New("min_offer_percent must be within 0-100"))
	}
	if c.FeePercent.IsNegative() || c.FeePercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		errs = append(errs, errors.New("fee_percent must be within 0-100"))
	}
	if c.FlatFee.IsNegative() {
		errs = append(errs, errors.New("flat_fee cannot be negative"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log_level %q", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("log_format must be json or console, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Fees is the platform fee schedule.
func (c *Config) Fees() core.FeeSchedule {
	return core.FeeSchedule{Percent: c.FeePercent, Flat: c.FlatFee}
}

// Logger builds the process logger from log_level and log_format.
func (c *Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if c.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
