package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/spf13/viper"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	assert.NoError(t, err)
	check.Equal(t, ":8080", cfg.HTTPAddr)
	check.Equal(t, StoreMemory, cfg.Store)
	check.Equal(t, LockLocal, cfg.Lock)
	check.Equal(t, 15*time.Second, cfg.SweepInterval)
	check.Equal(t, 48*time.Hour, cfg.OfferWindow)
	check.Equal(t, "1.00", cfg.DefaultIncrement.StringFixed(2))
	check.Equal(t, "50", cfg.MinOfferPercent.String())
	check.True(t, cfg.Fees().Percent.IsZero())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MARKET_STORE", "postgres")
	t.Setenv("MARKET_POSTGRES_DSN", "postgres://localhost/market")
	t.Setenv("MARKET_FEE_PERCENT", "2.9")
	t.Setenv("MARKET_FLAT_FEE", "0.30")
	t.Setenv("MARKET_SWEEP_INTERVAL", "1m")
	t.Setenv("MARKET_COLLABORATOR_TOKEN", "s3cret")

	v := newViper()
	InitEnv(v)
	cfg, err := Load(v)
	assert.NoError(t, err)
	check.Equal(t, StorePostgres, cfg.Store)
	check.Equal(t, "postgres://localhost/market", cfg.PostgresDSN)
	check.Equal(t, "2.9", cfg.Fees().Percent.String())
	check.Equal(t, "0.30", cfg.Fees().Flat.StringFixed(2))
	check.Equal(t, time.Minute, cfg.SweepInterval)
	check.Equal(t, "s3cret", cfg.CollaboratorToken)
}

func TestReadFile(t *testing.T) {
	home := t.TempDir()
	body := "http_addr: \":9999\"\nlog_format: console\nmin_offer_percent: \"60\"\n"
	assert.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(body), 0o600))

	v := newViper()
	assert.NoError(t, ReadFile(v, home))
	cfg, err := Load(v)
	assert.NoError(t, err)
	check.Equal(t, ":9999", cfg.HTTPAddr)
	check.Equal(t, "console", cfg.LogFormat)
	check.Equal(t, "60", cfg.MinOfferPercent.String())

	// a home without a config file is fine
	assert.NoError(t, ReadFile(newViper(), t.TempDir()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]any
		want string
	}{
		{"unknown store", map[string]any{"store": "sqlite"}, "unknown store"},
		{"postgres without dsn", map[string]any{"store": "postgres"}, "postgres_dsn is required"},
		{"redis lock without addr", map[string]any{"lock": "redis"}, "redis_addr is required"},
		{"redis lock with postgres", map[string]any{"lock": "redis", "redis_addr": "localhost:6379", "store": "postgres", "postgres_dsn": "x"}, "only applies to store=memory"},
		{"zero increment", map[string]any{"default_increment": "0"}, "default_increment must be positive"},
		{"sub-cent increment", map[string]any{"default_increment": "0.005"}, "whole cents"},
		{"fee over 100", map[string]any{"fee_percent": "100"}, "fee_percent"},
		{"bad level", map[string]any{"log_level": "loud"}, "invalid log_level"},
		{"bad format", map[string]any{"log_format": "xml"}, "log_format"},
		{"zero sweep", map[string]any{"sweep_interval": "0s"}, "sweep_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := Load(v)
			assert.Error(t, err)
			check.True(t, strings.Contains(err.Error(), tt.want))
		})
	}
}

func TestLoadRejectsBadDecimal(t *testing.T) {
	v := newViper()
	v.Set("flat_fee", "cheap")
	_, err := Load(v)
	assert.Error(t, err)
	check.True(t, strings.Contains(err.Error(), "invalid flat_fee"))
}
