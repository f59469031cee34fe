package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	if cfg.Server.Port != "8080" || cfg.Server.ReadTimeout != 30 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("allowed origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Pricing.Category != "Eggs" || cfg.Pricing.Workers != 4 || cfg.Pricing.TargetMarginPct != 0 {
		t.Errorf("pricing = %+v", cfg.Pricing)
	}
	if cfg.Cache.Enabled || cfg.Cache.RunTTLSeconds != 3600 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if !cfg.Storage.UseSSL || cfg.Storage.InputPrefix != "pricing/inputs/" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestFromViperOverrides(t *testing.T) {
	tests := []struct {
		key   string
		value any
		check func(*Config) bool
	}{
		{"PRICING_TARGET_MARGIN_PCT", "12.5", func(c *Config) bool { return c.Pricing.TargetMarginPct == 12.5 }},
		{"PRICING_WORKERS", "8", func(c *Config) bool { return c.Pricing.Workers == 8 }},
		{"CACHE_ENABLED", "true", func(c *Config) bool { return c.Cache.Enabled }},
		{"S3_USE_SSL", "false", func(c *Config) bool { return !c.Storage.UseSSL }},
		{"DB_NAME", "pricing_test", func(c *Config) bool { return c.Database.DBName == "pricing_test" }},
		{"LOG_JSON", true, func(c *Config) bool { return c.App.LogJSON }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			v.Set(tt.key, tt.value)
			if cfg := fromViper(v); !tt.check(cfg) {
				t.Errorf("%s=%v not applied: %+v", tt.key, tt.value, cfg)
			}
		})
	}
}
