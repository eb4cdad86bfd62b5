// Package config loads the service configuration with viper into an
// explicit struct that is passed to constructors. No package-level
// configuration state exists anywhere in the module.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/napa14-design/infrahub/internal/model"
	"github.com/napa14-design/infrahub/internal/rules"
)

// Config is the full service configuration.
type Config struct {
	App struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"app"`

	NATS struct {
		URLs           []string      `mapstructure:"urls"`
		MaxReconnects  int           `mapstructure:"max_reconnects"`
		ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"nats"`

	Storage struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"storage"`

	Sweep struct {
		// Schedule is a cron expression (with seconds) for the periodic
		// compliance sweep.
		Schedule string `mapstructure:"schedule"`
	} `mapstructure:"sweep"`

	Rules []RuleConfig `mapstructure:"rules"`

	Frequencies []FrequencyConfig `mapstructure:"frequencies"`
}

// RuleConfig is a default threshold rule seeded into the rule store on
// first run.
type RuleConfig struct {
	Category     string `mapstructure:"category"`
	WarningDays  int    `mapstructure:"warning_days"`
	CriticalDays int    `mapstructure:"critical_days"`
	Enabled      bool   `mapstructure:"enabled"`
}

// FrequencyConfig is a default recurrence interval for one asset type,
// optionally overridden per site.
type FrequencyConfig struct {
	AssetType     string         `mapstructure:"asset_type"`
	GlobalDays    int            `mapstructure:"global_days"`
	SiteOverrides map[string]int `mapstructure:"site_overrides"`
}

// Load reads config.yaml from the given directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetDefault("app.name", "infrahub")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)
	v.SetDefault("storage.path", "infrahub.db")
	v.SetDefault("sweep.schedule", "0 * * * * *")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// RuleDefaults converts the configured defaults into the rule store's
// seed shape.
func (c *Config) RuleDefaults() rules.Defaults {
	d := rules.Defaults{}
	for _, r := range c.Rules {
		d.Rules = append(d.Rules, model.Rule{
			Category:     model.RuleCategory(r.Category),
			WarningDays:  r.WarningDays,
			CriticalDays: r.CriticalDays,
			Enabled:      r.Enabled,
		})
	}
	for _, f := range c.Frequencies {
		d.Frequencies = append(d.Frequencies, model.FrequencyPolicy{
			AssetType:     f.AssetType,
			GlobalDays:    f.GlobalDays,
			SiteOverrides: f.SiteOverrides,
		})
	}
	return d
}
