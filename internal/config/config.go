// Package config provides configuration management for the wheel engine.
package config

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/cbailey/wheelhouse/internal/filter"
	"github.com/cbailey/wheelhouse/internal/overlay"
	"github.com/cbailey/wheelhouse/internal/pricing"
	"github.com/cbailey/wheelhouse/internal/recommend"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	MarketData  MarketDataConfig  `yaml:"marketdata"`
	Recommend   recommend.Config  `yaml:"recommend"`
	Overlay     overlay.Config    `yaml:"overlay"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // sandbox | production
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// MarketDataConfig defines market-data provider settings.
type MarketDataConfig struct {
	APIKey string `yaml:"api_key"`
	// SecondaryQuotes enables the fallback price source for the monitor.
	SecondaryQuotes bool           `yaml:"secondary_quotes"`
	Earnings        EarningsConfig `yaml:"earnings"`
}

// EarningsConfig defines the earnings-calendar source. When BaseURL is
// empty the earnings gate is skipped entirely.
type EarningsConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// StorageConfig defines storage settings for position data.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the read-only HTTP API.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	config := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// Default returns the configuration the YAML file overrides.
func Default() *Config {
	return &Config{
		Environment: EnvironmentConfig{Mode: "sandbox", LogLevel: "info"},
		Recommend:   recommend.DefaultConfig(),
		Overlay:     overlay.DefaultConfig(),
		Storage:     StorageConfig{Path: "data/positions.json"},
		Dashboard:   DashboardConfig{Listen: "127.0.0.1:9000"},
	}
}

// IsSandbox reports whether the sandbox market-data endpoint is in use.
func (c *Config) IsSandbox() bool {
	return c.Environment.Mode != "production"
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "sandbox" && c.Environment.Mode != "production" {
		return fmt.Errorf("environment.mode must be 'sandbox' or 'production'")
	}
	switch c.Environment.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level %q unrecognized", c.Environment.LogLevel)
	}

	if c.MarketData.APIKey == "" {
		return fmt.Errorf("marketdata.api_key is required")
	}

	if c.Recommend.MaxDTE <= 0 {
		return fmt.Errorf("recommend.max_dte must be > 0")
	}
	if len(c.Recommend.Profiles) == 0 {
		return fmt.Errorf("recommend.profiles must define at least one sigma range")
	}
	for _, p := range c.Recommend.Profiles {
		if p.Min < 0 || p.Max <= p.Min {
			return fmt.Errorf("recommend.profiles: range %q must have 0 <= min < max", p.Name)
		}
	}
	if err := validateFilter("recommend.filter", c.Recommend.Filter); err != nil {
		return err
	}
	if !c.Recommend.Cost.Slippage.Valid() {
		return fmt.Errorf("recommend.cost.slippage %q unrecognized", c.Recommend.Cost.Slippage)
	}

	if c.Overlay.OverwriteCapPct <= 0 || c.Overlay.OverwriteCapPct > 100 {
		return fmt.Errorf("overlay.overwrite_cap_pct must be in (0, 100]")
	}
	if c.Overlay.MaxExpirations <= 0 {
		return fmt.Errorf("overlay.max_expirations must be > 0")
	}
	if err := validateFilter("overlay.filter", c.Overlay.Filter); err != nil {
		return err
	}
	if !c.Overlay.Cost.Slippage.Valid() {
		return fmt.Errorf("overlay.cost.slippage %q unrecognized", c.Overlay.Cost.Slippage)
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Dashboard.Enabled && c.Dashboard.Listen == "" {
		return fmt.Errorf("dashboard.listen is required when the dashboard is enabled")
	}
	return nil
}

func validateFilter(section string, cfg filter.Config) error {
	if cfg.MinBidPrice < 0 {
		return fmt.Errorf("%s.min_bid_price cannot be negative", section)
	}
	if cfg.MaxSpread <= 0 {
		return fmt.Errorf("%s.max_spread must be > 0", section)
	}
	if cfg.FrictionMultiple < 1 {
		return fmt.Errorf("%s.friction_multiple must be >= 1", section)
	}
	return validateBand(section+".delta_band", cfg.DeltaBand)
}

func validateBand(section string, band pricing.DeltaBand) error {
	if band.Min < 0 || band.Max <= band.Min || band.Max > 1 {
		return fmt.Errorf("%s must have 0 <= min < max <= 1", section)
	}
	return nil
}
