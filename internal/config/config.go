package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models permitline.yml: the jurisdiction's statutory determination
// periods, alerting thresholds, and webhook targets for the serve-mode
// deadline sweeper.
type Config struct {
	Jurisdiction struct {
		Name          string         `yaml:"name"`
		DefaultPeriod int            `yaml:"default_period_days"`
		Periods       map[string]int `yaml:"periods"`
	} `yaml:"jurisdiction"`
	Alerts struct {
		WindowDays        int `yaml:"window_days"`
		SweepIntervalSecs int `yaml:"sweep_interval_seconds"`
	} `yaml:"alerts"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one alert delivery target.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	AlertTypes     []string `yaml:"alert_types"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// StatutoryPeriod returns the determination period in days for a type code,
// falling back to the jurisdiction default for unknown codes.
func (c *Config) StatutoryPeriod(typeCode string) int {
	if days, ok := c.Jurisdiction.Periods[typeCode]; ok && days > 0 {
		return days
	}
	if c.Jurisdiction.DefaultPeriod > 0 {
		return c.Jurisdiction.DefaultPeriod
	}
	return 56
}

// AlertWindowDays returns the look-ahead window for due-soon alerts.
func (c *Config) AlertWindowDays() int {
	if c.Alerts.WindowDays > 0 {
		return c.Alerts.WindowDays
	}
	return 3
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Jurisdiction.DefaultPeriod < 0 {
		return fmt.Errorf("config.jurisdiction.default_period_days must not be negative")
	}
	for code, days := range c.Jurisdiction.Periods {
		if code == "" {
			return fmt.Errorf("config.jurisdiction.periods contains empty type code")
		}
		if days <= 0 {
			return fmt.Errorf("period for type %s must be positive", code)
		}
	}
	if c.Alerts.WindowDays < 0 {
		return fmt.Errorf("config.alerts.window_days must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "permitline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", Path(workspace))
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if no file exists in the
// workspace.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in jurisdiction config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML for writing to disk.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `jurisdiction:
  name: generic
  default_period_days: 56

  # Statutory determination periods by application type code.
  periods:
    householder: 56
    full: 56
    outline: 56
    listed-building: 56
    advertisement: 56
    lawful-development: 56
    prior-approval: 42
    major: 91
    ei-development: 112

alerts:
  window_days: 3
  sweep_interval_seconds: 3600

webhooks: []
`
