package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models notifyd.yml.
type Config struct {
	App struct {
		BaseURL  string `yaml:"base_url"`
		Timezone string `yaml:"timezone"`
	} `yaml:"app"`
	Reminders struct {
		Interval string `yaml:"interval"`
	} `yaml:"reminders"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		TLS      bool   `yaml:"tls"`
	} `yaml:"smtp"`
	Server struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.App.BaseURL == "" {
		return fmt.Errorf("config.app.base_url is required")
	}
	if c.App.Timezone != "" {
		if _, err := time.LoadLocation(c.App.Timezone); err != nil {
			return fmt.Errorf("config.app.timezone %q: %w", c.App.Timezone, err)
		}
	}
	if c.Reminders.Interval != "" {
		d, err := time.ParseDuration(c.Reminders.Interval)
		if err != nil {
			return fmt.Errorf("config.reminders.interval %q: %w", c.Reminders.Interval, err)
		}
		if d <= 0 {
			return fmt.Errorf("config.reminders.interval must be positive")
		}
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("config.smtp.from is required when smtp.host is set")
	}
	return nil
}

// Location resolves the reference timezone for deadline classification.
// Defaults to UTC when unset.
func (c *Config) Location() *time.Location {
	if c.App.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SweepInterval returns the reminder sweep period, defaulting to one hour.
func (c *Config) SweepInterval() time.Duration {
	if c.Reminders.Interval == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(c.Reminders.Interval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "notifyd.yml")
}

// Default returns the default Config for local use.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

const defaultTemplate = `app:
  base_url: http://localhost:3000
  timezone: UTC

reminders:
  interval: 1h

smtp:
  host: ""
  port: "587"
  username: ""
  password: ""
  from: ""
  tls: false

server:
  addr: ":8086"
  jwt_secret: ""
`
