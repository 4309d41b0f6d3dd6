package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full dashboard client configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
	Live    LiveConfig    `yaml:"live"`
	Forward ForwardConfig `yaml:"forward"`
	Ops     OpsConfig     `yaml:"ops"`
}

// BackendConfig points at the surveillance backend.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
}

// AuthConfig holds the login credentials. AutoRegister makes a failed login
// fall through to registration (first run against a fresh backend).
type AuthConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	AutoRegister bool   `yaml:"auto_register"`
}

// SessionConfig selects the durable session store.
type SessionConfig struct {
	Store         string `yaml:"store"` // "redis" or "file"
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	FilePath      string `yaml:"file_path"`
}

// LiveConfig tunes the preview cells.
type LiveConfig struct {
	ProbeIntervalMS int `yaml:"probe_interval_ms"`
	ProbeAttempts   int `yaml:"probe_attempts"`
	AlertFeedCap    int `yaml:"alert_feed_cap"`
}

// ForwardConfig enables the NATS alert sink when a URL is set.
type ForwardConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// OpsConfig exposes the local metrics/health endpoint. Empty disables it.
type OpsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads the YAML file, applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("backend.base_url is required")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DASHBOARD_BASE_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("DASHBOARD_USERNAME"); v != "" {
		c.Auth.Username = v
	}
	if v := os.Getenv("DASHBOARD_PASSWORD"); v != "" {
		c.Auth.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Session.RedisAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Forward.NATSURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Session.Store == "" {
		if c.Session.RedisAddr != "" {
			c.Session.Store = "redis"
		} else {
			c.Session.Store = "file"
		}
	}
	if c.Session.FilePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Session.FilePath = home + "/.ts-dashboard/session.json"
	}
	if c.Live.ProbeIntervalMS <= 0 {
		c.Live.ProbeIntervalMS = 800
	}
	if c.Live.ProbeAttempts <= 0 {
		c.Live.ProbeAttempts = 8
	}
	if c.Live.AlertFeedCap <= 0 {
		c.Live.AlertFeedCap = 300
	}
	if c.Forward.Subject == "" {
		c.Forward.Subject = "dashboard.alerts"
	}
}

// ProbeInterval returns the probe cadence as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Live.ProbeIntervalMS) * time.Millisecond
}
