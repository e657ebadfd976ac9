package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a value.
const (
	defaultListen       = ":8317"
	defaultDSN          = "data/crmauto.db"
	defaultJWTExpiry    = 24 * time.Hour
	defaultScanInterval = 24 * time.Hour
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen string `yaml:"listen"` // Listen address, e.g. ":8317".
}

// DatabaseConfig holds the database DSN.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // PostgreSQL DSN or SQLite path.
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret      string `yaml:"secret"`       // HMAC signing secret.
	ExpiryHours int    `yaml:"expiry-hours"` // Token lifetime in hours.
}

// Expiry returns the configured token lifetime.
func (c JWTConfig) Expiry() time.Duration {
	if c.ExpiryHours <= 0 {
		return defaultJWTExpiry
	}
	return time.Duration(c.ExpiryHours) * time.Hour
}

// RedisConfig holds the optional redis connection used for the scan lock.
// An empty address keeps the scanner on its in-process lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`     // host:port, empty disables redis.
	Password string `yaml:"password"` // Optional password.
	DB       int    `yaml:"db"`       // Logical database index.
}

// AutomationConfig holds the background scanner settings.
type AutomationConfig struct {
	ScanInterval string `yaml:"scan-interval"` // Go duration string, e.g. "24h".
}

// Interval parses the scan interval, falling back to the default.
func (c AutomationConfig) Interval() time.Duration {
	trimmed := strings.TrimSpace(c.ScanInterval)
	if trimmed == "" {
		return defaultScanInterval
	}
	parsed, errParse := time.ParseDuration(trimmed)
	if errParse != nil || parsed <= 0 {
		return defaultScanInterval
	}
	return parsed
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`       // logrus level name.
	File       string `yaml:"file"`        // Log file path, empty logs to stdout only.
	MaxSizeMB  int    `yaml:"max-size-mb"` // Rotation threshold per file.
	MaxBackups int    `yaml:"max-backups"` // Rotated files kept.
}

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Redis      RedisConfig      `yaml:"redis"`
	Automation AutomationConfig `yaml:"automation"`
	Log        LogConfig        `yaml:"log"`
}

// Load reads the YAML config file, applies defaults and environment
// overrides (CRMAUTO_DSN, CRMAUTO_LISTEN, CRMAUTO_JWT_SECRET,
// CRMAUTO_REDIS_ADDR). A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if strings.TrimSpace(path) != "" {
		data, errRead := os.ReadFile(path)
		if errRead != nil && !os.IsNotExist(errRead) {
			return nil, fmt.Errorf("config: read %s: %w", path, errRead)
		}
		if errRead == nil {
			if errParse := yaml.Unmarshal(data, cfg); errParse != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, errParse)
			}
		}
	}

	if v := os.Getenv("CRMAUTO_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CRMAUTO_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("CRMAUTO_JWT_SECRET"); v != "" {
		cfg.JWT.Secret = v
	}
	if v := os.Getenv("CRMAUTO_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = defaultListen
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		cfg.Database.DSN = defaultDSN
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, fmt.Errorf("config: jwt secret is required")
	}

	return cfg, nil
}
