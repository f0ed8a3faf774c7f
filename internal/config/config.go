// Package config loads service configuration from a YAML file with
// environment-variable overrides. A .env file is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the delivery service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Transport TransportConfig `yaml:"transport"`
	Engine    EngineConfig    `yaml:"engine"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds optional Redis settings for distributed locking and
// campaign throttling. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TransportConfig selects and configures the mail transport.
type TransportConfig struct {
	// Provider is "ses" or "sparkpost".
	Provider  string          `yaml:"provider"`
	SES       SESConfig       `yaml:"ses"`
	SparkPost SparkPostConfig `yaml:"sparkpost"`
}

// SESConfig holds AWS SES credentials. Empty keys fall back to the default
// AWS credential chain.
type SESConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// SparkPostConfig holds SparkPost API settings.
type SparkPostConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// EngineConfig holds delivery-engine defaults. Per-campaign run options
// override these at enqueue time.
type EngineConfig struct {
	Concurrency     int `yaml:"concurrency"`
	MaxRetries      int `yaml:"max_retries"`
	JobDelayMS      int `yaml:"job_delay_ms"`
	BackoffSeconds  int `yaml:"backoff_seconds"`
	PollIntervalMS  int `yaml:"poll_interval_ms"`
	RetentionHours  int `yaml:"retention_hours"`
	SweepIntervalMS int `yaml:"sweep_interval_ms"`
	RatePerMinute   int `yaml:"rate_per_minute"`
}

// JobDelay returns the inter-job stagger as a duration.
func (e EngineConfig) JobDelay() time.Duration { return time.Duration(e.JobDelayMS) * time.Millisecond }

// BackoffUnit returns the retry backoff unit as a duration.
func (e EngineConfig) BackoffUnit() time.Duration {
	return time.Duration(e.BackoffSeconds) * time.Second
}

// PollInterval returns the worker poll sleep as a duration.
func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMS) * time.Millisecond
}

// Retention returns the queue retention window as a duration.
func (e EngineConfig) Retention() time.Duration {
	return time.Duration(e.RetentionHours) * time.Hour
}

// SweepInterval returns the cleanup cadence as a duration.
func (e EngineConfig) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalMS) * time.Millisecond
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads configuration from path (optional), then applies environment
// overrides and defaults. A missing file is only an error when the path was
// given explicitly.
func Load(path string) (*Config, error) {
	// Best effort: local development keeps secrets in .env.
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	redact := true
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Transport: TransportConfig{
			Provider: "ses",
			SES:      SESConfig{Region: "us-east-1"},
		},
		Engine: EngineConfig{
			Concurrency:     5,
			MaxRetries:      3,
			JobDelayMS:      1000,
			BackoffSeconds:  30,
			PollIntervalMS:  250,
			RetentionHours:  24,
			SweepIntervalMS: int((10 * time.Minute).Milliseconds()),
		},
		Logging: LoggingConfig{Level: "info", RedactPII: &redact},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		cfg.Transport.Provider = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Transport.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Transport.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Transport.SES.Region = v
	}
	if v := os.Getenv("SPARKPOST_API_KEY"); v != "" {
		cfg.Transport.SparkPost.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ENGINE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.Concurrency = n
		}
	}
	if v := os.Getenv("ENGINE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Engine.MaxRetries = n
		}
	}
}
