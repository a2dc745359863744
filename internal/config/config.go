// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port          int    `yaml:"port"`
	PublicBaseURL string `yaml:"public_base_url"` // used to build the provider webhook callback URL
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type StorageConfig struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"` // optional, for S3-compatible stores
}

type RunPodConfig struct {
	APIToken string `yaml:"api_token"`
	Endpoint string `yaml:"endpoint"` // bare endpoint id or full URL
}

type FashnConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type ProviderConfig struct {
	RunPod        RunPodConfig  `yaml:"runpod"`
	Fashn         FashnConfig   `yaml:"fashn"`
	Steps         int           `yaml:"steps"`
	GuidanceScale float64       `yaml:"guidance_scale"`
	Timeout       time.Duration `yaml:"timeout"` // per-call HTTP timeout
}

type WebhookConfig struct {
	Secret string `yaml:"secret"` // empty = open/dev mode, signatures not required
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"` // ceiling per window
	Window   time.Duration `yaml:"window"`
}

type PollingConfig struct {
	Interval    time.Duration `yaml:"interval"`     // watcher poll interval
	MaxInterval time.Duration `yaml:"max_interval"` // cap for client hint
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"` // total watcher budget
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	Provider  ProviderConfig  `yaml:"provider"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Polling   PollingConfig   `yaml:"polling"`
	Auth      AuthConfig      `yaml:"auth"`
	Workers   int             `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Provider.Steps <= 0 {
		cfg.Provider.Steps = 50
	}
	if cfg.Provider.GuidanceScale <= 0 {
		cfg.Provider.GuidanceScale = 2.5
	}
	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}
	if cfg.Provider.Fashn.BaseURL == "" {
		cfg.Provider.Fashn.BaseURL = "https://api.fashn.ai/v1"
	}
	if cfg.RateLimit.Requests <= 0 {
		cfg.RateLimit.Requests = 20
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = time.Minute
	}
	if cfg.Polling.Interval <= 0 {
		cfg.Polling.Interval = 2 * time.Second
	}
	if cfg.Polling.MaxInterval <= 0 {
		cfg.Polling.MaxInterval = 15 * time.Second
	}
	if cfg.Polling.MaxAttempts <= 0 {
		cfg.Polling.MaxAttempts = 150
	}
	if cfg.Polling.Timeout <= 0 {
		cfg.Polling.Timeout = 10 * time.Minute
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 30 * time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Storage.Bucket == "" {
		return nil, errors.New("storage.bucket is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
