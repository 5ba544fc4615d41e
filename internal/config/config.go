package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the runtime configuration for the winewize service and CLI.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Session   SessionConfig   `mapstructure:"session"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	PairingTTL    time.Duration `mapstructure:"pairing_ttl"`
	ExtractionTTL time.Duration `mapstructure:"extraction_ttl"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// RedisConfig enables the shared cache when Address is set.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type ScanConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from an optional file, .env and the environment.
// Environment variables use the WINEWIZE_ prefix with dots replaced by
// underscores (WINEWIZE_CACHE_PAIRING_TTL). ANTHROPIC_API_KEY is also honoured
// without the prefix.
func Load(configFile string) (*Config, error) {
	// .env is optional; a missing file is the common case in containers
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("winewize")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("anthropic.api_key", "WINEWIZE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("database.path", filepath.Join(home, ".winewize", "winewize.db"))
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout", 60*time.Second)
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.pairing_ttl", 5*time.Minute)
	v.SetDefault("cache.extraction_ttl", 30*time.Minute)
	v.SetDefault("cache.prune_interval", time.Minute)
	v.SetDefault("cache.redis.address", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("session.ttl", 2*time.Hour)
	v.SetDefault("scan.batch_size", 3)
	v.SetDefault("metrics.enabled", true)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Anthropic.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("anthropic.max_tokens must be positive, got %d", c.Anthropic.MaxTokens))
	}
	if c.Cache.DefaultTTL <= 0 || c.Cache.PairingTTL <= 0 || c.Cache.ExtractionTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.Scan.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("scan.batch_size must be at least 1, got %d", c.Scan.BatchSize))
	}

	return errors.Join(errs...)
}

// HasAnthropic reports whether an API key is configured.
func (c *Config) HasAnthropic() bool {
	return c.Anthropic.APIKey != ""
}

// HasRedis reports whether the shared Redis cache is configured.
func (c *Config) HasRedis() bool {
	return c.Cache.Redis.Address != ""
}
