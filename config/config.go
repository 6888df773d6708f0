package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Matching MatchingConfig `mapstructure:"matching"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageConfig selects the repository backend
type StorageConfig struct {
	Type     string `mapstructure:"type"` // "memory" or "postgres"
	DSN      string `mapstructure:"dsn"`
	SeedFile string `mapstructure:"seed_file"`
	Migrate  bool   `mapstructure:"migrate"`
}

// FetchConfig holds outbound HTTP client configuration
type FetchConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	SitemapTimeout time.Duration `mapstructure:"sitemap_timeout"`
}

// MatchingConfig holds global scoring parameters. Sources may override them.
type MatchingConfig struct {
	DefaultThreshold   float64 `mapstructure:"default_threshold"`
	ProducerWeight     float64 `mapstructure:"producer_weight"`
	NameWeight         float64 `mapstructure:"name_weight"`
	DefaultCurrency    string  `mapstructure:"default_currency"`
	EnableDebugLogging bool    `mapstructure:"enable_debug_logging"`
}

// RefreshConfig holds crawl behaviour settings
type RefreshConfig struct {
	CandidateCap  int           `mapstructure:"candidate_cap"`
	SearchDelay   time.Duration `mapstructure:"search_delay"`
	OfferCacheTTL time.Duration `mapstructure:"offer_cache_ttl"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// Load loads configuration from .env, environment variables and config files
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/winemarket/")

	v.SetEnvPrefix("WINEOFFERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.seed_file", "")
	v.SetDefault("storage.migrate", true)

	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.timeout", "10s")
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.cache_ttl", "5m")
	v.SetDefault("fetch.backoff_base", "1s")
	v.SetDefault("fetch.backoff_max", "10s")
	v.SetDefault("fetch.sitemap_timeout", "15s")

	v.SetDefault("matching.default_threshold", 0.35)
	v.SetDefault("matching.producer_weight", 0.35)
	v.SetDefault("matching.name_weight", 0.45)
	v.SetDefault("matching.default_currency", "EUR")
	v.SetDefault("matching.enable_debug_logging", false)

	v.SetDefault("refresh.candidate_cap", 12)
	v.SetDefault("refresh.search_delay", "250ms")
	v.SetDefault("refresh.offer_cache_ttl", "30m")
	v.SetDefault("refresh.batch_size", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Storage.Type != "memory" && config.Storage.Type != "postgres" {
		return fmt.Errorf("storage type must be 'memory' or 'postgres', got: %s", config.Storage.Type)
	}

	if config.Storage.Type == "postgres" && config.Storage.DSN == "" {
		return fmt.Errorf("postgres DSN is required when storage type is 'postgres' (set WINEOFFERS_STORAGE_DSN)")
	}

	// Zero would read as "unset" downstream; a per-source matchThreshold of 0 is still allowed.
	if config.Matching.DefaultThreshold <= 0 || config.Matching.DefaultThreshold > 1 {
		return fmt.Errorf("matching.default_threshold must be within (0,1], got: %v", config.Matching.DefaultThreshold)
	}

	if config.Matching.ProducerWeight < 0 || config.Matching.NameWeight < 0 {
		return fmt.Errorf("matching weights must not be negative")
	}

	if config.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must not be negative, got: %d", config.Fetch.MaxRetries)
	}

	if config.Log.Format != "json" && config.Log.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got: %s", config.Log.Format)
	}

	return nil
}
