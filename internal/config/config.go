package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/alvmarrod/dfimoveis-crawler/internal/listing"
	"github.com/alvmarrod/dfimoveis-crawler/internal/storage"
	"github.com/spf13/viper"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix prefixes environment overrides, e.g. DFCRAWL_WORKERS=5
const EnvPrefix = "DFCRAWL"

// DefaultBaseURL is the results page template; the page number is appended
const DefaultBaseURL = "https://www.dfimoveis.com.br/{category}/df/todos/{property_type}?pagina="

// Config holds all runtime configuration parameters
type Config struct {
	BaseURL      string `mapstructure:"base_url"`
	Category     string `mapstructure:"category"`
	PropertyType string `mapstructure:"property_type"`
	UserAgent    string `mapstructure:"user_agent"`

	MaxPages                  int     `mapstructure:"max_pages"`
	Workers                   int     `mapstructure:"workers"`
	BatchSize                 int     `mapstructure:"batch_size"`
	BatchDelaySeconds         int     `mapstructure:"batch_delay_seconds"`
	BatchDelayJitterSeconds   int     `mapstructure:"batch_delay_jitter_seconds"`
	MaxRetries                int     `mapstructure:"max_retries"`
	BackoffBaseMs             int     `mapstructure:"backoff_base_ms"`
	BackoffFactor             float64 `mapstructure:"backoff_factor"`
	ConsecutiveEmptyThreshold int     `mapstructure:"consecutive_empty_threshold"`
	RequestTimeoutMs          int     `mapstructure:"request_timeout_ms"`
	TypePauseSeconds          int     `mapstructure:"type_pause_seconds"`

	SaveEachBatch bool   `mapstructure:"save_each_batch"`
	Append        bool   `mapstructure:"append"`
	OutputDir     string `mapstructure:"output_dir"`
	DBPath        string `mapstructure:"db_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	MetricsPath   string `mapstructure:"metrics_path"`
	LogLevel      string `mapstructure:"log_level"`
	Schedule      string `mapstructure:"schedule"`
}

// New returns a viper instance with defaults and environment overrides wired in.
// Callers may bind flags on it before handing it to Load.
func New() *viper.Viper {
	v := viper.New()
	applyDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads and validates configuration from a JSON or YAML file.
// An empty path uses defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	return Load(New(), path)
}

// Load reads path (if any) into v, then decodes and validates the result
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			v.SetConfigType(ext)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(v *viper.Viper) {
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("category", string(listing.Sale))
	v.SetDefault("property_type", listing.DefaultSearchType)
	v.SetDefault("user_agent", "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:92.0) Gecko/20100101 Firefox/92.0")
	v.SetDefault("max_pages", 0)
	v.SetDefault("workers", 3)
	v.SetDefault("batch_size", 30)
	v.SetDefault("batch_delay_seconds", 30)
	v.SetDefault("batch_delay_jitter_seconds", 5)
	v.SetDefault("max_retries", 3)
	v.SetDefault("backoff_base_ms", 2000)
	v.SetDefault("backoff_factor", 2.0)
	v.SetDefault("consecutive_empty_threshold", 2)
	v.SetDefault("request_timeout_ms", 30000)
	v.SetDefault("type_pause_seconds", 30)
	v.SetDefault("save_each_batch", true)
	v.SetDefault("append", true)
	v.SetDefault("output_dir", "dataset")
	v.SetDefault("db_path", "listings.db")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("metrics_path", "metrics.json")
	v.SetDefault("log_level", "info")
	v.SetDefault("schedule", "")
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if !strings.Contains(cfg.BaseURL, "://") {
		return fmt.Errorf("base_url must be an absolute URL")
	}
	if _, err := listing.ParseCategory(cfg.Category); err != nil {
		return err
	}
	if !listing.IsSearchType(cfg.PropertyType) {
		return fmt.Errorf("unknown property_type %q", cfg.PropertyType)
	}
	if cfg.MaxPages < 0 {
		return fmt.Errorf("max_pages must be >= 0 (0 means unbounded)")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1")
	}
	if cfg.BatchDelaySeconds < 0 || cfg.BatchDelayJitterSeconds < 0 {
		return fmt.Errorf("batch delays must be >= 0")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	if cfg.BackoffBaseMs < 0 || cfg.BackoffFactor < 1 {
		return fmt.Errorf("backoff_base_ms must be >= 0 and backoff_factor >= 1")
	}
	if cfg.ConsecutiveEmptyThreshold < 1 {
		return fmt.Errorf("consecutive_empty_threshold must be >= 1")
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	return nil
}

// CategoryValue returns the validated category
func (c *Config) CategoryValue() listing.Category {
	cat, _ := listing.ParseCategory(c.Category)
	return cat
}

// BatchDelay returns the pause between batches
func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelaySeconds) * time.Second
}

// BatchDelayJitter returns the maximum deviation applied to BatchDelay
func (c *Config) BatchDelayJitter() time.Duration {
	return time.Duration(c.BatchDelayJitterSeconds) * time.Second
}

// BackoffBase returns the base wait of the retry backoff
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// RequestTimeout returns the per-request transport timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// TypePause returns the pause between property types in crawl-all mode
func (c *Config) TypePause() time.Duration {
	return time.Duration(c.TypePauseSeconds) * time.Second
}

// OutputFile returns the per-category CSV file inside OutputDir
func (c *Config) OutputFile() string {
	return filepath.Join(c.OutputDir, storage.CSVFileName(c.CategoryValue()))
}
