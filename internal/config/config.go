// Package config loads and validates resolver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/onbid-case-resolver/internal/resolver"
)

// Attachment backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Scraper     ScraperConfig     `mapstructure:"scraper"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`
	DB          DBConfig          `mapstructure:"db"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	// RateLimitPerMinute bounds parse requests per client.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
}

// ScraperConfig governs upstream fetching and resolution.
type ScraperConfig struct {
	Strict           bool               `mapstructure:"strict"`
	UserAgent        string             `mapstructure:"user_agent"`
	Referer          string             `mapstructure:"referer"`
	StrictTimeoutMs  int                `mapstructure:"strict_timeout_ms"`
	RelaxedTimeoutMs int                `mapstructure:"relaxed_timeout_ms"`
	MinIntervalMs    int                `mapstructure:"min_interval_ms"`
	JitterMinMs      int                `mapstructure:"jitter_min_ms"`
	JitterMaxMs      int                `mapstructure:"jitter_max_ms"`
	BackoffMinMs     int                `mapstructure:"backoff_min_ms"`
	BackoffMaxMs     int                `mapstructure:"backoff_max_ms"`
	MaxRetries       int                `mapstructure:"max_retries"`
	MinContentChars  int                `mapstructure:"min_content_chars"`
	Templates        resolver.Templates `mapstructure:"templates"`
}

// CacheConfig locates the raw archive and the response cache.
type CacheConfig struct {
	RawDir      string        `mapstructure:"raw_dir"`
	ResponseDir string        `mapstructure:"response_dir"`
	TTL         time.Duration `mapstructure:"ttl"`
	BlockTTL    time.Duration `mapstructure:"block_ttl"`
}

// AttachmentsConfig selects where attachment files are written.
type AttachmentsConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	GCSPrefix   string `mapstructure:"gcs_prefix"`
	FetchRemote bool   `mapstructure:"fetch_remote"`
}

// DBConfig controls the optional result log.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("scraper.strict", "RESOLVER_SCRAPER_STRICT", "SCRAPER_STRICT"); err != nil {
		return Config{}, fmt.Errorf("bind scraper.strict: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	tpl := resolver.DefaultTemplates()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 180)
	v.SetDefault("server.rate_limit_per_minute", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("scraper.strict", true)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("scraper.referer", tpl.BaseURL+"/")
	v.SetDefault("scraper.strict_timeout_ms", 5000)
	v.SetDefault("scraper.relaxed_timeout_ms", 7000)
	v.SetDefault("scraper.min_interval_ms", 1000)
	v.SetDefault("scraper.jitter_min_ms", 800)
	v.SetDefault("scraper.jitter_max_ms", 1500)
	v.SetDefault("scraper.backoff_min_ms", 1000)
	v.SetDefault("scraper.backoff_max_ms", 2000)
	v.SetDefault("scraper.max_retries", 2)
	v.SetDefault("scraper.min_content_chars", resolver.DefaultMinContentChars)
	v.SetDefault("scraper.templates.base_url", tpl.BaseURL)
	v.SetDefault("scraper.templates.url_detail", tpl.URLDetail)
	v.SetDefault("scraper.templates.search", tpl.Search)
	v.SetDefault("scraper.templates.detail_by_id", tpl.DetailByID)
	v.SetDefault("scraper.templates.legacy", tpl.Legacy)
	v.SetDefault("cache.raw_dir", "data/raw")
	v.SetDefault("cache.response_dir", "data/cache")
	v.SetDefault("cache.ttl", "6h")
	v.SetDefault("cache.block_ttl", "10m")
	v.SetDefault("attachments.backend", BackendLocal)
	v.SetDefault("attachments.dir", "data/attachments")
	v.SetDefault("attachments.fetch_remote", false)
	v.SetDefault("db.table", "resolutions")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("server.rate_limit_per_minute must be > 0")
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must be set when auth is enabled")
	}
	s := c.Scraper
	if s.StrictTimeoutMs <= 0 || s.RelaxedTimeoutMs <= 0 {
		return fmt.Errorf("scraper timeouts must be > 0")
	}
	if s.MinIntervalMs < 0 || s.JitterMinMs < 0 || s.JitterMaxMs < s.JitterMinMs {
		return fmt.Errorf("scraper spacing must be >= 0 with jitter_min_ms <= jitter_max_ms")
	}
	if s.BackoffMinMs < 0 || s.BackoffMaxMs < s.BackoffMinMs {
		return fmt.Errorf("scraper backoff must be >= 0 with backoff_min_ms <= backoff_max_ms")
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("scraper.max_retries must be >= 0")
	}
	if err := s.Templates.Validate(); err != nil {
		return fmt.Errorf("scraper.templates: %w", err)
	}
	if c.Cache.RawDir == "" || c.Cache.ResponseDir == "" {
		return fmt.Errorf("cache.raw_dir and cache.response_dir are required")
	}
	if c.Cache.TTL <= 0 || c.Cache.BlockTTL <= 0 {
		return fmt.Errorf("cache.ttl and cache.block_ttl must be > 0")
	}
	switch c.Attachments.Backend {
	case BackendLocal:
		if c.Attachments.Dir == "" {
			return fmt.Errorf("attachments.dir is required for the local backend")
		}
	case BackendGCS:
		if c.Attachments.GCSBucket == "" {
			return fmt.Errorf("attachments.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown attachments.backend %q", c.Attachments.Backend)
	}
	return nil
}

// RequestTimeout is the end-to-end budget of one API parse request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// Millis converts a millisecond knob to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
