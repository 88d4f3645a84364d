// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/scoutgrid/leadscout/internal/lead"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Application  ApplicationConfig             `mapstructure:"application"`
	Server       ServerConfig                  `mapstructure:"server"`
	Auth         AuthConfig                    `mapstructure:"auth"`
	SERP         SERPConfig                    `mapstructure:"serp"`
	Crawler      CrawlerConfig                 `mapstructure:"crawler"`
	HTTP         HTTPConfig                    `mapstructure:"http"`
	Headless     HeadlessConfig                `mapstructure:"headless"`
	Extract      ExtractConfig                 `mapstructure:"extract"`
	Storage      StorageConfig                 `mapstructure:"storage"`
	DB           DBConfig                      `mapstructure:"db"`
	PubSub       PubSubConfig                  `mapstructure:"pubsub"`
	Progress     ProgressConfig                `mapstructure:"progress"`
	Logging      LoggingConfig                 `mapstructure:"logging"`
	StandardJobs map[string]lead.JobParameters `mapstructure:"standard_jobs"`
}

// ApplicationConfig identifies the deployment for telemetry resources.
type ApplicationConfig struct {
	ServiceName   string `mapstructure:"service_name"`
	Version       string `mapstructure:"version"`
	ProjectID     string `mapstructure:"project_id"`
	ProjectNumber string `mapstructure:"project_number"`
	Region        string `mapstructure:"region"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SERPConfig configures the search proxy client and batch pagination.
type SERPConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	PagesDefault   int    `mapstructure:"pages_default"`
	PerPageDefault int    `mapstructure:"per_page_default"`
	MaxPages       int    `mapstructure:"max_pages"`
	Concurrency    int    `mapstructure:"concurrency"`
	Country        string `mapstructure:"country"`
	Language       string `mapstructure:"language"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	Render         bool   `mapstructure:"render"`
}

// CrawlerConfig governs dispatcher and site-fetch pipeline behavior.
type CrawlerConfig struct {
	Concurrency      int      `mapstructure:"concurrency"`
	MaxSitesDefault  int      `mapstructure:"max_sites_default"`
	UserAgent        string   `mapstructure:"user_agent"`
	RespectRobots    bool     `mapstructure:"respect_robots"`
	GlobalQueueDepth int      `mapstructure:"queue_depth"`
	RateRPS          float64  `mapstructure:"rate_rps"`
	RateBurst        int      `mapstructure:"rate_burst"`
	DenyDomains      []string `mapstructure:"deny_domains"`
}

// HTTPConfig configures HTTP client retry behavior for site fetches.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	BodyThreshold int  `mapstructure:"body_threshold"`
}

// ExtractConfig tunes lead extraction.
type ExtractConfig struct {
	MaxKeywords   int     `mapstructure:"max_keywords"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// StorageConfig selects the blob backend and sets object naming.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	LocalDir    string `mapstructure:"local_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DSN          string `mapstructure:"dsn"`
	LeadsTable   string `mapstructure:"leads_table"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes progress event batching.
type ProgressConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	LogEnabled      bool `mapstructure:"log_enabled"`
	BufferSize      int  `mapstructure:"buffer_size"`
	BatchSize       int  `mapstructure:"batch_size"`
	FlushIntervalMs int  `mapstructure:"flush_interval_ms"`
	SinkTimeoutMs   int  `mapstructure:"sink_timeout_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("application.service_name", "leadscout")
	v.SetDefault("application.version", "dev")
	v.SetDefault("server.port", 8080)
	v.SetDefault("serp.pages_default", 1)
	v.SetDefault("serp.per_page_default", 10)
	v.SetDefault("serp.max_pages", 10)
	v.SetDefault("serp.concurrency", 3)
	v.SetDefault("serp.country", "us")
	v.SetDefault("serp.language", "en")
	v.SetDefault("serp.timeout_seconds", 30)
	v.SetDefault("serp.max_retries", 3)
	v.SetDefault("serp.render", false)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.max_sites_default", 10)
	v.SetDefault("crawler.user_agent", "leadscout-bot/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.rate_rps", 1)
	v.SetDefault("crawler.rate_burst", 1)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.body_threshold", 2048)
	v.SetDefault("extract.max_keywords", 10)
	v.SetDefault("extract.min_confidence", 0)
	v.SetDefault("db.leads_table", "leads")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", false)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.batch_size", 16)
	v.SetDefault("progress.flush_interval_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 2000)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.SERP.Endpoint == "" {
		return fmt.Errorf("serp.endpoint must be set")
	}
	if c.SERP.Concurrency <= 0 {
		return fmt.Errorf("serp.concurrency must be > 0")
	}
	if c.SERP.MaxPages <= 0 {
		return fmt.Errorf("serp.max_pages must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local backend")
	}
	if c.DB.Enabled && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	if c.Extract.MinConfidence < 0 || c.Extract.MinConfidence > 1 {
		return fmt.Errorf("extract.min_confidence must be between 0 and 1")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// SERPTimeout converts the SERP timeout config into a duration.
func (c Config) SERPTimeout() time.Duration {
	return time.Duration(c.SERP.TimeoutSeconds) * time.Second
}
