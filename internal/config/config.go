// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Progress  ProgressConfig  `mapstructure:"progress"`
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

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlConfig holds the per-job crawl defaults and the worker pool sizing.
// Depth, MaxPages, Selector, RespectRobots and WaitTimeMs can be overridden
// per request.
type CrawlConfig struct {
	Depth           int     `mapstructure:"depth"`
	MaxPages        int     `mapstructure:"max_pages"`
	Selector        string  `mapstructure:"selector"`
	RespectRobots   bool    `mapstructure:"respect_robots"`
	WaitTimeMs      int     `mapstructure:"wait_time_ms"`
	UserAgent       string  `mapstructure:"user_agent"`
	Concurrency     int     `mapstructure:"concurrency"`
	QueueDepth      int     `mapstructure:"queue_depth"`
	FetchTimeoutSec int     `mapstructure:"fetch_timeout_seconds"`
	JobTimeoutSec   int     `mapstructure:"job_timeout_seconds"`
	PerDomainRPS    float64 `mapstructure:"per_domain_rps"`
	PerDomainBurst  int     `mapstructure:"per_domain_burst"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	ProbeFirst    bool `mapstructure:"probe_first"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	MinHTMLBytes  int  `mapstructure:"min_html_bytes"`
}

// SynthesisConfig governs the chunked generation pipeline.
type SynthesisConfig struct {
	Task        string `mapstructure:"task"`
	ChunkSize   int    `mapstructure:"chunk_size"`
	Concurrency int    `mapstructure:"concurrency"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

// AnthropicConfig holds generation capability credentials and parameters.
// APIKey is expected from the environment (SITEGIST_ANTHROPIC_API_KEY) and
// must never be logged.
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Version     string  `mapstructure:"version"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	TimeoutSec  int     `mapstructure:"timeout_seconds"`
}

// StorageConfig selects and configures the snapshot blob backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	Bucket      string `mapstructure:"bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DatabaseConfig controls the optional Postgres job store.
type DatabaseConfig struct {
	DSN                string `mapstructure:"dsn"`
	Table              string `mapstructure:"table"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMin int    `mapstructure:"max_conn_lifetime_minutes"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	LogEnabled    bool                `mapstructure:"log_enabled"`
	BufferSize    int                 `mapstructure:"buffer_size"`
	SinkTimeoutMs int                 `mapstructure:"sink_timeout_ms"`
	Batch         ProgressBatchConfig `mapstructure:"batch"`
}

// ProgressBatchConfig bounds event batches flushed to sinks.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEGIST")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawl.depth", 1)
	v.SetDefault("crawl.max_pages", 100)
	v.SetDefault("crawl.selector", "body")
	v.SetDefault("crawl.respect_robots", true)
	v.SetDefault("crawl.wait_time_ms", 1000)
	v.SetDefault("crawl.user_agent", "sitegist-bot/0.1")
	v.SetDefault("crawl.concurrency", 2)
	v.SetDefault("crawl.queue_depth", 64)
	v.SetDefault("crawl.fetch_timeout_seconds", 30)
	v.SetDefault("crawl.job_timeout_seconds", 600)
	v.SetDefault("crawl.per_domain_rps", 1)
	v.SetDefault("crawl.per_domain_burst", 1)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.probe_first", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.min_html_bytes", 2048)
	v.SetDefault("synthesis.task", "summarize")
	v.SetDefault("synthesis.chunk_size", 30000)
	v.SetDefault("synthesis.concurrency", 3)
	v.SetDefault("synthesis.max_retries", 3)
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic.version", "2023-06-01")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.7)
	v.SetDefault("anthropic.timeout_seconds", 120)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.local_dir", "./snapshots")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("database.table", "jobs")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime_minutes", 30)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.log_enabled", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.sink_timeout_ms", 2000)
	v.SetDefault("progress.batch.max_events", 64)
	v.SetDefault("progress.batch.max_wait_ms", 500)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawl.Depth < 0 {
		return fmt.Errorf("crawl.depth must be >= 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.WaitTimeMs < 0 {
		return fmt.Errorf("crawl.wait_time_ms must be >= 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.FetchTimeoutSec <= 0 {
		return fmt.Errorf("crawl.fetch_timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Synthesis.ChunkSize <= 0 {
		return fmt.Errorf("synthesis.chunk_size must be > 0")
	}
	if c.Synthesis.Concurrency <= 0 {
		return fmt.Errorf("synthesis.concurrency must be > 0")
	}
	if c.Anthropic.MaxTokens <= 0 {
		return fmt.Errorf("anthropic.max_tokens must be > 0")
	}
	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		return fmt.Errorf("anthropic.temperature must be in [0, 1]")
	}
	switch c.Storage.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Storage.Backend == "gcs" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket must be set when storage.backend is gcs")
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set when storage.backend is local")
	}
	return nil
}

// FetchTimeout returns the per-fetch budget as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawl.FetchTimeoutSec) * time.Second
}

// JobBudget returns the whole-job budget as a duration.
func (c Config) JobBudget() time.Duration {
	return time.Duration(c.Crawl.JobTimeoutSec) * time.Second
}
