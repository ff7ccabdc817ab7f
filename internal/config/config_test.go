package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Crawl.Depth != 1 {
		t.Fatalf("expected default depth 1, got %d", cfg.Crawl.Depth)
	}
	if cfg.Crawl.MaxPages != 100 {
		t.Fatalf("expected default max pages 100, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.Selector != "body" {
		t.Fatalf("expected default selector body, got %q", cfg.Crawl.Selector)
	}
	if !cfg.Crawl.RespectRobots {
		t.Fatal("expected robots to be respected by default")
	}
	if cfg.Crawl.WaitTimeMs != 1000 {
		t.Fatalf("expected default wait 1000ms, got %d", cfg.Crawl.WaitTimeMs)
	}
	if cfg.Synthesis.Task != "summarize" {
		t.Fatalf("expected default task summarize, got %q", cfg.Synthesis.Task)
	}
	if cfg.Synthesis.ChunkSize != 30000 {
		t.Fatalf("expected default chunk size 30000, got %d", cfg.Synthesis.ChunkSize)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("expected default storage backend memory, got %q", cfg.Storage.Backend)
	}
	if cfg.Anthropic.APIKey != "" {
		t.Fatal("expected no API key by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawl:
  depth: 3
  max_pages: 25
  selector: "main#content"
  respect_robots: false
  wait_time_ms: 250
  user_agent: test-agent
  concurrency: 4
  fetch_timeout_seconds: 45
headless:
  enabled: false
synthesis:
  task: extract-facts
  chunk_size: 5000
anthropic:
  model: claude-3-5-haiku-20241022
  max_tokens: 1024
  temperature: 0.2
storage:
  backend: local
  local_dir: /tmp/snapshots
  prefix: runs
logging:
  development: false
  level: warn
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawl.Depth != 3 || cfg.Crawl.MaxPages != 25 {
		t.Fatalf("expected crawl overrides to apply, got %+v", cfg.Crawl)
	}
	if cfg.Crawl.RespectRobots {
		t.Fatal("expected respect_robots override to false")
	}
	if cfg.Crawl.Selector != "main#content" {
		t.Fatalf("expected selector override, got %q", cfg.Crawl.Selector)
	}
	if cfg.Headless.Enabled {
		t.Fatal("expected headless disabled")
	}
	if cfg.Synthesis.Task != "extract-facts" || cfg.Synthesis.ChunkSize != 5000 {
		t.Fatalf("expected synthesis overrides to apply, got %+v", cfg.Synthesis)
	}
	if cfg.Anthropic.Model != "claude-3-5-haiku-20241022" || cfg.Anthropic.Temperature != 0.2 {
		t.Fatalf("expected anthropic overrides to apply, got %+v", cfg.Anthropic)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.LocalDir != "/tmp/snapshots" {
		t.Fatalf("expected storage overrides to apply, got %+v", cfg.Storage)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected logging overrides to apply, got %+v", cfg.Logging)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Crawl: CrawlConfig{
			MaxPages:        100,
			Concurrency:     2,
			FetchTimeoutSec: 30,
		},
		Synthesis: SynthesisConfig{ChunkSize: 30000, Concurrency: 3},
		Anthropic: AnthropicConfig{MaxTokens: 4096, Temperature: 0.7},
		Storage:   StorageConfig{Backend: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "negative depth",
			cfg: func() Config {
				c := base
				c.Crawl.Depth = -1
				return c
			}(),
			want: "crawl.depth",
		},
		{
			name: "zero max pages",
			cfg: func() Config {
				c := base
				c.Crawl.MaxPages = 0
				return c
			}(),
			want: "crawl.max_pages",
		},
		{
			name: "invalid chunk size",
			cfg: func() Config {
				c := base
				c.Synthesis.ChunkSize = 0
				return c
			}(),
			want: "synthesis.chunk_size",
		},
		{
			name: "temperature out of range",
			cfg: func() Config {
				c := base
				c.Anthropic.Temperature = 1.5
				return c
			}(),
			want: "anthropic.temperature",
		},
		{
			name: "unknown storage backend",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "s3"
				return c
			}(),
			want: "storage.backend",
		},
		{
			name: "gcs without bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "gcs"
				return c
			}(),
			want: "storage.bucket",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
