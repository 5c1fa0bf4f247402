package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
marketplace:
  name: Corner Shop
  country: ES
  start_url: https://shop.test/
crawler:
  workers: 4
  user_agent: real-agent
  max_pages: 500
  render_qps: 2.5
render:
  mode: auto
  nav_timeout_seconds: 30
  settle_ms: 1500
  idle_timeout_seconds: 10
  max_parallel: 2
  promotion_threshold: 4096
extract:
  mode: assisted
  assisted_required: [name, price]
llm:
  model: local-model
  endpoint: http://localhost:8000/v1/chat/completions
  qps: 0.5
db:
  dsn: postgres://crawler@localhost/catalog
  max_conns: 8
  migrate: true
storage:
  backend: local
  base_dir: /tmp/snapshots
  prefix: raw
pubsub:
  project_id: proj
  topic_name: products
server:
  port: 9090
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Marketplace.Name != "Corner Shop" || cfg.Marketplace.StartURL != "https://shop.test/" {
		t.Fatalf("unexpected marketplace: %+v", cfg.Marketplace)
	}
	if cfg.Crawler.Workers != 4 || cfg.Crawler.MaxPages != 500 || cfg.Crawler.RenderQPS != 2.5 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Render.Mode != RenderAuto || cfg.Settle() != 1500*time.Millisecond {
		t.Fatalf("expected render overrides to apply: %+v", cfg.Render)
	}
	if cfg.NavTimeout() != 30*time.Second || cfg.IdleTimeout() != 10*time.Second {
		t.Fatalf("unexpected timeouts nav=%v idle=%v", cfg.NavTimeout(), cfg.IdleTimeout())
	}
	if cfg.Extract.Mode != "assisted" || strings.Join(cfg.Extract.AssistedRequired, ",") != "name,price" {
		t.Fatalf("unexpected extract config: %+v", cfg.Extract)
	}
	if len(cfg.Extract.MarkupRequired) != 5 {
		t.Fatalf("expected default markup required set, got %v", cfg.Extract.MarkupRequired)
	}
	if cfg.LLM.Model != "local-model" || cfg.LLMTimeout() != 60*time.Second {
		t.Fatalf("unexpected llm config: %+v", cfg.LLM)
	}
	if !cfg.DB.Migrate || cfg.DB.MaxConns != 8 {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.Storage.Backend != StorageLocal || cfg.Storage.ContentType != "text/html; charset=utf-8" {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Server.Port != 9090 || cfg.Logging.Development {
		t.Fatalf("unexpected server/logging config")
	}
}

func TestLoadDefaultsFromEnv(t *testing.T) {
	t.Setenv("CRAWLER_MARKETPLACE_START_URL", "https://env.test")
	t.Setenv("CRAWLER_CRAWLER_WORKERS", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Marketplace.StartURL != "https://env.test" || cfg.Crawler.Workers != 3 {
		t.Fatalf("expected env overrides, got %+v", cfg)
	}
	if cfg.Render.Mode != RenderHeadless || cfg.Settle() != 2*time.Second {
		t.Fatalf("expected headless defaults, got %+v", cfg.Render)
	}
	if cfg.Extract.Mode != "hybrid" || cfg.Storage.Backend != StorageNone || cfg.Server.Port != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Marketplace: MarketplaceConfig{StartURL: "https://shop.test"},
		Crawler:     CrawlerConfig{Workers: 1},
		Render:      RenderConfig{Mode: RenderHeadless, MaxParallel: 1, NavTimeoutSeconds: 10},
		Extract: ExtractConfig{
			Mode:             "hybrid",
			MarkupRequired:   []string{"name"},
			AssistedRequired: []string{"name"},
		},
		LLM:     LLMConfig{Model: "m"},
		Storage: StorageConfig{Backend: StorageNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing start url", mutate: func(c *Config) { c.Marketplace.StartURL = "" }, want: "marketplace.start_url"},
		{name: "relative start url", mutate: func(c *Config) { c.Marketplace.StartURL = "/shop" }, want: "marketplace.start_url"},
		{name: "invalid workers", mutate: func(c *Config) { c.Crawler.Workers = 0 }, want: "crawler.workers"},
		{name: "negative max pages", mutate: func(c *Config) { c.Crawler.MaxPages = -1 }, want: "crawler.max_pages"},
		{name: "unknown render mode", mutate: func(c *Config) { c.Render.Mode = "puppeteer" }, want: "render.mode"},
		{name: "headless missing max parallel", mutate: func(c *Config) { c.Render.MaxParallel = 0 }, want: "render.max_parallel"},
		{name: "invalid nav timeout", mutate: func(c *Config) { c.Render.NavTimeoutSeconds = 0 }, want: "render.nav_timeout_seconds"},
		{name: "unknown extract mode", mutate: func(c *Config) { c.Extract.Mode = "ai" }, want: "extract.mode"},
		{name: "unknown required field", mutate: func(c *Config) { c.Extract.MarkupRequired = []string{"sku"} }, want: "extract.markup_required"},
		{name: "empty assisted set", mutate: func(c *Config) { c.Extract.AssistedRequired = nil }, want: "extract.assisted_required"},
		{name: "assisted without model", mutate: func(c *Config) { c.LLM.Model = "" }, want: "llm.model"},
		{name: "local without dir", mutate: func(c *Config) { c.Storage = StorageConfig{Backend: StorageLocal} }, want: "storage.base_dir"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage = StorageConfig{Backend: StorageGCS} }, want: "storage.gcs_bucket"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{name: "pubsub without topic", mutate: func(c *Config) { c.PubSub.ProjectID = "p" }, want: "pubsub.topic_name"},
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 70000 }, want: "server.port"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			c.Extract.MarkupRequired = append([]string(nil), base.Extract.MarkupRequired...)
			c.Extract.AssistedRequired = append([]string(nil), base.Extract.AssistedRequired...)
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestMarkupModeDoesNotNeedModel(t *testing.T) {
	t.Parallel()

	c := Config{
		Marketplace: MarketplaceConfig{StartURL: "http://shop.test"},
		Crawler:     CrawlerConfig{Workers: 1},
		Render:      RenderConfig{Mode: RenderStatic, NavTimeoutSeconds: 5},
		Extract:     ExtractConfig{Mode: "markup", MarkupRequired: []string{"name"}, AssistedRequired: []string{"name"}},
		Storage:     StorageConfig{Backend: StorageMemory},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
