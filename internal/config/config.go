// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Render      RenderConfig      `mapstructure:"render"`
	Extract     ExtractConfig     `mapstructure:"extract"`
	LLM         LLMConfig         `mapstructure:"llm"`
	DB          DBConfig          `mapstructure:"db"`
	Storage     StorageConfig     `mapstructure:"storage"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// MarketplaceConfig identifies the site to crawl.
type MarketplaceConfig struct {
	Name     string `mapstructure:"name"`
	Country  string `mapstructure:"country"`
	StartURL string `mapstructure:"start_url"`
}

// CrawlerConfig governs the crawl loop.
type CrawlerConfig struct {
	Workers   int     `mapstructure:"workers"`
	UserAgent string  `mapstructure:"user_agent"`
	MaxPages  int     `mapstructure:"max_pages"`
	RenderQPS float64 `mapstructure:"render_qps"`
}

// Render modes.
const (
	RenderHeadless = "headless"
	RenderStatic   = "static"
	RenderAuto     = "auto"
)

// RenderConfig configures page rendering.
type RenderConfig struct {
	Mode               string `mapstructure:"mode"`
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds"`
	SettleMs           int    `mapstructure:"settle_ms"`
	IdleTimeoutSeconds int    `mapstructure:"idle_timeout_seconds"`
	MaxParallel        int    `mapstructure:"max_parallel"`
	PromotionThreshold int    `mapstructure:"promotion_threshold"`
}

// ExtractConfig selects the extraction pipeline and its validation gates.
type ExtractConfig struct {
	Mode             string   `mapstructure:"mode"`
	MarkupRequired   []string `mapstructure:"markup_required"`
	AssistedRequired []string `mapstructure:"assisted_required"`
}

// LLMConfig configures the structured extraction endpoint.
type LLMConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	QPS            float64 `mapstructure:"qps"`
	MaxRetries     int     `mapstructure:"max_retries"`
}

// DBConfig controls access to the catalog database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// Storage backends.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// StorageConfig sets paths and content types for page snapshots.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for product notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	// Registered so AutomaticEnv can override keys with no file value.
	v.SetDefault("marketplace.name", "")
	v.SetDefault("marketplace.country", "")
	v.SetDefault("marketplace.start_url", "")
	v.SetDefault("crawler.workers", 1)
	v.SetDefault("crawler.user_agent", "catalog-crawler/0.1")
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.render_qps", 0)
	v.SetDefault("render.mode", RenderHeadless)
	v.SetDefault("render.nav_timeout_seconds", 45)
	v.SetDefault("render.settle_ms", 2000)
	v.SetDefault("render.idle_timeout_seconds", 30)
	v.SetDefault("render.max_parallel", 1)
	v.SetDefault("render.promotion_threshold", 2048)
	v.SetDefault("extract.mode", "hybrid")
	v.SetDefault("extract.markup_required", []string{"name", "image", "url", "price", "currency"})
	v.SetDefault("extract.assisted_required", []string{"name", "price", "currency"})
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.qps", 1)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", false)
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.base_dir", "snapshots")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.port", 0)
	v.SetDefault("logging.development", true)
}

var knownFields = map[string]struct{}{
	"name": {}, "price": {}, "currency": {}, "image": {}, "url": {}, "code": {}, "description": {},
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validateStartURL(c.Marketplace.StartURL); err != nil {
		return err
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Crawler.RenderQPS < 0 {
		return fmt.Errorf("crawler.render_qps must be >= 0")
	}
	switch c.Render.Mode {
	case RenderHeadless, RenderStatic, RenderAuto:
	default:
		return fmt.Errorf("render.mode must be one of headless, static, auto")
	}
	if c.Render.Mode != RenderStatic && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when rendering headless")
	}
	if c.Render.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("render.nav_timeout_seconds must be > 0")
	}
	if c.Render.SettleMs < 0 {
		return fmt.Errorf("render.settle_ms must be >= 0")
	}
	switch c.Extract.Mode {
	case "markup", "assisted", "hybrid":
	default:
		return fmt.Errorf("extract.mode must be one of markup, assisted, hybrid")
	}
	if err := validateFields("extract.markup_required", c.Extract.MarkupRequired); err != nil {
		return err
	}
	if err := validateFields("extract.assisted_required", c.Extract.AssistedRequired); err != nil {
		return err
	}
	if c.Extract.Mode != "markup" && c.LLM.Model == "" {
		return fmt.Errorf("llm.model must be set when extract.mode uses the assisted stage")
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of none, memory, local, gcs")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}
	return nil
}

func validateStartURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("marketplace.start_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("marketplace.start_url must be an absolute http(s) URL")
	}
	return nil
}

func validateFields(key string, fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("%s must not be empty", key)
	}
	for _, f := range fields {
		if _, ok := knownFields[f]; !ok {
			return fmt.Errorf("%s: unknown field %q", key, f)
		}
	}
	return nil
}

// NavTimeout returns the render navigation timeout.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Render.NavTimeoutSeconds) * time.Second
}

// IdleTimeout returns the network idle timeout.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.Render.IdleTimeoutSeconds) * time.Second
}

// Settle returns the post-idle pause.
func (c Config) Settle() time.Duration {
	return time.Duration(c.Render.SettleMs) * time.Millisecond
}

// LLMTimeout returns the per-request LLM timeout.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}
