// Package app builds the long-lived services for a crawl run from Config and
// owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/api"
	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-crawler/internal/fetcher/tiered"
	"github.com/JakeFAU/catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/catalog-crawler/internal/headless/detector"
	"github.com/JakeFAU/catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawler/internal/llm"
	"github.com/JakeFAU/catalog-crawler/internal/policy/ratelimit"
	pubmemory "github.com/JakeFAU/catalog-crawler/internal/publisher/memory"
	"github.com/JakeFAU/catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
	"github.com/JakeFAU/catalog-crawler/internal/storage/postgres"
)

// DefaultTopic receives product notifications when no Pub/Sub topic is set.
const DefaultTopic = "products"

// App holds the services wired for one crawl.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store        crawler.CatalogStore
	ready        api.Pinger
	blobs        crawler.BlobStore
	publisher    crawler.Publisher
	renderer     crawler.Renderer
	orchestrator *crawler.Orchestrator

	closers []func() error
}

// New initializes every service named by cfg. It fails fast; anything opened
// before the failure is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err = a.initStore(ctx); err != nil {
		return nil, err
	}
	if err = a.initBlobStore(ctx); err != nil {
		return nil, err
	}
	if err = a.initPublisher(ctx); err != nil {
		return nil, err
	}
	if err = a.initRenderer(); err != nil {
		return nil, err
	}
	pipeline, err := a.newPipeline()
	if err != nil {
		return nil, err
	}

	topic := cfg.PubSub.TopicName
	if topic == "" {
		topic = DefaultTopic
	}
	a.orchestrator = crawler.NewOrchestrator(
		crawler.Config{
			RootURL:         cfg.Marketplace.StartURL,
			MarketplaceName: cfg.Marketplace.Name,
			Country:         cfg.Marketplace.Country,
			Workers:         cfg.Crawler.Workers,
			MaxPages:        cfg.Crawler.MaxPages,
			SnapshotPrefix:  cfg.Storage.Prefix,
			ContentType:     cfg.Storage.ContentType,
			Topic:           topic,
		},
		a.store,
		a.renderer,
		pipeline,
		a.blobs,
		a.publisher,
		ratelimit.New(ratelimit.Config{RPS: cfg.Crawler.RenderQPS}),
		sha256.New(),
		system.New(),
		uuid.New(),
		logger.Named("crawler"),
	)
	return a, nil
}

// OpenCatalog connects to the catalog named by cfg.DB without building the
// rest of the crawl. Callers must Close the returned store.
func OpenCatalog(ctx context.Context, cfg config.DBConfig) (*postgres.CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	store, err := postgres.NewCatalogStore(ctx, postgres.Config{
		DSN:             cfg.DSN,
		MaxConns:        int32(cfg.MaxConns),
		MaxConnLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return store, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("using in-memory catalog; products will not outlive the process")
		a.store = memory.NewCatalogStore()
		return nil
	}
	store, err := OpenCatalog(ctx, a.cfg.DB)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	if a.cfg.DB.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate catalog: %w", err)
		}
		a.logger.Info("catalog schema ensured")
	}
	a.store = store
	a.ready = store
	return nil
}

func (a *App) initBlobStore(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.StorageNone, "":
		return nil
	case config.StorageMemory:
		a.blobs = memory.NewBlobStore()
	case config.StorageLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.blobs = store
	case config.StorageGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, VerifyBucket: true})
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.blobs = store
	default:
		return fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
	a.logger.Info("page snapshots enabled", zap.String("backend", a.cfg.Storage.Backend))
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.publisher = pubmemory.New()
		return nil
	}
	pub, err := pubsub.Open(ctx, a.cfg.PubSub.ProjectID, a.logger.Named("pubsub"))
	if err != nil {
		return fmt.Errorf("init pubsub: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	a.publisher = pub
	return nil
}

func (a *App) initRenderer() error {
	static := func() crawler.Renderer {
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: a.cfg.Crawler.UserAgent,
			Timeout:   a.cfg.NavTimeout(),
		})
	}
	browser := func() (crawler.Renderer, error) {
		r, err := headless.NewChromedp(headless.Config{
			MaxParallel:       a.cfg.Render.MaxParallel,
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: a.cfg.NavTimeout(),
			IdleTimeout:       a.cfg.IdleTimeout(),
			Settle:            a.cfg.Settle(),
		})
		if err != nil {
			return nil, fmt.Errorf("init headless renderer: %w", err)
		}
		a.closers = append(a.closers, func() error { r.Close(); return nil })
		return r, nil
	}

	switch a.cfg.Render.Mode {
	case config.RenderStatic:
		a.renderer = static()
	case config.RenderHeadless, "":
		r, err := browser()
		if err != nil {
			return err
		}
		a.renderer = r
	case config.RenderAuto:
		r, err := browser()
		if err != nil {
			return err
		}
		a.renderer = tiered.New(
			static(),
			r,
			detector.NewHeuristic(a.cfg.Render.PromotionThreshold),
			a.logger.Named("render"),
		)
	default:
		return fmt.Errorf("unknown render mode: %s", a.cfg.Render.Mode)
	}
	return nil
}

func (a *App) newPipeline() (*extract.Pipeline, error) {
	mode, err := extract.ParseMode(a.cfg.Extract.Mode)
	if err != nil {
		return nil, fmt.Errorf("extract mode: %w", err)
	}
	var assistant crawler.StructuredExtractor
	if mode.NeedsAssistant() {
		client, err := llm.New(llm.Config{
			Endpoint:   a.cfg.LLM.Endpoint,
			APIKey:     a.cfg.LLM.APIKey,
			Model:      a.cfg.LLM.Model,
			Timeout:    a.cfg.LLMTimeout(),
			QPS:        a.cfg.LLM.QPS,
			MaxRetries: a.cfg.LLM.MaxRetries,
		}, a.logger.Named("llm"))
		if err != nil {
			return nil, fmt.Errorf("init llm client: %w", err)
		}
		assistant = client
	}
	pipeline, err := extract.NewPipeline(extract.Config{
		Mode:             mode,
		MarkupRequired:   toFields(a.cfg.Extract.MarkupRequired),
		AssistedRequired: toFields(a.cfg.Extract.AssistedRequired),
	}, assistant, a.logger.Named("extract"))
	if err != nil {
		return nil, fmt.Errorf("init extract pipeline: %w", err)
	}
	return pipeline, nil
}

func toFields(names []string) []crawler.Field {
	if len(names) == 0 {
		return nil
	}
	out := make([]crawler.Field, len(names))
	for i, n := range names {
		out[i] = crawler.Field(n)
	}
	return out
}

// Orchestrator returns the crawl driver.
func (a *App) Orchestrator() *crawler.Orchestrator {
	return a.orchestrator
}

// Store returns the catalog store.
func (a *App) Store() crawler.CatalogStore {
	return a.store
}

// Publisher returns the product notification publisher.
func (a *App) Publisher() crawler.Publisher {
	return a.publisher
}

// BlobStore returns the snapshot store, or nil when snapshots are disabled.
func (a *App) BlobStore() crawler.BlobStore {
	return a.blobs
}

// Server builds the ops HTTP server for this crawl.
func (a *App) Server() *api.Server {
	return api.NewServer(a.orchestrator, a.ready, a.logger.Named("api"))
}

// Close releases services in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}
