package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Config controls a crawl run.
type Config struct {
	RootURL         string
	MarketplaceName string
	Country         string
	Workers         int
	MaxPages        int
	SnapshotPrefix  string
	ContentType     string
	Topic           string
}

// Orchestrator drives a Frontier with a Renderer, an Extractor and a
// CatalogStore until no pending URLs remain.
type Orchestrator struct {
	cfg       Config
	store     CatalogStore
	renderer  Renderer
	extractor Extractor
	blobStore BlobStore
	publisher Publisher
	limiter   Limiter
	hasher    Hasher
	clock     Clock
	idGen     IDGenerator
	logger    *zap.Logger

	frontier *Frontier

	mu    sync.RWMutex
	state State
	runID string

	rendered atomic.Int64
	skipped  atomic.Int64
	products atomic.Int64
	failures atomic.Int64
}

// NewOrchestrator constructs an Orchestrator. blobStore, publisher and
// limiter are optional.
func NewOrchestrator(
	cfg Config,
	store CatalogStore,
	renderer Renderer,
	extractor Extractor,
	blobStore BlobStore,
	publisher Publisher,
	limiter Limiter,
	hasher Hasher,
	clock Clock,
	idGen IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		renderer:  renderer,
		extractor: extractor,
		blobStore: blobStore,
		publisher: publisher,
		limiter:   limiter,
		hasher:    hasher,
		clock:     clock,
		idGen:     idGen,
		logger:    logger,
		frontier:  NewFrontier(),
		state:     StateInit,
	}
}

// Frontier exposes the run's frontier for inspection.
func (o *Orchestrator) Frontier() *Frontier {
	return o.frontier
}

// Progress returns a snapshot of the run.
func (o *Orchestrator) Progress() Progress {
	o.mu.RLock()
	state, runID := o.state, o.runID
	o.mu.RUnlock()
	visited, pending := o.frontier.Size()
	return Progress{
		RunID:    runID,
		State:    state,
		Visited:  visited,
		Pending:  pending,
		Rendered: int(o.rendered.Load()),
		Products: int(o.products.Load()),
		Failures: int(o.failures.Load()),
	}
}

// Run performs the crawl. Only marketplace resolution failures and context
// cancellation are returned as errors; per-page problems are logged.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := o.clock.Now()
	runID, err := o.idGen.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	o.mu.Lock()
	o.runID = runID
	o.mu.Unlock()
	logger := o.logger.With(zap.String("run_id", runID))

	marketplace, err := o.resolveMarketplace(ctx)
	if err != nil {
		logger.Error("marketplace resolution failed", zap.String("url", o.cfg.RootURL), zap.Error(err))
		return Summary{RunID: runID}, err
	}
	logger.Info("crawl starting",
		zap.Int64("marketplace_id", marketplace.ID),
		zap.String("marketplace", marketplace.Name),
		zap.String("country", marketplace.Country),
		zap.String("root_url", o.cfg.RootURL),
		zap.Int("workers", o.cfg.Workers),
	)

	o.processURL(ctx, marketplace, o.cfg.RootURL, logger)

	o.setState(StateRunning)
	runErr := o.drain(ctx, marketplace, logger)
	o.setState(StateDrained)

	visited, pending := o.frontier.Size()
	summary := Summary{
		RunID:       runID,
		Marketplace: marketplace,
		Visited:     visited,
		Rendered:    int(o.rendered.Load()),
		Skipped:     int(o.skipped.Load()),
		Products:    int(o.products.Load()),
		Failures:    int(o.failures.Load()),
		Duration:    o.clock.Now().Sub(start),
	}
	logger.Info("crawl finished",
		zap.Int("visited", summary.Visited),
		zap.Int("pending", pending),
		zap.Int("rendered", summary.Rendered),
		zap.Int("skipped", summary.Skipped),
		zap.Int("products", summary.Products),
		zap.Int("failures", summary.Failures),
		zap.Duration("duration", summary.Duration),
	)
	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}

func (o *Orchestrator) resolveMarketplace(ctx context.Context) (Marketplace, error) {
	if o.store == nil {
		return Marketplace{}, fmt.Errorf("%w: no catalog store configured", ErrMarketplaceResolution)
	}
	marketplace, found, err := o.store.FindMarketplaceByURL(ctx, o.cfg.RootURL)
	if err != nil {
		return Marketplace{}, fmt.Errorf("%w: find marketplace: %w", ErrMarketplaceResolution, err)
	}
	if found {
		return marketplace, nil
	}
	marketplace, err = o.store.CreateMarketplace(ctx, o.cfg.MarketplaceName, o.cfg.Country, o.cfg.RootURL)
	if err != nil {
		return Marketplace{}, fmt.Errorf("%w: create marketplace: %w", ErrMarketplaceResolution, err)
	}
	o.logger.Info("marketplace registered",
		zap.Int64("marketplace_id", marketplace.ID),
		zap.String("url", marketplace.URL),
	)
	return marketplace, nil
}

// drain feeds claimed URLs to a bounded worker pool until the frontier has
// nothing pending and no work is in flight.
func (o *Orchestrator) drain(ctx context.Context, marketplace Marketplace, logger *zap.Logger) error {
	jobs := make(chan string, o.cfg.Workers)
	done := make(chan struct{}, o.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerLogger *zap.Logger) {
			defer wg.Done()
			for url := range jobs {
				o.processURL(ctx, marketplace, url, workerLogger)
				done <- struct{}{}
			}
		}(logger.With(zap.Int("worker", i)))
	}

	inFlight := 0
	budgetLogged := false
	for {
		for inFlight < o.cfg.Workers && ctx.Err() == nil {
			if o.budgetExhausted() {
				if !budgetLogged {
					_, pending := o.frontier.Size()
					logger.Warn("page budget exhausted", zap.Int("max_pages", o.cfg.MaxPages), zap.Int("pending", pending))
					budgetLogged = true
				}
				break
			}
			url, ok := o.frontier.Claim()
			if !ok {
				break
			}
			jobs <- url
			inFlight++
		}
		if inFlight == 0 {
			break
		}
		<-done
		inFlight--
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl interrupted: %w", err)
	}
	return nil
}

func (o *Orchestrator) budgetExhausted() bool {
	return o.cfg.MaxPages > 0 && o.rendered.Load() >= int64(o.cfg.MaxPages)
}

// processURL handles one page end to end. The URL is marked visited only
// after extraction and persistence have finished, whatever the outcome.
func (o *Orchestrator) processURL(ctx context.Context, marketplace Marketplace, url string, logger *zap.Logger) {
	defer func() {
		o.frontier.MarkVisited(url)
		visited, pending := o.frontier.Size()
		metrics.SetFrontier(visited, pending)
	}()
	pageLogger := logger.With(zap.String("url", url))
	site := metrics.SanitizeSite(url)

	if o.frontier.Visited(url) {
		o.skipped.Add(1)
		metrics.ObservePage(site, "skipped", 0)
		pageLogger.Debug("page already visited")
		return
	}
	existing, found, err := o.store.FindProductByURL(ctx, marketplace.ID, url)
	if err != nil {
		o.fail(pageLogger, site, pageError(url, "lookup", ErrStoreFailure, err))
		return
	}
	if found {
		o.skipped.Add(1)
		metrics.ObservePage(site, "skipped", 0)
		pageLogger.Info("product ignored", zap.Int64("product_id", existing.ID), zap.String("name", existing.Name))
		return
	}

	visited, pending := o.frontier.Size()
	pageLogger.Info("evaluating page", zap.Int("visited", visited), zap.Int("pending", pending))

	page, err := o.render(ctx, url)
	if err != nil {
		o.fail(pageLogger, site, pageError(url, "render", ErrRenderFailure, err))
		return
	}
	o.rendered.Add(1)
	metrics.ObservePage(site, "rendered", len(page.Body))

	o.harvestLinks(page, pageLogger)

	candidate, ok := o.extractor.Extract(ctx, page, o.contextTags(marketplace, url))
	if !ok {
		pageLogger.Debug("no product on page")
		return
	}
	pageLogger.Info("product detected", zap.String("name", candidate.Name), zap.String("source", string(candidate.Source)))

	if err := o.persist(ctx, marketplace, page, candidate, pageLogger); err != nil {
		o.fail(pageLogger, site, err)
	}
}

func (o *Orchestrator) render(ctx context.Context, url string) (Page, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, url); err != nil {
			return Page{}, err
		}
	}
	start := time.Now()
	page, err := o.renderer.Render(ctx, url)
	if err != nil {
		return Page{}, err
	}
	if page.Duration == 0 {
		page.Duration = time.Since(start)
	}
	if page.URL == "" {
		page.URL = url
	}
	return page, nil
}

func (o *Orchestrator) harvestLinks(page Page, logger *zap.Logger) {
	links, err := ExtractLinks(page.Body, o.cfg.RootURL)
	if err != nil {
		logger.Warn("link extraction failed", zap.Error(fmt.Errorf("%w: %w", ErrExtractionFailure, err)))
		return
	}
	added := 0
	for _, link := range links {
		if o.frontier.Enqueue(link) {
			added++
		}
	}
	logger.Debug("links extracted", zap.Int("found", len(links)), zap.Int("enqueued", added))
}

func (o *Orchestrator) persist(
	ctx context.Context,
	marketplace Marketplace,
	page Page,
	candidate Candidate,
	logger *zap.Logger,
) error {
	if candidate.URL == "" {
		candidate.URL = page.URL
	}
	existing, found, err := o.store.FindProductByURL(ctx, marketplace.ID, candidate.URL)
	if err != nil {
		return pageError(page.URL, "lookup", ErrStoreFailure, err)
	}
	if found {
		logger.Info("product already stored", zap.Int64("product_id", existing.ID), zap.String("product_url", candidate.URL))
		return nil
	}
	product, err := o.store.CreateProduct(ctx, candidate, marketplace.ID)
	if err != nil {
		return pageError(page.URL, "persist", ErrStoreFailure, err)
	}
	o.products.Add(1)
	metrics.ObserveProduct(metrics.SanitizeSite(page.URL), string(candidate.Source))
	logger.Info("product saved", zap.Int64("product_id", product.ID), zap.String("name", product.Name))

	snapshotURI := o.snapshot(ctx, marketplace, page, logger)
	o.notify(ctx, product, snapshotURI, logger)
	return nil
}

func (o *Orchestrator) snapshot(ctx context.Context, marketplace Marketplace, page Page, logger *zap.Logger) string {
	if o.blobStore == nil || o.hasher == nil {
		return ""
	}
	hash, err := o.hasher.Hash(page.Body)
	if err != nil {
		logger.Warn("hash snapshot failed", zap.Error(err))
		return ""
	}
	uri, err := o.blobStore.PutObject(ctx, o.snapshotPath(marketplace.ID, hash), o.cfg.ContentType, bytes.NewReader(page.Body))
	if err != nil {
		logger.Warn("store snapshot failed", zap.Error(err))
		return ""
	}
	return uri
}

func (o *Orchestrator) snapshotPath(marketplaceID int64, hash string) string {
	prefix := strings.Trim(o.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%d/%s.html", marketplaceID, hash)
	}
	return fmt.Sprintf("%s/%d/%s.html", prefix, marketplaceID, hash)
}

func (o *Orchestrator) notify(ctx context.Context, product Product, snapshotURI string, logger *zap.Logger) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	o.mu.RLock()
	runID := o.runID
	o.mu.RUnlock()
	payload := map[string]any{
		"run_id":         runID,
		"product_id":     product.ID,
		"marketplace_id": product.MarketplaceID,
		"url":            product.URL,
		"name":           product.Name,
		"price":          product.Price,
		"currency":       product.Currency,
		"snapshot_uri":   snapshotURI,
		"timestamp":      o.clock.Now().Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		logger.Warn("publish product failed", zap.Error(err))
	}
}

func (o *Orchestrator) contextTags(marketplace Marketplace, url string) map[string]string {
	return map[string]string{
		"marketplace":     marketplace.Name,
		"country":         marketplace.Country,
		"marketplace_url": marketplace.URL,
		"page_url":        url,
	}
}

func (o *Orchestrator) fail(logger *zap.Logger, site string, err error) {
	o.failures.Add(1)
	metrics.ObservePage(site, "failed", 0)
	var pe *PageError
	if errors.As(err, &pe) {
		logger.Error("page skipped", zap.String("stage", pe.Stage), zap.Error(err))
		return
	}
	logger.Error("page skipped", zap.Error(err))
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}
