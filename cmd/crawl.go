package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawler/internal/app"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/logging"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the configured marketplace",
		Long: `Starts at marketplace.start_url, follows every same-domain link once and
stores each product page that passes validation. The run ends when no pages
remain, the page budget is spent, or the process receives SIGINT/SIGTERM.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logBanner(logger, cfg)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	g.Go(func() error {
		defer stopServer()
		summary, err := a.Orchestrator().Run(gctx)
		if err != nil {
			return err
		}
		logger.Info("crawl summary",
			zap.String("run_id", summary.RunID),
			zap.Int("visited", summary.Visited),
			zap.Int("products", summary.Products),
			zap.Int("failures", summary.Failures),
			zap.Duration("duration", summary.Duration),
		)
		return nil
	})
	if cfg.Server.Port > 0 {
		srv := a.Server()
		g.Go(func() error {
			return srv.ListenAndServe(serverCtx, fmt.Sprintf(":%d", cfg.Server.Port))
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("crawl stopped by signal")
			return nil
		}
		return fmt.Errorf("crawl: %w", err)
	}
	return nil
}

func logBanner(logger *zap.Logger, cfg config.Config) {
	catalog := "memory"
	if cfg.DB.DSN != "" {
		catalog = logging.RedactDSN(cfg.DB.DSN)
	}
	logger.Info("starting crawl",
		zap.String("marketplace", cfg.Marketplace.Name),
		zap.String("country", cfg.Marketplace.Country),
		zap.String("start_url", cfg.Marketplace.StartURL),
		zap.String("catalog", catalog),
		zap.String("render_mode", cfg.Render.Mode),
		zap.String("extract_mode", cfg.Extract.Mode),
		zap.Int("workers", cfg.Crawler.Workers),
		zap.Int("max_pages", cfg.Crawler.MaxPages),
		zap.String("storage", cfg.Storage.Backend),
		zap.Int("ops_port", cfg.Server.Port),
	)
}
