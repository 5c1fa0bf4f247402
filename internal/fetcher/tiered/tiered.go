// Package tiered renders with a cheap static fetch and promotes to a
// headless browser when the static HTML looks client-rendered.
package tiered

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Detector decides whether a statically fetched page needs JavaScript.
type Detector interface {
	ShouldPromote(page crawler.Page) bool
}

// Renderer implements crawler.Renderer by chaining a static and a headless renderer.
type Renderer struct {
	static   crawler.Renderer
	headless crawler.Renderer
	detector Detector
	logger   *zap.Logger
}

var _ crawler.Renderer = (*Renderer)(nil)

// New builds a tiered Renderer.
func New(static, headless crawler.Renderer, detector Detector, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{static: static, headless: headless, detector: detector, logger: logger}
}

// Render tries the static renderer first. A static failure or a promotion
// decision sends the URL to the headless renderer.
func (r *Renderer) Render(ctx context.Context, url string) (crawler.Page, error) {
	page, err := r.static.Render(ctx, url)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return crawler.Page{}, fmt.Errorf("static render: %w", err)
		}
		r.logger.Debug("static render failed, promoting", zap.String("url", url), zap.Error(err))
	case !r.detector.ShouldPromote(page):
		return page, nil
	default:
		r.logger.Debug("promoting to headless", zap.String("url", url), zap.Int("bytes", len(page.Body)))
	}

	rendered, err := r.headless.Render(ctx, url)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("headless render: %w", err)
	}
	return rendered, nil
}
