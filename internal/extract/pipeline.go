// Package extract turns a rendered page into a validated product Candidate.
//
// Three stages are available. Microdata reads a schema.org Product scope,
// social reads og:/product:/twitter: meta tags, and assisted hands the page's
// meta data to a StructuredExtractor. Every stage result passes through a
// validation gate whose required fields are configured per path.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// Mode selects which stages a Pipeline runs.
type Mode string

// Pipeline modes.
const (
	// ModeMarkup runs microdata, falling back to social meta tags.
	ModeMarkup Mode = "markup"
	// ModeAssisted runs only the assisted stage.
	ModeAssisted Mode = "assisted"
	// ModeHybrid runs the markup path and, when its candidate fails the gate, the assisted stage.
	ModeHybrid Mode = "hybrid"
)

// NeedsAssistant reports whether the mode calls a StructuredExtractor.
func (m Mode) NeedsAssistant() bool {
	return m == ModeAssisted || m == ModeHybrid
}

// ParseMode converts a configuration value into a Mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeMarkup:
		return ModeMarkup, nil
	case ModeAssisted:
		return ModeAssisted, nil
	default:
		return "", fmt.Errorf("unknown extract mode %q", raw)
	}
}

// Default required sets for each path.
var (
	DefaultMarkupRequired = []crawler.Field{
		crawler.FieldName, crawler.FieldImage, crawler.FieldURL, crawler.FieldPrice, crawler.FieldCurrency,
	}
	DefaultAssistedRequired = []crawler.Field{
		crawler.FieldName, crawler.FieldPrice, crawler.FieldCurrency,
	}
)

// Config controls a Pipeline.
type Config struct {
	Mode             Mode
	MarkupRequired   []crawler.Field
	AssistedRequired []crawler.Field
	// PromptTemplate overrides DefaultPromptTemplate when set.
	PromptTemplate string
}

// Pipeline implements crawler.Extractor.
type Pipeline struct {
	cfg       Config
	prompt    *template.Template
	assistant crawler.StructuredExtractor
	logger    *zap.Logger
}

var _ crawler.Extractor = (*Pipeline)(nil)

// NewPipeline validates cfg and builds a Pipeline. assistant may be nil only
// in markup mode.
func NewPipeline(cfg Config, assistant crawler.StructuredExtractor, logger *zap.Logger) (*Pipeline, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeHybrid
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if len(cfg.MarkupRequired) == 0 {
		cfg.MarkupRequired = DefaultMarkupRequired
	}
	if len(cfg.AssistedRequired) == 0 {
		cfg.AssistedRequired = DefaultAssistedRequired
	}
	if cfg.Mode.NeedsAssistant() && assistant == nil {
		return nil, fmt.Errorf("extract mode %q requires a structured extractor", cfg.Mode)
	}
	text := cfg.PromptTemplate
	if text == "" {
		text = DefaultPromptTemplate
	}
	prompt, err := template.New("prompt").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, prompt: prompt, assistant: assistant, logger: logger}, nil
}

// Mode returns the configured mode.
func (p *Pipeline) Mode() Mode {
	return p.cfg.Mode
}

// Extract runs the configured stages against page. A miss is (Candidate{}, false).
func (p *Pipeline) Extract(ctx context.Context, page crawler.Page, tags map[string]string) (crawler.Candidate, bool) {
	logger := p.logger.With(zap.String("url", page.URL))
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		logger.Warn("parse page for extraction", zap.Error(fmt.Errorf("%w: %w", crawler.ErrExtractionFailure, err)))
		return crawler.Candidate{}, false
	}

	if p.cfg.Mode != ModeAssisted {
		candidate := markupCandidate(doc)
		if Validate(candidate, p.cfg.MarkupRequired) {
			metrics.ObserveExtraction(string(candidate.Source), "hit")
			return candidate, true
		}
		metrics.ObserveExtraction(string(candidate.Source), "miss")
		logger.Debug("markup candidate rejected",
			zap.String("stage", string(candidate.Source)),
			zap.Any("missing", candidate.Missing(p.cfg.MarkupRequired)),
		)
		if p.cfg.Mode == ModeMarkup {
			return crawler.Candidate{}, false
		}
	}

	candidate, err := p.assisted(ctx, doc, page, tags)
	if err != nil {
		metrics.ObserveExtraction(string(crawler.StageAssisted), "error")
		logger.Warn("assisted extraction failed", zap.Error(err))
		return crawler.Candidate{}, false
	}
	if !Validate(candidate, p.cfg.AssistedRequired) {
		metrics.ObserveExtraction(string(crawler.StageAssisted), "miss")
		logger.Debug("assisted candidate rejected", zap.Any("missing", candidate.Missing(p.cfg.AssistedRequired)))
		return crawler.Candidate{}, false
	}
	metrics.ObserveExtraction(string(crawler.StageAssisted), "hit")
	return candidate, true
}

// Validate reports whether every required field of c is non-empty.
func Validate(c crawler.Candidate, required []crawler.Field) bool {
	return c.Complete(required)
}

// markupCandidate runs the microdata stage and, when it finds no
// properties at all, the social meta stage.
func markupCandidate(doc *goquery.Document) crawler.Candidate {
	if props := microdataProperties(doc); len(props) > 0 {
		return microdataCandidate(props)
	}
	return socialCandidate(doc)
}
