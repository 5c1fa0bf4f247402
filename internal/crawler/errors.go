package crawler

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the crawl. Only ErrMarketplaceResolution stops a run.
var (
	ErrRenderFailure         = errors.New("render failure")
	ErrExtractionFailure     = errors.New("extraction failure")
	ErrStoreFailure          = errors.New("store failure")
	ErrMarketplaceResolution = errors.New("marketplace resolution failure")
)

// PageError records where processing of a single page went wrong.
type PageError struct {
	URL   string
	Stage string
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

func pageError(url, stage string, kind, err error) *PageError {
	return &PageError{URL: url, Stage: stage, Err: fmt.Errorf("%w: %w", kind, err)}
}
