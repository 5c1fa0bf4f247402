package crawler

import (
	"context"
	"io"
	"time"
)

// CatalogStore persists marketplaces and the products discovered on them.
type CatalogStore interface {
	FindMarketplaceByURL(ctx context.Context, url string) (Marketplace, bool, error)
	CreateMarketplace(ctx context.Context, name, country, url string) (Marketplace, error)
	FindProductByURL(ctx context.Context, marketplaceID int64, url string) (Product, bool, error)
	CreateProduct(ctx context.Context, candidate Candidate, marketplaceID int64) (Product, error)
}

// Renderer returns fully rendered HTML for a URL.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
}

// StructuredExtractor turns raw page tag data into free-form text that
// should contain a JSON product object.
type StructuredExtractor interface {
	Extract(ctx context.Context, promptTemplate string, rawTagData string) (string, error)
}

// Extractor evaluates a rendered page and returns a validated candidate.
// A miss is reported as ok=false, never as an error.
type Extractor interface {
	Extract(ctx context.Context, page Page, tags map[string]string) (Candidate, bool)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes product events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter throttles calls per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for snapshot paths.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
