package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

type productKey struct {
	marketplaceID int64
	url           string
}

// CatalogStore is an in-memory crawler.CatalogStore.
type CatalogStore struct {
	mu           sync.RWMutex
	now          func() time.Time
	marketplaces []crawler.Marketplace
	byURL        map[string]int
	products     []crawler.Product
	byProduct    map[productKey]int
}

var _ crawler.CatalogStore = (*CatalogStore)(nil)

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		now:       func() time.Time { return time.Now().UTC() },
		byURL:     make(map[string]int),
		byProduct: make(map[productKey]int),
	}
}

// FindMarketplaceByURL returns the marketplace registered for url.
func (s *CatalogStore) FindMarketplaceByURL(_ context.Context, url string) (crawler.Marketplace, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byURL[url]
	if !ok {
		return crawler.Marketplace{}, false, nil
	}
	return s.marketplaces[idx], true, nil
}

// CreateMarketplace registers a marketplace, returning the existing one for a known url.
func (s *CatalogStore) CreateMarketplace(_ context.Context, name, country, url string) (crawler.Marketplace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.byURL[url]; ok {
		return s.marketplaces[idx], nil
	}
	m := crawler.Marketplace{
		ID:      int64(len(s.marketplaces) + 1),
		Name:    name,
		Country: country,
		URL:     url,
	}
	s.byURL[url] = len(s.marketplaces)
	s.marketplaces = append(s.marketplaces, m)
	return m, nil
}

// FindProductByURL returns the product stored for (marketplaceID, url).
func (s *CatalogStore) FindProductByURL(_ context.Context, marketplaceID int64, url string) (crawler.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byProduct[productKey{marketplaceID: marketplaceID, url: url}]
	if !ok {
		return crawler.Product{}, false, nil
	}
	return s.products[idx], true, nil
}

// CreateProduct stores a candidate. A second insert for the same
// (marketplaceID, url) returns the stored product unchanged.
func (s *CatalogStore) CreateProduct(_ context.Context, c crawler.Candidate, marketplaceID int64) (crawler.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := productKey{marketplaceID: marketplaceID, url: c.URL}
	if idx, ok := s.byProduct[key]; ok {
		return s.products[idx], nil
	}
	p := crawler.Product{
		ID:            int64(len(s.products) + 1),
		MarketplaceID: marketplaceID,
		Name:          c.Name,
		Image:         c.Image,
		URL:           c.URL,
		Price:         c.Price,
		Currency:      c.Currency,
		Code:          c.Code,
		Description:   c.Description,
		CreatedAt:     s.now(),
	}
	s.byProduct[key] = len(s.products)
	s.products = append(s.products, p)
	return p, nil
}

// Products returns every stored product for marketplaceID in insertion order.
func (s *CatalogStore) Products(marketplaceID int64) []crawler.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.Product
	for _, p := range s.products {
		if p.MarketplaceID == marketplaceID {
			out = append(out, p)
		}
	}
	return out
}
