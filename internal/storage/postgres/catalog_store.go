// Package postgres provides the Postgres-backed catalog store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// CatalogStore persists marketplaces and products in Postgres.
type CatalogStore struct {
	pool querier
}

var _ crawler.CatalogStore = (*CatalogStore)(nil)

// NewCatalogStore connects to Postgres using cfg.
func NewCatalogStore(ctx context.Context, cfg Config) (*CatalogStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CatalogStore{pool: pool}, nil
}

// NewCatalogStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCatalogStoreWithPool(pool querier) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CatalogStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *CatalogStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *CatalogStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FindMarketplaceByURL looks a marketplace up by its root URL.
func (s *CatalogStore) FindMarketplaceByURL(ctx context.Context, url string) (crawler.Marketplace, bool, error) {
	const query = `
		SELECT id, name, country, url
		FROM marketplaces
		WHERE url = $1;
	`
	var m crawler.Marketplace
	err := s.pool.QueryRow(ctx, query, url).Scan(&m.ID, &m.Name, &m.Country, &m.URL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Marketplace{}, false, nil
		}
		return crawler.Marketplace{}, false, fmt.Errorf("find marketplace: %w", err)
	}
	return m, true, nil
}

// CreateMarketplace inserts a marketplace. Creating one that already exists
// returns the stored row.
func (s *CatalogStore) CreateMarketplace(ctx context.Context, name, country, url string) (crawler.Marketplace, error) {
	const query = `
		INSERT INTO marketplaces (name, country, url)
		VALUES ($1, $2, $3)
		ON CONFLICT (url) DO UPDATE SET url = EXCLUDED.url
		RETURNING id, name, country, url;
	`
	var m crawler.Marketplace
	if err := s.pool.QueryRow(ctx, query, name, country, url).Scan(&m.ID, &m.Name, &m.Country, &m.URL); err != nil {
		return crawler.Marketplace{}, fmt.Errorf("create marketplace: %w", err)
	}
	return m, nil
}

// FindProductByURL looks a product up within one marketplace.
func (s *CatalogStore) FindProductByURL(
	ctx context.Context,
	marketplaceID int64,
	url string,
) (crawler.Product, bool, error) {
	const query = `
		SELECT id, marketplace_id, name, image, url, price, currency, code, description, created_at
		FROM products
		WHERE marketplace_id = $1 AND url = $2;
	`
	var p crawler.Product
	err := s.pool.QueryRow(ctx, query, marketplaceID, url).Scan(
		&p.ID,
		&p.MarketplaceID,
		&p.Name,
		&p.Image,
		&p.URL,
		&p.Price,
		&p.Currency,
		&p.Code,
		&p.Description,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Product{}, false, nil
		}
		return crawler.Product{}, false, fmt.Errorf("find product: %w", err)
	}
	return p, true, nil
}

// CreateProduct inserts a validated candidate. The (marketplace_id, url)
// pair is unique; a conflicting insert keeps the stored row.
func (s *CatalogStore) CreateProduct(
	ctx context.Context,
	candidate crawler.Candidate,
	marketplaceID int64,
) (crawler.Product, error) {
	const query = `
		INSERT INTO products (marketplace_id, name, image, url, price, currency, code, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (marketplace_id, url) DO UPDATE SET url = EXCLUDED.url
		RETURNING id, name, image, price, currency, code, description, created_at;
	`
	p := crawler.Product{MarketplaceID: marketplaceID, URL: candidate.URL}
	err := s.pool.QueryRow(
		ctx,
		query,
		marketplaceID,
		candidate.Name,
		candidate.Image,
		candidate.URL,
		candidate.Price,
		candidate.Currency,
		candidate.Code,
		candidate.Description,
	).Scan(&p.ID, &p.Name, &p.Image, &p.Price, &p.Currency, &p.Code, &p.Description, &p.CreatedAt)
	if err != nil {
		return crawler.Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}
