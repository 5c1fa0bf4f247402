package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS marketplaces (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		country    TEXT NOT NULL DEFAULT '',
		url        TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS products (
		id             BIGSERIAL PRIMARY KEY,
		marketplace_id BIGINT NOT NULL REFERENCES marketplaces (id) ON DELETE CASCADE,
		name           TEXT NOT NULL DEFAULT '',
		image          TEXT NOT NULL DEFAULT '',
		url            TEXT NOT NULL,
		price          TEXT NOT NULL DEFAULT '',
		currency       TEXT NOT NULL DEFAULT '',
		code           TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (marketplace_id, url)
	);`,
	`CREATE INDEX IF NOT EXISTS products_marketplace_created_idx
		ON products (marketplace_id, created_at DESC);`,
}

// Migrate creates the catalog tables if they do not exist.
func (s *CatalogStore) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
