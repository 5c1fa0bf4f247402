package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

func TestCatalogStoreMarketplaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCatalogStore()

	_, found, err := store.FindMarketplaceByURL(ctx, "https://shop.test")
	require.NoError(t, err)
	assert.False(t, found)

	created, err := store.CreateMarketplace(ctx, "Shop", "ES", "https://shop.test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)

	again, err := store.CreateMarketplace(ctx, "Other", "FR", "https://shop.test")
	require.NoError(t, err)
	assert.Equal(t, created, again)

	got, found, err := store.FindMarketplaceByURL(ctx, "https://shop.test")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Shop", got.Name)
}

func TestCatalogStoreProductsScopedByMarketplace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCatalogStore()
	candidate := crawler.Candidate{Name: "Tee", Price: "10", Currency: "EUR", URL: "https://shop.test/p1"}

	first, err := store.CreateProduct(ctx, candidate, 1)
	require.NoError(t, err)
	dup, err := store.CreateProduct(ctx, crawler.Candidate{Name: "Changed", URL: "https://shop.test/p1"}, 1)
	require.NoError(t, err)
	assert.Equal(t, first, dup)

	_, found, err := store.FindProductByURL(ctx, 2, "https://shop.test/p1")
	require.NoError(t, err)
	assert.False(t, found, "products are scoped by marketplace")

	got, found, err := store.FindProductByURL(ctx, 1, "https://shop.test/p1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Tee", got.Name)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Len(t, store.Products(1), 1)
	assert.Empty(t, store.Products(2))
}
