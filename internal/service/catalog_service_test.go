package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/entity"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func testRegions() []entity.Region {
	return []entity.Region{
		{ID: "reg_eu", CurrencyCode: "eur", Countries: []entity.RegionCountry{{Iso2: "fr"}, {Iso2: "be"}}},
		{ID: "reg_uk", CurrencyCode: "gbp", Countries: []entity.RegionCountry{{Iso2: "gb"}}},
	}
}

func TestCatalogService_Region(t *testing.T) {
	_, rdb := setupRedis(t)
	backend := &fakeCatalogBackend{regions: testRegions()}
	svc := NewCatalogService(backend, rdb, time.Minute)

	region, err := svc.Region(context.Background(), "BE")
	require.NoError(t, err)
	assert.Equal(t, "reg_eu", region.ID)

	region, err = svc.Region(context.Background(), "be")
	require.NoError(t, err)
	assert.Equal(t, "reg_eu", region.ID)
	assert.Equal(t, 1, backend.regionCalls, "second lookup served from cache")

	_, err = svc.Region(context.Background(), "us")
	assert.ErrorIs(t, err, ErrRegionNotFound)
}

func TestCatalogService_ProductsCached(t *testing.T) {
	mr, rdb := setupRedis(t)
	backend := &fakeCatalogBackend{
		regions:  testRegions(),
		products: []entity.Product{{ID: "prod_olive", Variants: []entity.Variant{{ID: "var_olive", CalculatedPrice: []byte(`{"calculated_amount":150}`)}}}},
	}
	svc := NewCatalogService(backend, rdb, time.Minute)

	products, err := svc.Products(context.Background(), "fr")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "reg_eu", backend.lastRegionID)

	products, err = svc.Products(context.Background(), "fr")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.JSONEq(t, `{"calculated_amount":150}`, string(products[0].Variants[0].CalculatedPrice))
	assert.Equal(t, 1, backend.productCalls)

	mr.FastForward(2 * time.Minute)
	_, err = svc.Products(context.Background(), "fr")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.productCalls, "expired entry refetched")
}

func TestCatalogService_Invalidate(t *testing.T) {
	mr, rdb := setupRedis(t)
	backend := &fakeCatalogBackend{regions: testRegions(), products: []entity.Product{{ID: "p1"}}}
	svc := NewCatalogService(backend, rdb, time.Minute)

	_, err := svc.Products(context.Background(), "fr")
	require.NoError(t, err)
	_, err = svc.Products(context.Background(), "gb")
	require.NoError(t, err)
	assert.True(t, mr.Exists("catalog:fr"))

	require.NoError(t, svc.Invalidate(context.Background()))
	assert.False(t, mr.Exists("catalog:fr"))
	assert.False(t, mr.Exists("catalog:gb"))
	assert.True(t, mr.Exists("region:fr"), "regions survive invalidation")
}

func TestCatalogService_InvalidateRegions(t *testing.T) {
	mr, rdb := setupRedis(t)
	backend := &fakeCatalogBackend{regions: testRegions()}
	svc := NewCatalogService(backend, rdb, time.Minute)

	_, err := svc.Region(context.Background(), "fr")
	require.NoError(t, err)
	require.True(t, mr.Exists("region:fr"))

	// fr moves to the uk region
	backend.mu.Lock()
	backend.regions = []entity.Region{{ID: "reg_uk", Countries: []entity.RegionCountry{{Iso2: "fr"}, {Iso2: "gb"}}}}
	backend.mu.Unlock()

	require.NoError(t, svc.InvalidateRegions(context.Background()))
	assert.False(t, mr.Exists("region:fr"))

	region, err := svc.Region(context.Background(), "fr")
	require.NoError(t, err)
	assert.Equal(t, "reg_uk", region.ID)
}

func TestCatalogService_PreWarmCache(t *testing.T) {
	mr, rdb := setupRedis(t)
	backend := &fakeCatalogBackend{regions: testRegions(), products: []entity.Product{{ID: "p1"}}}
	svc := NewCatalogService(backend, rdb, time.Minute)

	warmed, err := svc.PreWarmCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, warmed)
	for _, cc := range []string{"fr", "be", "gb"} {
		assert.True(t, mr.Exists("catalog:"+cc), cc)
	}
}

func TestCatalogService_WithoutRedis(t *testing.T) {
	backend := &fakeCatalogBackend{regions: testRegions(), products: []entity.Product{{ID: "p1"}}}
	svc := NewCatalogService(backend, nil, time.Minute)

	_, err := svc.Products(context.Background(), "fr")
	require.NoError(t, err)
	_, err = svc.Products(context.Background(), "fr")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.productCalls)
	assert.NoError(t, svc.Invalidate(context.Background()))
}
