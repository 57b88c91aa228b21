package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"storefront-service/internal/commerce"
	"storefront-service/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// ErrRegionNotFound is returned when no backend region serves a country.
var ErrRegionNotFound = errors.New("no region for country")

const (
	catalogKeyPrefix = "catalog:"
	regionKeyPrefix  = "region:"
)

// CatalogBackend is the part of the commerce client the catalog needs.
type CatalogBackend interface {
	ListAllProducts(ctx context.Context, q commerce.ProductQuery) ([]entity.Product, error)
	ListRegions(ctx context.Context) ([]entity.Region, error)
}

// CatalogService reads the product catalog per country through a redis cache.
type CatalogService struct {
	backend CatalogBackend
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCatalogService creates a new instance of CatalogService.
func NewCatalogService(backend CatalogBackend, rdb *redis.Client, ttl time.Duration) *CatalogService {
	return &CatalogService{
		backend: backend,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// Region resolves the backend region that serves countryCode.
func (s *CatalogService) Region(ctx context.Context, countryCode string) (*entity.Region, error) {
	countryCode = strings.ToLower(countryCode)
	key := regionKeyPrefix + countryCode

	var region entity.Region
	if s.readCache(ctx, key, &region) {
		return &region, nil
	}

	regions, err := s.backend.ListRegions(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error listing regions")
		return nil, err
	}

	for _, r := range regions {
		for _, c := range r.Countries {
			if strings.EqualFold(c.Iso2, countryCode) {
				s.writeCache(ctx, key, r)
				found := r
				return &found, nil
			}
		}
	}
	return nil, fmt.Errorf("%w %q", ErrRegionNotFound, countryCode)
}

// Products returns the full catalog priced for countryCode.
func (s *CatalogService) Products(ctx context.Context, countryCode string) ([]entity.Product, error) {
	countryCode = strings.ToLower(countryCode)
	key := catalogKeyPrefix + countryCode

	var products []entity.Product
	if s.readCache(ctx, key, &products) {
		return products, nil
	}

	region, err := s.Region(ctx, countryCode)
	if err != nil {
		return nil, err
	}

	products, err = s.backend.ListAllProducts(ctx, commerce.ProductQuery{RegionID: region.ID})
	if err != nil {
		logger.Error().Err(err).Msgf("Error listing products for %s", countryCode)
		return nil, err
	}

	s.writeCache(ctx, key, products)
	return products, nil
}

// Invalidate drops every cached catalog. Regions are kept.
func (s *CatalogService) Invalidate(ctx context.Context) error {
	n, err := s.dropKeys(ctx, catalogKeyPrefix+"*")
	if err != nil {
		logger.Error().Err(err).Msg("Error invalidating catalog cache")
		return err
	}
	if n > 0 {
		logger.Info().Msgf("Invalidated %d cached catalogs", n)
	}
	return nil
}

// InvalidateRegions drops the cached country to region mapping.
func (s *CatalogService) InvalidateRegions(ctx context.Context) error {
	n, err := s.dropKeys(ctx, regionKeyPrefix+"*")
	if err != nil {
		logger.Error().Err(err).Msg("Error invalidating region cache")
		return err
	}
	if n > 0 {
		logger.Info().Msgf("Invalidated %d cached regions", n)
	}
	return nil
}

func (s *CatalogService) dropKeys(ctx context.Context, pattern string) (int, error) {
	if s.rdb == nil {
		return 0, nil
	}

	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// PreWarmCache loads the catalog of every country served by a region.
func (s *CatalogService) PreWarmCache(ctx context.Context) (int, error) {
	regions, err := s.backend.ListRegions(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error listing regions")
		return 0, err
	}

	warmed := 0
	for _, r := range regions {
		for _, c := range r.Countries {
			s.writeCache(ctx, regionKeyPrefix+strings.ToLower(c.Iso2), r)
			if _, err := s.Products(ctx, c.Iso2); err != nil {
				logger.Error().Err(err).Msgf("Error warming catalog for %s", c.Iso2)
				continue
			}
			warmed++
		}
	}
	return warmed, nil
}

func (s *CatalogService) readCache(ctx context.Context, key string, out interface{}) bool {
	if s.rdb == nil {
		return false
	}
	cached, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Error().Err(err).Msgf("Error reading %s from cache", key)
		}
		return false
	}
	if err := json.Unmarshal([]byte(cached), out); err != nil {
		logger.Error().Err(err).Msgf("Error unmarshalling %s", key)
		return false
	}
	return true
}

func (s *CatalogService) writeCache(ctx context.Context, key string, v interface{}) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Msgf("Error marshalling %s", key)
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error setting %s in cache", key)
	}
}
