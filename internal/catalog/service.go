package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backoffice-pricing/internal/common"
	"github.com/noah-isme/backoffice-pricing/internal/pricing"
)

// Service assembles catalog snapshots from the store and the cache.
type Service struct {
	store  Store
	cache  *Cache
	logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store  Store
	Cache  *Cache
	Logger zerolog.Logger
}

// NewService constructs a catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	return &Service{
		store:  cfg.Store,
		cache:  cfg.Cache,
		logger: cfg.Logger.With().Str("component", "catalog").Logger(),
	}, nil
}

// Snapshot returns the products for ids. Cached products are served from
// Redis, the rest are loaded in one batch and written back. Cache failures
// degrade to the store.
func (s *Service) Snapshot(ctx context.Context, ids []string) (Snapshot, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return NewSnapshot(), nil
	}

	found, misses, err := s.cache.Products(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Int("products", len(ids)).Msg("catalog_cache_get_failed")
	}

	if len(misses) > 0 {
		loaded, err := s.store.LoadProducts(ctx, misses)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load products: %w", err)
		}
		if err := s.cache.Store(ctx, loaded...); err != nil {
			s.logger.Warn().Err(err).Int("products", len(loaded)).Msg("catalog_cache_set_failed")
		}
		found = append(found, loaded...)
	}
	return NewSnapshot(found...), nil
}

// Product returns a single product or a NOT_FOUND AppError.
func (s *Service) Product(ctx context.Context, id string) (pricing.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return pricing.Product{}, common.BadRequest("product id is required", nil)
	}
	snap, err := s.Snapshot(ctx, []string{id})
	if err != nil {
		return pricing.Product{}, err
	}
	p, ok := snap.Product(id)
	if !ok {
		return pricing.Product{}, common.NotFound("product not found", pricing.ErrUnknownProduct)
	}
	return p, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
