package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stillwave/player/internal/domain"
)

type Cache interface {
	GetCache(key string) ([]byte, error)
	SetCache(key string, data []byte, ttl time.Duration) error
}

// CachedResolver caches metadata lookups in the store's blob cache. Signed
// URLs are never cached: they are time-limited and must be re-resolved on
// every use.
type CachedResolver struct {
	resolver Resolver
	cache    Cache
	cacheTTL time.Duration
}

func NewCachedResolver(resolver Resolver, cache Cache, cacheTTL time.Duration) *CachedResolver {
	return &CachedResolver{
		resolver: resolver,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func (c *CachedResolver) ResolveSignedURL(ctx context.Context, trackID string) (string, error) {
	return c.resolver.ResolveSignedURL(ctx, trackID)
}

func (c *CachedResolver) FetchMetadata(ctx context.Context, trackID string) (*domain.TrackMetadata, error) {
	cacheKey := fmt.Sprintf("meta:%s", trackID)

	data, err := c.cache.GetCache(cacheKey)
	if err == nil && data != nil {
		var meta domain.TrackMetadata
		if err := json.Unmarshal(data, &meta); err == nil {
			return &meta, nil
		}
	}

	meta, err := c.resolver.FetchMetadata(ctx, trackID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(meta); err == nil {
		c.cache.SetCache(cacheKey, data, c.cacheTTL)
	}

	return meta, nil
}
