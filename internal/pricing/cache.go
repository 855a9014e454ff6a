package pricing

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const cachePrefix = "price:usd:"

// CachedSource wraps another Source with a short-TTL Redis cache. The cache is
// an explicit collaborator so the underlying source stays purely functional.
// Cache failures fall through to the wrapped source.
type CachedSource struct {
	source Source
	cache  *redis.Client
	ttl    time.Duration
}

// NewCachedSource wraps src with a Redis-backed quote cache.
func NewCachedSource(src Source, cache *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{source: src, cache: cache, ttl: ttl}
}

// Quote returns a cached quote when fresh, otherwise asks the wrapped source
// and stores the result.
func (s *CachedSource) Quote(ctx context.Context, symbol string) (float64, error) {
	key := cachePrefix + symbol

	if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
		if usd, parseErr := strconv.ParseFloat(cached, 64); parseErr == nil && usd > 0 {
			return usd, nil
		}
	}

	usd, err := s.source.Quote(ctx, symbol)
	if err != nil {
		return 0, err
	}

	// Best effort; a failed write only costs an extra upstream call.
	s.cache.Set(ctx, key, strconv.FormatFloat(usd, 'f', -1, 64), s.ttl)

	return usd, nil
}
