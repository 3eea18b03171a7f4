package fees

import (
	"context"
	"time"

	"ecobridge/internal/models"
	"ecobridge/internal/repository"

	"github.com/patrickmn/go-cache"
)

const (
	activeRangesKey     = "active"
	percentageRangesKey = "percentage"
)

// CachedRepository memoises the active fee ranges for a TTL. The table is read on every
// money movement and changes only on admin import, which calls Invalidate.
type CachedRepository struct {
	next  repository.FeeRangeRepository
	cache *cache.Cache
}

// NewCachedRepository wraps next with a TTL cache.
func NewCachedRepository(next repository.FeeRangeRepository, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// ActiveFeeRanges implements repository.FeeRangeRepository.
func (c *CachedRepository) ActiveFeeRanges(ctx context.Context) ([]models.FeeRange, error) {
	return c.load(ctx, activeRangesKey, c.next.ActiveFeeRanges)
}

// PercentageFeeRanges implements repository.FeeRangeRepository.
func (c *CachedRepository) PercentageFeeRanges(ctx context.Context) ([]models.FeeRange, error) {
	return c.load(ctx, percentageRangesKey, c.next.PercentageFeeRanges)
}

func (c *CachedRepository) load(ctx context.Context, key string, fetch func(context.Context) ([]models.FeeRange, error)) ([]models.FeeRange, error) {
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]models.FeeRange), nil
	}

	ranges, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, ranges)
	return ranges, nil
}

// Invalidate drops the cached table.
func (c *CachedRepository) Invalidate() {
	c.cache.Flush()
}
