package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapspend-backend/internal/analytics/types"
	redisclient "github.com/angelmondragon/snapspend-backend/pkg/redis"
)

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	AnalyticsVersionKey(userID string) string
	AnalyticsSummaryKey(userID string, version int64, rangeKey string) string
}

// Cache stores computed summaries per user. Invalidation bumps a per-user
// generation counter instead of deleting keys; stale generations expire by TTL.
type Cache struct {
	store cacheStore
	ttl   time.Duration
}

// NewCache builds a summary cache. A non-positive ttl disables caching.
func NewCache(store cacheStore, ttl time.Duration) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store required")
	}
	return &Cache{store: store, ttl: ttl}, nil
}

// Invalidate orphans every cached summary of the user.
func (c *Cache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	_, err := c.store.Incr(ctx, c.store.AnalyticsVersionKey(userID.String()))
	return err
}

// Lookup returns the cached summary for the window, or nil on a miss. The
// generation read is returned so a later Store writes under the same one.
func (c *Cache) Lookup(ctx context.Context, userID uuid.UUID, rangeKey string) (*types.Summary, int64, error) {
	version, err := c.version(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if c.ttl <= 0 {
		return nil, version, nil
	}

	raw, err := c.store.Get(ctx, c.store.AnalyticsSummaryKey(userID.String(), version, rangeKey))
	if err != nil {
		if redisclient.IsMiss(err) {
			return nil, version, nil
		}
		return nil, version, err
	}

	var summary types.Summary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		// corrupt entries are treated as misses and overwritten
		return nil, version, nil
	}
	return &summary, version, nil
}

// Store writes a summary under the given generation.
func (c *Cache) Store(ctx context.Context, userID uuid.UUID, version int64, rangeKey string, summary *types.Summary) error {
	if c.ttl <= 0 || summary == nil {
		return nil
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return c.store.Set(ctx, c.store.AnalyticsSummaryKey(userID.String(), version, rangeKey), payload, c.ttl)
}

func (c *Cache) version(ctx context.Context, userID uuid.UUID) (int64, error) {
	raw, err := c.store.Get(ctx, c.store.AnalyticsVersionKey(userID.String()))
	if err != nil {
		if redisclient.IsMiss(err) {
			return 0, nil
		}
		return 0, err
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return version, nil
}
