package stock

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	summaryKeyPrefix  = "stock:summary:"
	defaultSummaryTTL = 30 * time.Second
)

// SummaryCache keeps recent summary projections in redis. Mutations
// invalidate eagerly so readers never observe a stale projection beyond
// one in-flight request.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = defaultSummaryTTL
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(warehouseID *int64) string {
	if warehouseID == nil {
		return summaryKeyPrefix + "all"
	}
	return summaryKeyPrefix + strconv.FormatInt(*warehouseID, 10)
}

// Get returns the cached summary, or ok=false on miss or any redis error.
func (c *SummaryCache) Get(ctx context.Context, warehouseID *int64) ([]SummaryRow, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, summaryKey(warehouseID)).Bytes()
	if err != nil {
		return nil, false
	}
	var rows []SummaryRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

// Set stores the summary. Failures are ignored, the cache is best effort.
func (c *SummaryCache) Set(ctx context.Context, warehouseID *int64, rows []SummaryRow) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return
	}
	c.client.Set(ctx, summaryKey(warehouseID), raw, c.ttl)
}

// Invalidate drops the warehouse scoped entry and the global one.
func (c *SummaryCache) Invalidate(ctx context.Context, warehouseID int64) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, summaryKey(&warehouseID), summaryKey(nil))
}
