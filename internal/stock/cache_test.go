package stock

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	_ "github.com/stocklane/stocklane/testing"
)

func newTestCache(t *testing.T) *SummaryCache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSummaryCache(client, 0)
}

func TestSummaryCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	warehouse := int64(3)

	_, ok := cache.Get(ctx, &warehouse)
	require.False(t, ok)

	rows := []SummaryRow{{MaterialID: 1, MaterialCode: "MAT-1", TotalQuantity: 10, TotalRemain: 4, Issued: 6}}
	cache.Set(ctx, &warehouse, rows)

	got, ok := cache.Get(ctx, &warehouse)
	require.True(t, ok)
	require.Equal(t, rows, got)
}

func TestSummaryCacheInvalidateDropsWarehouseAndGlobal(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	warehouse := int64(3)

	rows := []SummaryRow{{MaterialID: 1}}
	cache.Set(ctx, &warehouse, rows)
	cache.Set(ctx, nil, rows)

	cache.Invalidate(ctx, warehouse)

	_, ok := cache.Get(ctx, &warehouse)
	require.False(t, ok)
	_, ok = cache.Get(ctx, nil)
	require.False(t, ok)
}

func TestSummaryCacheNilSafe(t *testing.T) {
	var cache *SummaryCache

	_, ok := cache.Get(context.Background(), nil)
	require.False(t, ok)
	cache.Set(context.Background(), nil, nil)
	cache.Invalidate(context.Background(), 1)
}
