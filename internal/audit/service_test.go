package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/stocklane/stocklane/testing"
)

type fakeRepo struct {
	rows []TimelineRow
}

func (f *fakeRepo) Timeline(_ context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	var matched []TimelineRow
	for _, row := range f.rows {
		if filters.Entity != "" && row.Entity != filters.Entity {
			continue
		}
		if filters.ActorID > 0 && row.ActorID != filters.ActorID {
			continue
		}
		matched = append(matched, row)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func seedRows(n int) []TimelineRow {
	rows := make([]TimelineRow, 0, n)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		rows = append(rows, TimelineRow{
			At:       at.Add(time.Duration(i) * time.Minute),
			ActorID:  1,
			Actor:    "ops",
			Action:   "stock.consume",
			Entity:   "stock_lot",
			EntityID: "1",
		})
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	svc := NewService(&fakeRepo{rows: seedRows(25)})

	first, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, first.Rows, 20)
	require.True(t, first.Paging.HasNext)

	second, err := svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, second.Rows, 5)
	require.False(t, second.Paging.HasNext)
}

func TestTimelineClampsPageSize(t *testing.T) {
	svc := NewService(&fakeRepo{rows: seedRows(60)})

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Rows, maxPageSize)
	require.Equal(t, maxPageSize, result.Paging.PageSize)
	require.Equal(t, 1, result.Paging.Page)
}

func TestTimelineFiltersByEntity(t *testing.T) {
	repo := &fakeRepo{rows: seedRows(3)}
	repo.rows = append(repo.rows, TimelineRow{ActorID: 2, Actor: "admin", Action: "po.approve", Entity: "purchase_order", EntityID: "9"})
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Entity: "purchase_order"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "po.approve", result.Rows[0].Action)
}

func TestTimelineRequiresRepository(t *testing.T) {
	svc := NewService(nil)
	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)
}
