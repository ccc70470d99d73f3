package stock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/stocklane/stocklane/testing"
)

func lotAt(id int64, remain int64, at time.Time) Lot {
	return Lot{ID: id, MaterialID: 1, WarehouseID: 1, Quantity: remain, Remain: remain, CreatedAt: at}
}

func TestAllocateFIFOAcrossLots(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lots := []Lot{
		lotAt(2, 5, base.Add(time.Hour)),
		lotAt(1, 5, base),
	}

	plan, err := Allocate(lots, 1, 1, 7)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{LotID: 1, Taken: 5}, {LotID: 2, Taken: 2}}, plan)
}

func TestAllocateTieBreakByLotID(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lots := []Lot{
		lotAt(9, 4, at),
		lotAt(3, 4, at),
	}

	plan, err := Allocate(lots, 1, 1, 6)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{LotID: 3, Taken: 4}, {LotID: 9, Taken: 2}}, plan)
}

func TestAllocateExactFit(t *testing.T) {
	at := time.Now()
	plan, err := Allocate([]Lot{lotAt(1, 10, at)}, 1, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{LotID: 1, Taken: 10}}, plan)
}

func TestAllocateSkipsEmptyLots(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lots := []Lot{
		{ID: 1, Quantity: 5, Remain: 0, CreatedAt: base},
		lotAt(2, 5, base.Add(time.Minute)),
	}

	plan, err := Allocate(lots, 1, 1, 3)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{LotID: 2, Taken: 3}}, plan)
}

func TestAllocateInsufficientStock(t *testing.T) {
	at := time.Now()
	_, err := Allocate([]Lot{lotAt(1, 5, at)}, 7, 2, 6)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, int64(7), insufficient.MaterialID)
	require.Equal(t, int64(6), insufficient.Requested)
	require.Equal(t, int64(5), insufficient.Available)
}

func TestAllocateRejectsNonPositiveQuantity(t *testing.T) {
	_, err := Allocate(nil, 1, 1, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = Allocate(nil, 1, 1, -4)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAllocateDoesNotMutateInput(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lots := []Lot{
		lotAt(2, 5, base.Add(time.Hour)),
		lotAt(1, 5, base),
	}

	_, err := Allocate(lots, 1, 1, 7)
	require.NoError(t, err)
	require.Equal(t, int64(2), lots[0].ID)
	require.Equal(t, int64(5), lots[0].Remain)
}
