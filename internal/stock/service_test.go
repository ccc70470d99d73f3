package stock

import (
	"context"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/stocklane/stocklane/testing"
)

type fakeMaterial struct {
	code string
	name string
	unit string
}

type fakeRepo struct {
	lots      map[int64]*Lot
	adjusts   []Adjustment
	materials map[int64]fakeMaterial
	nextLotID int64
	nextAdjID int64
	clock     time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		lots:      map[int64]*Lot{},
		materials: map[int64]fakeMaterial{},
		nextLotID: 1,
		nextAdjID: 1,
		clock:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *fakeRepo) CreateLot(_ context.Context, lot Lot) (Lot, error) {
	if _, ok := f.materials[lot.MaterialID]; !ok {
		return Lot{}, ErrMaterialNotFound
	}
	lot.ID = f.nextLotID
	f.nextLotID++
	lot.Remain = lot.Quantity
	lot.CreatedAt = f.tick()
	copied := lot
	f.lots[lot.ID] = &copied
	return lot, nil
}

func (f *fakeRepo) ListLots(_ context.Context, filter LotFilter) ([]Lot, error) {
	var lots []Lot
	for _, lot := range f.lots {
		if filter.MaterialID != nil && lot.MaterialID != *filter.MaterialID {
			continue
		}
		if filter.WarehouseID != nil && lot.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.OnlyInStock && lot.Remain == 0 {
			continue
		}
		lots = append(lots, *lot)
	}
	sort.Slice(lots, func(i, j int) bool {
		if lots[i].CreatedAt.Equal(lots[j].CreatedAt) {
			return lots[i].ID < lots[j].ID
		}
		return lots[i].CreatedAt.Before(lots[j].CreatedAt)
	})
	return lots, nil
}

func (f *fakeRepo) Consume(ctx context.Context, materialID, warehouseID, quantity int64) ([]Allocation, error) {
	lots, _ := f.ListLots(ctx, LotFilter{MaterialID: &materialID, WarehouseID: &warehouseID, OnlyInStock: true})
	plan, err := Allocate(lots, materialID, warehouseID, quantity)
	if err != nil {
		return nil, err
	}
	for _, alloc := range plan {
		f.lots[alloc.LotID].Remain -= alloc.Taken
	}
	return plan, nil
}

func (f *fakeRepo) ApplyAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	switch {
	case adj.LotID != nil:
		lot, ok := f.lots[*adj.LotID]
		if !ok {
			return Adjustment{}, ErrLotNotFound
		}
		adj.MaterialID = lot.MaterialID
		adj.WarehouseID = lot.WarehouseID
		if adj.Delta < 0 {
			if lot.Remain+adj.Delta < 0 {
				return Adjustment{}, &InsufficientStockError{
					MaterialID: lot.MaterialID, WarehouseID: lot.WarehouseID,
					Requested: -adj.Delta, Available: lot.Remain,
				}
			}
			lot.Remain += adj.Delta
		} else {
			lot.Quantity += adj.Delta
			lot.Remain += adj.Delta
		}
	case adj.Delta < 0:
		if _, err := f.Consume(ctx, adj.MaterialID, adj.WarehouseID, -adj.Delta); err != nil {
			return Adjustment{}, err
		}
	default:
		if _, err := f.CreateLot(ctx, Lot{MaterialID: adj.MaterialID, WarehouseID: adj.WarehouseID, LotCode: "ADJ", Quantity: adj.Delta}); err != nil {
			return Adjustment{}, err
		}
	}
	adj.ID = f.nextAdjID
	f.nextAdjID++
	adj.CreatedAt = f.tick()
	f.adjusts = append(f.adjusts, adj)
	return adj, nil
}

func (f *fakeRepo) ListAdjustments(_ context.Context, filter AdjustmentFilter) ([]Adjustment, error) {
	var adjustments []Adjustment
	for _, adj := range f.adjusts {
		if filter.MaterialID != nil && adj.MaterialID != *filter.MaterialID {
			continue
		}
		if filter.WarehouseID != nil && adj.WarehouseID != *filter.WarehouseID {
			continue
		}
		if !filter.From.IsZero() && adj.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && adj.CreatedAt.After(filter.To) {
			continue
		}
		adjustments = append(adjustments, adj)
	}
	sort.Slice(adjustments, func(i, j int) bool {
		if adjustments[i].CreatedAt.Equal(adjustments[j].CreatedAt) {
			return adjustments[i].ID > adjustments[j].ID
		}
		return adjustments[i].CreatedAt.After(adjustments[j].CreatedAt)
	})
	return adjustments, nil
}

func (f *fakeRepo) Summarize(_ context.Context, warehouseID *int64) ([]SummaryRow, error) {
	byMaterial := map[int64]*SummaryRow{}
	for _, lot := range f.lots {
		if warehouseID != nil && lot.WarehouseID != *warehouseID {
			continue
		}
		row, ok := byMaterial[lot.MaterialID]
		if !ok {
			meta := f.materials[lot.MaterialID]
			row = &SummaryRow{MaterialID: lot.MaterialID, MaterialCode: meta.code, MaterialName: meta.name, Unit: meta.unit}
			byMaterial[lot.MaterialID] = row
		}
		row.TotalQuantity += lot.Quantity
		row.TotalRemain += lot.Remain
	}
	var rows []SummaryRow
	for _, row := range byMaterial {
		row.Issued = row.TotalQuantity - row.TotalRemain
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].MaterialCode < rows[j].MaterialCode })
	return rows, nil
}

func (f *fakeRepo) addMaterial(id int64) {
	f.materials[id] = fakeMaterial{code: "MAT-" + strconv.FormatInt(id, 10), name: "Material " + strconv.FormatInt(id, 10), unit: "pcs"}
}

func newServiceWithRepo() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	repo.addMaterial(1)
	repo.addMaterial(2)
	return NewService(repo, nil, nil, nil), repo
}

func TestReceiveLotSetsRemainToQuantity(t *testing.T) {
	svc, _ := newServiceWithRepo()

	lot, err := svc.ReceiveLot(context.Background(), ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 25, LotCode: "L-1"})
	require.NoError(t, err)
	require.Equal(t, int64(25), lot.Quantity)
	require.Equal(t, int64(25), lot.Remain)
}

func TestReceiveLotRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newServiceWithRepo()

	_, err := svc.ReceiveLot(context.Background(), ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestConsumeFIFOAcrossLots(t *testing.T) {
	svc, repo := newServiceWithRepo()
	ctx := context.Background()

	first, err := svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 5})
	require.NoError(t, err)
	second, err := svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 5})
	require.NoError(t, err)

	plan, err := svc.Consume(ctx, 1, 1, 7)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{LotID: first.ID, Taken: 5}, {LotID: second.ID, Taken: 2}}, plan)
	require.Equal(t, int64(0), repo.lots[first.ID].Remain)
	require.Equal(t, int64(3), repo.lots[second.ID].Remain)
}

func TestConsumeInsufficientLeavesLotsUntouched(t *testing.T) {
	svc, repo := newServiceWithRepo()
	ctx := context.Background()

	lot, err := svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 5})
	require.NoError(t, err)

	_, err = svc.Consume(ctx, 1, 1, 6)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, int64(5), repo.lots[lot.ID].Remain)
}

func TestConsumeScopedToWarehouse(t *testing.T) {
	svc, _ := newServiceWithRepo()
	ctx := context.Background()

	_, err := svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 5})
	require.NoError(t, err)
	_, err = svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 2, Quantity: 5})
	require.NoError(t, err)

	_, err = svc.Consume(ctx, 1, 1, 8)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAdjustmentNegativeOnLot(t *testing.T) {
	svc, repo := newServiceWithRepo()
	ctx := context.Background()

	lot, err := svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)

	adj, err := svc.ApplyAdjustment(ctx, AdjustmentInput{LotID: &lot.ID, Delta: -3, Reason: "damaged"})
	require.NoError(t, err)
	require.Equal(t, int64(-3), adj.Delta)
	require.Equal(t, int64(7), repo.lots[lot.ID].Remain)
	require.Len(t, repo.adjusts, 1)
}

func TestAdjustmentCannotDriveRemainNegative(t *testing.T) {
	svc, repo := newServiceWithRepo()
	ctx := context.Background()

	lot, err := svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 4})
	require.NoError(t, err)

	_, err = svc.ApplyAdjustment(ctx, AdjustmentInput{LotID: &lot.ID, Delta: -5, Reason: "lost"})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, int64(4), repo.lots[lot.ID].Remain)
	require.Empty(t, repo.adjusts)
}

func TestAdjustmentRequiresReason(t *testing.T) {
	svc, _ := newServiceWithRepo()

	_, err := svc.ApplyAdjustment(context.Background(), AdjustmentInput{MaterialID: 1, WarehouseID: 1, Delta: -1, Reason: "  "})
	require.ErrorIs(t, err, ErrReasonRequired)
}

func TestAdjustmentRejectsZeroDelta(t *testing.T) {
	svc, _ := newServiceWithRepo()

	_, err := svc.ApplyAdjustment(context.Background(), AdjustmentInput{MaterialID: 1, WarehouseID: 1, Delta: 0, Reason: "noop"})
	require.ErrorIs(t, err, ErrInvalidDelta)
}

func TestAdjustmentPositiveWithoutLotOpensCorrectionLot(t *testing.T) {
	svc, repo := newServiceWithRepo()
	ctx := context.Background()

	_, err := svc.ApplyAdjustment(ctx, AdjustmentInput{MaterialID: 1, WarehouseID: 1, Delta: 8, Reason: "found during count"})
	require.NoError(t, err)

	lots, err := svc.ListLots(ctx, LotFilter{})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	require.Equal(t, int64(8), lots[0].Remain)
	require.Len(t, repo.adjusts, 1)
}

func TestListAdjustmentsNewestFirstAndFiltered(t *testing.T) {
	svc, _ := newServiceWithRepo()
	ctx := context.Background()

	lot, err := svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)
	first, err := svc.ApplyAdjustment(ctx, AdjustmentInput{LotID: &lot.ID, Delta: -2, Reason: "damaged"})
	require.NoError(t, err)
	second, err := svc.ApplyAdjustment(ctx, AdjustmentInput{LotID: &lot.ID, Delta: -1, Reason: "sample"})
	require.NoError(t, err)
	_, err = svc.ApplyAdjustment(ctx, AdjustmentInput{MaterialID: 2, WarehouseID: 2, Delta: 5, Reason: "count"})
	require.NoError(t, err)

	materialID := int64(1)
	adjustments, err := svc.ListAdjustments(ctx, AdjustmentFilter{MaterialID: &materialID})
	require.NoError(t, err)
	require.Len(t, adjustments, 2)
	require.Equal(t, second.ID, adjustments[0].ID)
	require.Equal(t, first.ID, adjustments[1].ID)
}

func TestSummarizeReflectsLedger(t *testing.T) {
	svc, _ := newServiceWithRepo()
	ctx := context.Background()

	_, err := svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.Consume(ctx, 1, 1, 12)
	require.NoError(t, err)

	rows, err := svc.Summarize(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(20), rows[0].TotalQuantity)
	require.Equal(t, int64(8), rows[0].TotalRemain)
	require.Equal(t, int64(12), rows[0].Issued)

	again, err := svc.Summarize(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, rows, again)
}

func TestRemainInvariantAfterOperations(t *testing.T) {
	svc, repo := newServiceWithRepo()
	ctx := context.Background()

	lot, err := svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.ReceiveLot(ctx, ReceiveLotInput{MaterialID: 1, WarehouseID: 1, Quantity: 6})
	require.NoError(t, err)

	_, err = svc.Consume(ctx, 1, 1, 9)
	require.NoError(t, err)
	_, err = svc.ApplyAdjustment(ctx, AdjustmentInput{LotID: &lot.ID, Delta: -2, Reason: "breakage"})
	require.ErrorIs(t, err, ErrInsufficientStock)

	for _, l := range repo.lots {
		require.GreaterOrEqual(t, l.Remain, int64(0))
		require.LessOrEqual(t, l.Remain, l.Quantity)
	}
}
