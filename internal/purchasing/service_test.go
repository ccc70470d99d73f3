package purchasing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/stock"
	_ "github.com/stocklane/stocklane/testing"
)

// fakeRepo keeps orders and receipts in memory with guarded status
// updates and all-or-nothing posting, mirroring the real store. Posting
// can be told to fail on a specific material.
type fakeRepo struct {
	pos        map[int64]*PurchaseOrder
	grns       map[int64]*GoodsReceipt
	lots       []stock.Lot
	failPostOn int64
	nextPO     int64
	nextGRN    int64
	nextLot    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{pos: map[int64]*PurchaseOrder{}, grns: map[int64]*GoodsReceipt{}, nextPO: 1, nextGRN: 1}
}

func (f *fakeRepo) CreatePO(_ context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	po.ID = f.nextPO
	po.Number = fmt.Sprintf("PO-%04d", f.nextPO)
	po.RefID = uuid.New()
	po.Status = POStatusDraft
	po.CreatedAt = time.Now()
	for i := range po.Lines {
		po.Lines[i].ID = int64(i + 1)
	}
	f.nextPO++
	copied := po
	f.pos[po.ID] = &copied
	return po, nil
}

func (f *fakeRepo) GetPO(_ context.Context, id int64) (PurchaseOrder, error) {
	po, ok := f.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return *po, nil
}

func (f *fakeRepo) ListPOs(_ context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, po := range f.pos {
		if filter.Status != nil && po.Status != *filter.Status {
			continue
		}
		out = append(out, *po)
	}
	return out, len(out), nil
}

func (f *fakeRepo) UpdatePOStatus(_ context.Context, id int64, from, to POStatus) error {
	po, ok := f.pos[id]
	if !ok {
		return ErrNotFound
	}
	if po.Status != from {
		return ErrInvalidState
	}
	po.Status = to
	return nil
}

func (f *fakeRepo) CreateGRN(_ context.Context, grn GoodsReceipt) (GoodsReceipt, error) {
	grn.ID = f.nextGRN
	grn.Number = fmt.Sprintf("GRN-%04d", f.nextGRN)
	grn.Status = GRNStatusDraft
	grn.ReceivedAt = time.Now()
	for i := range grn.Lines {
		grn.Lines[i].ID = int64(i + 1)
	}
	f.nextGRN++
	copied := grn
	f.grns[grn.ID] = &copied
	return grn, nil
}

func (f *fakeRepo) GetGRN(_ context.Context, id int64) (GoodsReceipt, error) {
	grn, ok := f.grns[id]
	if !ok {
		return GoodsReceipt{}, ErrNotFound
	}
	return *grn, nil
}

func (f *fakeRepo) PostGRN(_ context.Context, grn GoodsReceipt) ([]stock.Lot, error) {
	stored, ok := f.grns[grn.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if stored.Status != GRNStatusDraft {
		return nil, ErrInvalidState
	}
	var created []stock.Lot
	for _, line := range stored.Lines {
		if f.failPostOn != 0 && line.MaterialID == f.failPostOn {
			return nil, stock.ErrMaterialNotFound
		}
		f.nextLot++
		created = append(created, stock.Lot{
			ID:          f.nextLot,
			MaterialID:  line.MaterialID,
			WarehouseID: stored.WarehouseID,
			ReceiptID:   &stored.ID,
			Quantity:    line.Qty,
			Remain:      line.Qty,
		})
	}
	stored.Status = GRNStatusPosted
	f.lots = append(f.lots, created...)
	return created, nil
}

func (f *fakeRepo) UpdateGRNStatus(_ context.Context, id int64, from, to GRNStatus) error {
	grn, ok := f.grns[id]
	if !ok {
		return ErrNotFound
	}
	if grn.Status != from {
		return ErrInvalidState
	}
	grn.Status = to
	return nil
}

func (f *fakeRepo) ReceivedTotals(_ context.Context, poID int64) (map[int64]int64, error) {
	totals := map[int64]int64{}
	for _, grn := range f.grns {
		if grn.POID != poID || grn.Status != GRNStatusPosted {
			continue
		}
		for _, line := range grn.Lines {
			totals[line.MaterialID] += line.Qty
		}
	}
	return totals, nil
}

type fakeIdempotency struct {
	keys map[string]bool
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: map[string]bool{}}
}

func (f *fakeIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

type recordedApprovals struct {
	logs []shared.ApprovalLog
}

func (r *recordedApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func newTestService(repo *fakeRepo, idem *fakeIdempotency) (*Service, *recordedApprovals) {
	approvals := &recordedApprovals{}
	return NewService(repo, nil, idem, approvals, nil, nil), approvals
}

func draftPO(t *testing.T, svc *Service, lines ...POLine) PurchaseOrder {
	t.Helper()
	po, err := svc.CreatePO(context.Background(), CreatePOInput{
		SupplierID:  1,
		WarehouseID: 7,
		ActorID:     42,
		Lines:       lines,
	})
	require.NoError(t, err)
	return po
}

func TestCreatePOStartsDraft(t *testing.T) {
	svc, approvals := newTestService(newFakeRepo(), newFakeIdempotency())

	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10, Price: 2500})

	require.Equal(t, POStatusDraft, po.Status)
	require.NotEmpty(t, po.Number)
	require.Len(t, po.Lines, 1)
	require.Len(t, approvals.logs, 1)
	require.Equal(t, shared.ApprovalSubmit, approvals.logs[0].Action)
}

func TestCreatePORequiresLines(t *testing.T) {
	svc, _ := newTestService(newFakeRepo(), newFakeIdempotency())

	_, err := svc.CreatePO(context.Background(), CreatePOInput{SupplierID: 1, WarehouseID: 7})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.CreatePO(context.Background(), CreatePOInput{
		SupplierID:  1,
		WarehouseID: 7,
		Lines:       []POLine{{MaterialID: 1, Qty: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidLine)
}

func TestApprovePOFromDraft(t *testing.T) {
	svc, approvals := newTestService(newFakeRepo(), newFakeIdempotency())
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10})

	approved, err := svc.ApprovePO(context.Background(), po.ID, 42, "ok")
	require.NoError(t, err)
	require.Equal(t, POStatusApproved, approved.Status)
	require.Equal(t, shared.ApprovalApprove, approvals.logs[len(approvals.logs)-1].Action)
}

func TestApprovePOTwiceFails(t *testing.T) {
	svc, _ := newTestService(newFakeRepo(), newFakeIdempotency())
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10})

	_, err := svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.NoError(t, err)

	_, err = svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelPOOnlyFromDraft(t *testing.T) {
	svc, _ := newTestService(newFakeRepo(), newFakeIdempotency())
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10})

	cancelled, err := svc.CancelPO(context.Background(), po.ID, 42, "supplier out")
	require.NoError(t, err)
	require.Equal(t, POStatusCancelled, cancelled.Status)

	_, err = svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCreateGRNRequiresApprovedPO(t *testing.T) {
	svc, _ := newTestService(newFakeRepo(), newFakeIdempotency())
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10})

	_, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLine{{MaterialID: 1, Qty: 10}},
	})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCreateGRNInheritsWarehouse(t *testing.T) {
	svc, _ := newTestService(newFakeRepo(), newFakeIdempotency())
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10})
	_, err := svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.NoError(t, err)

	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLine{{MaterialID: 1, Qty: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, GRNStatusDraft, grn.Status)
	require.Equal(t, po.WarehouseID, grn.WarehouseID)
}

func TestPostGRNOpensLots(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, newFakeIdempotency())
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10}, POLine{MaterialID: 2, Qty: 5})
	_, err := svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.NoError(t, err)

	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		POID:    po.ID,
		ActorID: 42,
		Lines:   []GRNLine{{MaterialID: 1, Qty: 10}, {MaterialID: 2, Qty: 5}},
	})
	require.NoError(t, err)

	posted, err := svc.PostGRN(context.Background(), grn.ID, 42)
	require.NoError(t, err)
	require.Equal(t, GRNStatusPosted, posted.Status)

	require.Len(t, repo.lots, 2)
	require.Equal(t, int64(10), repo.lots[0].Quantity)
	require.Equal(t, int64(10), repo.lots[0].Remain)
	require.Equal(t, po.WarehouseID, repo.lots[0].WarehouseID)
	require.NotNil(t, repo.lots[0].ReceiptID)
	require.Equal(t, grn.ID, *repo.lots[0].ReceiptID)
}

func TestPostGRNClosesFullyReceivedPO(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, newFakeIdempotency())
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10}, POLine{MaterialID: 2, Qty: 5})
	_, err := svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.NoError(t, err)

	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLine{{MaterialID: 1, Qty: 10}, {MaterialID: 2, Qty: 5}},
	})
	require.NoError(t, err)
	_, err = svc.PostGRN(context.Background(), grn.ID, 42)
	require.NoError(t, err)

	closed, err := svc.GetPO(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusClosed, closed.Status)
}

func TestPostGRNKeepsPartiallyReceivedPOOpen(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, newFakeIdempotency())
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10})
	_, err := svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.NoError(t, err)

	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLine{{MaterialID: 1, Qty: 4}},
	})
	require.NoError(t, err)
	_, err = svc.PostGRN(context.Background(), grn.ID, 42)
	require.NoError(t, err)

	open, err := svc.GetPO(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusApproved, open.Status)
}

func TestPostGRNTwiceFails(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, newFakeIdempotency())
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10})
	_, err := svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.NoError(t, err)
	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLine{{MaterialID: 1, Qty: 10}},
	})
	require.NoError(t, err)

	_, err = svc.PostGRN(context.Background(), grn.ID, 42)
	require.NoError(t, err)

	_, err = svc.PostGRN(context.Background(), grn.ID, 42)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Len(t, repo.lots, 1)
}

func TestPostGRNFailedLineLeavesNoLots(t *testing.T) {
	repo := newFakeRepo()
	repo.failPostOn = 2
	idem := newFakeIdempotency()
	svc, _ := newTestService(repo, idem)
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10}, POLine{MaterialID: 2, Qty: 5})
	_, err := svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.NoError(t, err)
	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLine{{MaterialID: 1, Qty: 10}, {MaterialID: 2, Qty: 5}},
	})
	require.NoError(t, err)

	_, err = svc.PostGRN(context.Background(), grn.ID, 42)
	require.Error(t, err)

	// failed posting leaves the ledger untouched, the receipt DRAFT and
	// the idempotency key released
	require.Empty(t, repo.lots)
	current, err := svc.GetGRN(context.Background(), grn.ID)
	require.NoError(t, err)
	require.Equal(t, GRNStatusDraft, current.Status)
	require.Empty(t, idem.keys)

	// a retry after fixing the cause receives every line exactly once
	repo.failPostOn = 0
	posted, err := svc.PostGRN(context.Background(), grn.ID, 42)
	require.NoError(t, err)
	require.Equal(t, GRNStatusPosted, posted.Status)
	require.Len(t, repo.lots, 2)
	require.Equal(t, int64(10), repo.lots[0].Quantity)
	require.Equal(t, int64(5), repo.lots[1].Quantity)
}

func TestPostGRNDuplicateKeyConflicts(t *testing.T) {
	repo := newFakeRepo()
	idem := newFakeIdempotency()
	svc, _ := newTestService(repo, idem)
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10})
	_, err := svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.NoError(t, err)
	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLine{{MaterialID: 1, Qty: 10}},
	})
	require.NoError(t, err)

	idem.keys["GRN:"+grn.Number] = true

	_, err = svc.PostGRN(context.Background(), grn.ID, 42)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Empty(t, repo.lots)
}

func TestCancelGRNOnlyFromDraft(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, newFakeIdempotency())
	po := draftPO(t, svc, POLine{MaterialID: 1, Qty: 10})
	_, err := svc.ApprovePO(context.Background(), po.ID, 42, "")
	require.NoError(t, err)
	grn, err := svc.CreateGRN(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLine{{MaterialID: 1, Qty: 10}},
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelGRN(context.Background(), grn.ID, 42)
	require.NoError(t, err)
	require.Equal(t, GRNStatusCancelled, cancelled.Status)

	_, err = svc.PostGRN(context.Background(), grn.ID, 42)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Empty(t, repo.lots)
}
