package requisition

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

// fakeRepo keeps requisitions in memory and consumes stock from a flat
// per-material pool, all-or-nothing per completion like the real store.
type fakeRepo struct {
	reqs   map[int64]*Requisition
	nextID int64
	// active materials by id
	materials map[int64]bool
	// available stock per material per warehouse
	pool map[[2]int64]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{reqs: map[int64]*Requisition{}, nextID: 1, materials: map[int64]bool{}, pool: map[[2]int64]int64{}}
}

func (f *fakeRepo) addMaterial(id int64, active bool) {
	f.materials[id] = active
}

func (f *fakeRepo) stockFor(materialID, warehouseID int64) int64 {
	return f.pool[[2]int64{materialID, warehouseID}]
}

func (f *fakeRepo) addStock(materialID, warehouseID, qty int64) {
	f.pool[[2]int64{materialID, warehouseID}] += qty
}

func (f *fakeRepo) Create(_ context.Context, req Requisition) (Requisition, error) {
	for _, line := range req.Lines {
		if !f.materials[line.MaterialID] {
			return Requisition{}, ErrUnknownMaterial
		}
	}
	req.ID = f.nextID
	req.Code = fmt.Sprintf("REQ-%04d", f.nextID)
	req.RefID = uuid.New()
	req.Status = StatusPending
	req.RequestedAt = time.Now()
	for i := range req.Lines {
		req.Lines[i].ID = int64(i + 1)
	}
	f.nextID++
	copied := req
	f.reqs[req.ID] = &copied
	return req, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (Requisition, error) {
	req, ok := f.reqs[id]
	if !ok {
		return Requisition{}, ErrNotFound
	}
	return *req, nil
}

func (f *fakeRepo) List(_ context.Context, filter ListFilter) ([]Requisition, int, error) {
	var list []Requisition
	for _, req := range f.reqs {
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		list = append(list, *req)
	}
	return list, len(list), nil
}

func (f *fakeRepo) Transition(_ context.Context, id int64, from, to Status) error {
	req, ok := f.reqs[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status != from {
		return &InvalidStateError{Current: req.Status, Action: "transition"}
	}
	req.Status = to
	return nil
}

func (f *fakeRepo) Complete(_ context.Context, id, warehouseID int64) (Requisition, []LineAllocation, error) {
	req, ok := f.reqs[id]
	if !ok {
		return Requisition{}, nil, ErrNotFound
	}
	if req.Status != StatusApproved {
		return Requisition{}, nil, &InvalidStateError{Current: req.Status, Action: "complete"}
	}
	for _, line := range req.Lines {
		if f.stockFor(line.MaterialID, warehouseID) < line.Qty {
			return Requisition{}, nil, &stock.InsufficientStockError{
				MaterialID:  line.MaterialID,
				WarehouseID: warehouseID,
				Requested:   line.Qty,
				Available:   f.stockFor(line.MaterialID, warehouseID),
			}
		}
	}
	var allocations []LineAllocation
	for _, line := range req.Lines {
		f.pool[[2]int64{line.MaterialID, warehouseID}] -= line.Qty
		allocations = append(allocations, LineAllocation{LineID: line.ID, LotID: line.ID, Taken: line.Qty})
	}
	req.Status = StatusCompleted
	now := time.Now()
	req.CompletedAt = &now
	return *req, allocations, nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	req, ok := f.reqs[id]
	if !ok {
		return ErrNotFound
	}
	if !req.Status.Deletable() {
		return ErrNotDeletable
	}
	delete(f.reqs, id)
	return nil
}

type recordedApprovals struct {
	logs []shared.ApprovalLog
}

func (r *recordedApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func newService() (*Service, *fakeRepo, *recordedApprovals) {
	repo := newFakeRepo()
	repo.addMaterial(1, true)
	repo.addMaterial(2, true)
	approvals := &recordedApprovals{}
	return NewService(repo, approvals, nil, nil, nil), repo, approvals
}

func createPending(t *testing.T, svc *Service, lines ...Line) Requisition {
	t.Helper()
	req, err := svc.Create(context.Background(), CreateInput{BranchID: 1, ActorID: 7, Lines: lines})
	require.NoError(t, err)
	return req
}

func TestCreateSetsPendingAndRecordsSubmit(t *testing.T) {
	svc, _, approvals := newService()

	req := createPending(t, svc, Line{MaterialID: 1, Qty: 10})
	require.Equal(t, StatusPending, req.Status)
	require.NotEmpty(t, req.Code)
	require.Len(t, approvals.logs, 1)
	require.Equal(t, shared.ApprovalSubmit, approvals.logs[0].Action)
}

func TestCreateRequiresLines(t *testing.T) {
	svc, _, _ := newService()

	_, err := svc.Create(context.Background(), CreateInput{BranchID: 1, ActorID: 7})
	require.ErrorIs(t, err, ErrNoLines)
}

func TestCreateRejectsBadLine(t *testing.T) {
	svc, _, _ := newService()

	_, err := svc.Create(context.Background(), CreateInput{BranchID: 1, ActorID: 7, Lines: []Line{{MaterialID: 1, Qty: 0}}})
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = svc.Create(context.Background(), CreateInput{BranchID: 1, ActorID: 7, Lines: []Line{{MaterialID: 0, Qty: 5}}})
	require.ErrorIs(t, err, ErrInvalidLine)
}

func TestCreateRejectsUnknownMaterial(t *testing.T) {
	svc, repo, _ := newService()
	repo.addMaterial(3, false)

	_, err := svc.Create(context.Background(), CreateInput{BranchID: 1, ActorID: 7, Lines: []Line{{MaterialID: 99, Qty: 5}}})
	require.ErrorIs(t, err, ErrUnknownMaterial)

	// inactive counts as unknown
	_, err = svc.Create(context.Background(), CreateInput{BranchID: 1, ActorID: 7, Lines: []Line{{MaterialID: 3, Qty: 5}}})
	require.ErrorIs(t, err, ErrUnknownMaterial)

	// one bad line sinks the whole requisition
	_, err = svc.Create(context.Background(), CreateInput{BranchID: 1, ActorID: 7, Lines: []Line{{MaterialID: 1, Qty: 5}, {MaterialID: 99, Qty: 1}}})
	require.ErrorIs(t, err, ErrUnknownMaterial)
	require.Empty(t, repo.reqs)
}

func TestApproveFromPending(t *testing.T) {
	svc, _, approvals := newService()
	req := createPending(t, svc, Line{MaterialID: 1, Qty: 10})

	approved, err := svc.Approve(context.Background(), req.ID, 9, "ok")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, shared.ApprovalApprove, approvals.logs[len(approvals.logs)-1].Action)
}

func TestApproveRejectedFails(t *testing.T) {
	svc, _, _ := newService()
	req := createPending(t, svc, Line{MaterialID: 1, Qty: 10})

	_, err := svc.Reject(context.Background(), req.ID, 9, "no")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), req.ID, 9, "")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCompletePendingFails(t *testing.T) {
	svc, _, _ := newService()
	req := createPending(t, svc, Line{MaterialID: 1, Qty: 10})

	_, _, err := svc.Complete(context.Background(), req.ID, 1, 9)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteConsumesAndTerminates(t *testing.T) {
	svc, repo, _ := newService()
	repo.addStock(1, 1, 10)
	req := createPending(t, svc, Line{MaterialID: 1, Qty: 10})

	_, err := svc.Approve(context.Background(), req.ID, 9, "")
	require.NoError(t, err)

	completed, allocations, err := svc.Complete(context.Background(), req.ID, 1, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	require.Len(t, allocations, 1)
	require.Equal(t, int64(0), repo.stockFor(1, 1))

	// terminal, nothing else is legal
	_, _, err = svc.Complete(context.Background(), req.ID, 1, 9)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteInsufficientKeepsApproved(t *testing.T) {
	svc, repo, _ := newService()
	repo.addStock(1, 1, 5)
	req := createPending(t, svc, Line{MaterialID: 1, Qty: 10})

	_, err := svc.Approve(context.Background(), req.ID, 9, "")
	require.NoError(t, err)

	_, _, err = svc.Complete(context.Background(), req.ID, 1, 9)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	current, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, current.Status)
	require.Equal(t, int64(5), repo.stockFor(1, 1))
}

func TestCompleteMultiLineAtomic(t *testing.T) {
	svc, repo, _ := newService()
	repo.addStock(1, 1, 10)
	repo.addStock(2, 1, 3)
	req := createPending(t, svc, Line{MaterialID: 1, Qty: 10}, Line{MaterialID: 2, Qty: 5})

	_, err := svc.Approve(context.Background(), req.ID, 9, "")
	require.NoError(t, err)

	_, _, err = svc.Complete(context.Background(), req.ID, 1, 9)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.Equal(t, int64(10), repo.stockFor(1, 1))
	require.Equal(t, int64(3), repo.stockFor(2, 1))
}

func TestCompleteRequiresWarehouse(t *testing.T) {
	svc, _, _ := newService()
	req := createPending(t, svc, Line{MaterialID: 1, Qty: 1})

	_, _, err := svc.Complete(context.Background(), req.ID, 0, 9)
	require.ErrorIs(t, err, ErrNoWarehouse)
}

func TestDeletePolicy(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()

	pending := createPending(t, svc, Line{MaterialID: 1, Qty: 1})
	require.NoError(t, svc.Delete(ctx, pending.ID, 9))

	rejected := createPending(t, svc, Line{MaterialID: 1, Qty: 1})
	_, err := svc.Reject(ctx, rejected.ID, 9, "")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, rejected.ID, 9))

	approved := createPending(t, svc, Line{MaterialID: 1, Qty: 1})
	_, err = svc.Approve(ctx, approved.ID, 9, "")
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(ctx, approved.ID, 9), ErrNotDeletable)

	repo.addStock(1, 1, 1)
	_, _, err = svc.Complete(ctx, approved.ID, 1, 9)
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(ctx, approved.ID, 9), ErrNotDeletable)
}

func TestStatusTransitionTable(t *testing.T) {
	require.True(t, StatusPending.CanTransition(StatusApproved))
	require.True(t, StatusPending.CanTransition(StatusRejected))
	require.True(t, StatusApproved.CanTransition(StatusCompleted))
	require.False(t, StatusApproved.CanTransition(StatusPending))
	require.False(t, StatusRejected.CanTransition(StatusApproved))
	require.False(t, StatusCompleted.CanTransition(StatusPending))
	require.False(t, StatusRejected.CanTransition(StatusPending))
}
