package purchasing

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/stocklane/stocklane/internal/shared"
)

const approvalModule = "purchasing"

// SummaryInvalidator drops cached stock projections after a posting.
// The stock service satisfies this.
type SummaryInvalidator interface {
	InvalidateSummary(ctx context.Context, warehouseID int64)
}

// Idempotency guards GRN posting against double submission.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Approvals records workflow decisions.
type Approvals interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// CreatePOInput carries a new purchase order.
type CreatePOInput struct {
	SupplierID   int64
	WarehouseID  int64
	ExpectedDate *time.Time
	Note         string
	ActorID      int64
	Lines        []POLine
}

// CreateGRNInput carries a new goods receipt against an approved order.
type CreateGRNInput struct {
	POID    int64
	Note    string
	ActorID int64
	Lines   []GRNLine
}

// Service drives the purchase order and goods receipt workflow.
type Service struct {
	repo        Repository
	stock       SummaryInvalidator
	idempotency Idempotency
	approvals   Approvals
	audit       *shared.AuditLogger
	logger      *slog.Logger
}

func NewService(repo Repository, stockSvc SummaryInvalidator, idempotency Idempotency, approvals Approvals, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, stock: stockSvc, idempotency: idempotency, approvals: approvals, audit: audit, logger: logger}
}

// CreatePO validates lines and opens a DRAFT order.
func (s *Service) CreatePO(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.MaterialID <= 0 || line.Qty <= 0 {
			return PurchaseOrder{}, ErrInvalidLine
		}
	}
	created, err := s.repo.CreatePO(ctx, PurchaseOrder{
		SupplierID:   input.SupplierID,
		WarehouseID:  input.WarehouseID,
		ExpectedDate: input.ExpectedDate,
		Note:         input.Note,
		CreatedBy:    input.ActorID,
		Lines:        input.Lines,
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordApproval(ctx, created, input.ActorID, shared.ApprovalSubmit, "")
	s.recordAudit(ctx, input.ActorID, "po.create", "purchase_order", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

func (s *Service) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

func (s *Service) ListPOs(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	return s.repo.ListPOs(ctx, filter)
}

// ApprovePO moves DRAFT to APPROVED, unlocking goods receipts.
func (s *Service) ApprovePO(ctx context.Context, id, actorID int64, note string) (PurchaseOrder, error) {
	if err := s.repo.UpdatePOStatus(ctx, id, POStatusDraft, POStatusApproved); err != nil {
		return PurchaseOrder{}, err
	}
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordApproval(ctx, po, actorID, shared.ApprovalApprove, note)
	s.recordAudit(ctx, actorID, "po.approve", "purchase_order", id, nil)
	return po, nil
}

// CancelPO moves DRAFT to CANCELLED.
func (s *Service) CancelPO(ctx context.Context, id, actorID int64, note string) (PurchaseOrder, error) {
	if err := s.repo.UpdatePOStatus(ctx, id, POStatusDraft, POStatusCancelled); err != nil {
		return PurchaseOrder{}, err
	}
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordApproval(ctx, po, actorID, shared.ApprovalReject, note)
	s.recordAudit(ctx, actorID, "po.cancel", "purchase_order", id, nil)
	return po, nil
}

// CreateGRN opens a DRAFT receipt against an APPROVED order.
func (s *Service) CreateGRN(ctx context.Context, input CreateGRNInput) (GoodsReceipt, error) {
	if len(input.Lines) == 0 {
		return GoodsReceipt{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.MaterialID <= 0 || line.Qty <= 0 {
			return GoodsReceipt{}, ErrInvalidLine
		}
	}
	po, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		return GoodsReceipt{}, err
	}
	if po.Status != POStatusApproved {
		return GoodsReceipt{}, ErrInvalidState
	}
	created, err := s.repo.CreateGRN(ctx, GoodsReceipt{
		POID:        po.ID,
		WarehouseID: po.WarehouseID,
		Note:        input.Note,
		CreatedBy:   input.ActorID,
		Lines:       input.Lines,
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, input.ActorID, "grn.create", "goods_receipt", created.ID, map[string]any{"number": created.Number})
	return created, nil
}

func (s *Service) GetGRN(ctx context.Context, id int64) (GoodsReceipt, error) {
	return s.repo.GetGRN(ctx, id)
}

// PostGRN marks the receipt POSTED and opens one stock lot per line in a
// single transaction, so a failing line leaves the ledger and the receipt
// untouched. An idempotency key on the receipt number guards against
// double posting.
func (s *Service) PostGRN(ctx context.Context, id, actorID int64) (GoodsReceipt, error) {
	grn, err := s.repo.GetGRN(ctx, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	if grn.Status != GRNStatusDraft {
		return GoodsReceipt{}, ErrInvalidState
	}

	key := "GRN:" + grn.Number
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "purchasing.grn"); err != nil {
			return GoodsReceipt{}, err
		}
		inserted = true
	}

	lots, err := s.repo.PostGRN(ctx, grn)
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return GoodsReceipt{}, err
	}

	grn.Status = GRNStatusPosted
	if s.stock != nil {
		s.stock.InvalidateSummary(ctx, grn.WarehouseID)
	}
	s.recordAudit(ctx, actorID, "grn.post", "goods_receipt", id, map[string]any{"number": grn.Number, "lots": len(lots)})
	s.closePOIfFullyReceived(ctx, grn.POID, actorID)
	return grn, nil
}

// closePOIfFullyReceived moves the order to CLOSED once every line has
// been received in full across posted receipts. Posting stays successful
// even when the close check fails, so errors are only logged.
func (s *Service) closePOIfFullyReceived(ctx context.Context, poID, actorID int64) {
	po, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		s.logClose(poID, err)
		return
	}
	totals, err := s.repo.ReceivedTotals(ctx, poID)
	if err != nil {
		s.logClose(poID, err)
		return
	}
	for _, line := range po.Lines {
		if totals[line.MaterialID] < line.Qty {
			return
		}
	}
	err = s.repo.UpdatePOStatus(ctx, poID, POStatusApproved, POStatusClosed)
	if err != nil && !errors.Is(err, ErrInvalidState) {
		s.logClose(poID, err)
		return
	}
	if err == nil {
		s.recordAudit(ctx, actorID, "po.close", "purchase_order", poID, nil)
	}
}

func (s *Service) logClose(poID int64, err error) {
	if s.logger != nil {
		s.logger.Error("close purchase order", slog.Any("error", err), slog.Int64("poId", poID))
	}
}

// CancelGRN discards a DRAFT receipt without ledger effect.
func (s *Service) CancelGRN(ctx context.Context, id, actorID int64) (GoodsReceipt, error) {
	if err := s.repo.UpdateGRNStatus(ctx, id, GRNStatusDraft, GRNStatusCancelled); err != nil {
		return GoodsReceipt{}, err
	}
	grn, err := s.repo.GetGRN(ctx, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, actorID, "grn.cancel", "goods_receipt", id, nil)
	return grn, nil
}

func (s *Service) recordApproval(ctx context.Context, po PurchaseOrder, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   po.RefID,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
	if err != nil && s.logger != nil {
		s.logger.Error("record approval", slog.Any("error", err), slog.String("action", string(action)))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Error("audit record", slog.Any("error", err), slog.String("action", action))
	}
}
