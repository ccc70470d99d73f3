package requisition

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/stocklane/stocklane/internal/shared"
)

const approvalModule = "requisition"

// SummaryInvalidator drops cached stock projections after completion.
// The stock service satisfies this.
type SummaryInvalidator interface {
	InvalidateSummary(ctx context.Context, warehouseID int64)
}

// Approvals is the slice of shared.ApprovalRecorder the service needs.
type Approvals interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// CreateInput carries a new requisition.
type CreateInput struct {
	BranchID int64
	ActorID  int64
	Lines    []Line
}

// Service drives the requisition lifecycle.
type Service struct {
	repo      Repository
	approvals Approvals
	audit     *shared.AuditLogger
	stock     SummaryInvalidator
	logger    *slog.Logger
}

func NewService(repo Repository, approvals Approvals, audit *shared.AuditLogger, stock SummaryInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, approvals: approvals, audit: audit, stock: stock, logger: logger}
}

// Create validates lines and opens a PENDING requisition.
func (s *Service) Create(ctx context.Context, input CreateInput) (Requisition, error) {
	if len(input.Lines) == 0 {
		return Requisition{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.MaterialID <= 0 || line.Qty <= 0 {
			return Requisition{}, ErrInvalidLine
		}
	}
	created, err := s.repo.Create(ctx, Requisition{
		BranchID:    input.BranchID,
		RequestedBy: input.ActorID,
		Lines:       input.Lines,
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordApproval(ctx, created, input.ActorID, shared.ApprovalSubmit, "")
	s.recordAudit(ctx, input.ActorID, "requisition.create", created.ID, map[string]any{
		"code":  created.Code,
		"lines": len(created.Lines),
	})
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Requisition, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Requisition, int, error) {
	return s.repo.List(ctx, filter)
}

// Approve moves PENDING to APPROVED.
func (s *Service) Approve(ctx context.Context, id, actorID int64, note string) (Requisition, error) {
	if err := s.repo.Transition(ctx, id, StatusPending, StatusApproved); err != nil {
		return Requisition{}, err
	}
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	s.recordApproval(ctx, req, actorID, shared.ApprovalApprove, note)
	s.recordAudit(ctx, actorID, "requisition.approve", id, nil)
	return req, nil
}

// Reject moves PENDING to REJECTED without ledger effect.
func (s *Service) Reject(ctx context.Context, id, actorID int64, note string) (Requisition, error) {
	if err := s.repo.Transition(ctx, id, StatusPending, StatusRejected); err != nil {
		return Requisition{}, err
	}
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	s.recordApproval(ctx, req, actorID, shared.ApprovalReject, note)
	s.recordAudit(ctx, actorID, "requisition.reject", id, nil)
	return req, nil
}

// Complete consumes every line from the warehouse and marks the
// requisition COMPLETED. Fails whole on the first deficient material.
func (s *Service) Complete(ctx context.Context, id, warehouseID, actorID int64) (Requisition, []LineAllocation, error) {
	if warehouseID <= 0 {
		return Requisition{}, nil, ErrNoWarehouse
	}
	req, allocations, err := s.repo.Complete(ctx, id, warehouseID)
	if err != nil {
		return Requisition{}, nil, err
	}
	if s.stock != nil {
		s.stock.InvalidateSummary(ctx, warehouseID)
	}
	s.recordApproval(ctx, req, actorID, shared.ApprovalComplete, "")
	s.recordAudit(ctx, actorID, "requisition.complete", id, map[string]any{
		"warehouseId": warehouseID,
		"allocations": allocations,
	})
	return req, allocations, nil
}

// Delete removes a requisition that is still PENDING or was REJECTED.
func (s *Service) Delete(ctx context.Context, id, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "requisition.delete", id, nil)
	return nil
}

func (s *Service) recordApproval(ctx context.Context, req Requisition, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   req.RefID,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
	if err != nil && s.logger != nil {
		s.logger.Error("record approval", slog.Any("error", err), slog.String("action", string(action)))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "requisition",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Error("audit record", slog.Any("error", err), slog.String("action", action))
	}
}
