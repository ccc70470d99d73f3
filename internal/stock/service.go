package stock

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stocklane/stocklane/internal/shared"
)

// ReceiveLotInput carries a receipt into the ledger.
type ReceiveLotInput struct {
	MaterialID  int64
	WarehouseID int64
	Quantity    int64
	LotCode     string
	ReceiptID   *int64
	ActorID     int64
}

// AdjustmentInput carries a manual correction.
type AdjustmentInput struct {
	MaterialID  int64
	WarehouseID int64
	LotID       *int64
	Delta       int64
	Reason      string
	ActorID     int64
}

// Service implements the stock ledger operations.
type Service struct {
	repo   Repository
	cache  *SummaryCache
	audit  *shared.AuditLogger
	logger *slog.Logger
}

func NewService(repo Repository, cache *SummaryCache, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// ReceiveLot creates a lot with remain equal to quantity.
func (s *Service) ReceiveLot(ctx context.Context, input ReceiveLotInput) (Lot, error) {
	if input.Quantity <= 0 {
		return Lot{}, ErrInvalidQuantity
	}
	lot := Lot{
		MaterialID:  input.MaterialID,
		WarehouseID: input.WarehouseID,
		ReceiptID:   input.ReceiptID,
		LotCode:     strings.TrimSpace(input.LotCode),
		Quantity:    input.Quantity,
	}
	created, err := s.repo.CreateLot(ctx, lot)
	if err != nil {
		return Lot{}, err
	}
	s.cache.Invalidate(ctx, created.WarehouseID)
	s.recordAudit(ctx, input.ActorID, "stock.receive", "lot", created.ID, map[string]any{
		"materialId":  created.MaterialID,
		"warehouseId": created.WarehouseID,
		"quantity":    created.Quantity,
	})
	return created, nil
}

// ListLots returns lots oldest first.
func (s *Service) ListLots(ctx context.Context, filter LotFilter) ([]Lot, error) {
	return s.repo.ListLots(ctx, filter)
}

// ApplyAdjustment validates and applies a manual correction, appending an
// adjustment record.
func (s *Service) ApplyAdjustment(ctx context.Context, input AdjustmentInput) (Adjustment, error) {
	if input.Delta == 0 {
		return Adjustment{}, ErrInvalidDelta
	}
	if strings.TrimSpace(input.Reason) == "" {
		return Adjustment{}, ErrReasonRequired
	}
	if input.LotID == nil && (input.MaterialID <= 0 || input.WarehouseID <= 0) {
		return Adjustment{}, ErrMaterialNotFound
	}
	adj := Adjustment{
		MaterialID:  input.MaterialID,
		WarehouseID: input.WarehouseID,
		LotID:       input.LotID,
		Delta:       input.Delta,
		Reason:      strings.TrimSpace(input.Reason),
		CreatedBy:   input.ActorID,
	}
	applied, err := s.repo.ApplyAdjustment(ctx, adj)
	if err != nil {
		return Adjustment{}, err
	}
	s.cache.Invalidate(ctx, applied.WarehouseID)
	s.recordAudit(ctx, input.ActorID, "stock.adjust", "adjustment", applied.ID, map[string]any{
		"materialId":  applied.MaterialID,
		"warehouseId": applied.WarehouseID,
		"delta":       applied.Delta,
		"reason":      applied.Reason,
	})
	return applied, nil
}

// ListAdjustments returns the correction history newest first.
func (s *Service) ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error) {
	return s.repo.ListAdjustments(ctx, filter)
}

// Consume draws down stock FIFO for one material, all-or-nothing.
func (s *Service) Consume(ctx context.Context, materialID, warehouseID, quantity int64) ([]Allocation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	plan, err := s.repo.Consume(ctx, materialID, warehouseID, quantity)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, warehouseID)
	s.recordAudit(ctx, shared.ActorFromContext(ctx), "stock.consume", "material", materialID, map[string]any{
		"warehouseId": warehouseID,
		"quantity":    quantity,
		"allocations": plan,
	})
	return plan, nil
}

// InvalidateSummary drops cached projections for a warehouse. Callers that
// mutate the ledger through their own transactions use this after commit.
func (s *Service) InvalidateSummary(ctx context.Context, warehouseID int64) {
	s.cache.Invalidate(ctx, warehouseID)
}

// Summarize returns the per-material aggregate, reading through the cache.
func (s *Service) Summarize(ctx context.Context, warehouseID *int64) ([]SummaryRow, error) {
	if rows, ok := s.cache.Get(ctx, warehouseID); ok {
		return rows, nil
	}
	rows, err := s.repo.Summarize(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, warehouseID, rows)
	return rows, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Error("audit record", slog.Any("error", err), slog.String("action", action))
	}
}
