package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/rbac"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler exposes the stock ledger over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockView))
		r.Get("/lots", h.listLots)
		r.Get("/adjustments", h.listAdjustments)
		r.Get("/summary", h.summarize)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockAdjust))
		r.Post("/lots", h.receiveLot)
		r.Post("/adjustments", h.applyAdjustment)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockExport))
		r.Get("/summary/export", h.exportSummary)
		r.Get("/summary/export.csv", h.exportSummaryCSV)
	})
}

func (h *Handler) listLots(w http.ResponseWriter, r *http.Request) {
	filter := LotFilter{
		MaterialID:  queryID(r, "material_id"),
		WarehouseID: queryID(r, "warehouse_id"),
		OnlyInStock: r.URL.Query().Get("in_stock") == "true",
	}
	lots, err := h.service.ListLots(r.Context(), filter)
	if err != nil {
		h.logger.Error("list lots", slog.Any("error", err))
		respondStockError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": lots})
}

type receiveLotRequest struct {
	MaterialID  int64  `json:"materialId" validate:"required,gt=0"`
	WarehouseID int64  `json:"warehouseId" validate:"required,gt=0"`
	Quantity    int64  `json:"quantity" validate:"required,gt=0"`
	LotCode     string `json:"lotCode"`
}

func (h *Handler) receiveLot(w http.ResponseWriter, r *http.Request) {
	var req receiveLotRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lot, err := h.service.ReceiveLot(r.Context(), ReceiveLotInput{
		MaterialID:  req.MaterialID,
		WarehouseID: req.WarehouseID,
		Quantity:    req.Quantity,
		LotCode:     req.LotCode,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("receive lot", slog.Any("error", err))
		respondStockError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lot)
}

type adjustmentRequest struct {
	MaterialID  int64  `json:"materialId"`
	WarehouseID int64  `json:"warehouseId"`
	LotID       *int64 `json:"lotId"`
	Delta       int64  `json:"delta" validate:"required"`
	Reason      string `json:"reason" validate:"required"`
}

func (h *Handler) applyAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	adj, err := h.service.ApplyAdjustment(r.Context(), AdjustmentInput{
		MaterialID:  req.MaterialID,
		WarehouseID: req.WarehouseID,
		LotID:       req.LotID,
		Delta:       req.Delta,
		Reason:      req.Reason,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("apply adjustment", slog.Any("error", err))
		respondStockError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, adj)
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	filter := AdjustmentFilter{
		MaterialID:  queryID(r, "material_id"),
		WarehouseID: queryID(r, "warehouse_id"),
		From:        queryTime(r, "from"),
		To:          queryTime(r, "to"),
	}
	adjustments, err := h.service.ListAdjustments(r.Context(), filter)
	if err != nil {
		h.logger.Error("list adjustments", slog.Any("error", err))
		respondStockError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"adjustments": adjustments})
}

func (h *Handler) summarize(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Summarize(r.Context(), queryID(r, "warehouse_id"))
	if err != nil {
		h.logger.Error("summarize stock", slog.Any("error", err))
		respondStockError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"summary": rows})
}

func queryID(r *http.Request, key string) *int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func queryTime(r *http.Request, key string) time.Time {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}
	if ts, err := time.Parse("2006-01-02", raw); err == nil {
		return ts
	}
	return time.Time{}
}

func respondStockError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidDelta), errors.Is(err, ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrLotNotFound), errors.Is(err, ErrMaterialNotFound), errors.Is(err, ErrWarehouseNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
