package requisition

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/rbac"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/stock"
)

// Handler exposes the requisition lifecycle over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRequisitionsView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRequisitionsCreate))
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRequisitionsApprove))
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRequisitionsComplete))
		r.Post("/{id}/complete", h.complete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRequisitionsDelete))
		r.Delete("/{id}", h.delete)
	})
}

type lineRequest struct {
	MaterialID int64 `json:"materialId" validate:"required,gt=0"`
	Qty        int64 `json:"qty" validate:"required,gt=0"`
}

type createRequest struct {
	BranchID int64         `json:"branchId" validate:"required,gt=0"`
	Lines    []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines := make([]Line, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, Line{MaterialID: line.MaterialID, Qty: line.Qty})
	}
	created, err := h.service.Create(r.Context(), CreateInput{
		BranchID: req.BranchID,
		ActorID:  shared.ActorFromContext(r.Context()),
		Lines:    lines,
	})
	if err != nil {
		h.logger.Error("create requisition", slog.Any("error", err))
		respondRequisitionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	if raw := q.Get("status"); raw != "" {
		status := Status(raw)
		filter.Status = &status
	}
	if raw := q.Get("branch_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.BranchID = &id
		}
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	list, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list requisitions", slog.Any("error", err))
		respondRequisitionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requisitions": list, "total": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := requisitionID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondRequisitionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

type decisionRequest struct {
	Note string `json:"note"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, actorID int64, note string) (Requisition, error)) {
	id, ok := requisitionID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	// Note is optional, an empty body is fine.
	var req decisionRequest
	_ = httpx.DecodeJSON(r, &req)
	updated, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()), req.Note)
	if err != nil {
		h.logger.Error("requisition decision", slog.Any("error", err), slog.Int64("id", id))
		respondRequisitionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type completeRequest struct {
	WarehouseID int64 `json:"warehouseId" validate:"required,gt=0"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := requisitionID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	var req completeRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	completed, allocations, err := h.service.Complete(r.Context(), id, req.WarehouseID, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("complete requisition", slog.Any("error", err), slog.Int64("id", id))
		respondRequisitionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requisition": completed, "allocations": allocations})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := requisitionID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid requisition id")
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		respondRequisitionError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func requisitionID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func respondRequisitionError(w http.ResponseWriter, err error) {
	var invalid *InvalidStateError
	var insufficient *stock.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", insufficient.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.As(err, &invalid), errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrNotDeletable):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNoLines), errors.Is(err, ErrInvalidLine), errors.Is(err, ErrUnknownMaterial), errors.Is(err, ErrNoWarehouse):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
