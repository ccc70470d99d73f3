package purchasing

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
	"github.com/stocklane/stocklane/internal/stock"
)

// Handler exposes purchasing over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPurchasingView))
		r.Get("/orders", h.listPOs)
		r.Get("/orders/{id}", h.getPO)
		r.Get("/receipts/{id}", h.getGRN)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPurchasingEdit))
		r.Post("/orders", h.createPO)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPurchasingApprove))
		r.Post("/orders/{id}/approve", h.approvePO)
		r.Post("/orders/{id}/cancel", h.cancelPO)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPurchasingReceive))
		r.Post("/receipts", h.createGRN)
		r.Post("/receipts/{id}/post", h.postGRN)
		r.Post("/receipts/{id}/cancel", h.cancelGRN)
	})
}

type poLineRequest struct {
	MaterialID int64  `json:"materialId" validate:"required,gt=0"`
	Qty        int64  `json:"qty" validate:"required,gt=0"`
	Price      int64  `json:"price" validate:"gte=0"`
	Note       string `json:"note"`
}

type createPORequest struct {
	SupplierID   int64           `json:"supplierId" validate:"required,gt=0"`
	WarehouseID  int64           `json:"warehouseId" validate:"required,gt=0"`
	ExpectedDate *time.Time      `json:"expectedDate"`
	Note         string          `json:"note"`
	Lines        []poLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines := make([]POLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, POLine{MaterialID: line.MaterialID, Qty: line.Qty, Price: line.Price, Note: line.Note})
	}
	created, err := h.service.CreatePO(r.Context(), CreatePOInput{
		SupplierID:   req.SupplierID,
		WarehouseID:  req.WarehouseID,
		ExpectedDate: req.ExpectedDate,
		Note:         req.Note,
		ActorID:      shared.ActorFromContext(r.Context()),
		Lines:        lines,
	})
	if err != nil {
		h.logger.Error("create purchase order", slog.Any("error", err))
		respondPurchasingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	if raw := q.Get("status"); raw != "" {
		status := POStatus(raw)
		filter.Status = &status
	}
	if raw := q.Get("supplier_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.SupplierID = &id
		}
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	list, total, err := h.service.ListPOs(r.Context(), filter)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		respondPurchasingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list, "total": total})
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	po, err := h.service.GetPO(r.Context(), id)
	if err != nil {
		respondPurchasingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

type decisionRequest struct {
	Note string `json:"note"`
}

func (h *Handler) approvePO(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var req decisionRequest
	_ = httpx.DecodeJSON(r, &req)
	po, err := h.service.ApprovePO(r.Context(), id, shared.ActorFromContext(r.Context()), req.Note)
	if err != nil {
		h.logger.Error("approve purchase order", slog.Any("error", err), slog.Int64("id", id))
		respondPurchasingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) cancelPO(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid order id")
		return
	}
	var req decisionRequest
	_ = httpx.DecodeJSON(r, &req)
	po, err := h.service.CancelPO(r.Context(), id, shared.ActorFromContext(r.Context()), req.Note)
	if err != nil {
		respondPurchasingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

type grnLineRequest struct {
	MaterialID int64 `json:"materialId" validate:"required,gt=0"`
	Qty        int64 `json:"qty" validate:"required,gt=0"`
}

type createGRNRequest struct {
	POID  int64            `json:"poId" validate:"required,gt=0"`
	Note  string           `json:"note"`
	Lines []grnLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	var req createGRNRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lines := make([]GRNLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, GRNLine{MaterialID: line.MaterialID, Qty: line.Qty})
	}
	created, err := h.service.CreateGRN(r.Context(), CreateGRNInput{
		POID:    req.POID,
		Note:    req.Note,
		ActorID: shared.ActorFromContext(r.Context()),
		Lines:   lines,
	})
	if err != nil {
		h.logger.Error("create goods receipt", slog.Any("error", err))
		respondPurchasingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receipt id")
		return
	}
	grn, err := h.service.GetGRN(r.Context(), id)
	if err != nil {
		respondPurchasingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) postGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receipt id")
		return
	}
	grn, err := h.service.PostGRN(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Error("post goods receipt", slog.Any("error", err), slog.Int64("id", id))
		respondPurchasingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func (h *Handler) cancelGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid receipt id")
		return
	}
	grn, err := h.service.CancelGRN(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		respondPurchasingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grn)
}

func docID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func respondPurchasingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrNoLines), errors.Is(err, ErrInvalidLine):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, stock.ErrMaterialNotFound), errors.Is(err, stock.ErrWarehouseNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
