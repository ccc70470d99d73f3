package stock

import (
	"errors"
	"fmt"
	"time"
)

// Lot is one received batch of a material in one warehouse. Quantity is
// immutable after receipt, Remain is drawn down by consumption and
// adjustments. Lots are never deleted, only driven to zero remain.
type Lot struct {
	ID          int64     `json:"id"`
	MaterialID  int64     `json:"materialId"`
	WarehouseID int64     `json:"warehouseId"`
	ReceiptID   *int64    `json:"receiptId,omitempty"`
	LotCode     string    `json:"lotCode"`
	Quantity    int64     `json:"quantity"`
	Remain      int64     `json:"remain"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Adjustment is an append-only audit record of a manual stock correction.
type Adjustment struct {
	ID          int64     `json:"id"`
	WarehouseID int64     `json:"warehouseId"`
	MaterialID  int64     `json:"materialId"`
	LotID       *int64    `json:"lotId,omitempty"`
	Delta       int64     `json:"delta"`
	Reason      string    `json:"reason"`
	CreatedBy   int64     `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Allocation records how much was taken from one lot during a consumption.
type Allocation struct {
	LotID int64 `json:"lotId"`
	Taken int64 `json:"taken"`
}

// SummaryRow is a per-material aggregate over the lot store.
// Issued is TotalQuantity minus TotalRemain.
type SummaryRow struct {
	MaterialID    int64  `json:"materialId"`
	MaterialCode  string `json:"materialCode"`
	MaterialName  string `json:"materialName"`
	Unit          string `json:"unit"`
	TotalQuantity int64  `json:"totalQuantity"`
	TotalRemain   int64  `json:"totalRemain"`
	Issued        int64  `json:"issued"`
}

// LotFilter narrows ListLots.
type LotFilter struct {
	MaterialID  *int64
	WarehouseID *int64
	OnlyInStock bool
}

// AdjustmentFilter narrows ListAdjustments.
type AdjustmentFilter struct {
	MaterialID  *int64
	WarehouseID *int64
	From        time.Time
	To          time.Time
}

var (
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidDelta      = errors.New("adjustment delta must be non zero")
	ErrReasonRequired    = errors.New("adjustment reason is required")
	ErrLotNotFound       = errors.New("lot not found")
	ErrMaterialNotFound  = errors.New("material not found")
	ErrWarehouseNotFound = errors.New("warehouse not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError names the deficient material so callers can
// surface it to the user.
type InsufficientStockError struct {
	MaterialID  int64
	WarehouseID int64
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for material %d: requested %d, available %d", e.MaterialID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
