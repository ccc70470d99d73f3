package purchasing

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusApproved  POStatus = "APPROVED"
	POStatusClosed    POStatus = "CLOSED"
	POStatusCancelled POStatus = "CANCELLED"
)

// Goods receipt statuses.
type GRNStatus string

const (
	GRNStatusDraft     GRNStatus = "DRAFT"
	GRNStatusPosted    GRNStatus = "POSTED"
	GRNStatusCancelled GRNStatus = "CANCELLED"
)

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	SupplierID   int64      `json:"supplierId"`
	WarehouseID  int64      `json:"warehouseId"`
	Status       POStatus   `json:"status"`
	RefID        uuid.UUID  `json:"refId"`
	ExpectedDate *time.Time `json:"expectedDate,omitempty"`
	Note         string     `json:"note"`
	CreatedBy    int64      `json:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt"`
	Lines        []POLine   `json:"lines,omitempty"`
}

// POLine is one ordered material.
type POLine struct {
	ID         int64  `json:"id"`
	MaterialID int64  `json:"materialId"`
	Qty        int64  `json:"qty"`
	Price      int64  `json:"price"`
	Note       string `json:"note"`
}

// GoodsReceipt domain model. Posting a receipt opens one stock lot per
// line.
type GoodsReceipt struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	POID        int64     `json:"poId"`
	WarehouseID int64     `json:"warehouseId"`
	Status      GRNStatus `json:"status"`
	ReceivedAt  time.Time `json:"receivedAt"`
	Note        string    `json:"note"`
	CreatedBy   int64     `json:"createdBy"`
	Lines       []GRNLine `json:"lines,omitempty"`
}

// GRNLine describes received goods.
type GRNLine struct {
	ID         int64 `json:"id"`
	MaterialID int64 `json:"materialId"`
	Qty        int64 `json:"qty"`
}

var (
	ErrNotFound     = errors.New("purchasing document not found")
	ErrInvalidState = errors.New("action violates document workflow")
	ErrNoLines      = errors.New("document requires at least one line")
	ErrInvalidLine  = errors.New("line requires a material and positive quantity")
)
