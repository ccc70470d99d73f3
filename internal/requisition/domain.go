package requisition

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the requisition lifecycle state. Transitions are monotonic:
// PENDING moves to APPROVED or REJECTED, APPROVED moves to COMPLETED.
// Nothing re-enters PENDING.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusCompleted Status = "COMPLETED"
	StatusRejected  Status = "REJECTED"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Deletable reports whether a requisition in this state may be removed.
// Completed requisitions carry ledger effects and approved ones are queued
// for fulfillment, so only PENDING and REJECTED may go.
func (s Status) Deletable() bool {
	return s == StatusPending || s == StatusRejected
}

// Requisition is a branch's request to draw materials from a warehouse.
type Requisition struct {
	ID          int64      `json:"id"`
	Code        string     `json:"code"`
	RefID       uuid.UUID  `json:"refId"`
	BranchID    int64      `json:"branchId"`
	Status      Status     `json:"status"`
	RequestedBy int64      `json:"requestedBy"`
	RequestedAt time.Time  `json:"requestedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Lines       []Line     `json:"lines,omitempty"`
}

// Line is one material plus requested quantity. Immutable after creation.
type Line struct {
	ID         int64 `json:"id"`
	MaterialID int64 `json:"materialId"`
	Qty        int64 `json:"qty"`
}

// LineAllocation records which lots satisfied a line at completion.
type LineAllocation struct {
	LineID int64 `json:"lineId"`
	LotID  int64 `json:"lotId"`
	Taken  int64 `json:"taken"`
}

var (
	ErrNotFound        = errors.New("requisition not found")
	ErrNoLines         = errors.New("requisition requires at least one line")
	ErrInvalidLine     = errors.New("requisition line requires a material and positive quantity")
	ErrUnknownMaterial = errors.New("requisition line references an unknown or inactive material")
	ErrNoWarehouse     = errors.New("completion requires a warehouse")
	ErrInvalidState    = errors.New("illegal state transition")
	ErrNotDeletable    = errors.New("requisition can no longer be deleted")
)

// InvalidStateError reports the state that blocked an operation.
type InvalidStateError struct {
	Current Status
	Action  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s requisition in state %s", e.Action, e.Current)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }
