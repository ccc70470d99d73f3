package warehouses

import (
	"time"
)

// Warehouse represents a physical storage location under a branch.
type Warehouse struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branchId"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
