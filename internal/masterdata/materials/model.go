package materials

import (
	"time"
)

// Material represents a stock keeping unit tracked by the ledger.
// Price is stored in minor currency units, MinRemain is the low stock
// threshold used by the warehouse scan job.
type Material struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	CategoryID int64     `json:"categoryId"`
	UnitID     int64     `json:"unitId"`
	Price      int64     `json:"price"`
	MinRemain  int64     `json:"minRemain"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
