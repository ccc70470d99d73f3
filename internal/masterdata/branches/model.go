package branches

import (
	"time"
)

// Branch represents an operating site of a company.
type Branch struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"companyId"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
