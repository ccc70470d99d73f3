package users

import "time"

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CompanyID *int64    `json:"companyId,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateUserInput carries the fields required to provision an account.
type CreateUserInput struct {
	Email     string
	Name      string
	Password  string
	CompanyID *int64
}

// UpdateUserInput carries mutable account fields.
type UpdateUserInput struct {
	Name     string
	IsActive bool
}
