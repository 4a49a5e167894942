package models

import "time"

// Roles
const (
	RoleOperator = "operator"
	RoleReviewer = "reviewer"
	RoleAdmin    = "admin"
)

type User struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organizationId" db:"organization_id"`
	FullName       string    `json:"fullName" db:"full_name"`
	PhoneNumber    string    `json:"phoneNumber" db:"phone_number" example:"+919812345678"`
	Email          string    `json:"email" db:"email" example:"ops@example.com"`
	Role           string    `json:"role" db:"role"`
	PasswordHash   string    `json:"-" db:"password_hash"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}
