package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleCustomer = "customer"
	RoleTailor   = "tailor"
	RoleAdmin    = "admin"
)

// User represents an account in the system (customer, tailor or admin)
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Role         string         `gorm:"not null;default:'customer';index" json:"role"` // "customer", "tailor" or "admin"
	Phone        string         `json:"phone,omitempty"`
	Bio          string         `gorm:"type:text" json:"bio,omitempty"`
	Available    bool           `gorm:"not null;default:true" json:"available"` // only meaningful for tailors
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// IsTailor reports whether the user can be assigned to orders
func (u User) IsTailor() bool {
	return u.Role == RoleTailor
}

// IsValidRole reports whether role is one of the known roles
func IsValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleTailor, RoleAdmin:
		return true
	}
	return false
}
