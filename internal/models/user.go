package models

import (
	"time"

	"gorm.io/gorm"
)

// Role names used across the back office.
const (
	RoleAdmin     = "admin"
	RoleSales     = "sales"
	RoleInventory = "inventory"
	RoleAuditor   = "auditor"
)

// User represents a back-office account. FailedAttempts and LockoutUntil
// belong to the account security policy and are reset on any successful
// authenticated password change.
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Email          string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password       string         `gorm:"size:255" json:"-"` // bcrypt hash, empty for OAuth-only users
	Name           string         `gorm:"size:100" json:"name"`
	Role           string         `gorm:"size:50;default:sales" json:"role"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	OAuthProvider  string         `gorm:"size:50" json:"oauth_provider,omitempty"`
	FailedAttempts int            `gorm:"default:0" json:"-"`
	LockoutUntil   *time.Time     `json:"-"`
	LastLogin      *time.Time     `json:"last_login"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// PasswordHistory keeps the last N password hashes per user for reuse
// prevention. Oldest rows are evicted when the limit is exceeded.
type PasswordHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (PasswordHistory) TableName() string { return "password_history" }
