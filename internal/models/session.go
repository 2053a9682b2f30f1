package models

import "time"

// Session represents one logical client connection (one browser or one
// API client). Refresh tokens are bound to a session; revoking the
// session invalidates its rotation chain.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	IP        string    `gorm:"size:64" json:"ip,omitempty"`
	UserAgent string    `gorm:"size:255" json:"user_agent,omitempty"`
	Revoked   bool      `gorm:"default:false;index" json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }
