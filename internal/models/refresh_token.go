package models

import "time"

// RefreshToken is one issued refresh credential. Only the SHA-256 hex of
// the secret is stored. A row is single-use: redemption flips Revoked and
// creates a successor bound to the same session.
type RefreshToken struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"index;not null" json:"user_id"`
	SessionID         string    `gorm:"index;size:36;not null" json:"session_id"`
	TokenHash         string    `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ExpiresAt         time.Time `gorm:"index;not null" json:"expires_at"`
	Revoked           bool      `gorm:"default:false;index" json:"revoked"`
	ReplacedByTokenID *uint     `json:"replaced_by_token_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }
