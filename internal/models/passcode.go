package models

import "time"

// Passcode purposes.
const (
	PasscodeTypeRegister = "register"
	PasscodeTypeReset    = "reset"
)

// Passcode is a one-time verification code sent out of band. At most one
// active (non-revoked, non-expired) row exists per (pass_object, type):
// issuing a new code revokes the previous one.
type Passcode struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PassObject     string    `gorm:"index;size:255;not null" json:"pass_object"` // e.g. email address
	Type           string    `gorm:"index;size:20;not null" json:"type"`
	CodeHash       string    `gorm:"size:255;not null" json:"-"`
	ValidUntil     time.Time `gorm:"not null" json:"valid_until"`
	Revoked        bool      `gorm:"default:false" json:"revoked"`
	FailedAttempts int       `gorm:"default:0" json:"failed_attempts"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Passcode) TableName() string { return "user_passcodes" }

// Active reports whether the code is still usable at the given instant.
func (p *Passcode) Active(now time.Time) bool {
	return !p.Revoked && now.Before(p.ValidUntil)
}
