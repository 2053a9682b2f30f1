package services

import (
	"time"

	"github.com/rmontes/backoffice/backend/internal/config"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/internal/utils"
	"github.com/rmontes/backoffice/backend/pkg/logger"
	"github.com/rmontes/backoffice/backend/pkg/response"
	"gorm.io/gorm"
)

// SecurityService implements the account security policy: failed-attempt
// counters, lockout windows, password-history reuse prevention and the
// cascading revocation that follows a password change.
type SecurityService struct {
	db  *gorm.DB
	cfg *config.AuthConfig
}

func NewSecurityService(db *gorm.DB, cfg *config.AuthConfig) *SecurityService {
	return &SecurityService{db: db, cfg: cfg}
}

// CheckLockout rejects the attempt while a lockout window is open. The
// error carries the remaining seconds but never whether the supplied
// credential would otherwise have been correct.
func (s *SecurityService) CheckLockout(user *models.User) error {
	if user.LockoutUntil == nil {
		return nil
	}
	now := time.Now()
	if user.LockoutUntil.After(now) {
		remaining := int(time.Until(*user.LockoutUntil).Seconds() + 0.5)
		return response.NewLocked("account temporarily locked", remaining)
	}
	return nil
}

// RecordFailure increments the failed-attempt counter. The increment
// happens in the database so overlapping attempts all count, even when
// each request loaded the user earlier. Reaching the configured maximum
// opens a lockout window and resets the counter. Returns true when the
// account just got locked.
func (s *SecurityService) RecordFailure(user *models.User) (bool, error) {
	if err := s.db.Model(user).
		Update("failed_attempts", gorm.Expr("failed_attempts + 1")).Error; err != nil {
		return false, err
	}
	if err := s.db.First(user, user.ID).Error; err != nil {
		return false, err
	}

	if user.FailedAttempts >= s.cfg.MaxFailedAttempts {
		until := time.Now().Add(s.cfg.LockoutDuration())
		user.LockoutUntil = &until
		user.FailedAttempts = 0
		if err := s.db.Model(user).Updates(map[string]interface{}{
			"failed_attempts": 0,
			"lockout_until":   until,
		}).Error; err != nil {
			return false, err
		}
		AuditWarning("auth", "AccountLocked", "account locked after repeated failures", &user.ID, "", "", nil)
		return true, nil
	}
	return false, nil
}

// ClearFailures resets the counter and lockout after a successful
// authentication.
func (s *SecurityService) ClearFailures(user *models.User) error {
	if user.FailedAttempts == 0 && user.LockoutUntil == nil {
		return nil
	}
	user.FailedAttempts = 0
	user.LockoutUntil = nil
	return s.db.Model(user).Updates(map[string]interface{}{
		"failed_attempts": 0,
		"lockout_until":   nil,
	}).Error
}

// CheckPasswordReuse rejects a candidate password matching any of the
// last N stored hashes.
func (s *SecurityService) CheckPasswordReuse(userID uint, candidate string) error {
	var history []models.PasswordHistory
	if err := s.db.Where("user_id = ?", userID).
		Order("id DESC").
		Limit(s.cfg.PasswordHistoryLimit).
		Find(&history).Error; err != nil {
		return err
	}

	for _, h := range history {
		if utils.CheckPassword(candidate, h.PasswordHash) {
			return response.NewBadRequest(response.CodePasswordReused,
				"new password must differ from recently used passwords")
		}
	}
	return nil
}

// PushPasswordHistory appends a hash to the user's history and evicts
// entries beyond the configured limit, oldest first.
func (s *SecurityService) PushPasswordHistory(tx *gorm.DB, userID uint, hash string) error {
	if err := tx.Create(&models.PasswordHistory{UserID: userID, PasswordHash: hash}).Error; err != nil {
		return err
	}

	var stale []models.PasswordHistory
	if err := tx.Where("user_id = ?", userID).
		Order("id DESC").
		Offset(s.cfg.PasswordHistoryLimit).
		Find(&stale).Error; err != nil {
		return err
	}
	for _, h := range stale {
		if err := tx.Delete(&models.PasswordHistory{}, h.ID).Error; err != nil {
			return err
		}
	}
	return nil
}

// CascadeStep is the outcome of one best-effort revocation step.
type CascadeStep struct {
	Name string
	Err  error
}

// CascadeResult collects per-step outcomes of a password change so that
// partial failures stay visible without failing the overall operation.
type CascadeResult []CascadeStep

// Failed returns the names of steps that did not complete.
func (r CascadeResult) Failed() []string {
	var failed []string
	for _, step := range r {
		if step.Err != nil {
			failed = append(failed, step.Name)
		}
	}
	return failed
}

// CompletePasswordChange applies a verified password change: stores the
// new hash, updates history, clears the failure counters and revokes the
// consuming passcode plus every refresh token and session for the user.
// The primary password update aborts the whole transaction on failure;
// the revocation steps are collected and logged but never block success.
func (s *SecurityService) CompletePasswordChange(user *models.User, newHash string, passcodeID *uint) (CascadeResult, error) {
	var cascade CascadeResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Primary step, never swallowed.
		if err := tx.Model(user).Updates(map[string]interface{}{
			"password":        newHash,
			"failed_attempts": 0,
			"lockout_until":   nil,
		}).Error; err != nil {
			return err
		}

		if err := s.PushPasswordHistory(tx, user.ID, newHash); err != nil {
			return err
		}

		if passcodeID != nil {
			err := tx.Model(&models.Passcode{}).
				Where("id = ?", *passcodeID).
				Update("revoked", true).Error
			cascade = append(cascade, CascadeStep{Name: "revoke_passcode", Err: err})
		}

		err := tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked = ?", user.ID, false).
			Update("revoked", true).Error
		cascade = append(cascade, CascadeStep{Name: "revoke_refresh_tokens", Err: err})

		err = tx.Model(&models.Session{}).
			Where("user_id = ? AND revoked = ?", user.ID, false).
			Update("revoked", true).Error
		cascade = append(cascade, CascadeStep{Name: "revoke_sessions", Err: err})

		return nil
	})
	if err != nil {
		return nil, err
	}

	if failed := cascade.Failed(); len(failed) > 0 {
		logger.Warn().
			Uint("user_id", user.ID).
			Strs("steps", failed).
			Msg("password change cascade completed partially")
	}

	user.Password = newHash
	user.FailedAttempts = 0
	user.LockoutUntil = nil

	AuditInfo("auth", "PasswordChanged", "password updated and sessions revoked", &user.ID, "", "", map[string]interface{}{
		"failed_steps": cascade.Failed(),
	})
	return cascade, nil
}
