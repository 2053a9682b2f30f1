package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rmontes/backoffice/backend/internal/config"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/internal/utils"
	"github.com/rmontes/backoffice/backend/pkg/logger"
	"github.com/rmontes/backoffice/backend/pkg/response"
	"gorm.io/gorm"
)

const passcodeDigits = 6

// PasscodeService issues and verifies short-lived one-time codes for
// registration and password recovery.
type PasscodeService struct {
	db    *gorm.DB
	cfg   *config.AuthConfig
	queue TaskQueue
}

func NewPasscodeService(db *gorm.DB, cfg *config.AuthConfig, queue TaskQueue) *PasscodeService {
	return &PasscodeService{db: db, cfg: cfg, queue: queue}
}

// Send issues a new code for (passObject, typ) and dispatches it.
// Register requires the identity to be unclaimed, reset requires it to
// exist. A still-active code created within the cooldown window rejects
// the request; otherwise any prior active code is revoked before the new
// one is stored.
func (s *PasscodeService) Send(passObject, typ string) error {
	switch typ {
	case models.PasscodeTypeRegister:
		var count int64
		if err := s.db.Model(&models.User{}).Where("email = ?", passObject).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return response.NewConflict(response.CodeUserExists, "this email address is already registered")
		}
	case models.PasscodeTypeReset:
		var count int64
		if err := s.db.Model(&models.User{}).Where("email = ?", passObject).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return response.NewBadRequest(response.CodeUserNotFound, "this email address is not registered")
		}
	default:
		return response.NewBadRequest(response.CodeBadRequest, "unknown passcode type")
	}

	now := time.Now()

	var last models.Passcode
	err := s.db.Where("pass_object = ? AND type = ?", passObject, typ).
		Order("id DESC").
		First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if err == nil && last.Active(now) {
		elapsed := now.Sub(last.CreatedAt)
		if cooldown := s.cfg.PasscodeCooldown(); elapsed < cooldown {
			retry := int((cooldown - elapsed).Seconds() + 0.5)
			return response.NewRateLimited("please wait before requesting another code", retry)
		}
	}

	code, err := generatePasscode()
	if err != nil {
		return err
	}
	codeHash, err := utils.HashPassword(code)
	if err != nil {
		return err
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Passcode{}).
			Where("pass_object = ? AND type = ? AND revoked = ?", passObject, typ, false).
			Update("revoked", true).Error; err != nil {
			return err
		}
		return tx.Create(&models.Passcode{
			PassObject: passObject,
			Type:       typ,
			CodeHash:   codeHash,
			ValidUntil: now.Add(s.cfg.PasscodeTTL()),
		}).Error
	}); err != nil {
		return err
	}

	if err := s.queue.Enqueue(&CodeTask{To: passObject, Code: code, Purpose: typ}); err != nil {
		logger.Error().Err(err).Str("to", passObject).Msg("failed to dispatch verification code")
		return fmt.Errorf("dispatch verification code: %w", err)
	}

	AuditInfo("auth", "PasscodeSent", "verification code issued", nil, "", "", map[string]interface{}{
		"pass_object": passObject,
		"type":        typ,
	})
	return nil
}

// Verify checks a candidate code against the most recent record for
// (passObject, typ). Absent, revoked or expired records fail uniformly;
// a hash mismatch additionally increments the record's failure counter.
// On success the record is returned so the caller can revoke it once the
// associated action completes.
func (s *PasscodeService) Verify(passObject, typ, candidate string) (*models.Passcode, error) {
	var record models.Passcode
	err := s.db.Where("pass_object = ? AND type = ?", passObject, typ).
		Order("id DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized(response.CodeCodeInvalid, "invalid verification code")
		}
		return nil, err
	}

	if !record.Active(time.Now()) {
		return nil, response.NewUnauthorized(response.CodeCodeInvalid, "invalid verification code")
	}

	if !utils.CheckPassword(candidate, record.CodeHash) {
		if err := s.db.Model(&record).
			Update("failed_attempts", gorm.Expr("failed_attempts + 1")).Error; err != nil {
			logger.Warn().Err(err).Msg("failed to count passcode mismatch")
		}
		return nil, response.NewUnauthorized(response.CodeCodeMismatch, "invalid verification code")
	}

	return &record, nil
}

// Revoke marks a consumed passcode as used.
func (s *PasscodeService) Revoke(id uint) error {
	return s.db.Model(&models.Passcode{}).Where("id = ?", id).Update("revoked", true).Error
}

// CleanupBefore removes expired and revoked passcodes created before the
// cutoff. Returns the number deleted.
func (s *PasscodeService) CleanupBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ? AND (revoked = ? OR valid_until < ?)", cutoff, true, time.Now()).
		Delete(&models.Passcode{})
	return res.RowsAffected, res.Error
}

func generatePasscode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < passcodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", passcodeDigits, n), nil
}
