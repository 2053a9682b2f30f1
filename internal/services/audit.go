package services

import (
	"encoding/json"
	"time"

	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/pkg/logger"
	"gorm.io/gorm"
)

var auditDB *gorm.DB

// InitAuditTrail wires the package-level audit writer. Safe to leave
// uninitialized in tests; writes become no-ops.
func InitAuditTrail(db *gorm.DB) {
	auditDB = db
}

func AuditInfo(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeAudit("info", module, action, message, userID, ip, userAgent, extra)
}

func AuditWarning(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeAudit("warning", module, action, message, userID, ip, userAgent, extra)
}

func AuditError(module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	writeAudit("error", module, action, message, userID, ip, userAgent, extra)
}

func writeAudit(level, module, action, message string, userID *uint, ip, userAgent string, extra interface{}) {
	if auditDB == nil {
		return
	}

	var extraStr string
	if extra != nil {
		if b, err := json.Marshal(extra); err == nil {
			extraStr = string(b)
		}
	}

	entry := &models.AuditLog{
		Level:     level,
		Module:    module,
		Action:    action,
		Message:   message,
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		Extra:     extraStr,
		CreatedAt: time.Now(),
	}
	if err := auditDB.Create(entry).Error; err != nil {
		logger.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}

// AuditService reads and maintains the audit trail.
type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

type AuditQuery struct {
	Level  string
	Module string
	UserID *uint
	Page   int
	Size   int
}

// List returns a page of audit entries, newest first.
func (s *AuditService) List(q AuditQuery) ([]models.AuditLog, int64, error) {
	query := s.db.Model(&models.AuditLog{})
	if q.Level != "" {
		query = query.Where("level = ?", q.Level)
	}
	if q.Module != "" {
		query = query.Where("module = ?", q.Module)
	}
	if q.UserID != nil {
		query = query.Where("user_id = ?", *q.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 || q.Size > 200 {
		q.Size = 50
	}

	var logs []models.AuditLog
	err := query.Order("id DESC").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Find(&logs).Error
	return logs, total, err
}

// CleanupBefore removes audit entries older than the cutoff and returns
// the number deleted.
func (s *AuditService) CleanupBefore(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	return res.RowsAffected, res.Error
}
