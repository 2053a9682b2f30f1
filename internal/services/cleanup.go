package services

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rmontes/backoffice/backend/internal/config"
	"github.com/rmontes/backoffice/backend/pkg/logger"
	"gorm.io/gorm"
)

// CleanupService periodically purges dead auth records and stale audit
// entries. This is maintenance only: no credential state transition ever
// depends on it.
type CleanupService struct {
	db        *gorm.DB
	cfg       *config.AuthConfig
	auth      *AuthService
	passcodes *PasscodeService
	audit     *AuditService
	scheduler *cron.Cron
}

func NewCleanupService(db *gorm.DB, cfg *config.AuthConfig, auth *AuthService, passcodes *PasscodeService) *CleanupService {
	return &CleanupService{
		db:        db,
		cfg:       cfg,
		auth:      auth,
		passcodes: passcodes,
		audit:     NewAuditService(db),
	}
}

// Start schedules a daily purge at 03:00 and runs one immediately.
func (s *CleanupService) Start() error {
	s.scheduler = cron.New()
	if _, err := s.scheduler.AddFunc("0 3 * * *", s.Run); err != nil {
		return err
	}
	s.scheduler.Start()

	go s.Run()
	return nil
}

// Stop halts the scheduler.
func (s *CleanupService) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Run executes one purge pass.
func (s *CleanupService) Run() {
	now := time.Now()

	// Keep dead refresh records around briefly for incident forensics.
	refreshCutoff := now.Add(-48 * time.Hour)
	if n, err := s.auth.CleanupRefreshTokens(refreshCutoff); err != nil {
		logger.Warn().Err(err).Msg("refresh token cleanup failed")
	} else if n > 0 {
		logger.Infof("[Cleanup] removed %d dead refresh tokens", n)
	}

	passcodeCutoff := now.Add(-24 * time.Hour)
	if n, err := s.passcodes.CleanupBefore(passcodeCutoff); err != nil {
		logger.Warn().Err(err).Msg("passcode cleanup failed")
	} else if n > 0 {
		logger.Infof("[Cleanup] removed %d dead passcodes", n)
	}

	if s.cfg.AuditRetentionDays > 0 {
		auditCutoff := now.AddDate(0, 0, -s.cfg.AuditRetentionDays)
		if n, err := s.audit.CleanupBefore(auditCutoff); err != nil {
			logger.Warn().Err(err).Msg("audit log cleanup failed")
		} else if n > 0 {
			logger.Infof("[Cleanup] removed %d audit entries older than %d days", n, s.cfg.AuditRetentionDays)
		}
	}
}
