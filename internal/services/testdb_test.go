package services

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rmontes/backoffice/backend/internal/config"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	utils.SetJWTSecret("test-secret-for-service-tests")
}

var testDBSeq atomic.Int64

// openTestDB returns an isolated in-memory database with the full
// schema migrated.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	// sqlite allows one writer; a single connection keeps concurrent
	// tests from tripping over driver-level lock errors.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.PasswordHistory{},
		&models.Session{},
		&models.RefreshToken{},
		&models.Passcode{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		RefreshTTLDays:          7,
		MaxFailedAttempts:       3,
		LockoutSeconds:          1800,
		PasswordHistoryLimit:    3,
		PasscodeTTLMinutes:      5,
		PasscodeCooldownSeconds: 60,
		AuditRetentionDays:      30,
	}
}

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:           "test-secret-for-service-tests",
		AccessTTLMinutes: 15,
		AssertionSecret:  "test-assertion-secret",
	}
}

// captureSender records dispatched codes so tests can redeem them.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (s *captureSender) SendCode(to, code, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[to+"/"+purpose] = code
	return nil
}

func (s *captureSender) lastCode(to, purpose string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[to+"/"+purpose]
}

// newTestAuth wires a full service stack over a fresh database and
// returns the parts tests interact with.
func newTestAuth(t *testing.T) (*AuthService, *PasscodeService, *captureSender, *gorm.DB) {
	t.Helper()

	db := openTestDB(t)
	sender := newCaptureSender()
	passcodes := NewPasscodeService(db, testAuthConfig(), NewSyncQueue(sender))
	auth := NewAuthService(db, testJWTConfig(), testAuthConfig(), passcodes)
	return auth, passcodes, sender, db
}

// createTestUser inserts an active user with the given password.
func createTestUser(t *testing.T, db *gorm.DB, email, password, role string) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.User{
		Email:    email,
		Password: hash,
		Name:     "Test User",
		Role:     role,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := db.Create(&models.PasswordHistory{UserID: user.ID, PasswordHash: hash}).Error; err != nil {
		t.Fatalf("seed history: %v", err)
	}
	return user
}
