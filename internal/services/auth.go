package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rmontes/backoffice/backend/internal/config"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/internal/utils"
	"github.com/rmontes/backoffice/backend/pkg/logger"
	"github.com/rmontes/backoffice/backend/pkg/response"
	"gorm.io/gorm"
)

// AuthService owns the credential lifecycle: login, refresh rotation,
// registration, recovery and revocation.
type AuthService struct {
	db        *gorm.DB
	jwtCfg    *config.JWTConfig
	authCfg   *config.AuthConfig
	security  *SecurityService
	passcodes *PasscodeService
}

func NewAuthService(db *gorm.DB, jwtCfg *config.JWTConfig, authCfg *config.AuthConfig, passcodes *PasscodeService) *AuthService {
	return &AuthService{
		db:        db,
		jwtCfg:    jwtCfg,
		authCfg:   authCfg,
		security:  NewSecurityService(db, authCfg),
		passcodes: passcodes,
	}
}

// Security exposes the account security policy for handlers that need it.
func (s *AuthService) Security() *SecurityService { return s.security }

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenPair is one issued access/refresh credential pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type LoginResult struct {
	TokenPair
	SessionID string       `json:"session_id"`
	User      *models.User `json:"user"`
}

// Login authenticates a user and opens a new session with a fresh
// credential pair. Lockout is checked before the password so a locked
// account reveals nothing about credential correctness.
func (s *AuthService) Login(req *LoginRequest, clientIP, userAgent string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized(response.CodeInvalidCredentials, "invalid email or password")
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, response.NewUnauthorized(response.CodeInvalidCredentials, "invalid email or password")
	}

	if err := s.security.CheckLockout(&user); err != nil {
		return nil, err
	}

	if user.Password == "" || !utils.CheckPassword(req.Password, user.Password) {
		if _, err := s.security.RecordFailure(&user); err != nil {
			logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to record login failure")
		}
		AuditWarning("auth", "LoginFailed", "invalid password", &user.ID, clientIP, userAgent, nil)
		return nil, response.NewUnauthorized(response.CodeInvalidCredentials, "invalid email or password")
	}

	if err := s.security.ClearFailures(&user); err != nil {
		return nil, err
	}

	return s.openSession(&user, clientIP, userAgent)
}

// openSession creates a session record and issues the first credential
// pair bound to it.
func (s *AuthService) openSession(user *models.User, clientIP, userAgent string) (*LoginResult, error) {
	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		IP:        clientIP,
		UserAgent: userAgent,
	}

	var pair *TokenPair
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		p, err := s.issuePair(tx, user, session.ID)
		if err != nil {
			return err
		}
		pair = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLogin = &now
	s.db.Model(user).Update("last_login", now)

	AuditInfo("auth", "Login", "session opened", &user.ID, clientIP, userAgent, map[string]interface{}{
		"session_id": session.ID,
	})

	return &LoginResult{
		TokenPair: *pair,
		SessionID: session.ID,
		User:      user,
	}, nil
}

// issuePair mints an access token plus a stored refresh record for the
// given session. Only the hash of the refresh secret is persisted.
func (s *AuthService) issuePair(tx *gorm.DB, user *models.User, sessionID string) (*TokenPair, error) {
	accessTTL := s.jwtCfg.AccessTTL()
	accessToken, err := utils.GenerateToken(user.ID, user.Email, user.Role, user.IsAdmin(), accessTTL)
	if err != nil {
		return nil, err
	}

	secret, secretHash, err := generateRefreshSecret()
	if err != nil {
		return nil, err
	}

	refreshExpiresAt := time.Now().Add(s.authCfg.RefreshTTL())
	record := models.RefreshToken{
		UserID:    user.ID,
		SessionID: sessionID,
		TokenHash: secretHash,
		ExpiresAt: refreshExpiresAt,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  time.Now().Add(accessTTL),
		RefreshToken:     secret,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

var errRefreshInvalid = response.NewUnauthorized(response.CodeRefreshInvalid, "refresh token is invalid")

// Refresh redeems a refresh credential for a new pair, rotating the
// stored record. Unknown, expired and already-used secrets all fail the
// same way so callers cannot probe record state. Under a double-submit
// race the conditional revocation decides a single winner; the loser
// fails closed.
func (s *AuthService) Refresh(refreshToken, clientIP, userAgent string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, errRefreshInvalid
	}

	hash := hashRefreshSecret(refreshToken)

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ? AND revoked = ?", hash, false).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errRefreshInvalid
		}
		return nil, err
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, errRefreshInvalid
	}

	var session models.Session
	if err := s.db.First(&session, "id = ?", stored.SessionID).Error; err != nil {
		return nil, errRefreshInvalid
	}
	if session.Revoked {
		return nil, errRefreshInvalid
	}

	var user models.User
	if err := s.db.First(&user, stored.UserID).Error; err != nil {
		return nil, errRefreshInvalid
	}
	if !user.IsActive {
		return nil, errRefreshInvalid
	}

	var pair *TokenPair
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Conditional update: exactly one concurrent redeemer of the
		// same secret can flip revoked from false to true.
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked = ?", stored.ID, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errRefreshInvalid
		}

		p, err := s.issuePair(tx, &user, stored.SessionID)
		if err != nil {
			return err
		}
		pair = p

		var successor models.RefreshToken
		if err := tx.Where("session_id = ? AND revoked = ?", stored.SessionID, false).
			Order("id DESC").First(&successor).Error; err == nil {
			if err := tx.Model(&models.RefreshToken{}).
				Where("id = ?", stored.ID).
				Update("replaced_by_token_id", successor.ID).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Session{}).
			Where("id = ?", stored.SessionID).
			Updates(map[string]interface{}{
				"updated_at": time.Now(),
				"ip":         clientIP,
				"user_agent": userAgent,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	return pair, nil
}

// Logout revokes the presented refresh credential and its session.
func (s *AuthService) Logout(refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	hash := hashRefreshSecret(refreshToken)

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ?", hash).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RefreshToken{}).
			Where("session_id = ? AND revoked = ?", stored.SessionID, false).
			Update("revoked", true).Error; err != nil {
			return err
		}
		return tx.Model(&models.Session{}).
			Where("id = ?", stored.SessionID).
			Update("revoked", true).Error
	})
}

// RevokeAllForUser revokes every refresh token and session for a user.
// Used by logout-everywhere and the password-change cascade.
func (s *AuthService) RevokeAllForUser(userID uint) (tokens int64, sessions int64, err error) {
	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked = ?", userID, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		tokens = res.RowsAffected

		res = tx.Model(&models.Session{}).
			Where("user_id = ? AND revoked = ?", userID, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		sessions = res.RowsAffected
		return nil
	})
	return tokens, sessions, err
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Passcode string `json:"passcode" binding:"required,len=6"`
	Name     string `json:"name"`
}

// Register creates an account after verifying a registration passcode,
// then opens the first session for it.
func (s *AuthService) Register(req *RegisterRequest, clientIP, userAgent string) (*LoginResult, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, response.NewConflict(response.CodeUserExists, "this email address is already registered")
	}

	record, err := s.passcodes.Verify(req.Email, models.PasscodeTypeRegister, req.Passcode)
	if err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:    req.Email,
		Password: hashed,
		Name:     req.Name,
		Role:     models.RoleSales,
		IsActive: true,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if err := s.security.PushPasswordHistory(tx, user.ID, hashed); err != nil {
			return err
		}
		return tx.Model(&models.Passcode{}).
			Where("id = ?", record.ID).
			Update("revoked", true).Error
	})
	if err != nil {
		return nil, err
	}

	AuditInfo("auth", "Register", "account created", &user.ID, clientIP, userAgent, nil)
	return s.openSession(&user, clientIP, userAgent)
}

// ExchangeAssertion turns an externally signed login assertion into a
// local session, creating the account on first sight. The external
// protocol itself is out of scope; the assertion is a signed token whose
// email claim we trust once the signature checks out.
func (s *AuthService) ExchangeAssertion(assertion, provider, clientIP, userAgent string) (*LoginResult, error) {
	if s.jwtCfg.AssertionSecret == "" {
		return nil, response.NewForbidden("external login is not configured")
	}

	claims, err := utils.ParseAssertion(assertion, s.jwtCfg.AssertionSecret)
	if err != nil {
		return nil, response.NewUnauthorized(response.CodeCredentialInvalid, "invalid login assertion")
	}

	var user models.User
	err = s.db.Where("email = ?", claims.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			Email:         claims.Email,
			Name:          claims.Name,
			Role:          models.RoleSales,
			IsActive:      true,
			OAuthProvider: provider,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
		AuditInfo("auth", "Register", "account created via external assertion", &user.ID, clientIP, userAgent, map[string]interface{}{
			"provider": provider,
		})
	} else if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, response.NewUnauthorized(response.CodeInvalidCredentials, "account is disabled")
	}

	if err := s.security.CheckLockout(&user); err != nil {
		return nil, err
	}

	return s.openSession(&user, clientIP, userAgent)
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ChangePassword is the authenticated variant of the password-change
// cascade: verify the old password, reject reuse, then apply the change
// with full revocation.
func (s *AuthService) ChangePassword(userID uint, req *ChangePasswordRequest) (CascadeResult, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, response.NewNotFound(response.CodeUserNotFound, "user not found")
	}

	if err := s.security.CheckLockout(&user); err != nil {
		return nil, err
	}

	if user.Password == "" || !utils.CheckPassword(req.OldPassword, user.Password) {
		if _, err := s.security.RecordFailure(&user); err != nil {
			logger.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to record password failure")
		}
		return nil, response.NewUnauthorized(response.CodeInvalidCredentials, "incorrect password")
	}

	if err := s.security.CheckPasswordReuse(user.ID, req.NewPassword); err != nil {
		return nil, err
	}

	newHash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return nil, err
	}

	return s.security.CompletePasswordChange(&user, newHash, nil)
}

type ResetPasswordRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Passcode string `json:"passcode" binding:"required,len=6"`
	Password string `json:"password" binding:"required,min=6"`
}

// ResetPassword is the recovery variant: a valid reset passcode stands in
// for the old password. A passcode mismatch counts against the account's
// failure budget.
func (s *AuthService) ResetPassword(req *ResetPasswordRequest) (CascadeResult, error) {
	var user models.User
	if err := s.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound(response.CodeUserNotFound, "user not found")
		}
		return nil, err
	}

	if err := s.security.CheckLockout(&user); err != nil {
		return nil, err
	}

	record, err := s.passcodes.Verify(req.Email, models.PasscodeTypeReset, req.Passcode)
	if err != nil {
		var appErr *response.AppError
		if errors.As(err, &appErr) && appErr.Code == response.CodeCodeMismatch {
			if _, rerr := s.security.RecordFailure(&user); rerr != nil {
				logger.Warn().Err(rerr).Uint("user_id", user.ID).Msg("failed to record passcode failure")
			}
		}
		return nil, err
	}

	if err := s.security.CheckPasswordReuse(user.ID, req.Password); err != nil {
		return nil, err
	}

	newHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	return s.security.CompletePasswordChange(&user, newHash, &record.ID)
}

// Sessions lists a user's sessions, newest first.
func (s *AuthService) Sessions(userID uint) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&sessions).Error
	return sessions, err
}

// RevokeSession revokes one of the user's own sessions together with its
// refresh tokens.
func (s *AuthService) RevokeSession(userID uint, sessionID string) error {
	var session models.Session
	if err := s.db.First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NewNotFound(response.CodeNotFound, "session not found")
		}
		return err
	}
	if session.UserID != userID {
		return response.NewForbidden("not your session")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RefreshToken{}).
			Where("session_id = ? AND revoked = ?", sessionID, false).
			Update("revoked", true).Error; err != nil {
			return err
		}
		return tx.Model(&models.Session{}).
			Where("id = ?", sessionID).
			Update("revoked", true).Error
	})
}

// GetUserByID retrieves a user by ID.
func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CleanupRefreshTokens removes revoked or expired refresh records older
// than the cutoff. Returns the number deleted.
func (s *AuthService) CleanupRefreshTokens(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ? AND (revoked = ? OR expires_at < ?)", cutoff, true, time.Now()).
		Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

// CreateAdminIfNotExists seeds the default admin account on first boot.
func (s *AuthService) CreateAdminIfNotExists() error {
	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := models.User{
		Email:    "admin@localhost",
		Password: hashed,
		Name:     "Administrator",
		Role:     models.RoleAdmin,
		IsActive: true,
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		return s.security.PushPasswordHistory(tx, admin.ID, hashed)
	})
}

// generateRefreshSecret returns a high-entropy secret and the SHA-256
// hex used as its storage key.
func generateRefreshSecret() (secret string, secretHash string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	secret = hex.EncodeToString(buf)
	return secret, hashRefreshSecret(secret), nil
}

func hashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
