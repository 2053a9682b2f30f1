package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/internal/middleware"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/internal/services"
	"github.com/rmontes/backoffice/backend/pkg/response"
)

type AuthHandler struct {
	authService     *services.AuthService
	passcodeService *services.PasscodeService
}

func NewAuthHandler(authService *services.AuthService, passcodeService *services.PasscodeService) *AuthHandler {
	return &AuthHandler{
		authService:     authService,
		passcodeService: passcodeService,
	}
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Login(&req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh credential for a new pair.
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Unauthorized(c, response.CodeRefreshInvalid, "refresh token required")
		return
	}

	pair, err := h.authService.Refresh(req.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, pair)
}

// Register creates an account from a verified registration passcode.
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Register(&req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

type sendCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Type  string `json:"type" binding:"required,oneof=register reset"`
}

// SendCode issues a one-time verification code.
// POST /api/auth/send-code
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.passcodeService.Send(req.Email, req.Type); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, true)
}

// ResetPassword completes passcode-verified password recovery.
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req services.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cascade, err := h.authService.ResetPassword(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"failed_steps": cascade.Failed()})
}

// ChangePassword updates the caller's password.
// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cascade, err := h.authService.ChangePassword(middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"failed_steps": cascade.Failed()})
}

type exchangeRequest struct {
	Assertion string `json:"assertion" binding:"required"`
	Provider  string `json:"provider" binding:"required"`
}

// ExchangeAssertion trades an externally signed assertion for a local
// session.
// POST /api/auth/oauth/exchange
func (h *AuthHandler) ExchangeAssertion(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.ExchangeAssertion(req.Assertion, req.Provider, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the presented refresh credential and its session.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.authService.Logout(req.RefreshToken); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, true)
}

// LogoutAll revokes every session and refresh credential of the caller.
// POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	tokens, sessions, err := h.authService.RevokeAllForUser(middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"revoked_tokens": tokens, "revoked_sessions": sessions})
}

// GetCurrentUser returns the current logged-in user.
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.authService.GetUserByID(middleware.GetUserID(c))
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}

	response.Success(c, user)
}

// ListSessions lists the caller's sessions.
// GET /api/auth/sessions
func (h *AuthHandler) ListSessions(c *gin.Context) {
	sessions, err := h.authService.Sessions(middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}

	response.Success(c, sessions)
}

// RevokeSession revokes one of the caller's sessions.
// DELETE /api/auth/sessions/:id
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	if err := h.authService.RevokeSession(middleware.GetUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, true)
}

// CreateAdminIfNotExists creates the default admin user.
func (h *AuthHandler) CreateAdminIfNotExists() error {
	return h.authService.CreateAdminIfNotExists()
}
