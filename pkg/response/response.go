package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/pkg/logger"
)

// Machine-readable error codes returned in the error_code field. Clients
// branch on these; messages are for humans only.
const (
	CodeCredentialMissing   = "CREDENTIAL_MISSING"
	CodeCredentialMalformed = "CREDENTIAL_MALFORMED"
	CodeCredentialExpired   = "CREDENTIAL_EXPIRED"
	CodeCredentialInvalid   = "CREDENTIAL_INVALID"
	CodeRefreshInvalid      = "REFRESH_INVALID"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodePasswordReused      = "PASSWORD_REUSED"
	CodeCodeInvalid         = "CODE_INVALID"
	CodeCodeMismatch        = "CODE_MISMATCH"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeUserExists          = "USER_ALREADY_EXISTS"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeServerError         = "SERVER_ERROR"
)

// Response is the unified API envelope.
type Response struct {
	Success      bool        `json:"success"`
	Data         interface{} `json:"data,omitempty"`
	Message      string      `json:"message,omitempty"`
	ErrorCode    string      `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Details      interface{} `json:"details,omitempty"`
}

// AppError is a structured application error. Expected business failures
// are returned as AppError values; anything else is treated as an internal
// error and surfaced generically.
type AppError struct {
	HTTPStatus int
	Code       string
	Message    string
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	return e.Message
}

// WithDetail attaches a key/value pair to the error details.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

func NewBadRequest(code, msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusBadRequest, Code: code, Message: msg}
}

func NewUnauthorized(code, msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusUnauthorized, Code: code, Message: msg}
}

func NewForbidden(msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusForbidden, Code: CodeForbidden, Message: msg}
}

func NewNotFound(code, msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusNotFound, Code: code, Message: msg}
}

func NewConflict(code, msg string) *AppError {
	return &AppError{HTTPStatus: http.StatusConflict, Code: code, Message: msg}
}

// NewLocked reports an account lockout with the remaining seconds.
func NewLocked(msg string, remaining int) *AppError {
	e := &AppError{HTTPStatus: http.StatusLocked, Code: CodeAccountLocked, Message: msg}
	return e.WithDetail("remaining", remaining)
}

// NewRateLimited reports a cooldown violation with the retry-after seconds.
func NewRateLimited(msg string, retryAfter int) *AppError {
	e := &AppError{HTTPStatus: http.StatusTooManyRequests, Code: CodeRateLimited, Message: msg}
	return e.WithDetail("retry_after", retryAfter)
}

// --- Gin helpers ---

// Success sends a 200 OK envelope with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// Created sends a 201 Created envelope with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// Error sends an error envelope. AppError values keep their status, code
// and details; anything else is logged and becomes a generic 500 with no
// internal state leaked to the client.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, Response{
			ErrorCode:    appErr.Code,
			ErrorMessage: appErr.Message,
			Details:      appErr.Details,
		})
		return
	}
	logger.Error().
		Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("unhandled error")
	c.JSON(http.StatusInternalServerError, Response{
		ErrorCode:    CodeServerError,
		ErrorMessage: "internal server error",
	})
}

// Fail sends an error envelope with an explicit status and code.
func Fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, Response{ErrorCode: code, ErrorMessage: msg})
}

func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, CodeBadRequest, msg)
}

func Unauthorized(c *gin.Context, code, msg string) {
	Fail(c, http.StatusUnauthorized, code, msg)
}

func Forbidden(c *gin.Context, msg string) {
	Fail(c, http.StatusForbidden, CodeForbidden, msg)
}

func NotFound(c *gin.Context, msg string) {
	Fail(c, http.StatusNotFound, CodeNotFound, msg)
}
