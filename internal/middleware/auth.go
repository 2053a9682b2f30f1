package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/internal/utils"
	"github.com/rmontes/backoffice/backend/pkg/response"
)

const (
	ContextUserID  = "user_id"
	ContextEmail   = "email"
	ContextRole    = "role"
	ContextIsAdmin = "is_admin"
)

// AuthRequired verifies the bearer access credential. The failure code
// matters to clients: CREDENTIAL_EXPIRED is the only one eligible for
// silent renewal, everything else requires a fresh login.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, response.CodeCredentialMissing, "authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			abortWith(c, response.CodeCredentialMalformed, "invalid authorization header format")
			return
		}

		claims, err := utils.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			switch {
			case errors.Is(err, utils.ErrTokenMalformed):
				abortWith(c, response.CodeCredentialMalformed, "malformed credential")
			case errors.Is(err, utils.ErrTokenExpired):
				abortWith(c, response.CodeCredentialExpired, "credential expired")
			default:
				abortWith(c, response.CodeCredentialInvalid, "invalid credential")
			}
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextIsAdmin, claims.IsAdmin)

		c.Next()
	}
}

func abortWith(c *gin.Context, code, msg string) {
	response.Unauthorized(c, code, msg)
	c.Abort()
}

// AdminRequired allows only admin accounts through.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdmin, exists := c.Get(ContextIsAdmin); !exists || isAdmin != true {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RoleRequired allows accounts holding any of the given roles. Admins
// always pass.
func RoleRequired(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdmin, _ := c.Get(ContextIsAdmin); isAdmin == true {
			c.Next()
			return
		}
		role := GetRole(c)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		response.Fail(c, http.StatusForbidden, response.CodeForbidden, "insufficient role")
		c.Abort()
	}
}

// GetUserID gets the current user ID from context.
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		return id.(uint)
	}
	return 0
}

// GetEmail gets the current user email from context.
func GetEmail(c *gin.Context) string {
	if email, exists := c.Get(ContextEmail); exists {
		return email.(string)
	}
	return ""
}

// GetRole gets the current user role from context.
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		return role.(string)
	}
	return ""
}
