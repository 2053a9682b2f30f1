package middleware

import (
	"bytes"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/internal/services"
)

// AuditWrites records write operations (POST/PUT/DELETE) to audit_logs.
func AuditWrites() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		// Capture request body (truncated) for the Extra field.
		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = string(bodyBytes)
			if len(bodySnippet) > 2000 {
				bodySnippet = bodySnippet[:2000] + "...[truncated]"
			}
			bodySnippet = maskSensitiveFields(bodySnippet)
		}

		c.Next()

		userID := GetUserID(c)
		email := GetEmail(c)
		ip := c.ClientIP()
		userAgent := c.Request.UserAgent()
		status := c.Writer.Status()

		module, action := parseRouteInfo(c.FullPath(), method)
		message := formatAuditMessage(email, method, c.Request.URL.Path, status)

		var uid *uint
		if userID > 0 {
			uid = &userID
		}

		services.AuditInfo(module, action, message, uid, ip, userAgent, map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"body":   bodySnippet,
		})
	}
}

// parseRouteInfo extracts module and action from a Gin route pattern.
// e.g. "/api/products/:id" + "PUT" -> module="products", action="Update"
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")

	parts := strings.SplitN(path, "/", 2)
	module = parts[0]
	if module == "" {
		module = "unknown"
	}

	switch method {
	case "POST":
		action = "Create"
	case "PUT":
		action = "Update"
	case "DELETE":
		action = "Delete"
	default:
		action = method
	}

	return module, action
}

func formatAuditMessage(email, method, path string, status int) string {
	var b strings.Builder
	b.WriteString(email)
	b.WriteString(" ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	if status >= 200 && status < 300 {
		b.WriteString(" ok")
	} else {
		b.WriteString(" failed")
	}
	return b.String()
}

var sensitiveKeys = []string{"password", "old_password", "new_password", "passcode", "secret", "token", "access_token", "refresh_token"}

// maskSensitiveFields replaces sensitive values in a JSON body snippet.
func maskSensitiveFields(body string) string {
	lower := strings.ToLower(body)
	for _, key := range sensitiveKeys {
		if strings.Contains(lower, key) {
			body = maskJSONValue(body, key)
		}
	}
	return body
}

// maskJSONValue masks the string value following `"key":` occurrences.
func maskJSONValue(body, key string) string {
	var out strings.Builder
	rest := body
	for {
		idx := strings.Index(strings.ToLower(rest), `"`+key+`"`)
		if idx == -1 {
			out.WriteString(rest)
			break
		}
		// Write up to and including the key.
		end := idx + len(key) + 2
		out.WriteString(rest[:end])
		rest = rest[end:]

		colon := strings.Index(rest, ":")
		if colon == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:colon+1])
		rest = rest[colon+1:]

		trimmed := strings.TrimLeft(rest, " \t")
		if !strings.HasPrefix(trimmed, `"`) {
			continue
		}
		// Skip the opening quote and the value up to the closing quote.
		rest = trimmed[1:]
		closing := strings.Index(rest, `"`)
		if closing == -1 {
			out.WriteString(`"****`)
			rest = ""
			continue
		}
		out.WriteString(`"****"`)
		rest = rest[closing+1:]
	}
	return out.String()
}
