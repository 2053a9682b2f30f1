package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/internal/services"
	"github.com/rmontes/backoffice/backend/pkg/response"
)

type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List returns a page of audit entries. Admin only.
// GET /api/admin/audit
func (h *AuditHandler) List(c *gin.Context) {
	q := services.AuditQuery{
		Level:  c.Query("level"),
		Module: c.Query("module"),
	}
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			response.BadRequest(c, "invalid user_id")
			return
		}
		uid := uint(id)
		q.UserID = &uid
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "50"))

	logs, total, err := h.audit.List(q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"items": logs,
		"total": total,
		"page":  q.Page,
		"size":  q.Size,
	})
}
