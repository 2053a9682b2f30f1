package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/internal/utils"
	"github.com/rmontes/backoffice/backend/pkg/response"
	"gorm.io/gorm"
)

// UserHandler exposes admin user management. Thin glue over the store;
// all interesting behavior lives in the auth services.
type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// List returns all users.
// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	var users []models.User
	if err := h.db.Order("id").Find(&users).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, users)
}

type createUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name"`
	Role     string `json:"role" binding:"required,oneof=admin sales inventory auditor"`
}

// Create adds a user.
// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var count int64
	h.db.Model(&models.User{}).Where("email = ?", req.Email).Count(&count)
	if count > 0 {
		response.Error(c, response.NewConflict(response.CodeUserExists, "email already in use"))
		return
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	user := models.User{
		Email:    req.Email,
		Password: hashed,
		Name:     req.Name,
		Role:     req.Role,
		IsActive: true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, user)
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// Update modifies name, role or active flag.
// PUT /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		response.NotFound(c, "user not found")
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			response.Error(c, err)
			return
		}
	}

	response.Success(c, user)
}

// Delete soft-deletes a user.
// DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}

	if err := h.db.Delete(&models.User{}, id).Error; err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, true)
}
