package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/pkg/response"
	"gorm.io/gorm"
)

type CustomerHandler struct {
	db *gorm.DB
}

func NewCustomerHandler(db *gorm.DB) *CustomerHandler {
	return &CustomerHandler{db: db}
}

// List returns customers, optionally filtered by a name search.
// GET /api/customers
func (h *CustomerHandler) List(c *gin.Context) {
	query := h.db.Model(&models.Customer{})
	if q := c.Query("q"); q != "" {
		query = query.Where("name LIKE ?", "%"+q+"%")
	}

	var customers []models.Customer
	if err := query.Order("name").Find(&customers).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, customers)
}

// GetByID returns one customer.
// GET /api/customers/:id
func (h *CustomerHandler) GetByID(c *gin.Context) {
	var customer models.Customer
	if err := h.db.First(&customer, c.Param("id")).Error; err != nil {
		response.NotFound(c, "customer not found")
		return
	}
	response.Success(c, customer)
}

type customerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone"`
	TaxID string `json:"tax_id"`
}

// Create adds a customer.
// POST /api/customers
func (h *CustomerHandler) Create(c *gin.Context) {
	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	customer := models.Customer{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		TaxID: req.TaxID,
	}
	if err := h.db.Create(&customer).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, customer)
}

// Update modifies a customer.
// PUT /api/customers/:id
func (h *CustomerHandler) Update(c *gin.Context) {
	var customer models.Customer
	if err := h.db.First(&customer, c.Param("id")).Error; err != nil {
		response.NotFound(c, "customer not found")
		return
	}

	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	customer.Name = req.Name
	customer.Email = req.Email
	customer.Phone = req.Phone
	customer.TaxID = req.TaxID
	if err := h.db.Save(&customer).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, customer)
}

// Delete removes a customer.
// DELETE /api/customers/:id
func (h *CustomerHandler) Delete(c *gin.Context) {
	if err := h.db.Delete(&models.Customer{}, c.Param("id")).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, true)
}
