package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/pkg/response"
	"gorm.io/gorm"
)

type ProductHandler struct {
	db *gorm.DB
}

func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

// List returns products, optionally filtered by category.
// GET /api/products
func (h *ProductHandler) List(c *gin.Context) {
	query := h.db.Model(&models.Product{})
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var products []models.Product
	if err := query.Order("id").Find(&products).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, products)
}

// GetByID returns one product.
// GET /api/products/:id
func (h *ProductHandler) GetByID(c *gin.Context) {
	var product models.Product
	if err := h.db.First(&product, c.Param("id")).Error; err != nil {
		response.NotFound(c, "product not found")
		return
	}
	response.Success(c, product)
}

type productRequest struct {
	SKU      string  `json:"sku" binding:"required"`
	Name     string  `json:"name" binding:"required"`
	Category string  `json:"category"`
	Price    float64 `json:"price" binding:"required,gt=0"`
	Stock    int     `json:"stock" binding:"gte=0"`
}

// Create adds a product.
// POST /api/products
func (h *ProductHandler) Create(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	product := models.Product{
		SKU:      req.SKU,
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
		Stock:    req.Stock,
	}
	if err := h.db.Create(&product).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, product)
}

// Update modifies a product.
// PUT /api/products/:id
func (h *ProductHandler) Update(c *gin.Context) {
	var product models.Product
	if err := h.db.First(&product, c.Param("id")).Error; err != nil {
		response.NotFound(c, "product not found")
		return
	}

	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	product.SKU = req.SKU
	product.Name = req.Name
	product.Category = req.Category
	product.Price = req.Price
	product.Stock = req.Stock
	if err := h.db.Save(&product).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, product)
}

type stockAdjustRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// AdjustStock applies a stock delta, refusing to go negative.
// POST /api/products/:id/stock
func (h *ProductHandler) AdjustStock(c *gin.Context) {
	var req stockAdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var product models.Product
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, c.Param("id")).Error; err != nil {
			return response.NewNotFound(response.CodeNotFound, "product not found")
		}
		if product.Stock+req.Delta < 0 {
			return response.NewBadRequest(response.CodeBadRequest, "insufficient stock")
		}
		product.Stock += req.Delta
		return tx.Model(&product).Update("stock", product.Stock).Error
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, product)
}

// Delete removes a product.
// DELETE /api/products/:id
func (h *ProductHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid product id")
		return
	}
	if err := h.db.Delete(&models.Product{}, id).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, true)
}
