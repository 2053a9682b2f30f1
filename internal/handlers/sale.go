package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rmontes/backoffice/backend/internal/middleware"
	"github.com/rmontes/backoffice/backend/internal/models"
	"github.com/rmontes/backoffice/backend/internal/services"
	"github.com/rmontes/backoffice/backend/pkg/response"
	"gorm.io/gorm"
)

type SaleHandler struct {
	db *gorm.DB
}

func NewSaleHandler(db *gorm.DB) *SaleHandler {
	return &SaleHandler{db: db}
}

// List returns sales with items preloaded, newest first.
// GET /api/sales
func (h *SaleHandler) List(c *gin.Context) {
	query := h.db.Model(&models.Sale{}).Preload("Items").Preload("Customer")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var sales []models.Sale
	if err := query.Order("created_at DESC").Limit(200).Find(&sales).Error; err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sales)
}

// GetByID returns one sale with its items.
// GET /api/sales/:id
func (h *SaleHandler) GetByID(c *gin.Context) {
	var sale models.Sale
	if err := h.db.Preload("Items").Preload("Customer").First(&sale, c.Param("id")).Error; err != nil {
		response.NotFound(c, "sale not found")
		return
	}
	response.Success(c, sale)
}

type saleItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,gt=0"`
}

type saleRequest struct {
	CustomerID *uint             `json:"customer_id"`
	Items      []saleItemRequest `json:"items" binding:"required,min=1,dive"`
}

// Create records a sale and decrements stock for each line item
// inside one transaction. A line exceeding the available stock
// aborts the whole sale.
// POST /api/sales
func (h *SaleHandler) Create(c *gin.Context) {
	var req saleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sellerID := middleware.GetUserID(c)

	var sale models.Sale
	err := h.db.Transaction(func(tx *gorm.DB) error {
		sale = models.Sale{
			CustomerID: req.CustomerID,
			SellerID:   sellerID,
			Status:     models.SaleStatusCompleted,
		}

		for _, line := range req.Items {
			var product models.Product
			if err := tx.First(&product, line.ProductID).Error; err != nil {
				return response.NewBadRequest(response.CodeBadRequest,
					fmt.Sprintf("product %d not found", line.ProductID))
			}

			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", product.ID, line.Quantity).
				Update("stock", gorm.Expr("stock - ?", line.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return response.NewBadRequest(response.CodeBadRequest,
					fmt.Sprintf("insufficient stock for %s", product.SKU))
			}

			sale.Items = append(sale.Items, models.SaleItem{
				ProductID: product.ID,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
			})
			sale.Total += product.Price * float64(line.Quantity)
		}

		return tx.Create(&sale).Error
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	services.AuditInfo("sale", "create",
		fmt.Sprintf("sale %d recorded, total %.2f", sale.ID, sale.Total),
		&sellerID, c.ClientIP(), c.Request.UserAgent(), nil)
	response.Created(c, sale)
}

// Void cancels a sale and restores the stock it consumed.
// POST /api/sales/:id/void
func (h *SaleHandler) Void(c *gin.Context) {
	var sale models.Sale
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&sale, c.Param("id")).Error; err != nil {
			return response.NewNotFound(response.CodeNotFound, "sale not found")
		}
		if sale.Status == models.SaleStatusVoided {
			return response.NewBadRequest(response.CodeBadRequest, "sale already voided")
		}

		for _, item := range sale.Items {
			if err := tx.Model(&models.Product{}).
				Where("id = ?", item.ProductID).
				Update("stock", gorm.Expr("stock + ?", item.Quantity)).Error; err != nil {
				return err
			}
		}

		sale.Status = models.SaleStatusVoided
		return tx.Model(&sale).Update("status", sale.Status).Error
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	userID := middleware.GetUserID(c)
	services.AuditWarning("sale", "void",
		fmt.Sprintf("sale %d voided", sale.ID),
		&userID, c.ClientIP(), c.Request.UserAgent(), nil)
	response.Success(c, sale)
}
