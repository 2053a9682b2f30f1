package models

import (
	"time"

	"gorm.io/gorm"
)

// Product is an inventory item.
type Product struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SKU       string         `gorm:"uniqueIndex;size:64;not null" json:"sku"`
	Name      string         `gorm:"size:200;not null" json:"name"`
	Category  string         `gorm:"size:100;index" json:"category"`
	Price     float64        `gorm:"not null" json:"price"`
	Stock     int            `gorm:"default:0" json:"stock"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Customer is a sales counterpart.
type Customer struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"size:200;not null" json:"name"`
	Email     string         `gorm:"size:255" json:"email"`
	Phone     string         `gorm:"size:50" json:"phone"`
	TaxID     string         `gorm:"size:50" json:"tax_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Sale statuses.
const (
	SaleStatusCompleted = "completed"
	SaleStatusVoided    = "voided"
)

// Sale is a completed sale with its line items.
type Sale struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CustomerID *uint      `gorm:"index" json:"customer_id,omitempty"`
	Customer   *Customer  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	SellerID   uint       `gorm:"index;not null" json:"seller_id"`
	Total      float64    `json:"total"`
	Status     string     `gorm:"size:20;default:completed" json:"status"`
	Items      []SaleItem `gorm:"foreignKey:SaleID" json:"items,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SaleItem is one product line on a sale.
type SaleItem struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	SaleID    uint    `gorm:"index;not null" json:"sale_id"`
	ProductID uint    `gorm:"index;not null" json:"product_id"`
	Quantity  int     `gorm:"not null" json:"quantity"`
	UnitPrice float64 `gorm:"not null" json:"unit_price"`
}

func (Product) TableName() string  { return "products" }
func (Customer) TableName() string { return "customers" }
func (Sale) TableName() string     { return "sales" }
func (SaleItem) TableName() string { return "sale_items" }
