package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID            uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	Name          string           `gorm:"size:255;not null" json:"name"`
	SKU           string           `gorm:"size:100;not null;uniqueIndex:idx_products_sku_live,where:date_deleted IS NULL" json:"sku"`
	CategoryID    *uuid.UUID       `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Category      *Category        `gorm:"foreignKey:CategoryID" json:"-"`
	Price         decimal.Decimal  `gorm:"type:numeric(12,2);not null;check:chk_products_price_non_negative,price >= 0" json:"price"`
	StockQuantity int              `gorm:"not null;check:chk_products_stock_non_negative,stock_quantity >= 0" json:"stock_quantity"`
	Variants      []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
	Lifecycle
}

func (product *Product) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&product.ID)
	return
}

// ProductVariant carries its own stock; lines that name a variant reserve
// against it instead of the parent product.
type ProductVariant struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Product         *Product        `gorm:"foreignKey:ProductID" json:"-"`
	SKU             string          `gorm:"size:100;not null;uniqueIndex:idx_product_variants_sku_live,where:date_deleted IS NULL" json:"sku"`
	Color           string          `gorm:"size:50" json:"color,omitempty"`
	Size            string          `gorm:"size:50" json:"size,omitempty"`
	PriceAdjustment decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price_adjustment"`
	StockQuantity   int             `gorm:"not null;check:chk_product_variants_stock_non_negative,stock_quantity >= 0" json:"stock_quantity"`
	Lifecycle
}

func (variant *ProductVariant) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&variant.ID)
	return
}

// UnitPrice is the product price plus the variant adjustment, if any.
func UnitPrice(product Product, variant *ProductVariant) decimal.Decimal {
	price := product.Price
	if variant != nil {
		price = price.Add(variant.PriceAdjustment)
	}
	return price
}
