package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CartStatus string

const (
	CartActive    CartStatus = "active"
	CartAbandoned CartStatus = "abandoned"
	CartOrdered   CartStatus = "ordered"
)

type Cart struct {
	ID     uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Status CartStatus `gorm:"size:20;not null;index" json:"status"`
	Items  []CartItem `gorm:"foreignKey:CartID" json:"items,omitempty"`
	Lifecycle
}

func (cart *Cart) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&cart.ID)
	return
}

// CartItem lines are unique per (cart, product, variant) among live rows;
// adding an existing pair increments the line instead of inserting another.
type CartItem struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	CartID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_cart_items_line_live,where:date_deleted IS NULL" json:"cart_id"`
	ProductID uuid.UUID  `gorm:"type:uuid;not null;index" json:"product_id"`
	VariantID *uuid.UUID `gorm:"type:uuid" json:"variant_id,omitempty"`
	LineKey   string     `gorm:"size:80;not null;uniqueIndex:idx_cart_items_line_live" json:"-"`
	Quantity  int        `gorm:"not null;check:chk_cart_items_quantity_positive,quantity >= 1" json:"quantity"`
	Lifecycle
}

func (item *CartItem) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&item.ID)
	item.LineKey = LineKey(item.ProductID, item.VariantID)
	return
}
