package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderUnpaid          OrderStatus = "unpaid"
	OrderAwaitingPayment OrderStatus = "awaiting_payment"
	OrderPaid            OrderStatus = "paid"
	OrderShipped         OrderStatus = "shipped"
	OrderDelivered       OrderStatus = "delivered"
	OrderCompleted       OrderStatus = "completed"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRefunded        OrderStatus = "refunded"
)

type Order struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	CartID          *uuid.UUID      `gorm:"type:uuid;index" json:"cart_id,omitempty"`
	Status          OrderStatus     `gorm:"size:20;not null;index" json:"status"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	ItemsTotal      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"items_total"`
	ShippingCost    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"shipping_cost"`
	TaxTotal        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax_total"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null;check:chk_orders_total_non_negative,total_amount >= 0" json:"total_amount"`
	StockReservedAt *time.Time      `json:"stock_reserved_at,omitempty"`
	StockReleasedAt *time.Time      `json:"stock_released_at,omitempty"`
	Items           []OrderItem     `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Taxes           []OrderTax      `gorm:"foreignKey:OrderID" json:"taxes,omitempty"`
	Lifecycle
}

func (order *Order) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&order.ID)
	return
}

// StockHeld reports whether the order currently holds reserved inventory.
func (order Order) StockHeld() bool {
	return order.StockReservedAt != nil && order.StockReleasedAt == nil
}

// OrderItem snapshots a cart line at order time. ReservedQuantity records what
// was actually taken from stock so a release can return exactly that.
type OrderItem struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	OrderID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	VariantID        *uuid.UUID      `gorm:"type:uuid;index" json:"variant_id,omitempty"`
	ProductName      string          `gorm:"size:255;not null" json:"product_name"`
	Quantity         int             `gorm:"not null;check:chk_order_items_quantity_positive,quantity >= 1" json:"quantity"`
	UnitPrice        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	TotalPrice       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	ReservedQuantity int             `gorm:"not null;check:chk_order_items_reserved_range,reserved_quantity >= 0 AND reserved_quantity <= quantity" json:"reserved_quantity"`
	Lifecycle
}

func (item *OrderItem) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&item.ID)
	return
}

type OrderTax struct {
	ID       uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	OrderID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_order_taxes_order_name" json:"order_id"`
	Name     string          `gorm:"size:100;not null;uniqueIndex:idx_order_taxes_order_name" json:"name"`
	Rate     decimal.Decimal `gorm:"type:numeric(5,4);not null;check:chk_order_taxes_rate_range,rate >= 0 AND rate <= 1" json:"rate"`
	Base     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"base"`
	TaxValue decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax_value"`
	Lifecycle
}

func (tax *OrderTax) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&tax.ID)
	return
}

// OrderStatusHistory is append-only; rows are never updated or deleted.
type OrderStatusHistory struct {
	ID         uuid.UUID   `gorm:"type:uuid;primary_key" json:"id"`
	OrderID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"order_id"`
	FromStatus OrderStatus `gorm:"size:20" json:"from_status"`
	ToStatus   OrderStatus `gorm:"size:20;not null" json:"to_status"`
	ActorID    *uuid.UUID  `gorm:"type:uuid" json:"actor_id,omitempty"`
	Note       string      `gorm:"type:text" json:"note,omitempty"`
	ChangedAt  time.Time   `gorm:"not null;index" json:"changed_at"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (history *OrderStatusHistory) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&history.ID)
	return
}
