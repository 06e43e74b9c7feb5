package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

type PaymentMethod string

const (
	MethodCreditCard   PaymentMethod = "CREDIT_CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodPayPal       PaymentMethod = "PAYPAL"
	MethodCash         PaymentMethod = "CASH"
	MethodOther        PaymentMethod = "OTHER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCreditCard, MethodBankTransfer, MethodPayPal, MethodCash, MethodOther:
		return true
	}
	return false
}

// Payment is a single transaction against an invoice. A completed payment
// always carries ConfirmedAt; the check constraint keeps that true even for
// writes that bypass the service layer.
type Payment struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	InvoiceID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Invoice          *Invoice        `gorm:"foreignKey:InvoiceID" json:"-"`
	UserID           *uuid.UUID      `gorm:"type:uuid;index" json:"user_id,omitempty"`
	PaymentReference string          `gorm:"size:100;not null;uniqueIndex" json:"payment_reference"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null;check:chk_payments_amount_non_negative,amount >= 0" json:"amount"`
	Currency         string          `gorm:"size:3;not null" json:"currency"`
	Method           PaymentMethod   `gorm:"size:30;not null" json:"method"`
	Status           PaymentStatus   `gorm:"size:20;not null;index;check:chk_payments_confirmed_when_completed,status <> 'COMPLETED' OR confirmed_at IS NOT NULL" json:"status"`
	TransactionDate  time.Time       `gorm:"not null;index" json:"transaction_date"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty"`
	Notes            string          `gorm:"type:text" json:"notes,omitempty"`
	Refunds          []Refund        `gorm:"foreignKey:PaymentID" json:"refunds,omitempty"`
	Lifecycle
}

func (payment *Payment) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&payment.ID)
	return
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundApproved  RefundStatus = "APPROVED"
	RefundCompleted RefundStatus = "COMPLETED"
	RefundRejected  RefundStatus = "REJECTED"
	RefundCancelled RefundStatus = "CANCELLED"
)

// Refund is a request to return money against a completed payment. It moves
// PENDING -> APPROVED -> COMPLETED, or ends REJECTED or CANCELLED while still
// pending. Only a completed refund touches the payment.
type Refund struct {
	ID              uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	RefundNumber    string              `gorm:"size:40;not null;uniqueIndex" json:"refund_number"`
	PaymentID       uuid.UUID           `gorm:"type:uuid;not null;index" json:"payment_id"`
	Payment         *Payment            `gorm:"foreignKey:PaymentID" json:"-"`
	OrderID         uuid.UUID           `gorm:"type:uuid;not null;index" json:"order_id"`
	UserID          uuid.UUID           `gorm:"type:uuid;not null;index" json:"user_id"`
	Status          RefundStatus        `gorm:"size:20;not null;index" json:"status"`
	AmountRequested decimal.Decimal     `gorm:"type:numeric(12,2);not null;check:chk_refunds_amount_requested_positive,amount_requested > 0" json:"amount_requested"`
	AmountApproved  decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"amount_approved"`
	AmountRefunded  decimal.Decimal     `gorm:"type:numeric(12,2);not null;check:chk_refunds_amount_refunded_non_negative,amount_refunded >= 0" json:"amount_refunded"`
	Currency        string              `gorm:"size:3;not null" json:"currency"`
	Reason          string              `gorm:"size:50;not null" json:"reason"`
	Notes           string              `gorm:"type:text" json:"notes,omitempty"`
	InternalNotes   string              `gorm:"type:text" json:"internal_notes,omitempty"`
	RequestedBy     *uuid.UUID          `gorm:"type:uuid" json:"requested_by,omitempty"`
	RequestedAt     time.Time           `gorm:"not null" json:"requested_at"`
	ProcessedBy     *uuid.UUID          `gorm:"type:uuid" json:"processed_by,omitempty"`
	ProcessedAt     *time.Time          `json:"processed_at,omitempty"`
	Items           []RefundItem        `gorm:"foreignKey:RefundID" json:"items,omitempty"`
	Lifecycle
}

func (refund *Refund) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&refund.ID)
	return
}

// RefundItem ties part of a refund to an order line. An order line appears at
// most once per refund.
type RefundItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	RefundID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_refund_items_line_live,where:date_deleted IS NULL" json:"refund_id"`
	OrderItemID uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_refund_items_line_live,where:date_deleted IS NULL" json:"order_item_id"`
	Quantity    int             `gorm:"not null;check:chk_refund_items_quantity_positive,quantity >= 1" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Reason      string          `gorm:"size:50" json:"reason,omitempty"`
	Lifecycle
}

func (item *RefundItem) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&item.ID)
	return
}

// Invoice is issued once per committed order and is what payments settle.
type Invoice struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	InvoiceNumber string          `gorm:"size:40;not null;uniqueIndex" json:"invoice_number"`
	OrderID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	Order         *Order          `gorm:"foreignKey:OrderID" json:"-"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	IssuedAt      time.Time       `gorm:"not null" json:"issued_at"`
	Payments      []Payment       `gorm:"foreignKey:InvoiceID" json:"payments,omitempty"`
	Lifecycle
}

func (invoice *Invoice) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&invoice.ID)
	return
}
