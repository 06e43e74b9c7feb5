package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Scope is a named, composable query predicate: db.Scopes(ActiveOnly, ...).
type Scope = func(*gorm.DB) *gorm.DB

func ActiveOnly(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}

func ChildrenOf(parentID uuid.UUID) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("parent_id = ?", parentID)
	}
}

func RootCategories(db *gorm.DB) *gorm.DB {
	return db.Where("parent_id IS NULL")
}

func InCategory(categoryID uuid.UUID) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("category_id = ?", categoryID)
	}
}

func PaymentsWithStatus(statuses ...PaymentStatus) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("payments.status IN ?", statuses)
	}
}

func PaymentsWithoutStatus(statuses ...PaymentStatus) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("payments.status NOT IN ?", statuses)
	}
}

func PaymentsForInvoice(invoiceID uuid.UUID) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("payments.invoice_id = ?", invoiceID)
	}
}

func PaymentsForOrder(orderID uuid.UUID) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("payments.invoice_id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).Model(&Invoice{}).Select("id").Where("order_id = ?", orderID))
	}
}

func PaymentsWithAmount(amount decimal.Decimal) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("payments.amount = ?", amount)
	}
}

func TransactedSince(t time.Time) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("payments.transaction_date >= ?", t)
	}
}

func TransactedBefore(t time.Time) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("payments.transaction_date < ?", t)
	}
}

func ItemsOfWishlist(wishlistID uuid.UUID) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("wishlist_id = ?", wishlistID)
	}
}

func ItemsOfCart(cartID uuid.UUID) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("cart_id = ?", cartID)
	}
}

func ByLine(productID uuid.UUID, variantID *uuid.UUID) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("line_key = ?", LineKey(productID, variantID))
	}
}

func Paginate(page, limit int) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 10
		}
		return db.Offset((page - 1) * limit).Limit(limit)
	}
}
