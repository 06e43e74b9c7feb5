package models

// All lists every persisted model in dependency order for AutoMigrate.
func All() []any {
	return []any{
		&Category{},
		&Product{},
		&ProductVariant{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OrderTax{},
		&OrderStatusHistory{},
		&Invoice{},
		&Payment{},
		&Refund{},
		&RefundItem{},
		&Wishlist{},
		&WishlistItem{},
	}
}
