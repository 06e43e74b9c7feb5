package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PriorityLowest  = 1
	PriorityLow     = 2
	PriorityMedium  = 3
	PriorityHigh    = 4
	PriorityHighest = 5
)

// Wishlist is unique per user among live rows. A wishlist without a user is a
// guest list and must be public.
type Wishlist struct {
	ID       uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	UserID   *uuid.UUID     `gorm:"type:uuid;uniqueIndex:idx_wishlists_user_live,where:date_deleted IS NULL" json:"user_id,omitempty"`
	Name     string         `gorm:"size:100;not null" json:"name"`
	IsPublic bool           `gorm:"not null" json:"is_public"`
	Items    []WishlistItem `gorm:"foreignKey:WishlistID" json:"items,omitempty"`
	Lifecycle
}

func (wishlist *Wishlist) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&wishlist.ID)
	return
}

type WishlistItem struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	WishlistID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_wishlist_items_line_live,where:date_deleted IS NULL" json:"wishlist_id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	ProductID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"product_id"`
	VariantID  *uuid.UUID `gorm:"type:uuid;index" json:"variant_id,omitempty"`
	LineKey    string     `gorm:"size:80;not null;uniqueIndex:idx_wishlist_items_line_live" json:"-"`
	Quantity   int        `gorm:"not null;check:chk_wishlist_items_quantity_positive,quantity >= 1" json:"quantity"`
	Priority   int        `gorm:"not null;check:chk_wishlist_items_priority_range,priority >= 1 AND priority <= 5" json:"priority"`
	Note       string     `gorm:"size:500" json:"note,omitempty"`
	Lifecycle
}

func (item *WishlistItem) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&item.ID)
	item.LineKey = LineKey(item.ProductID, item.VariantID)
	return
}
