package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lifecycle is embedded in every storefront entity. DateDeleted doubles as the
// soft-delete marker, so GORM excludes deleted rows from default queries.
type Lifecycle struct {
	IsActive    bool           `gorm:"not null" json:"is_active"`
	DateCreated time.Time      `gorm:"autoCreateTime" json:"date_created"`
	DateUpdated time.Time      `gorm:"autoUpdateTime" json:"date_updated"`
	DateDeleted gorm.DeletedAt `gorm:"index" json:"date_deleted,omitempty"`
}

// IsDeleted reports whether the row has been soft deleted.
func (l Lifecycle) IsDeleted() bool {
	return l.DateDeleted.Valid
}

// IsLive reports whether the row is both active and not deleted.
func (l Lifecycle) IsLive() bool {
	return l.IsActive && !l.IsDeleted()
}

// LiveIndexCondition is the predicate shared by every partial unique index
// that only applies to non-deleted rows.
const LiveIndexCondition = "date_deleted IS NULL"

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// LineKey identifies a product/variant pair inside a cart or wishlist. It is
// stored so uniqueness can be enforced by the database even when the variant
// is absent.
func LineKey(productID uuid.UUID, variantID *uuid.UUID) string {
	if variantID == nil || *variantID == uuid.Nil {
		return productID.String() + ":-"
	}
	return productID.String() + ":" + variantID.String()
}
