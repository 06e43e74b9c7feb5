package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Category struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Name        string     `gorm:"size:100;not null;index" json:"name"`
	Slug        string     `gorm:"size:255;not null;uniqueIndex:idx_categories_slug_live,where:date_deleted IS NULL" json:"slug"`
	ParentID    *uuid.UUID `gorm:"type:uuid;index;check:chk_categories_not_self_parent,parent_id IS NULL OR parent_id <> id" json:"parent_id,omitempty"`
	Parent      *Category  `gorm:"foreignKey:ParentID" json:"-"`
	Description string     `gorm:"type:text" json:"description"`
	Lifecycle
}

func (category *Category) BeforeCreate(tx *gorm.DB) (err error) {
	ensureID(&category.ID)
	return
}
