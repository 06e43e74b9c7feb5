package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/storefront/internal/models"
)

type CategoryPatch struct {
	ID          uuid.UUID `json:"id" validate:"required"`
	Name        *string   `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string   `json:"description" validate:"omitempty,max=2000"`
	IsActive    *bool     `json:"is_active"`
}

type PriorityPatch struct {
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Priority int       `json:"priority" validate:"min=1,max=5"`
}

// BulkService applies batches all-or-nothing: every id and every element is
// checked before the first write, and the writes share one transaction.
type BulkService struct {
	*base
	categories *CategoryService
}

var batchValidator = newBatchValidator()

func newBatchValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateBatch runs struct validation on every element and collects the
// failures by index.
func validateBatch[T any](items []T) []ItemError {
	var failures []ItemError
	for i := range items {
		err := batchValidator.Struct(items[i])
		if err == nil {
			continue
		}
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = describeRule(fe)
			}
		} else {
			fields["_"] = err.Error()
		}
		failures = append(failures, ItemError{Index: i, Fields: fields})
	}
	return failures
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return fmt.Sprintf("failed %s", fe.Tag())
}

func (s *BulkService) UpdateCategories(ctx context.Context, actor Actor, patches []CategoryPatch) ([]models.Category, error) {
	if !actor.IsStaff {
		return nil, &PermissionError{Action: "bulk update categories"}
	}
	if len(patches) == 0 {
		return nil, invalid("categories", "at least one category is required")
	}
	if failures := validateBatch(patches); len(failures) > 0 {
		return nil, &BulkError{Operation: "update categories", Items: failures}
	}

	ids := make([]uuid.UUID, 0, len(patches))
	for _, p := range patches {
		ids = append(ids, p.ID)
	}

	var updated []models.Category
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.ensureCategoriesExist(tx, "update categories", ids); err != nil {
			return err
		}
		for i, p := range patches {
			category, err := s.categories.update(tx, p.ID, UpdateCategoryInput{
				Name:        p.Name,
				Description: p.Description,
				IsActive:    p.IsActive,
			})
			if err != nil {
				return itemFailure("update categories", i, err)
			}
			updated = append(updated, category)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("categories updated in bulk", zap.Int("count", len(updated)))
	return updated, nil
}

// DeleteCategories soft-deletes the batch. A category may still have children
// when those children are deleted in the same batch.
func (s *BulkService) DeleteCategories(ctx context.Context, actor Actor, ids []uuid.UUID) (int, error) {
	if !actor.IsStaff {
		return 0, &PermissionError{Action: "bulk delete categories"}
	}
	if len(ids) == 0 {
		return 0, invalid("ids", "at least one id is required")
	}

	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.ensureCategoriesExist(tx, "delete categories", ids); err != nil {
			return err
		}

		var blocked []ItemError
		for i, id := range ids {
			var children, products int64
			err := tx.Model(&models.Category{}).Scopes(models.ChildrenOf(id)).
				Where("id NOT IN ?", ids).Count(&children).Error
			if err != nil {
				return translateStorageError(err, "category", id.String())
			}
			if err := tx.Model(&models.Product{}).Scopes(models.InCategory(id)).Count(&products).Error; err != nil {
				return translateStorageError(err, "product", id.String())
			}
			if children > 0 || products > 0 {
				dependents := &HasDependentsError{CategoryID: id, Children: children, Products: products}
				blocked = append(blocked, ItemError{Index: i, Fields: map[string]string{"id": dependents.Error()}})
			}
		}
		if len(blocked) > 0 {
			return &BulkError{Operation: "delete categories", Items: blocked}
		}

		if err := tx.Model(&models.Category{}).Where("id IN ?", ids).Update("is_active", false).Error; err != nil {
			return translateStorageError(err, "category", "bulk")
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.Category{}).Error; err != nil {
			return translateStorageError(err, "category", "bulk")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("categories deleted in bulk", zap.Int("count", len(ids)))
	return len(ids), nil
}

// CreateCategories validates every element up front, then creates them in
// order so later elements may not collide with earlier ones.
func (s *BulkService) CreateCategories(ctx context.Context, actor Actor, inputs []CreateCategoryInput) ([]models.Category, error) {
	if !actor.IsStaff {
		return nil, &PermissionError{Action: "bulk create categories"}
	}
	if len(inputs) == 0 {
		return nil, invalid("categories", "at least one category is required")
	}
	if failures := validateBatch(inputs); len(failures) > 0 {
		return nil, &BulkError{Operation: "create categories", Items: failures}
	}

	var created []models.Category
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		for i, in := range inputs {
			category, err := s.categories.create(tx, in)
			if err != nil {
				return itemFailure("create categories", i, err)
			}
			created = append(created, category)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("categories created in bulk", zap.Int("count", len(created)))
	return created, nil
}

// UpdateWishlistPriorities reprioritises items the actor owns. Items that do
// not exist or belong to another user reject the whole batch.
func (s *BulkService) UpdateWishlistPriorities(ctx context.Context, actor Actor, patches []PriorityPatch) ([]models.WishlistItem, error) {
	if len(patches) == 0 {
		return nil, invalid("items", "at least one item is required")
	}
	if failures := validateBatch(patches); len(failures) > 0 {
		return nil, &BulkError{Operation: "update wishlist priorities", Items: failures}
	}

	ids := make([]uuid.UUID, 0, len(patches))
	for _, p := range patches {
		ids = append(ids, p.ItemID)
	}

	var updated []models.WishlistItem
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var items []models.WishlistItem
		if err := tx.Where("id IN ?", ids).Find(&items).Error; err != nil {
			return translateStorageError(err, "wishlist item", "bulk")
		}
		owned := make([]models.WishlistItem, 0, len(items))
		for _, item := range items {
			if item.UserID != nil && actor.CanAccess(*item.UserID) {
				owned = append(owned, item)
			}
		}
		if missing := missingIDs(ids, owned); len(missing) > 0 {
			return &BulkError{Operation: "update wishlist priorities", InvalidIDs: missing}
		}

		byID := make(map[uuid.UUID]models.WishlistItem, len(owned))
		for _, item := range owned {
			byID[item.ID] = item
		}
		for _, p := range patches {
			if err := tx.Model(&models.WishlistItem{}).Where("id = ?", p.ItemID).Update("priority", p.Priority).Error; err != nil {
				return translateStorageError(err, "wishlist item", p.ItemID.String())
			}
			item := byID[p.ItemID]
			item.Priority = p.Priority
			byID[p.ItemID] = item
		}
		for _, id := range ids {
			updated = append(updated, byID[id])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *BulkService) ensureCategoriesExist(tx *gorm.DB, operation string, ids []uuid.UUID) error {
	var found []uuid.UUID
	if err := tx.Model(&models.Category{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return translateStorageError(err, "category", "bulk")
	}
	present := make(map[uuid.UUID]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	var missing []uuid.UUID
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		if !present[id] && !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	if len(missing) > 0 {
		return &BulkError{Operation: operation, InvalidIDs: sortedIDs(missing)}
	}
	return nil
}

// itemFailure pins a validation failure to its batch index; other errors pass
// through unchanged.
func itemFailure(operation string, index int, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		field := verr.Field
		if field == "" {
			field = "_"
		}
		return &BulkError{Operation: operation, Items: []ItemError{{Index: index, Fields: map[string]string{field: verr.Message}}}}
	}
	return err
}
