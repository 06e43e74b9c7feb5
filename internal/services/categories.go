package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/storefront/internal/helpers"
	"github.com/farellandr/storefront/internal/models"
)

const maxCategoryNameLength = 100

type CreateCategoryInput struct {
	Name        string     `json:"name" validate:"required,max=100"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Description string     `json:"description" validate:"max=2000"`
}

type UpdateCategoryInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

type CategoryFilter struct {
	ParentID  *uuid.UUID
	RootsOnly bool
	Page      int
	Limit     int
}

// CategoryService maintains the category tree: names are unique among live
// siblings, slugs are derived from the ancestor chain and globally unique,
// and no reparenting may close a cycle.
type CategoryService struct {
	*base
}

func (s *CategoryService) Create(ctx context.Context, in CreateCategoryInput) (models.Category, error) {
	var created models.Category
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		category, err := s.create(tx, in)
		if err != nil {
			return err
		}
		created = category
		return nil
	})
	if err != nil {
		return models.Category{}, err
	}

	s.log.Info("category created", zap.String("category_id", created.ID.String()), zap.String("slug", created.Slug))
	return created, nil
}

func (s *CategoryService) create(tx *gorm.DB, in CreateCategoryInput) (models.Category, error) {
	name, err := normalizeCategoryName(in.Name)
	if err != nil {
		return models.Category{}, err
	}

	var chain []string
	if in.ParentID != nil {
		parent, err := s.loadParent(tx, *in.ParentID)
		if err != nil {
			return models.Category{}, err
		}
		ancestors, err := s.ancestry(tx, parent)
		if err != nil {
			return models.Category{}, err
		}
		if err := s.ensureDepth(ancestors, 1); err != nil {
			return models.Category{}, err
		}
		chain = names(ancestors)
	}

	slug, err := categorySlug(chain, name)
	if err != nil {
		return models.Category{}, err
	}
	if err := s.ensureSiblingNameFree(tx, in.ParentID, name, uuid.Nil); err != nil {
		return models.Category{}, err
	}
	if err := s.ensureSlugFree(tx, slug, uuid.Nil); err != nil {
		return models.Category{}, err
	}

	category := models.Category{
		Name:        name,
		Slug:        slug,
		ParentID:    in.ParentID,
		Description: strings.TrimSpace(in.Description),
		Lifecycle:   models.Lifecycle{IsActive: true},
	}
	if err := tx.Create(&category).Error; err != nil {
		return models.Category{}, translateStorageError(err, "category", slug)
	}
	return category, nil
}

func (s *CategoryService) Get(ctx context.Context, id uuid.UUID) (models.Category, error) {
	return s.load(s.conn(ctx), id)
}

func (s *CategoryService) List(ctx context.Context, filter CategoryFilter) ([]models.Category, int64, error) {
	query := s.conn(ctx).Model(&models.Category{})
	switch {
	case filter.ParentID != nil:
		query = query.Scopes(models.ChildrenOf(*filter.ParentID))
	case filter.RootsOnly:
		query = query.Scopes(models.RootCategories)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateStorageError(err, "category", "list")
	}

	var categories []models.Category
	if err := query.Scopes(models.Paginate(filter.Page, filter.Limit)).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, 0, translateStorageError(err, "category", "list")
	}
	return categories, total, nil
}

func (s *CategoryService) Update(ctx context.Context, id uuid.UUID, in UpdateCategoryInput) (models.Category, error) {
	var updated models.Category
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		category, err := s.update(tx, id, in)
		if err != nil {
			return err
		}
		updated = category
		return nil
	})
	return updated, err
}

func (s *CategoryService) update(tx *gorm.DB, id uuid.UUID, in UpdateCategoryInput) (models.Category, error) {
	category, err := s.load(tx, id)
	if err != nil {
		return models.Category{}, err
	}

	changes := map[string]any{}
	renamed := false
	if in.Name != nil {
		name, err := normalizeCategoryName(*in.Name)
		if err != nil {
			return models.Category{}, err
		}
		if name != category.Name {
			if err := s.ensureSiblingNameFree(tx, category.ParentID, name, category.ID); err != nil {
				return models.Category{}, err
			}
			category.Name = name
			changes["name"] = name
			renamed = true
		}
	}
	if in.Description != nil {
		category.Description = strings.TrimSpace(*in.Description)
		changes["description"] = category.Description
	}
	if in.IsActive != nil {
		category.IsActive = *in.IsActive
		changes["is_active"] = category.IsActive
	}

	if len(changes) > 0 {
		if err := tx.Model(&models.Category{}).Where("id = ?", category.ID).Updates(changes).Error; err != nil {
			return models.Category{}, translateStorageError(err, "category", category.ID.String())
		}
	}
	if renamed {
		if err := s.resyncSlugs(tx, category.ID); err != nil {
			return models.Category{}, err
		}
	}
	return s.load(tx, id)
}

// Reparent moves a category under newParentID, or to the root when nil. The
// ancestor chain of the new parent must not contain the category itself.
func (s *CategoryService) Reparent(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID) (models.Category, error) {
	var moved models.Category
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		category, err := s.load(tx, id)
		if err != nil {
			return err
		}

		if newParentID != nil {
			if *newParentID == category.ID {
				return &CircularReferenceError{CategoryID: category.ID, ParentID: category.ID}
			}
			parent, err := s.loadParent(tx, *newParentID)
			if err != nil {
				return err
			}
			ancestors, err := s.ancestry(tx, parent)
			if err != nil {
				return err
			}
			for _, ancestor := range ancestors {
				if ancestor.ID == category.ID {
					return &CircularReferenceError{CategoryID: category.ID, ParentID: parent.ID}
				}
			}
			height, err := s.subtreeHeight(tx, category.ID)
			if err != nil {
				return err
			}
			if err := s.ensureDepth(ancestors, height); err != nil {
				return err
			}
		}

		if err := s.ensureSiblingNameFree(tx, newParentID, category.Name, category.ID); err != nil {
			return err
		}

		if err := tx.Model(&models.Category{}).Where("id = ?", category.ID).Update("parent_id", newParentID).Error; err != nil {
			return translateStorageError(err, "category", category.ID.String())
		}
		if err := s.resyncSlugs(tx, category.ID); err != nil {
			return err
		}

		moved, err = s.load(tx, category.ID)
		return err
	})
	if err != nil {
		return models.Category{}, err
	}

	s.log.Info("category reparented", zap.String("category_id", id.String()), zap.String("slug", moved.Slug))
	return moved, nil
}

// Delete soft-deletes a category that has no live children and no live products.
func (s *CategoryService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.inTx(ctx, func(tx *gorm.DB) error {
		return s.delete(tx, id)
	})
}

func (s *CategoryService) delete(tx *gorm.DB, id uuid.UUID) error {
	category, err := s.load(tx, id)
	if err != nil {
		return err
	}
	if err := s.ensureNoDependents(tx, category.ID); err != nil {
		return err
	}
	if err := tx.Model(&models.Category{}).Where("id = ?", category.ID).Update("is_active", false).Error; err != nil {
		return translateStorageError(err, "category", category.ID.String())
	}
	if err := tx.Delete(&models.Category{}, "id = ?", category.ID).Error; err != nil {
		return translateStorageError(err, "category", category.ID.String())
	}
	return nil
}

func (s *CategoryService) ensureNoDependents(tx *gorm.DB, id uuid.UUID) error {
	var children, products int64
	if err := tx.Model(&models.Category{}).Scopes(models.ChildrenOf(id)).Count(&children).Error; err != nil {
		return translateStorageError(err, "category", id.String())
	}
	if err := tx.Model(&models.Product{}).Scopes(models.InCategory(id)).Count(&products).Error; err != nil {
		return translateStorageError(err, "product", id.String())
	}
	if children > 0 || products > 0 {
		return &HasDependentsError{CategoryID: id, Children: children, Products: products}
	}
	return nil
}

// Restore undeletes a category. Its parent must be live and its recomputed
// slug and sibling name must still be free.
func (s *CategoryService) Restore(ctx context.Context, id uuid.UUID) (models.Category, error) {
	var restored models.Category
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var category models.Category
		if err := tx.Unscoped().First(&category, "id = ?", id).Error; err != nil {
			return translateStorageError(err, "category", id.String())
		}
		if !category.IsDeleted() {
			return &InvalidStateError{Entity: "category", ID: id, State: "live", Action: "restore"}
		}

		var chain []string
		if category.ParentID != nil {
			parent, err := s.loadParent(tx, *category.ParentID)
			if err != nil {
				return err
			}
			ancestors, err := s.ancestry(tx, parent)
			if err != nil {
				return err
			}
			if err := s.ensureDepth(ancestors, 1); err != nil {
				return err
			}
			chain = names(ancestors)
		}
		slug, err := categorySlug(chain, category.Name)
		if err != nil {
			return err
		}
		if err := s.ensureSiblingNameFree(tx, category.ParentID, category.Name, category.ID); err != nil {
			return err
		}
		if err := s.ensureSlugFree(tx, slug, category.ID); err != nil {
			return err
		}

		err = tx.Unscoped().Model(&models.Category{}).Where("id = ?", id).Updates(map[string]any{
			"date_deleted": nil,
			"is_active":    true,
			"slug":         slug,
		}).Error
		if err != nil {
			return translateStorageError(err, "category", slug)
		}
		restored, err = s.load(tx, id)
		return err
	})
	return restored, err
}

// FullPath renders the ancestor names from the root down to the category.
func (s *CategoryService) FullPath(ctx context.Context, id uuid.UUID) (string, error) {
	db := s.conn(ctx)
	category, err := s.load(db, id)
	if err != nil {
		return "", err
	}
	chain, err := s.ancestry(db, category)
	if err != nil {
		return "", err
	}
	return strings.Join(names(chain), " > "), nil
}

func (s *CategoryService) load(tx *gorm.DB, id uuid.UUID) (models.Category, error) {
	var category models.Category
	if err := tx.First(&category, "id = ?", id).Error; err != nil {
		return models.Category{}, translateStorageError(err, "category", id.String())
	}
	return category, nil
}

func (s *CategoryService) loadParent(tx *gorm.DB, id uuid.UUID) (models.Category, error) {
	var parent models.Category
	err := tx.Unscoped().First(&parent, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Category{}, invalid("parent_id", "category %s does not exist", id)
	}
	if err != nil {
		return models.Category{}, translateStorageError(err, "category", id.String())
	}
	if parent.IsDeleted() {
		return models.Category{}, invalid("parent_id", "category %s is deleted", id)
	}
	return parent, nil
}

// ancestry returns the chain from the root down to and including start. The
// walk is bounded by a visited set and the configured maximum depth.
func (s *CategoryService) ancestry(tx *gorm.DB, start models.Category) ([]models.Category, error) {
	chain := []models.Category{start}
	visited := map[uuid.UUID]bool{start.ID: true}
	current := start
	for current.ParentID != nil {
		if len(chain) >= s.policy.MaxCategoryDepth {
			return nil, invalid("parent_id", "category hierarchy deeper than %d levels", s.policy.MaxCategoryDepth)
		}
		if visited[*current.ParentID] {
			return nil, &CircularReferenceError{CategoryID: *current.ParentID, ParentID: current.ID}
		}
		var parent models.Category
		if err := tx.Unscoped().First(&parent, "id = ?", *current.ParentID).Error; err != nil {
			return nil, translateStorageError(err, "category", current.ParentID.String())
		}
		visited[parent.ID] = true
		chain = append(chain, parent)
		current = parent
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ensureDepth rejects placing a subtree of the given height below ancestors.
// A leaf has height one.
func (s *CategoryService) ensureDepth(ancestors []models.Category, height int) error {
	if len(ancestors)+height > s.policy.MaxCategoryDepth {
		return invalid("parent_id", "category hierarchy deeper than %d levels", s.policy.MaxCategoryDepth)
	}
	return nil
}

// subtreeHeight counts the levels of live categories rooted at id. The walk
// stops once the height passes the maximum depth.
func (s *CategoryService) subtreeHeight(tx *gorm.DB, id uuid.UUID) (int, error) {
	height := 0
	seen := map[uuid.UUID]bool{id: true}
	level := []uuid.UUID{id}
	for len(level) > 0 {
		height++
		if height > s.policy.MaxCategoryDepth {
			break
		}
		var next []uuid.UUID
		if err := tx.Model(&models.Category{}).Where("parent_id IN ?", level).Pluck("id", &next).Error; err != nil {
			return 0, translateStorageError(err, "category", id.String())
		}
		level = level[:0]
		for _, child := range next {
			if !seen[child] {
				seen[child] = true
				level = append(level, child)
			}
		}
	}
	return height, nil
}

// resyncSlugs recomputes the slug of the category and all live descendants
// after a rename or a move.
func (s *CategoryService) resyncSlugs(tx *gorm.DB, id uuid.UUID) error {
	root, err := s.load(tx, id)
	if err != nil {
		return err
	}
	ancestors, err := s.ancestry(tx, root)
	if err != nil {
		return err
	}

	type pending struct {
		category models.Category
		chain    []string
	}
	queue := []pending{{category: root, chain: names(ancestors[:len(ancestors)-1])}}
	seen := map[uuid.UUID]bool{}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next.category.ID] {
			continue
		}
		seen[next.category.ID] = true

		slug, err := categorySlug(next.chain, next.category.Name)
		if err != nil {
			return err
		}
		if slug != next.category.Slug {
			if err := s.ensureSlugFree(tx, slug, next.category.ID); err != nil {
				return err
			}
			if err := tx.Model(&models.Category{}).Where("id = ?", next.category.ID).Update("slug", slug).Error; err != nil {
				return translateStorageError(err, "category", slug)
			}
		}

		var children []models.Category
		if err := tx.Scopes(models.ChildrenOf(next.category.ID)).Find(&children).Error; err != nil {
			return translateStorageError(err, "category", next.category.ID.String())
		}
		childChain := append(append([]string{}, next.chain...), next.category.Name)
		for _, child := range children {
			queue = append(queue, pending{category: child, chain: childChain})
		}
	}
	return nil
}

func (s *CategoryService) ensureSiblingNameFree(tx *gorm.DB, parentID *uuid.UUID, name string, self uuid.UUID) error {
	query := tx.Model(&models.Category{}).Where("name = ? AND id <> ?", name, self)
	if parentID == nil {
		query = query.Scopes(models.RootCategories)
	} else {
		query = query.Scopes(models.ChildrenOf(*parentID))
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return translateStorageError(err, "category", name)
	}
	if count > 0 {
		return &ConflictError{Entity: "category", Key: "name " + name}
	}
	return nil
}

func (s *CategoryService) ensureSlugFree(tx *gorm.DB, slug string, self uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.Category{}).Where("slug = ? AND id <> ?", slug, self).Count(&count).Error; err != nil {
		return translateStorageError(err, "category", slug)
	}
	if count > 0 {
		return &ConflictError{Entity: "category", Key: "slug " + slug}
	}
	return nil
}

func normalizeCategoryName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", invalid("name", "is required")
	}
	if len([]rune(name)) > maxCategoryNameLength {
		return "", invalid("name", "must be at most %d characters", maxCategoryNameLength)
	}
	return name, nil
}

func categorySlug(chain []string, name string) (string, error) {
	slug := helpers.Slugify(append(append([]string{}, chain...), name)...)
	if slug == "" {
		return "", invalid("name", "must contain at least one letter or digit")
	}
	return slug, nil
}

func names(chain []models.Category) []string {
	out := make([]string, 0, len(chain))
	for _, category := range chain {
		out = append(out, category.Name)
	}
	return out
}

// Children lists the live direct children of a category.
func (s *CategoryService) Children(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	db := s.conn(ctx)
	if _, err := s.load(db, id); err != nil {
		return nil, err
	}
	var children []models.Category
	if err := db.Scopes(models.ChildrenOf(id)).Order("name ASC").Find(&children).Error; err != nil {
		return nil, translateStorageError(err, "category", id.String())
	}
	return children, nil
}
