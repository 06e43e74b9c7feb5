package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farellandr/storefront/internal/models"
)

func strPtr(s string) *string { return &s }

func TestBulkUpdateCategoriesAllOrNothing(t *testing.T) {
	h := newHarness(t)
	one := h.category(t, "One", nil)
	two := h.category(t, "Two", nil)
	missing := uuid.New()

	_, err := h.svc.Bulk.UpdateCategories(h.ctx, h.staff, []CategoryPatch{
		{ID: one.ID, Name: strPtr("Uno")},
		{ID: two.ID, Name: strPtr("Dos")},
		{ID: missing, Name: strPtr("Nada")},
	})
	var bulk *BulkError
	require.ErrorAs(t, err, &bulk)
	assert.Equal(t, []uuid.UUID{missing}, bulk.InvalidIDs)

	for id, name := range map[uuid.UUID]string{one.ID: "One", two.ID: "Two"} {
		c, err := h.svc.Categories.Get(h.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name)
	}

	updated, err := h.svc.Bulk.UpdateCategories(h.ctx, h.staff, []CategoryPatch{
		{ID: one.ID, Name: strPtr("Uno")},
		{ID: two.ID, Description: strPtr("second")},
	})
	require.NoError(t, err)
	require.Len(t, updated, 2)
	assert.Equal(t, "uno", updated[0].Slug)
	assert.Equal(t, "second", updated[1].Description)
}

func TestBulkUpdateRollsBackOnLateConflict(t *testing.T) {
	h := newHarness(t)
	one := h.category(t, "One", nil)
	two := h.category(t, "Two", nil)

	_, err := h.svc.Bulk.UpdateCategories(h.ctx, h.staff, []CategoryPatch{
		{ID: one.ID, Name: strPtr("Three")},
		{ID: two.ID, Name: strPtr("Three")},
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	c, err := h.svc.Categories.Get(h.ctx, one.ID)
	require.NoError(t, err)
	assert.Equal(t, "One", c.Name)
}

func TestBulkCreateCategoriesValidatesEveryIndex(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Bulk.CreateCategories(h.ctx, h.staff, []CreateCategoryInput{
		{Name: "Valid"},
		{Name: ""},
		{Name: "Fine"},
		{Name: string(make([]byte, 101))},
	})
	var bulk *BulkError
	require.ErrorAs(t, err, &bulk)
	require.Len(t, bulk.Items, 2)
	assert.Equal(t, 1, bulk.Items[0].Index)
	assert.Equal(t, "is required", bulk.Items[0].Fields["name"])
	assert.Equal(t, 3, bulk.Items[1].Index)

	var count int64
	require.NoError(t, h.db.Model(&models.Category{}).Count(&count).Error)
	assert.Zero(t, count)

	created, err := h.svc.Bulk.CreateCategories(h.ctx, h.staff, []CreateCategoryInput{{Name: "Audio"}, {Name: "Video"}})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	_, err = h.svc.Bulk.CreateCategories(h.ctx, h.customer, []CreateCategoryInput{{Name: "Nope"}})
	var perm *PermissionError
	require.ErrorAs(t, err, &perm)
}

func TestBulkDeleteCategories(t *testing.T) {
	h := newHarness(t)
	root := h.category(t, "Root", nil)
	child := h.category(t, "Child", &root.ID)
	lonely := h.category(t, "Lonely", nil)

	_, err := h.svc.Bulk.DeleteCategories(h.ctx, h.staff, []uuid.UUID{root.ID, lonely.ID})
	var bulk *BulkError
	require.ErrorAs(t, err, &bulk)
	require.Len(t, bulk.Items, 1)
	assert.Equal(t, 0, bulk.Items[0].Index)

	_, err = h.svc.Categories.Get(h.ctx, lonely.ID)
	require.NoError(t, err, "nothing is deleted when one id is blocked")

	deleted, err := h.svc.Bulk.DeleteCategories(h.ctx, h.staff, []uuid.UUID{root.ID, child.ID, lonely.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	var live int64
	require.NoError(t, h.db.Model(&models.Category{}).Count(&live).Error)
	assert.Zero(t, live)
}

func TestBulkUpdateWishlistPriorities(t *testing.T) {
	h := newHarness(t)
	x := h.product(t, "X", "1.00", 1)
	y := h.product(t, "Y", "1.00", 1)
	w := h.wishlist(t)
	ix, err := h.svc.Wishlists.AddItem(h.ctx, h.customer, w.ID, AddWishlistItemInput{ProductID: x.ID})
	require.NoError(t, err)
	iy, err := h.svc.Wishlists.AddItem(h.ctx, h.customer, w.ID, AddWishlistItemInput{ProductID: y.ID})
	require.NoError(t, err)

	_, err = h.svc.Bulk.UpdateWishlistPriorities(h.ctx, h.customer, []PriorityPatch{{ItemID: ix.ID, Priority: 0}})
	var bulk *BulkError
	require.ErrorAs(t, err, &bulk)
	assert.Contains(t, bulk.Items[0].Fields, "priority")

	_, err = h.svc.Bulk.UpdateWishlistPriorities(h.ctx, Actor{UserID: uuid.New()}, []PriorityPatch{{ItemID: ix.ID, Priority: 5}})
	require.ErrorAs(t, err, &bulk)
	assert.Equal(t, []uuid.UUID{ix.ID}, bulk.InvalidIDs)

	updated, err := h.svc.Bulk.UpdateWishlistPriorities(h.ctx, h.customer, []PriorityPatch{
		{ItemID: ix.ID, Priority: 5},
		{ItemID: iy.ID, Priority: 1},
	})
	require.NoError(t, err)
	require.Len(t, updated, 2)
	assert.Equal(t, 5, updated[0].Priority)
	assert.Equal(t, 1, updated[1].Priority)
}
