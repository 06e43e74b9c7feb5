package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/storefront/internal/models"
)

const (
	defaultWishlistName = "My Wishlist"
	maxWishlistNote     = 500
)

type CreateWishlistInput struct {
	UserID   *uuid.UUID `json:"user_id"`
	Name     string     `json:"name"`
	IsPublic bool       `json:"is_public"`
}

type AddWishlistItemInput struct {
	ProductID uuid.UUID  `json:"product_id" binding:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity"`
	Priority  int        `json:"priority"`
	Note      string     `json:"note"`
}

// WishlistService manages wishlists and their transfer into carts. Every
// item carries the owner of its wishlist.
type WishlistService struct {
	*base
	carts *CartService
}

// GetOrCreateForUser returns the user's live wishlist. Concurrent callers
// race on the partial unique index; the loser re-reads the winner's row.
func (s *WishlistService) GetOrCreateForUser(ctx context.Context, actor Actor, userID uuid.UUID) (models.Wishlist, error) {
	if !actor.CanAccess(userID) {
		return models.Wishlist{}, &PermissionError{Action: "use this wishlist"}
	}
	db := s.conn(ctx)

	wishlist, err := s.findForUser(db, userID)
	if err == nil {
		return wishlist, nil
	}
	var missing *NotFoundError
	if !errors.As(err, &missing) {
		return models.Wishlist{}, err
	}

	owner := userID
	wishlist = models.Wishlist{
		UserID:    &owner,
		Name:      defaultWishlistName,
		Lifecycle: models.Lifecycle{IsActive: true},
	}
	err = translateStorageError(db.Create(&wishlist).Error, "wishlist", userID.String())
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return s.findForUser(db, userID)
	}
	if err != nil {
		return models.Wishlist{}, err
	}
	s.log.Info("wishlist created", zap.String("wishlist_id", wishlist.ID.String()), zap.String("user_id", userID.String()))
	return wishlist, nil
}

// Create makes a named wishlist. A wishlist without an owner is a guest list
// and has to be public.
func (s *WishlistService) Create(ctx context.Context, actor Actor, in CreateWishlistInput) (models.Wishlist, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = defaultWishlistName
	}
	if len([]rune(name)) > 100 {
		return models.Wishlist{}, invalid("name", "must be at most 100 characters")
	}
	if in.UserID == nil && !in.IsPublic {
		return models.Wishlist{}, invalid("is_public", "guest wishlists must be public")
	}
	if in.UserID != nil && !actor.CanAccess(*in.UserID) {
		return models.Wishlist{}, &PermissionError{Action: "create a wishlist for another user"}
	}

	wishlist := models.Wishlist{
		UserID:    in.UserID,
		Name:      name,
		IsPublic:  in.IsPublic,
		Lifecycle: models.Lifecycle{IsActive: true},
	}
	if err := s.conn(ctx).Create(&wishlist).Error; err != nil {
		key := "guest"
		if in.UserID != nil {
			key = in.UserID.String()
		}
		return models.Wishlist{}, translateStorageError(err, "wishlist", key)
	}
	return wishlist, nil
}

func (s *WishlistService) Get(ctx context.Context, actor Actor, wishlistID uuid.UUID) (models.Wishlist, error) {
	wishlist, err := s.load(s.conn(ctx), wishlistID)
	if err != nil {
		return models.Wishlist{}, err
	}
	if !wishlist.IsPublic && !canManage(actor, wishlist) {
		return models.Wishlist{}, &PermissionError{Action: "view this wishlist"}
	}
	return wishlist, nil
}

func (s *WishlistService) SetVisibility(ctx context.Context, actor Actor, wishlistID uuid.UUID, public bool) (models.Wishlist, error) {
	var wishlist models.Wishlist
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		wishlist, err = s.loadForActor(tx, actor, wishlistID)
		if err != nil {
			return err
		}
		if wishlist.UserID == nil && !public {
			return invalid("is_public", "guest wishlists must be public")
		}
		if err := tx.Model(&models.Wishlist{}).Where("id = ?", wishlist.ID).Update("is_public", public).Error; err != nil {
			return translateStorageError(err, "wishlist", wishlist.ID.String())
		}
		wishlist.IsPublic = public
		return nil
	})
	return wishlist, err
}

// AddItem upserts the line for a product/variant pair. Re-adding a pair
// replaces its quantity, priority and note.
func (s *WishlistService) AddItem(ctx context.Context, actor Actor, wishlistID uuid.UUID, in AddWishlistItemInput) (models.WishlistItem, error) {
	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		return models.WishlistItem{}, invalid("quantity", "must be at least 1")
	}
	priority := in.Priority
	if priority == 0 {
		priority = models.PriorityMedium
	}
	if err := validatePriority(priority); err != nil {
		return models.WishlistItem{}, err
	}
	note := strings.TrimSpace(in.Note)
	if len([]rune(note)) > maxWishlistNote {
		return models.WishlistItem{}, invalid("note", "must be at most %d characters", maxWishlistNote)
	}

	var item models.WishlistItem
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		wishlist, err := s.loadForActor(tx, actor, wishlistID)
		if err != nil {
			return err
		}
		if err := ensurePurchasable(tx, in.ProductID, in.VariantID); err != nil {
			return err
		}

		res := tx.Model(&models.WishlistItem{}).
			Scopes(models.ItemsOfWishlist(wishlist.ID), models.ByLine(in.ProductID, in.VariantID)).
			Updates(map[string]any{"quantity": quantity, "priority": priority, "note": note})
		if res.Error != nil {
			return translateStorageError(res.Error, "wishlist item", wishlist.ID.String())
		}
		if res.RowsAffected > 0 {
			return tx.Scopes(models.ItemsOfWishlist(wishlist.ID), models.ByLine(in.ProductID, in.VariantID)).First(&item).Error
		}

		item = models.WishlistItem{
			WishlistID: wishlist.ID,
			UserID:     wishlist.UserID,
			ProductID:  in.ProductID,
			VariantID:  in.VariantID,
			Quantity:   quantity,
			Priority:   priority,
			Note:       note,
			Lifecycle:  models.Lifecycle{IsActive: true},
		}
		if err := tx.Create(&item).Error; err != nil {
			return translateStorageError(err, "wishlist item", models.LineKey(in.ProductID, in.VariantID))
		}
		return nil
	})
	return item, err
}

func (s *WishlistService) UpdatePriority(ctx context.Context, actor Actor, itemID uuid.UUID, priority int) (models.WishlistItem, error) {
	if err := validatePriority(priority); err != nil {
		return models.WishlistItem{}, err
	}
	var item models.WishlistItem
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		item, _, err = s.loadItemForActor(tx, actor, itemID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.WishlistItem{}).Where("id = ?", item.ID).Update("priority", priority).Error; err != nil {
			return translateStorageError(err, "wishlist item", item.ID.String())
		}
		item.Priority = priority
		return nil
	})
	return item, err
}

func (s *WishlistService) RemoveItem(ctx context.Context, actor Actor, itemID uuid.UUID) error {
	return s.inTx(ctx, func(tx *gorm.DB) error {
		item, _, err := s.loadItemForActor(tx, actor, itemID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.WishlistItem{}, "id = ?", item.ID).Error; err != nil {
			return translateStorageError(err, "wishlist item", item.ID.String())
		}
		return nil
	})
}

// Items lists live items, highest priority first.
func (s *WishlistService) Items(ctx context.Context, actor Actor, wishlistID uuid.UUID) ([]models.WishlistItem, error) {
	wishlist, err := s.Get(ctx, actor, wishlistID)
	if err != nil {
		return nil, err
	}
	var items []models.WishlistItem
	err = s.conn(ctx).Scopes(models.ItemsOfWishlist(wishlist.ID)).
		Order("priority DESC").Order("date_created ASC").
		Find(&items).Error
	if err != nil {
		return nil, translateStorageError(err, "wishlist item", wishlistID.String())
	}
	return items, nil
}

// MoveToCart merges one wishlist item into the cart and removes it from the
// wishlist in the same transaction.
func (s *WishlistService) MoveToCart(ctx context.Context, actor Actor, itemID, cartID uuid.UUID) (models.CartItem, error) {
	var moved models.CartItem
	var wishlist models.Wishlist
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		item, owner, err := s.loadItemForActor(tx, actor, itemID)
		if err != nil {
			return err
		}
		wishlist = owner
		cart, err := s.carts.loadForActor(tx, actor, cartID, "modify this cart")
		if err != nil {
			return err
		}
		moved, err = s.transfer(tx, cart, item)
		return err
	})
	if err != nil {
		return models.CartItem{}, err
	}

	s.log.Info("wishlist item moved to cart", zap.String("item_id", itemID.String()), zap.String("cart_id", cartID.String()))
	s.deliver(ctx, movedNotification(actor, wishlist, cartID, 1))
	return moved, nil
}

// MoveAllToCart moves every live item of the wishlist, or only itemIDs when
// given. Unknown ids reject the whole request.
func (s *WishlistService) MoveAllToCart(ctx context.Context, actor Actor, wishlistID, cartID uuid.UUID, itemIDs []uuid.UUID) ([]models.CartItem, error) {
	var moved []models.CartItem
	var wishlist models.Wishlist
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		wishlist, err = s.loadForActor(tx, actor, wishlistID)
		if err != nil {
			return err
		}
		cart, err := s.carts.loadForActor(tx, actor, cartID, "modify this cart")
		if err != nil {
			return err
		}

		query := tx.Scopes(models.ItemsOfWishlist(wishlist.ID))
		if len(itemIDs) > 0 {
			query = query.Where("id IN ?", itemIDs)
		}
		var items []models.WishlistItem
		if err := query.Order("priority DESC").Order("date_created ASC").Find(&items).Error; err != nil {
			return translateStorageError(err, "wishlist item", wishlist.ID.String())
		}
		if missing := missingIDs(itemIDs, items); len(missing) > 0 {
			return &BulkError{Operation: "move wishlist items", InvalidIDs: missing}
		}

		for _, item := range items {
			line, err := s.transfer(tx, cart, item)
			if err != nil {
				return err
			}
			moved = append(moved, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(moved) > 0 {
		s.log.Info("wishlist moved to cart",
			zap.String("wishlist_id", wishlistID.String()),
			zap.String("cart_id", cartID.String()),
			zap.Int("items", len(moved)),
		)
		s.deliver(ctx, movedNotification(actor, wishlist, cartID, len(moved)))
	}
	return moved, nil
}

func (s *WishlistService) transfer(tx *gorm.DB, cart models.Cart, item models.WishlistItem) (models.CartItem, error) {
	line, err := s.carts.merge(tx, cart, item.ProductID, item.VariantID, item.Quantity)
	if err != nil {
		return models.CartItem{}, err
	}
	if err := tx.Delete(&models.WishlistItem{}, "id = ?", item.ID).Error; err != nil {
		return models.CartItem{}, translateStorageError(err, "wishlist item", item.ID.String())
	}
	return line, nil
}

func (s *WishlistService) findForUser(tx *gorm.DB, userID uuid.UUID) (models.Wishlist, error) {
	var wishlist models.Wishlist
	if err := tx.Where("user_id = ?", userID).First(&wishlist).Error; err != nil {
		return models.Wishlist{}, translateStorageError(err, "wishlist", userID.String())
	}
	return wishlist, nil
}

func (s *WishlistService) load(tx *gorm.DB, wishlistID uuid.UUID) (models.Wishlist, error) {
	var wishlist models.Wishlist
	if err := tx.First(&wishlist, "id = ?", wishlistID).Error; err != nil {
		return models.Wishlist{}, translateStorageError(err, "wishlist", wishlistID.String())
	}
	return wishlist, nil
}

func (s *WishlistService) loadForActor(tx *gorm.DB, actor Actor, wishlistID uuid.UUID) (models.Wishlist, error) {
	wishlist, err := s.load(tx, wishlistID)
	if err != nil {
		return models.Wishlist{}, err
	}
	if !canManage(actor, wishlist) {
		return models.Wishlist{}, &PermissionError{Action: "modify this wishlist"}
	}
	return wishlist, nil
}

func (s *WishlistService) loadItemForActor(tx *gorm.DB, actor Actor, itemID uuid.UUID) (models.WishlistItem, models.Wishlist, error) {
	var item models.WishlistItem
	if err := tx.First(&item, "id = ?", itemID).Error; err != nil {
		return models.WishlistItem{}, models.Wishlist{}, translateStorageError(err, "wishlist item", itemID.String())
	}
	wishlist, err := s.loadForActor(tx, actor, item.WishlistID)
	if err != nil {
		return models.WishlistItem{}, models.Wishlist{}, err
	}
	return item, wishlist, nil
}

// canManage lets owners and staff change a wishlist. Guest lists have no
// owner and are open to any caller.
func canManage(actor Actor, wishlist models.Wishlist) bool {
	if wishlist.UserID == nil {
		return true
	}
	return actor.CanAccess(*wishlist.UserID)
}

func validatePriority(priority int) error {
	if priority < models.PriorityLowest || priority > models.PriorityHighest {
		return invalid("priority", "must be between %d and %d", models.PriorityLowest, models.PriorityHighest)
	}
	return nil
}

func missingIDs(requested []uuid.UUID, found []models.WishlistItem) []uuid.UUID {
	present := make(map[uuid.UUID]bool, len(found))
	for _, item := range found {
		present[item.ID] = true
	}
	var missing []uuid.UUID
	for _, id := range requested {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return sortedIDs(missing)
}

func movedNotification(actor Actor, wishlist models.Wishlist, cartID uuid.UUID, count int) []notification {
	var to []string
	switch {
	case wishlist.UserID != nil:
		to = recipient(*wishlist.UserID)
	case actor.UserID != uuid.Nil:
		to = recipient(actor.UserID)
	default:
		return nil
	}
	return []notification{{
		template: TemplateWishlistMoved,
		data: map[string]any{
			"wishlist_id": wishlist.ID.String(),
			"cart_id":     cartID.String(),
			"items":       count,
		},
		recipients: to,
	}}
}
