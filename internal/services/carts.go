package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/storefront/internal/models"
)

type AddCartItemInput struct {
	ProductID uuid.UUID  `json:"product_id" binding:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity" binding:"required,min=1"`
}

// CartService keeps one line per product/variant pair in a cart; adding a pair
// that is already present increments that line.
type CartService struct {
	*base
}

// GetOrCreateActive returns the user's active cart, creating one if needed.
func (s *CartService) GetOrCreateActive(ctx context.Context, actor Actor, userID uuid.UUID) (models.Cart, error) {
	if !actor.CanAccess(userID) {
		return models.Cart{}, &PermissionError{Action: "use this cart"}
	}

	var cart models.Cart
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND status = ?", userID, models.CartActive).
			Order("date_created DESC").
			First(&cart).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return translateStorageError(err, "cart", userID.String())
		}
		cart = models.Cart{
			UserID:    userID,
			Status:    models.CartActive,
			Lifecycle: models.Lifecycle{IsActive: true},
		}
		if err := tx.Create(&cart).Error; err != nil {
			return translateStorageError(err, "cart", userID.String())
		}
		s.log.Info("cart opened", zap.String("cart_id", cart.ID.String()), zap.String("user_id", userID.String()))
		return nil
	})
	if err != nil {
		return models.Cart{}, err
	}
	return s.Get(ctx, actor, cart.ID)
}

// Get returns the cart with its live lines.
func (s *CartService) Get(ctx context.Context, actor Actor, cartID uuid.UUID) (models.Cart, error) {
	db := s.conn(ctx)
	cart, err := s.loadForActor(db, actor, cartID, "view this cart")
	if err != nil {
		return models.Cart{}, err
	}
	if err := db.Scopes(models.ItemsOfCart(cart.ID)).Order("date_created ASC").Find(&cart.Items).Error; err != nil {
		return models.Cart{}, translateStorageError(err, "cart item", cart.ID.String())
	}
	return cart, nil
}

// AddItem merges quantity into the cart line for the product/variant pair.
func (s *CartService) AddItem(ctx context.Context, actor Actor, cartID uuid.UUID, in AddCartItemInput) (models.CartItem, error) {
	var item models.CartItem
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		cart, err := s.loadForActor(tx, actor, cartID, "modify this cart")
		if err != nil {
			return err
		}
		item, err = s.merge(tx, cart, in.ProductID, in.VariantID, in.Quantity)
		return err
	})
	return item, err
}

// merge is shared with the wishlist transfer so both paths keep the same line
// semantics inside the caller's transaction.
func (s *CartService) merge(tx *gorm.DB, cart models.Cart, productID uuid.UUID, variantID *uuid.UUID, quantity int) (models.CartItem, error) {
	if quantity < 1 {
		return models.CartItem{}, invalid("quantity", "must be at least 1")
	}
	if cart.Status != models.CartActive {
		return models.CartItem{}, &InvalidStateError{Entity: "cart", ID: cart.ID, State: string(cart.Status), Action: "accept items"}
	}
	if err := ensurePurchasable(tx, productID, variantID); err != nil {
		return models.CartItem{}, err
	}

	res := tx.Model(&models.CartItem{}).
		Scopes(models.ItemsOfCart(cart.ID), models.ByLine(productID, variantID)).
		Update("quantity", gorm.Expr("quantity + ?", quantity))
	if res.Error != nil {
		return models.CartItem{}, translateStorageError(res.Error, "cart item", cart.ID.String())
	}
	if res.RowsAffected == 0 {
		item := models.CartItem{
			CartID:    cart.ID,
			ProductID: productID,
			VariantID: variantID,
			Quantity:  quantity,
			Lifecycle: models.Lifecycle{IsActive: true},
		}
		if err := tx.Create(&item).Error; err != nil {
			return models.CartItem{}, translateStorageError(err, "cart item", models.LineKey(productID, variantID))
		}
		return item, nil
	}

	var item models.CartItem
	if err := tx.Scopes(models.ItemsOfCart(cart.ID), models.ByLine(productID, variantID)).First(&item).Error; err != nil {
		return models.CartItem{}, translateStorageError(err, "cart item", cart.ID.String())
	}
	return item, nil
}

// UpdateItemQuantity sets a line's quantity; zero removes the line.
func (s *CartService) UpdateItemQuantity(ctx context.Context, actor Actor, itemID uuid.UUID, quantity int) (models.CartItem, error) {
	if quantity < 0 {
		return models.CartItem{}, invalid("quantity", "must not be negative")
	}
	if quantity == 0 {
		return models.CartItem{}, s.RemoveItem(ctx, actor, itemID)
	}

	var item models.CartItem
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		var err error
		item, err = s.loadItemForActor(tx, actor, itemID)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.CartItem{}).Where("id = ?", item.ID).Update("quantity", quantity).Error; err != nil {
			return translateStorageError(err, "cart item", item.ID.String())
		}
		item.Quantity = quantity
		return nil
	})
	return item, err
}

func (s *CartService) RemoveItem(ctx context.Context, actor Actor, itemID uuid.UUID) error {
	return s.inTx(ctx, func(tx *gorm.DB) error {
		item, err := s.loadItemForActor(tx, actor, itemID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.CartItem{}, "id = ?", item.ID).Error; err != nil {
			return translateStorageError(err, "cart item", item.ID.String())
		}
		return nil
	})
}

func (s *CartService) loadForActor(tx *gorm.DB, actor Actor, cartID uuid.UUID, action string) (models.Cart, error) {
	var cart models.Cart
	if err := tx.First(&cart, "id = ?", cartID).Error; err != nil {
		return models.Cart{}, translateStorageError(err, "cart", cartID.String())
	}
	if !actor.CanAccess(cart.UserID) {
		return models.Cart{}, &PermissionError{Action: action}
	}
	return cart, nil
}

func (s *CartService) loadItemForActor(tx *gorm.DB, actor Actor, itemID uuid.UUID) (models.CartItem, error) {
	var item models.CartItem
	if err := tx.First(&item, "id = ?", itemID).Error; err != nil {
		return models.CartItem{}, translateStorageError(err, "cart item", itemID.String())
	}
	cart, err := s.loadForActor(tx, actor, item.CartID, "modify this cart")
	if err != nil {
		return models.CartItem{}, err
	}
	if cart.Status != models.CartActive {
		return models.CartItem{}, &InvalidStateError{Entity: "cart", ID: cart.ID, State: string(cart.Status), Action: "change items"}
	}
	return item, nil
}

// ensurePurchasable rejects products and variants that are inactive or deleted.
func ensurePurchasable(tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID) error {
	var product models.Product
	err := tx.First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !product.IsLive()) {
		return invalid("product_id", "product %s is not available", productID)
	}
	if err != nil {
		return translateStorageError(err, "product", productID.String())
	}
	if variantID == nil {
		return nil
	}
	var variant models.ProductVariant
	err = tx.First(&variant, "id = ? AND product_id = ?", *variantID, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !variant.IsLive()) {
		return invalid("variant_id", "variant %s is not available", *variantID)
	}
	if err != nil {
		return translateStorageError(err, "product variant", variantID.String())
	}
	return nil
}
