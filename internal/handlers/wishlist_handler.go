package handlers

import (
	"net/http"

	"github.com/farellandr/storefront/internal/helpers"
	"github.com/farellandr/storefront/internal/middleware"
	"github.com/farellandr/storefront/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type VisibilityRequest struct {
	IsPublic *bool `json:"is_public" binding:"required"`
}

type PriorityRequest struct {
	Priority int `json:"priority" binding:"required"`
}

type MoveToCartRequest struct {
	CartID uuid.UUID `json:"cart_id" binding:"required"`
}

type MoveAllToCartRequest struct {
	CartID  uuid.UUID   `json:"cart_id" binding:"required"`
	ItemIDs []uuid.UUID `json:"item_ids"`
}

func GetOrCreateWishlist(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	wishlist, err := svc.Wishlists.GetOrCreateForUser(c.Request.Context(), middleware.GetActor(c), userID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"wishlist": wishlist})
}

func CreateWishlist(c *gin.Context) {
	var req services.CreateWishlistInput
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	wishlist, err := svc.Wishlists.Create(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Wishlist created successfully.",
		"wishlist": wishlist,
	})
}

func GetWishlist(c *gin.Context) {
	wishlistID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	actor := middleware.GetActor(c)
	wishlist, err := svc.Wishlists.Get(c.Request.Context(), actor, wishlistID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	items, err := svc.Wishlists.Items(c.Request.Context(), actor, wishlistID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wishlist": wishlist,
		"items":    items,
	})
}

func SetWishlistVisibility(c *gin.Context) {
	wishlistID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req VisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	wishlist, err := svc.Wishlists.SetVisibility(c.Request.Context(), middleware.GetActor(c), wishlistID, *req.IsPublic)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Wishlist visibility updated.",
		"wishlist": wishlist,
	})
}

func AddWishlistItem(c *gin.Context) {
	wishlistID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.AddWishlistItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	item, err := svc.Wishlists.AddItem(c.Request.Context(), middleware.GetActor(c), wishlistID, req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item saved to wishlist.",
		"item":    item,
	})
}

func UpdateWishlistItemPriority(c *gin.Context) {
	itemID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req PriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	item, err := svc.Wishlists.UpdatePriority(c.Request.Context(), middleware.GetActor(c), itemID, req.Priority)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Wishlist item updated.",
		"item":    item,
	})
}

func RemoveWishlistItem(c *gin.Context) {
	itemID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	if err := svc.Wishlists.RemoveItem(c.Request.Context(), middleware.GetActor(c), itemID); err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item removed from wishlist."})
}

func MoveWishlistItemToCart(c *gin.Context) {
	itemID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req MoveToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	line, err := svc.Wishlists.MoveToCart(c.Request.Context(), middleware.GetActor(c), itemID, req.CartID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Item moved to cart.",
		"cart_item": line,
	})
}

func MoveWishlistToCart(c *gin.Context) {
	wishlistID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req MoveAllToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	lines, err := svc.Wishlists.MoveAllToCart(c.Request.Context(), middleware.GetActor(c), wishlistID, req.CartID, req.ItemIDs)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Items moved to cart.",
		"cart_items": lines,
	})
}

func BulkUpdateWishlistPriorities(c *gin.Context) {
	var req []services.PriorityPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Expected an array of priority updates.")
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	items, err := svc.Bulk.UpdateWishlistPriorities(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Wishlist priorities updated.",
		"items":   items,
	})
}
