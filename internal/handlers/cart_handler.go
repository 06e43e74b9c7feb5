package handlers

import (
	"net/http"

	"github.com/farellandr/storefront/internal/helpers"
	"github.com/farellandr/storefront/internal/middleware"
	"github.com/farellandr/storefront/internal/services"
	"github.com/gin-gonic/gin"
)

type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0"`
}

func GetOrCreateCart(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	cart, err := svc.Carts.GetOrCreateActive(c.Request.Context(), middleware.GetActor(c), userID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

func GetCart(c *gin.Context) {
	cartID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	cart, err := svc.Carts.Get(c.Request.Context(), middleware.GetActor(c), cartID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

func AddCartItem(c *gin.Context) {
	cartID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.AddCartItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	item, err := svc.Carts.AddItem(c.Request.Context(), middleware.GetActor(c), cartID, req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item added to cart.",
		"item":    item,
	})
}

func UpdateCartItem(c *gin.Context) {
	itemID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	item, err := svc.Carts.UpdateItemQuantity(c.Request.Context(), middleware.GetActor(c), itemID, *req.Quantity)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	if *req.Quantity == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item updated.",
		"item":    item,
	})
}

func RemoveCartItem(c *gin.Context) {
	itemID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	if err := svc.Carts.RemoveItem(c.Request.Context(), middleware.GetActor(c), itemID); err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item removed from cart."})
}
