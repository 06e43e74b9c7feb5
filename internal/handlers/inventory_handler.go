package handlers

import (
	"net/http"

	"github.com/farellandr/storefront/internal/helpers"
	"github.com/farellandr/storefront/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RestockRequest struct {
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity" binding:"required,min=1"`
}

func GetProductStock(c *gin.Context) {
	productID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	variantID, err := helpers.ParseOptionalUUID(c.Query("variant_id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid variant ID format.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	available, err := svc.Inventory.Available(c.Request.Context(), productID, variantID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product_id": productID,
		"variant_id": variantID,
		"available":  available,
	})
}

func RestockProduct(c *gin.Context) {
	productID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	level, err := svc.Inventory.Restock(c.Request.Context(), middleware.GetActor(c), productID, req.VariantID, req.Quantity)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Stock updated successfully.",
		"available": level,
	})
}
