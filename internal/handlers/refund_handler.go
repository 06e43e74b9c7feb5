package handlers

import (
	"net/http"

	"github.com/farellandr/storefront/internal/helpers"
	"github.com/farellandr/storefront/internal/middleware"
	"github.com/farellandr/storefront/internal/models"
	"github.com/farellandr/storefront/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func RequestRefund(c *gin.Context) {
	paymentID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.RequestRefundInput
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	refund, err := svc.Payments.RequestRefund(c.Request.Context(), middleware.GetActor(c), paymentID, req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Refund requested. Awaiting review.",
		"refund":  refund,
	})
}

func GetRefund(c *gin.Context) {
	refundID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	refund, err := svc.Payments.GetRefund(c.Request.Context(), middleware.GetActor(c), refundID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"refund": refund})
}

func ApproveRefund(c *gin.Context) {
	settleRefund(c, "Refund approved.", func(svc *services.Services, actor services.Actor, id uuid.UUID, req services.SettleRefundInput) (models.Refund, error) {
		return svc.Payments.ApproveRefund(c.Request.Context(), actor, id, req)
	})
}

func CompleteRefund(c *gin.Context) {
	settleRefund(c, "Refund completed successfully.", func(svc *services.Services, actor services.Actor, id uuid.UUID, req services.SettleRefundInput) (models.Refund, error) {
		return svc.Payments.CompleteRefund(c.Request.Context(), actor, id, req)
	})
}

func RejectRefund(c *gin.Context) {
	settleRefund(c, "Refund rejected.", func(svc *services.Services, actor services.Actor, id uuid.UUID, req services.SettleRefundInput) (models.Refund, error) {
		return svc.Payments.RejectRefund(c.Request.Context(), actor, id, req.Notes)
	})
}

func CancelRefund(c *gin.Context) {
	settleRefund(c, "Refund cancelled.", func(svc *services.Services, actor services.Actor, id uuid.UUID, _ services.SettleRefundInput) (models.Refund, error) {
		return svc.Payments.CancelRefund(c.Request.Context(), actor, id)
	})
}

type settleFunc func(svc *services.Services, actor services.Actor, id uuid.UUID, req services.SettleRefundInput) (models.Refund, error)

// settleRefund accepts an empty body; every refund step has usable defaults.
func settleRefund(c *gin.Context, message string, settle settleFunc) {
	refundID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.SettleRefundInput
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	refund, err := settle(svc, middleware.GetActor(c), refundID, req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"refund":  refund,
	})
}
