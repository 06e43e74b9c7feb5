package handlers

import (
	"net/http"
	"time"

	"github.com/farellandr/storefront/internal/helpers"
	"github.com/farellandr/storefront/internal/middleware"
	"github.com/farellandr/storefront/internal/models"
	"github.com/farellandr/storefront/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentReasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type ExpirePaymentsRequest struct {
	OlderThan string `json:"older_than"`
}

const defaultSummaryWindow = 30 * 24 * time.Hour

func CreatePayment(c *gin.Context) {
	var req services.CreatePaymentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	payment, err := svc.Payments.Create(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Payment recorded. Awaiting confirmation.",
		"payment": payment,
	})
}

func GetPayment(c *gin.Context) {
	paymentID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	payment, err := svc.Payments.Get(c.Request.Context(), middleware.GetActor(c), paymentID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

func CompletePayment(c *gin.Context) {
	paymentID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	payment, err := svc.Payments.MarkCompleted(c.Request.Context(), middleware.GetActor(c), paymentID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment completed successfully.",
		"payment": payment,
	})
}

func FailPayment(c *gin.Context) {
	closePayment(c, "Payment marked as failed.", func(svc *services.Services, actor services.Actor, id uuid.UUID, reason string) (models.Payment, error) {
		return svc.Payments.MarkFailed(c.Request.Context(), actor, id, reason)
	})
}

func CancelPayment(c *gin.Context) {
	closePayment(c, "Payment cancelled successfully.", func(svc *services.Services, actor services.Actor, id uuid.UUID, reason string) (models.Payment, error) {
		return svc.Payments.MarkCancelled(c.Request.Context(), actor, id, reason)
	})
}

type closeFunc func(svc *services.Services, actor services.Actor, id uuid.UUID, reason string) (models.Payment, error)

func closePayment(c *gin.Context, message string, close closeFunc) {
	paymentID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req PaymentReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	payment, err := close(svc, middleware.GetActor(c), paymentID, req.Reason)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"payment": payment,
	})
}

func FindDuplicatePayments(c *gin.Context) {
	invoiceID, err := helpers.ParseOptionalUUID(c.Query("invoice_id"))
	if err != nil || invoiceID == nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "A valid invoice_id is required.")
		return
	}

	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "A valid amount is required.")
		return
	}

	var within time.Duration
	if raw := c.Query("within"); raw != "" {
		if within, err = time.ParseDuration(raw); err != nil || within <= 0 {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid duration for within.")
			return
		}
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	payments, err := svc.Payments.FindDuplicates(c.Request.Context(), *invoiceID, amount, within)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// ListStalePayments falls back to the configured pending TTL when older_than is absent.
func ListStalePayments(c *gin.Context) {
	var age time.Duration
	if raw := c.Query("older_than"); raw != "" {
		var err error
		if age, err = time.ParseDuration(raw); err != nil || age <= 0 {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid duration for older_than.")
			return
		}
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	payments, err := svc.Payments.PendingOlderThan(c.Request.Context(), age)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func ExpireStalePayments(c *gin.Context) {
	var req ExpirePaymentsRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	var age time.Duration
	if req.OlderThan != "" {
		var err error
		if age, err = time.ParseDuration(req.OlderThan); err != nil || age <= 0 {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid duration for older_than.")
			return
		}
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	expired, err := svc.Payments.ExpireStalePending(c.Request.Context(), age)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Stale payments expired.",
		"expired": expired,
	})
}

func GetPaymentSummary(c *gin.Context) {
	since := time.Now().Add(-defaultSummaryWindow)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid since timestamp. Use RFC3339.")
			return
		}
		since = parsed
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	summary, err := svc.Payments.Summary(c.Request.Context(), middleware.GetActor(c), since)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
