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

type CreateOrderRequest struct {
	CartID uuid.UUID `json:"cart_id" binding:"required"`
	services.CreateOrderInput
}

type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type TransitionOrderRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note" binding:"max=500"`
}

func CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	order, err := svc.Orders.CreateFromCart(c.Request.Context(), middleware.GetActor(c), req.CartID, req.CreateOrderInput)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order created successfully.",
		"order":   order,
	})
}

func ListOrders(c *gin.Context) {
	svc, ok := getServices(c)
	if !ok {
		return
	}

	pageNum, limitNum, err := helpers.ParsePagination(c)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters.")
		return
	}

	orders, totalCount, err := svc.Orders.ListForUser(c.Request.Context(), middleware.GetActor(c), pageNum, limitNum)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":      orders,
		"total":       totalCount,
		"page":        pageNum,
		"limit":       limitNum,
		"total_pages": helpers.TotalPages(totalCount, limitNum),
	})
}

func GetOrder(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	actor := middleware.GetActor(c)
	order, err := svc.Orders.Get(c.Request.Context(), actor, orderID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	totalPaid, err := svc.Orders.TotalPaid(c.Request.Context(), orderID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":      order,
		"total_paid": totalPaid,
	})
}

func GetOrderHistory(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	history, err := svc.Orders.History(c.Request.Context(), middleware.GetActor(c), orderID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

func ListOrderPayments(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	payments, err := svc.Payments.ListForOrder(c.Request.Context(), middleware.GetActor(c), orderID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func CommitOrder(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	order, err := svc.Orders.Commit(c.Request.Context(), middleware.GetActor(c), orderID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order committed. Awaiting payment.",
		"order":   order,
	})
}

func CancelOrder(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	order, err := svc.Orders.Cancel(c.Request.Context(), middleware.GetActor(c), orderID, req.Reason)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order cancelled successfully.",
		"order":   order,
	})
}

func TransitionOrder(c *gin.Context) {
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req TransitionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	order, err := svc.Orders.Transition(c.Request.Context(), middleware.GetActor(c), orderID, req.Status, req.Note)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully.",
		"order":   order,
	})
}
