package handlers

import (
	"errors"
	"net/http"

	"github.com/farellandr/storefront/internal/helpers"
	"github.com/farellandr/storefront/internal/middleware"
	"github.com/farellandr/storefront/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func getServices(c *gin.Context) (*services.Services, bool) {
	svc := middleware.GetServices(c)
	if svc == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Services not found.")
		return nil, false
	}
	return svc, true
}

// respondWithServiceError maps the error taxonomy of the services package
// onto HTTP statuses. Anything unrecognised is logged and reported as a 500.
func respondWithServiceError(c *gin.Context, err error) {
	var (
		validation *services.ValidationError
		bulk       *services.BulkError
		permission *services.PermissionError
		missing    *services.NotFoundError
		conflict   *services.ConflictError
		transition *services.InvalidTransitionError
		state      *services.InvalidStateError
		stock      *services.InsufficientStockError
		dependents *services.HasDependentsError
		circular   *services.CircularReferenceError
	)

	switch {
	case errors.As(err, &validation):
		helpers.RespondWithDetails(c, http.StatusBadRequest, err.Error(), gin.H{"field": validation.Field})
	case errors.As(err, &bulk):
		details := gin.H{}
		if len(bulk.InvalidIDs) > 0 {
			details["invalid_ids"] = bulk.InvalidIDs
		}
		if len(bulk.Items) > 0 {
			details["items"] = bulk.Items
		}
		helpers.RespondWithDetails(c, http.StatusUnprocessableEntity, err.Error(), details)
	case errors.As(err, &permission):
		helpers.RespondWithError(c, http.StatusForbidden, err.Error())
	case errors.As(err, &missing):
		helpers.RespondWithError(c, http.StatusNotFound, err.Error())
	case errors.As(err, &stock):
		helpers.RespondWithDetails(c, http.StatusConflict, "Insufficient stock.", gin.H{"lines": stock.Lines})
	case errors.As(err, &dependents):
		helpers.RespondWithDetails(c, http.StatusConflict, err.Error(), gin.H{
			"children": dependents.Children,
			"products": dependents.Products,
		})
	case errors.As(err, &conflict):
		helpers.RespondWithError(c, http.StatusConflict, err.Error())
	case errors.As(err, &transition):
		helpers.RespondWithDetails(c, http.StatusConflict, err.Error(), gin.H{"from": transition.From, "to": transition.To})
	case errors.As(err, &state):
		helpers.RespondWithError(c, http.StatusConflict, err.Error())
	case errors.As(err, &circular):
		helpers.RespondWithError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		middleware.GetLogger(c).Error("request failed", zap.Error(err), zap.String("route", c.FullPath()))
		helpers.RespondWithError(c, http.StatusInternalServerError, "Something went wrong. Please try again later.")
	}
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	parsed, err := helpers.ParseUUIDParam(c, name)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ID format.")
		return parsed, false
	}
	return parsed, true
}
