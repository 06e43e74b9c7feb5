package handlers

import (
	"net/http"

	"github.com/farellandr/storefront/internal/helpers"
	"github.com/farellandr/storefront/internal/middleware"
	"github.com/farellandr/storefront/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReparentRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
}

type BulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}

func CreateCategory(c *gin.Context) {
	var req services.CreateCategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	category, err := svc.Categories.Create(c.Request.Context(), req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Category created successfully.",
		"category": category,
	})
}

func ListCategories(c *gin.Context) {
	svc, ok := getServices(c)
	if !ok {
		return
	}

	pageNum, limitNum, err := helpers.ParsePagination(c)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters.")
		return
	}

	parentID, err := helpers.ParseOptionalUUID(c.Query("parent_id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid parent ID format.")
		return
	}

	categories, totalCount, err := svc.Categories.List(c.Request.Context(), services.CategoryFilter{
		ParentID:  parentID,
		RootsOnly: c.Query("roots") == "true",
		Page:      pageNum,
		Limit:     limitNum,
	})
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"categories":  categories,
		"total":       totalCount,
		"page":        pageNum,
		"limit":       limitNum,
		"total_pages": helpers.TotalPages(totalCount, limitNum),
	})
}

func GetCategory(c *gin.Context) {
	categoryID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	category, err := svc.Categories.Get(c.Request.Context(), categoryID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"category": category})
}

func GetCategoryPath(c *gin.Context) {
	categoryID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	path, err := svc.Categories.FullPath(c.Request.Context(), categoryID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"path": path})
}

func ListCategoryChildren(c *gin.Context) {
	categoryID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	children, err := svc.Categories.Children(c.Request.Context(), categoryID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": children})
}

func UpdateCategory(c *gin.Context) {
	categoryID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req services.UpdateCategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	category, err := svc.Categories.Update(c.Request.Context(), categoryID, req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Category updated successfully.",
		"category": category,
	})
}

func ReparentCategory(c *gin.Context) {
	categoryID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req ReparentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	svc, ok := getServices(c)
	if !ok {
		return
	}

	category, err := svc.Categories.Reparent(c.Request.Context(), categoryID, req.ParentID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Category moved successfully.",
		"category": category,
	})
}

func DeleteCategory(c *gin.Context) {
	categoryID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	if err := svc.Categories.Delete(c.Request.Context(), categoryID); err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully."})
}

func RestoreCategory(c *gin.Context) {
	categoryID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	category, err := svc.Categories.Restore(c.Request.Context(), categoryID)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Category restored successfully.",
		"category": category,
	})
}

func BulkCreateCategories(c *gin.Context) {
	var req []services.CreateCategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Expected an array of categories.")
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	categories, err := svc.Bulk.CreateCategories(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "Categories created successfully.",
		"categories": categories,
	})
}

func BulkUpdateCategories(c *gin.Context) {
	var req []services.CategoryPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Expected an array of category updates.")
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	categories, err := svc.Bulk.UpdateCategories(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Categories updated successfully.",
		"categories": categories,
	})
}

func BulkDeleteCategories(c *gin.Context) {
	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	svc, ok := getServices(c)
	if !ok {
		return
	}

	deleted, err := svc.Bulk.DeleteCategories(c.Request.Context(), middleware.GetActor(c), req.IDs)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Categories deleted successfully.",
		"deleted": deleted,
	})
}
