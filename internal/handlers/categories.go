package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campfirehq/campfire/internal/services"
	"github.com/campfirehq/campfire/pkg/response"
)

// CategoryHandler exposes the category directory and its counter maintenance.
type CategoryHandler struct {
	categories *services.CategoryService
}

func NewCategoryHandler(categories *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

type createCategoryRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=48"`
	Description string `json:"description" validate:"max=512"`
}

type recalculateRequest struct {
	// CategoryID limits the recount to one category; empty recounts all.
	CategoryID string `json:"category_id"`
}

// GET /api/categories
func (h *CategoryHandler) List(c *gin.Context) {
	includeInactive := strings.EqualFold(c.Query("include_inactive"), "true")

	categories, err := h.categories.List(requestContext(c), includeInactive)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, categories)
}

// POST /api/categories
func (h *CategoryHandler) Create(c *gin.Context) {
	var req createCategoryRequest
	if !bindAndValidate(c, &req) {
		return
	}

	category, err := h.categories.Create(requestContext(c), services.CreateCategoryInput{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, category)
}

// DELETE /api/categories/:id
func (h *CategoryHandler) Delete(c *gin.Context) {
	if err := h.categories.Delete(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/categories/recalculate
func (h *CategoryHandler) Recalculate(c *gin.Context) {
	var req recalculateRequest
	// An empty body means recount everything.
	_ = c.ShouldBindJSON(&req)

	results, err := h.categories.Recalculate(requestContext(c), strings.TrimSpace(req.CategoryID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, results)
}
