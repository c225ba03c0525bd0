package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campfirehq/campfire/internal/services"
	"github.com/campfirehq/campfire/pkg/response"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CommunityHandler exposes community lifecycle and membership endpoints.
type CommunityHandler struct {
	communities *services.CommunityService
}

func NewCommunityHandler(communities *services.CommunityService) *CommunityHandler {
	return &CommunityHandler{communities: communities}
}

type createCommunityRequest struct {
	Name              string   `json:"name" validate:"required,min=3,max=64"`
	Description       string   `json:"description" validate:"max=2048"`
	Access            string   `json:"access" validate:"omitempty,oneof=open invite paid"`
	Price             *float64 `json:"price" validate:"omitempty,gte=0"`
	LogoURL           string   `json:"logo_url" validate:"omitempty,url"`
	BannerURL         string   `json:"banner_url" validate:"omitempty,url"`
	PostingRestricted bool     `json:"posting_restricted"`
	CategoryIDs       []string `json:"category_ids" validate:"max=8"`
}

type updateCommunityRequest struct {
	Name              *string  `json:"name" validate:"omitempty,min=3,max=64"`
	Description       *string  `json:"description" validate:"omitempty,max=2048"`
	Access            *string  `json:"access" validate:"omitempty,oneof=open invite paid"`
	Price             *float64 `json:"price" validate:"omitempty,gte=0"`
	LogoURL           *string  `json:"logo_url" validate:"omitempty,url"`
	BannerURL         *string  `json:"banner_url" validate:"omitempty,url"`
	PostingRestricted *bool    `json:"posting_restricted"`
	CategoryIDs       []string `json:"category_ids" validate:"omitempty,max=8"`
}

// POST /api/communities
func (h *CommunityHandler) Create(c *gin.Context) {
	var req createCommunityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	community, err := h.communities.Create(requestContext(c), currentUserID(c), services.CreateCommunityInput{
		Name:              strings.TrimSpace(req.Name),
		Description:       req.Description,
		Access:            req.Access,
		Price:             req.Price,
		LogoURL:           req.LogoURL,
		BannerURL:         req.BannerURL,
		PostingRestricted: req.PostingRestricted,
		CategoryIDs:       req.CategoryIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, community)
}

// GET /api/communities
func (h *CommunityHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", defaultPageSize)
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	views, total, err := h.communities.List(requestContext(c), services.ListCommunitiesOptions{
		Page:       page,
		PerPage:    perPage,
		Access:     strings.TrimSpace(c.Query("access")),
		CategoryID: strings.TrimSpace(c.Query("category_id")),
		ViewerID:   currentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, views, paginationMeta(page, perPage, total))
}

// GET /api/communities/:id
func (h *CommunityHandler) Get(c *gin.Context) {
	view, err := h.communities.Get(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// PATCH /api/communities/:id
func (h *CommunityHandler) Update(c *gin.Context) {
	var req updateCommunityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	community, err := h.communities.Update(requestContext(c), c.Param("id"), currentUserID(c), services.UpdateCommunityInput{
		Name:              req.Name,
		Description:       req.Description,
		Access:            req.Access,
		Price:             req.Price,
		LogoURL:           req.LogoURL,
		BannerURL:         req.BannerURL,
		PostingRestricted: req.PostingRestricted,
		CategoryIDs:       req.CategoryIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, community)
}

// DELETE /api/communities/:id
func (h *CommunityHandler) Delete(c *gin.Context) {
	if err := h.communities.Delete(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/communities/:id/join
func (h *CommunityHandler) Join(c *gin.Context) {
	if err := h.communities.Join(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"joined": true})
}

// POST /api/communities/:id/leave
func (h *CommunityHandler) Leave(c *gin.Context) {
	if err := h.communities.Leave(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"left": true})
}

// GET /api/communities/:id/members
func (h *CommunityHandler) Members(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", defaultPageSize)
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	members, total, err := h.communities.Members(requestContext(c), c.Param("id"), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, members, paginationMeta(page, perPage, total))
}
