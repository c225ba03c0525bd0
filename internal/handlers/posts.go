package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campfirehq/campfire/internal/services"
	"github.com/campfirehq/campfire/pkg/response"
)

// PostHandler exposes post lifecycle and upvote endpoints.
type PostHandler struct {
	posts *services.PostService
	votes *services.VoteService
}

func NewPostHandler(posts *services.PostService, votes *services.VoteService) *PostHandler {
	return &PostHandler{posts: posts, votes: votes}
}

type createPostRequest struct {
	Title   string `json:"title" validate:"required,min=1,max=300"`
	Content string `json:"content" validate:"max=40000"`
	Kind    string `json:"kind" validate:"omitempty,oneof=blog discussion link image"`
}

type updatePostRequest struct {
	Title   *string `json:"title" validate:"omitempty,min=1,max=300"`
	Content *string `json:"content" validate:"omitempty,max=40000"`
	Kind    *string `json:"kind" validate:"omitempty,oneof=blog discussion link image"`
}

// POST /api/communities/:id/posts
func (h *PostHandler) Create(c *gin.Context) {
	var req createPostRequest
	if !bindAndValidate(c, &req) {
		return
	}

	post, err := h.posts.Create(requestContext(c), currentUserID(c), services.CreatePostInput{
		CommunityID: c.Param("id"),
		Title:       strings.TrimSpace(req.Title),
		Content:     req.Content,
		Kind:        req.Kind,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, post)
}

// GET /api/communities/:id/posts
func (h *PostHandler) ListByCommunity(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", defaultPageSize)
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	views, total, err := h.posts.ListByCommunity(requestContext(c), c.Param("id"), services.ListPostsOptions{
		Page:     page,
		PerPage:  perPage,
		Kind:     strings.TrimSpace(c.Query("kind")),
		ViewerID: currentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, views, paginationMeta(page, perPage, total))
}

// GET /api/posts/:id
func (h *PostHandler) Get(c *gin.Context) {
	view, err := h.posts.Get(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// PATCH /api/posts/:id
func (h *PostHandler) Update(c *gin.Context) {
	var req updatePostRequest
	if !bindAndValidate(c, &req) {
		return
	}

	post, err := h.posts.Update(requestContext(c), c.Param("id"), currentUserID(c), services.UpdatePostInput{
		Title:   req.Title,
		Content: req.Content,
		Kind:    req.Kind,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, post)
}

// DELETE /api/posts/:id
func (h *PostHandler) Delete(c *gin.Context) {
	if err := h.posts.Delete(requestContext(c), c.Param("id"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/posts/:id/upvote
func (h *PostHandler) ToggleUpvote(c *gin.Context) {
	result, err := h.votes.Toggle(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
