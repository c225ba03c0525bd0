package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campfirehq/campfire/internal/services"
	"github.com/campfirehq/campfire/pkg/response"
)

// ChannelHandler exposes per-community channel and message endpoints.
type ChannelHandler struct {
	channels *services.ChannelService
}

func NewChannelHandler(channels *services.ChannelService) *ChannelHandler {
	return &ChannelHandler{channels: channels}
}

type createChannelRequest struct {
	Name           string   `json:"name" validate:"required,min=2,max=48,campfire"`
	Description    string   `json:"description" validate:"max=500"`
	Kind           string   `json:"kind" validate:"omitempty,oneof=general text announcement"`
	IsPrivate      bool     `json:"is_private"`
	AllowedUserIDs []string `json:"allowed_user_ids" validate:"max=64"`
}

type updateChannelRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=48,campfire"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Kind        *string `json:"kind" validate:"omitempty,oneof=general text announcement"`
}

type postMessageRequest struct {
	Content string  `json:"content" validate:"required,min=1,max=8000"`
	Kind    string  `json:"kind" validate:"omitempty,oneof=message announcement"`
	ReplyTo *string `json:"reply_to"`
}

// GET /api/communities/:id/channels
func (h *ChannelHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", defaultPageSize)
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	views, total, err := h.channels.List(requestContext(c), c.Param("id"), currentUserID(c), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, views, paginationMeta(page, perPage, total))
}

// POST /api/communities/:id/channels
func (h *ChannelHandler) Create(c *gin.Context) {
	var req createChannelRequest
	if !bindAndValidate(c, &req) {
		return
	}

	channel, err := h.channels.Create(requestContext(c), c.Param("id"), currentUserID(c), services.CreateChannelInput{
		Name:           req.Name,
		Description:    req.Description,
		Kind:           req.Kind,
		IsPrivate:      req.IsPrivate,
		AllowedUserIDs: req.AllowedUserIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, channel)
}

// PATCH /api/communities/:id/channels/:channel
func (h *ChannelHandler) Update(c *gin.Context) {
	var req updateChannelRequest
	if !bindAndValidate(c, &req) {
		return
	}

	channel, err := h.channels.Update(requestContext(c), c.Param("id"), c.Param("channel"), currentUserID(c), services.UpdateChannelInput{
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, channel)
}

// DELETE /api/communities/:id/channels/:channel
func (h *ChannelHandler) Delete(c *gin.Context) {
	if err := h.channels.Delete(requestContext(c), c.Param("id"), c.Param("channel"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/communities/:id/channels/:channel/messages
func (h *ChannelHandler) Messages(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", defaultPageSize)
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	views, total, err := h.channels.Messages(requestContext(c), c.Param("id"), c.Param("channel"), currentUserID(c), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, views, paginationMeta(page, perPage, total))
}

// POST /api/communities/:id/channels/:channel/messages
func (h *ChannelHandler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	view, err := h.channels.PostMessage(requestContext(c), c.Param("id"), c.Param("channel"), currentUserID(c), services.PostMessageInput{
		Content: req.Content,
		Kind:    req.Kind,
		ReplyTo: req.ReplyTo,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, view)
}
