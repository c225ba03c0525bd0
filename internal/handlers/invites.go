package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campfirehq/campfire/internal/services"
	"github.com/campfirehq/campfire/pkg/response"
)

// InviteHandler exposes invite code lifecycle endpoints.
type InviteHandler struct {
	invites *services.InviteService
}

func NewInviteHandler(invites *services.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

type generateInviteRequest struct {
	// ExpiresInHours of 0 falls back to the service default window.
	ExpiresInHours int   `json:"expires_in_hours" validate:"omitempty,min=1,max=8760"`
	MaxUses        int64 `json:"max_uses" validate:"omitempty,min=1,max=10000"`
}

type redeemInviteRequest struct {
	Code string `json:"code" validate:"required,min=4,max=64"`
}

// POST /api/communities/:id/invites
func (h *InviteHandler) Generate(c *gin.Context) {
	var req generateInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invite, err := h.invites.Generate(requestContext(c), c.Param("id"), currentUserID(c),
		time.Duration(req.ExpiresInHours)*time.Hour, req.MaxUses)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invite)
}

// GET /api/communities/:id/invites
func (h *InviteHandler) List(c *gin.Context) {
	invites, err := h.invites.List(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invites)
}

// POST /api/invites/redeem
func (h *InviteHandler) Redeem(c *gin.Context) {
	var req redeemInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	community, err := h.invites.Redeem(requestContext(c), strings.TrimSpace(req.Code), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"joined":    true,
		"community": community,
	})
}

// POST /api/invites/:code/deactivate
func (h *InviteHandler) Deactivate(c *gin.Context) {
	if err := h.invites.Deactivate(requestContext(c), c.Param("code"), currentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}
