package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/campfirehq/campfire/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID resolves the authenticated user id set by the auth middleware.
// The empty string means the request is anonymous.
func currentUserID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	value, ok := c.Get(middleware.CtxUserIDKey)
	if !ok {
		return ""
	}
	id, _ := value.(string)
	return id
}
