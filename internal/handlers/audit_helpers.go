package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"groupchat-service/internal/observability"
)

const requestIDContextKey = "request_id"

// requestIDFromContext reuses the caller's X-Request-Id or mints one, and
// caches it on the gin context.
func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(requestIDContextKey); id != "" {
		return id
	}
	id := observability.RequestIDFromRequest(c.Request)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDContextKey, id)
	return id
}

// authenticatedUserID returns the id stored by the auth middleware, if any.
func authenticatedUserID(c *gin.Context) *int {
	userID := c.GetInt("userID")
	if userID == 0 {
		return nil
	}
	return &userID
}
