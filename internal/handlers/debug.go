package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"groupchat-service/internal/telemetry"
)

// RoomLister reports the rooms that currently have live subscribers.
type RoomLister interface {
	RoomIDs() []int
}

// RegisterDebugRoutes wires debug-only endpoints behind auth.
func RegisterDebugRoutes(router *gin.Engine, auth gin.HandlerFunc, emitter *telemetry.AuditEmitter, rooms RoomLister, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug", auth)
	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), authenticatedUserID(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	debug.GET("/rooms", func(c *gin.Context) {
		ids := rooms.RoomIDs()
		c.JSON(http.StatusOK, gin.H{"rooms": ids, "count": len(ids)})
	})
}
