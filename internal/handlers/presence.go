package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"groupchat-service/internal/repositories"
	"groupchat-service/internal/ws"
)

type PresenceHandler struct {
	presence *ws.PresenceStore
	users    repositories.UserRepository
}

func NewPresenceHandler(presence *ws.PresenceStore, users repositories.UserRepository) *PresenceHandler {
	return &PresenceHandler{presence: presence, users: users}
}

type presenceResponse struct {
	UserID   int        `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// GetPresence answers from live state, falling back to the stored last_seen
// for users that have not connected since the process started.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	if p, ok := h.presence.Lookup(userID); ok {
		seen := p.LastSeen
		c.JSON(http.StatusOK, presenceResponse{UserID: userID, Online: p.Online, LastSeen: &seen})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		log.Printf("presence lookup failed user_id=%d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load presence"})
		return
	}

	c.JSON(http.StatusOK, presenceResponse{UserID: userID, Online: false, LastSeen: user.LastSeen})
}
