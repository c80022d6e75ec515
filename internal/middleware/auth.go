package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"groupchat-service/internal/observability"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (int, error)
}

// AuthMiddleware validates the bearer credential and stores the caller's id
// under "userID".
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := observability.BearerTokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		userID, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
