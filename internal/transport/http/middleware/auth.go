package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iamasit07/wordle-duel/backend/pkg/auth"
	"github.com/iamasit07/wordle-duel/backend/pkg/httputil"
)

const (
	PlayerIDKey    = "player_id"
	DisplayNameKey = "display_name"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// Auth validates the identity token from the cookie, Authorization header or
// token query parameter and puts the player id into the gin context.
func Auth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := httputil.GetTokenFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(PlayerIDKey, claims.PlayerID)
		c.Set(DisplayNameKey, claims.DisplayName)
		c.Next()
	}
}

// PlayerID returns the identity set by Auth.
func PlayerID(c *gin.Context) (string, bool) {
	id := c.GetString(PlayerIDKey)
	return id, id != ""
}
