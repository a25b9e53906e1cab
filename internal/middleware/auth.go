package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phenodx-server/internal/auth"
	"github.com/phenodx-server/internal/domain"
)

// Context keys set by RequireAuth
const (
	ClaimsKey    = "auth_claims"
	SessionIDKey = "session_id"
)

// TokenValidator checks bearer tokens
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token with 401. The
// token may also arrive as the access_token query parameter, which browsers
// need for WebSocket upgrades.
func RequireAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			raw = c.Query("access_token")
		}

		claims, err := tokens.Validate(raw)
		if err != nil {
			apiErr := domain.NewAPIError(domain.ErrAuthentication, "Authentication required", strings.TrimSpace(err.Error()), c.GetString(CorrelationKey))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apiErr})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(SessionIDKey, claims.SessionID)
		c.Next()
	}
}

// Claims returns the claims stored by RequireAuth
func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
