package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace-bidding/internal/biddingerrors"
	"marketplace-bidding/utils"
)

const callerKey = "auth.caller"

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireAuth rejects requests without a valid bearer token
func RequireAuth(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			utils.JSONAbort(c, http.StatusUnauthorized, biddingerrors.ErrNotAuthenticated, "not authenticated")
			return
		}
		claims, err := v.Parse(token)
		if err != nil {
			utils.JSONAbort(c, http.StatusUnauthorized, err, "not authenticated")
			utils.Warn("RequireAuth: rejected token", map[string]any{
				"path":  c.FullPath(),
				"error": err.Error(),
			})
			return
		}
		c.Set(callerKey, claims)
		c.Next()
	}
}

// Caller returns the authenticated caller of the request
func Caller(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// WithCaller stores claims on the request context, for handler tests
func WithCaller(c *gin.Context, claims Claims) {
	c.Set(callerKey, claims)
}
