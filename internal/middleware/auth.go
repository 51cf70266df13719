package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mirrormatch/mirrormatch/internal/auth"
)

// claimsContextKey is the gin context key under which verified claims are stored.
const claimsContextKey = "auth_claims"

// ClaimsFromContext extracts verified auth claims from the gin context, if present.
func ClaimsFromContext(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// RequireAuth returns gin middleware that enforces a valid bearer token and
// attaches its claims to the request context. Websocket upgrade requests from
// browsers cannot set headers, so a "token" query parameter is accepted as a
// fallback carrier for the same JWT.
func RequireAuth(j *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			return
		}

		claims, err := j.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// bearerToken strips the "Bearer" scheme from an Authorization header value.
func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
}
