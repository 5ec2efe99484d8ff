package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mcordes92/da-quizly/internal/auth"
)

// AccessCookie is the HTTP-only cookie carrying the access token.
const AccessCookie = "access_token"

// JWTMiddleware validates the access cookie on every request and stores the
// authenticated user's id and username in the gin context for handlers.
func JWTMiddleware(issuer auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(AccessCookie)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
			return
		}

		claims, err := issuer.Parse(token, auth.TokenTypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired."})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

// UserID returns the authenticated user's id set by JWTMiddleware.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
