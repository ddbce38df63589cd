package middleware

import (
	"net/http"                      // HTTP status codes
	"server_rental/internal/domain" // Error codes
	"server_rental/internal/utils"  // JWT and cache utilities
	"strings"                       // String manipulation

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
)

// Context keys set by JWTAuthMiddleware
const (
	UserIDKey = "userID" // uint, zero on administrator sessions
	AdminKey  = "isAdmin"
	ClaimsKey = "claims"
)

// abort writes the structured failure outcome and stops the chain
func abort(c *gin.Context, status int, err error, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": domain.Code(err), "message": message})
}

// JWTAuthMiddleware validates bearer tokens, rejects revoked ones and stores the caller identity
func JWTAuthMiddleware(issuer *utils.TokenIssuer, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		// Check if the Authorization header is present and properly formatted
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			// If not, abort with unauthorized status
			abort(c, http.StatusUnauthorized, domain.ErrUnauthorized, "Missing or invalid Authorization header")
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string and parse it
		claims, err := issuer.Parse(tokenStr)                 // Parse the JWT token
		if err != nil {
			// If parsing fails, abort with unauthorized status
			abort(c, http.StatusUnauthorized, domain.ErrUnauthorized, "Invalid or expired token")
			return
		}
		// Check the logout deny-list
		revoked, err := cache.Revoked(c.Request.Context(), claims.ID)
		if err != nil {
			// Fail open on cache trouble, tokens still expire on their own
			logrus.WithField("error", err.Error()).Warn("Revocation check failed")
		}
		if revoked {
			abort(c, http.StatusUnauthorized, domain.ErrUnauthorized, "Token has been revoked")
			return
		}
		c.Set(UserIDKey, claims.UserID) // Store userID in context
		c.Set(AdminKey, claims.Admin)   // Store admin flag in context
		c.Set(ClaimsKey, claims)        // Keep claims for logout
		c.Next()                        // Proceed to the next handler
	}
}

// UserOnlyMiddleware rejects administrator tokens on user routes
func UserOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetUint(UserIDKey) == 0 {
			abort(c, http.StatusUnauthorized, domain.ErrUnauthorized, "User session required")
			return
		}
		c.Next()
	}
}
