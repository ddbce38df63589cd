package middleware

import (
	"net/http"                      // HTTP status codes
	"server_rental/internal/domain" // Error codes

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdminOnlyMiddleware requires the admin claim set by JWTAuthMiddleware
func AdminOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check if the caller carries an administrator session
		if !c.GetBool(AdminKey) {
			// If not admin, abort with forbidden status
			abort(c, http.StatusForbidden, domain.ErrUnauthorized, "Admin access required")
			return
		}
		// If admin, proceed to the next handler
		c.Next()
	}
}
