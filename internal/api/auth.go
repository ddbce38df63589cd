package api

import (
	"context"  // Cache loaders
	"net/http" // HTTP status codes

	"server_rental/internal/middleware" // Context keys
	"server_rental/internal/service"    // Rental core
	"server_rental/internal/utils"      // JWT and cache utilities

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
)

// Request struct for registration
type RegisterRequest struct {
	Username        string `json:"username"`         // Username, required
	Password        string `json:"password"`         // Password, required
	ConfirmPassword string `json:"confirm_password"` // Must equal Password
}

// Request struct for login
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Response struct for authentication
type AuthResponse struct {
	Success bool   `json:"success"` // Always true
	Token   string `json:"token"`   // JWT token
	*service.Registration
}

// RegisterHandler creates an account and allocates a free server when one is available
func RegisterHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			badRequest(c, "Invalid request")
			return
		}
		// Missing fields and mismatched passwords come back as domain errors
		reg, err := svc.Register(c.Request.Context(), req.Username, req.Password, req.ConfirmPassword)
		if err != nil {
			fail(c, err)
			return
		}
		message := "Registration successful! No free servers available at the moment."
		if reg.Server != nil {
			message = "Registration successful! Allocated to " + reg.Server.Name
		}
		// Return success response
		c.JSON(http.StatusCreated, gin.H{"success": true, "message": message, "user": reg.User, "server": reg.Server})
	}
}

// LoginHandler authenticates a user, allocates a free server if needed and returns a JWT token
func LoginHandler(svc *service.Service, issuer *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			badRequest(c, "Invalid request")
			return
		}
		reg, err := svc.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			fail(c, err)
			return
		}
		// Generate JWT token
		token, err := issuer.IssueUser(reg.User.ID)
		if err != nil {
			fail(c, err)
			return
		}
		// Return the token in the response
		c.JSON(http.StatusOK, AuthResponse{Success: true, Token: token, Registration: reg})
	}
}

// LogoutHandler releases the caller's server and revokes the token
func LogoutHandler(svc *service.Service, issuer *utils.TokenIssuer, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(middleware.UserIDKey) // Get userID from context
		if err := svc.Logout(c.Request.Context(), userID); err != nil {
			fail(c, err)
			return
		}
		revokeSession(c, issuer, cache) // Deny-list the token
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully!"})
	}
}

// revokeSession deny-lists the caller's token for the rest of its lifetime.
// A cache failure is logged and the token stays valid until it expires.
func revokeSession(c *gin.Context, issuer *utils.TokenIssuer, cache *utils.Cache) {
	claims, ok := c.MustGet(middleware.ClaimsKey).(*utils.Claims) // Set by JWTAuthMiddleware
	if !ok {
		return
	}
	if err := cache.Revoke(c.Request.Context(), claims.ID, issuer.Remaining(claims)); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": claims.UserID, // User ID, zero for the administrator
			"admin":   claims.Admin,  // Administrator session
			"error":   err.Error(),   // Error message
		}).Warn("Token revocation failed")
	}
}

// DashboardHandler returns the caller's account, server, settings and purchasable inventory.
// The per-user part and the shared settings and inventory are cached under separate keys.
func DashboardHandler(svc *service.Service, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(middleware.UserIDKey) // Get userID from context
		ctx := c.Request.Context()                // Context for Redis operations
		// Per-user part
		account, accountHit, err := cachedRead(ctx, cache, utils.DashboardKey(userID), func(ctx context.Context) (*service.Account, error) {
			return svc.Account(ctx, userID)
		})
		if err != nil {
			fail(c, err)
			return
		}
		// Shared parts, invalidated by every inventory or settings write
		settings, settingsHit, err := cachedRead(ctx, cache, utils.SettingsKey, svc.Settings)
		if err != nil {
			fail(c, err)
			return
		}
		available, availableHit, err := cachedRead(ctx, cache, utils.ServersKey, svc.AvailableServers)
		if err != nil {
			fail(c, err)
			return
		}
		dash := service.Dashboard{Account: account, Settings: settings, Available: available}
		c.JSON(http.StatusOK, gin.H{"success": true, "dashboard": dash, "cached": accountHit && settingsHit && availableHit})
	}
}
