package api

import (
	"net/http" // HTTP status codes
	"strconv"  // Number formatting

	"server_rental/internal/auth"      // Administrator check
	"server_rental/internal/domain"    // Error taxonomy
	"server_rental/internal/scheduler" // Sweep runner
	"server_rental/internal/service"   // Rental core
	"server_rental/internal/utils"     // JWT utilities

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
)

// AddServerRequest describes a new server
type AddServerRequest struct {
	Name       string `json:"name"`        // Display name
	ServerURL  string `json:"server_url"`  // Connection address
	ServerType string `json:"server_type"` // free, paid_5, paid_10 or paid_15
}

// UpdateSettingsRequest replaces the global settings
type UpdateSettingsRequest struct {
	LogoURL           string `json:"logo_url"`            // Logo
	BackgroundSongURL string `json:"background_song_url"` // Background audio
	CoinDeductionRate *int   `json:"coin_deduction_rate"` // Defaults to 1 when omitted
}

// AddCoinsRequest credits a user
type AddCoinsRequest struct {
	Coins int `json:"coins"` // Must be positive
}

// AdminLoginHandler checks the administrator credentials and returns an admin token
func AdminLoginHandler(admin auth.AdminAuthenticator, issuer *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		if !admin.Authenticate(req.Username, req.Password) {
			logrus.WithField("client_ip", c.ClientIP()).Warn("Admin login rejected")
			fail(c, domain.ErrInvalidCredentials)
			return
		}
		token, err := issuer.IssueAdmin(req.Username)
		if err != nil {
			fail(c, err)
			return
		}
		logrus.WithField("client_ip", c.ClientIP()).Info("Admin login successful")
		c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
	}
}

// AdminLogoutHandler revokes the administrator token
func AdminLogoutHandler(issuer *utils.TokenIssuer, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		revokeSession(c, issuer, cache) // Deny-list the token
		logrus.WithField("client_ip", c.ClientIP()).Info("Admin logged out")
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully!"})
	}
}

// ListUsersHandler returns every account
func ListUsersHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := svc.ListUsers(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "users": users})
	}
}

// ListServersHandler returns the whole inventory
func ListServersHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		servers, err := svc.ListServers(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "servers": servers})
	}
}

// ListTransactionsHandler returns the newest ledger entries
func ListTransactionsHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		txs, err := svc.RecentTransactions(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transactions": txs})
	}
}

// AddServerHandler adds a server to the inventory
func AddServerHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddServerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		srv, err := svc.AddServer(c.Request.Context(), req.Name, req.ServerURL, req.ServerType)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Server " + srv.Name + " added successfully!", "server": srv})
	}
}

// DeleteServerHandler removes a server, clearing its occupants
func DeleteServerHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := idParam(c, "id")
		if !ok {
			return
		}
		cleared, err := svc.DeleteServer(c.Request.Context(), serverID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Server deleted successfully!", "released_users": cleared})
	}
}

// ReleaseServerHandler force-releases a server from its occupant
func ReleaseServerHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		serverID, ok := idParam(c, "id")
		if !ok {
			return
		}
		if err := svc.ReleaseServer(c.Request.Context(), serverID); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Server released"})
	}
}

// GetSettingsHandler returns the global settings
func GetSettingsHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := svc.Settings(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "settings": st})
	}
}

// UpdateSettingsHandler replaces the global settings
func UpdateSettingsHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		rate := domain.DefaultDeductionRate // Default when omitted
		if req.CoinDeductionRate != nil {
			rate = *req.CoinDeductionRate
		}
		st, err := svc.UpdateSettings(c.Request.Context(), req.LogoURL, req.BackgroundSongURL, rate)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Settings updated successfully!", "settings": st})
	}
}

// AddCoinsHandler credits a user's balance
func AddCoinsHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req AddCoinsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		user, err := svc.AddCoins(c.Request.Context(), userID, req.Coins)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Added " + strconv.Itoa(req.Coins) + " coins to " + user.Username, "user": user})
	}
}

// SweepHandler runs a metering sweep on demand, e.g. from an external cron
func SweepHandler(runner *scheduler.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := runner.RunOnce(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		if report == nil {
			c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "Sweep already in progress"})
			return
		}
		notices := make([]string, 0, len(report.Evicted))
		for _, e := range report.Evicted {
			notices = append(notices, e.Notice())
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Coins deducted", "report": report, "notices": notices})
	}
}
