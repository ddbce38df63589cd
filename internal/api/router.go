package api

import (
	"net/http" // HTTP status codes

	"server_rental/internal/auth"       // Administrator check
	"server_rental/internal/middleware" // Custom middleware
	"server_rental/internal/scheduler"  // Sweep runner
	"server_rental/internal/service"    // Rental core
	"server_rental/internal/utils"      // JWT and cache utilities

	"github.com/gin-gonic/gin"                                // Gin web framework
	"github.com/prometheus/client_golang/prometheus/promhttp" // Metrics endpoint
)

// Deps are the collaborators the routes need
type Deps struct {
	Service    *service.Service
	Issuer     *utils.TokenIssuer
	Cache      *utils.Cache
	Admin      auth.AdminAuthenticator
	Runner     *scheduler.Runner
	LoginLimit *middleware.RateLimiter // Optional, throttles login endpoints
}

// RegisterRoutes wires every endpoint onto r
func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestLogger()) // Request ids, logs and HTTP metrics

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// login prefixes the rate limiter when one is configured
	login := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if d.LoginLimit == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{d.LoginLimit.Handler(), h}
	}
	authn := middleware.JWTAuthMiddleware(d.Issuer, d.Cache)

	// Auth routes
	r.POST("/user", RegisterHandler(d.Service))                            // Registration endpoint
	r.POST("/user/login", login(LoginHandler(d.Service, d.Issuer))...)     // Login endpoint
	r.POST("/admin/login", login(AdminLoginHandler(d.Admin, d.Issuer))...) // Admin login endpoint

	// User routes (protected by JWT)
	userGroup := r.Group("/user")
	userGroup.Use(authn, middleware.UserOnlyMiddleware())
	userGroup.POST("/logout", LogoutHandler(d.Service, d.Issuer, d.Cache)) // Logout endpoint
	userGroup.GET("/me", DashboardHandler(d.Service, d.Cache))             // Dashboard endpoint
	userGroup.GET("/server", CurrentServerHandler(d.Service))              // Current allocation endpoint
	userGroup.POST("/server", RequestServerHandler(d.Service))             // Request a free server
	userGroup.DELETE("/server", ReleaseOwnServerHandler(d.Service))        // Give up the current server

	// Server inventory routes
	r.GET("/servers", AvailableServersHandler(d.Service, d.Cache))                                      // Purchasable inventory
	r.GET("/servers/stats", StatsHandler(d.Service, d.Cache))                                           // Inventory counters
	r.POST("/servers/:id/purchase", authn, middleware.UserOnlyMiddleware(), PurchaseHandler(d.Service)) // Purchase endpoint

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(authn, middleware.AdminOnlyMiddleware())
	adminGroup.POST("/logout", AdminLogoutHandler(d.Issuer, d.Cache))        // Admin logout endpoint
	adminGroup.GET("/users", ListUsersHandler(d.Service))                    // List users endpoint
	adminGroup.POST("/users/:id/coins", AddCoinsHandler(d.Service))          // Add coins endpoint
	adminGroup.GET("/servers", ListServersHandler(d.Service))                // List servers endpoint
	adminGroup.POST("/servers", AddServerHandler(d.Service))                 // Add server endpoint
	adminGroup.DELETE("/servers/:id", DeleteServerHandler(d.Service))        // Delete server endpoint
	adminGroup.POST("/servers/:id/release", ReleaseServerHandler(d.Service)) // Force release endpoint
	adminGroup.GET("/transactions", ListTransactionsHandler(d.Service))      // Latest transactions endpoint
	adminGroup.GET("/settings", GetSettingsHandler(d.Service))               // Settings endpoint
	adminGroup.PUT("/settings", UpdateSettingsHandler(d.Service))            // Update settings endpoint

	// Metering trigger for external schedulers
	r.POST("/api/deduct_coins", authn, middleware.AdminOnlyMiddleware(), SweepHandler(d.Runner))
}
