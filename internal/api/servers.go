package api

import (
	"net/http" // HTTP status codes

	"server_rental/internal/middleware" // Context keys
	"server_rental/internal/service"    // Rental core
	"server_rental/internal/utils"      // Cache utilities

	"github.com/gin-gonic/gin" // Gin web framework
)

// AvailableServersHandler lists unoccupied servers, cheapest first
func AvailableServersHandler(svc *service.Service, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		servers, hit, err := cachedRead(c.Request.Context(), cache, utils.ServersKey, svc.AvailableServers)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "servers": servers, "cached": hit})
	}
}

// StatsHandler returns inventory counters
func StatsHandler(svc *service.Service, cache *utils.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, hit, err := cachedRead(c.Request.Context(), cache, utils.StatsKey, svc.Stats)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats, "cached": hit})
	}
}

// CurrentServerHandler returns the caller's server, null when none
func CurrentServerHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		srv, err := svc.CurrentAllocation(c.Request.Context(), c.GetUint(middleware.UserIDKey))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "server": srv})
	}
}

// RequestServerHandler allocates a free server to a caller that holds none and still has coins
func RequestServerHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(middleware.UserIDKey) // Get userID from context
		srv, err := svc.RequestFree(c.Request.Context(), userID)
		if err != nil {
			fail(c, err) // Already allocated, out of coins or no free server
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Allocated to " + srv.Name, "server": srv})
	}
}

// ReleaseOwnServerHandler gives up the caller's server without ending the session
func ReleaseOwnServerHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(middleware.UserIDKey) // Get userID from context
		released, err := svc.Release(c.Request.Context(), userID)
		if err != nil {
			fail(c, err)
			return
		}
		message := "Server released" // Response message
		if !released {
			message = "No server to release"
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": message, "released": released})
	}
}

// PurchaseHandler buys a paid server for the caller
func PurchaseHandler(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetUint(middleware.UserIDKey) // Get userID from context
		serverID, ok := idParam(c, "id")          // Target server
		if !ok {
			return
		}
		srv, err := svc.Purchase(c.Request.Context(), userID, serverID)
		if err != nil {
			fail(c, err)
			return
		}
		// Return success response
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Successfully purchased " + srv.Name, "server": srv})
	}
}
