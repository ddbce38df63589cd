package api

import (
	"context"  // Request scoped contexts
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"strconv"  // Path parameter parsing

	"server_rental/internal/domain" // Error taxonomy
	"server_rental/internal/utils"  // Read cache

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Structured logging
)

// statusOf maps an expected error to its HTTP status
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrPasswordMismatch),
		errors.Is(err, domain.ErrInvalidTier),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidRate),
		errors.Is(err, domain.ErrFreeServerNotPurchasable):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrServerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateUsername),
		errors.Is(err, domain.ErrServerUnavailable),
		errors.Is(err, domain.ErrAlreadyAllocated),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the structured failure outcome. Unexpected errors are logged and hidden.
func fail(c *gin.Context, err error) {
	status := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"request_id": c.GetString("requestID"), // Request id from the logger middleware
			"path":       c.Request.URL.Path,       // Request path
			"error":      err.Error(),              // Error message
		}).Error("Request failed")
		message = "Internal error"
	}
	c.JSON(status, gin.H{"success": false, "error": domain.Code(err), "message": message})
}

// badRequest reports an unparseable request body or parameter
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid_request", "message": message})
}

// idParam parses a positive numeric path parameter
func idParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return uint(v), true
}

// cachedRead serves key from the cache, falling back to load and caching what it returns.
// The bool reports a cache hit. Cache failures only cost a reload.
func cachedRead[T any](ctx context.Context, cache *utils.Cache, key string, load func(context.Context) (T, error)) (T, bool, error) {
	var v T // Decoded cache entry or fresh value
	if found, err := cache.Get(ctx, key, &v); err == nil && found {
		return v, true, nil
	}
	v, err := load(ctx) // Not cached, read the store
	if err != nil {
		return v, false, err
	}
	_ = cache.Set(ctx, key, v) // Cache for the next reader
	return v, false, nil
}
