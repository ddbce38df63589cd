package main

import (
	"context"                           // context package is needed for Redis operations and shutdown
	"errors"                            // Error inspection
	"net/http"                          // HTTP server
	"os"                                // Signals
	"os/signal"                         // Signal notification
	"server_rental/internal/api"        // Custom package for API handlers
	"server_rental/internal/auth"       // Credential capabilities
	"server_rental/internal/config"     // Custom package for configuration
	"server_rental/internal/db"         // Record store
	"server_rental/internal/middleware" // Custom package for middleware
	"server_rental/internal/scheduler"  // Metering schedule
	"server_rental/internal/service"    // Rental core
	"server_rental/internal/utils"      // JWT and cache utilities
	"syscall"                           // Signal numbers
	"time"                              // Timeouts

	"github.com/gin-gonic/gin"       // Gin web framework
	"github.com/jonboulle/clockwork" // Clock
	"github.com/redis/go-redis/v9"   // Redis client
	"github.com/sirupsen/logrus"     // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg, err := config.LoadConfig() // Load configuration
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	// Connect to the record store and make sure the schema is current
	gdb, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("migration failed: %v", err)
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	cache := utils.NewCache(redisClient, cfg.CacheTTL)
	svc := service.New(gdb, auth.BcryptHasher{}, service.Options{
		Clock:         clockwork.NewRealClock(),
		Cache:         cache,
		StartingCoins: cfg.StartingCoins,
	})
	runner := scheduler.NewRunner(svc, scheduler.NewRedisLock(redisClient, scheduler.LockKey, cfg.SweepLockTTL), cfg.SweepLockTTL)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.New()        // Gin router instance, request logging is ours
	r.Use(gin.Recovery()) // Recover from panics

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Per-IP login throttle, idle client buckets are swept until shutdown
	loginLimit := middleware.NewRateLimiter(cfg.LoginRate, cfg.LoginBurst)
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	loginLimit.StartCleanup(cleanupCtx, time.Minute, middleware.DefaultLimiterIdle)

	api.RegisterRoutes(r, api.Deps{
		Service:    svc,
		Issuer:     utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Cache:      cache,
		Admin:      auth.StaticAdmin{Username: cfg.AdminUsername, Password: cfg.AdminPassword},
		Runner:     runner,
		LoginLimit: loginLimit,
	})

	// Start the metering schedule unless an external cron drives it
	var sched *scheduler.Scheduler
	if cfg.SweepSchedule != "" {
		sched, err = scheduler.New(cfg.SweepSchedule, runner)
		if err != nil {
			logrus.Fatalf("failed to schedule sweeps: %v", err)
		}
		sched.Start()
	}

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		logrus.Info("Server running on " + cfg.AppPort) // Log server start
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	// Wait for a termination signal and shut down gracefully
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down")
	stopCleanup() // Stop the rate limiter cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if sched != nil {
		sched.Stop(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("graceful shutdown failed: %v", err)
	}
	_ = redisClient.Close()
}
