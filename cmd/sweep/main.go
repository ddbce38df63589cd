// Command sweep runs one metering sweep and exits, for deployments where an
// external cron drives metering instead of the server's own schedule.
package main

import (
	"context"                          // Sweep context
	"server_rental/internal/auth"      // Credential capabilities
	"server_rental/internal/config"    // Environment configuration
	"server_rental/internal/db"        // Record store
	"server_rental/internal/scheduler" // Sweep runner
	"server_rental/internal/service"   // Rental core
	"server_rental/internal/utils"     // Read cache

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Structured logging
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	gdb, err := db.Open(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	ctx := context.Background()
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	svc := service.New(gdb, auth.BcryptHasher{}, service.Options{
		Cache:         utils.NewCache(redisClient, cfg.CacheTTL),
		StartingCoins: cfg.StartingCoins,
	})
	runner := scheduler.NewRunner(svc, scheduler.NewRedisLock(redisClient, scheduler.LockKey, cfg.SweepLockTTL), cfg.SweepLockTTL)

	report, err := runner.RunOnce(ctx)
	if err != nil {
		logrus.Fatalf("sweep failed: %v", err)
	}
	if report == nil {
		logrus.Info("Another instance is sweeping, nothing to do")
		return
	}
	for _, e := range report.Evicted {
		logrus.Warn(e.Notice())
	}
	logrus.WithFields(logrus.Fields{
		"deducted": report.Deducted,
		"coins":    report.Coins,
		"evicted":  len(report.Evicted),
	}).Info("Sweep finished")
}
