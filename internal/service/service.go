// Package service implements the server rental core: free server allocation,
// coin metering, purchases, accounts and the administrator operations.
//
// Every multi-step mutation commits in one database transaction. Occupancy is
// claimed with a conditional update on is_occupied, so two callers racing for
// the same server can never both win it.
package service

import (
	"context"                       // Request scoped contexts
	"errors"                        // Error inspection
	"fmt"                           // Error wrapping
	"server_rental/internal/auth"   // Credential capabilities
	"server_rental/internal/domain" // Domain models
	"server_rental/internal/utils"  // Read cache

	"github.com/jonboulle/clockwork" // Injectable clock
	"github.com/sirupsen/logrus"     // Structured logging
	"gorm.io/gorm"                   // GORM ORM library
)

// Options configures a Service
type Options struct {
	Clock         clockwork.Clock // Record timestamps, real clock when nil
	Cache         *utils.Cache    // Read cache invalidated on writes, may be nil
	StartingCoins int             // Balance granted at registration
}

// Service is the rental core over a GORM record store
type Service struct {
	db            *gorm.DB
	hasher        auth.PasswordHasher
	clock         clockwork.Clock
	cache         *utils.Cache
	startingCoins int
}

// New creates a Service
func New(db *gorm.DB, hasher auth.PasswordHasher, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		db:            db,
		hasher:        hasher,
		clock:         clock,
		cache:         opts.Cache,
		startingCoins: opts.StartingCoins,
	}
}

// invalidate drops cached reads touched by a write: the shared inventory and
// settings entries plus the given users' own entries. Cache failures are logged,
// never returned.
func (s *Service) invalidate(ctx context.Context, userIDs ...uint) {
	keys := []string{utils.ServersKey, utils.StatsKey, utils.SettingsKey} // Shared by every dashboard
	for _, id := range userIDs {
		keys = append(keys, utils.DashboardKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logrus.WithFields(logrus.Fields{
			"keys":  keys,
			"error": err.Error(),
		}).Warn("Cache invalidation failed")
	}
}

// loadUser reads a user inside tx
func loadUser(tx *gorm.DB, userID uint) (*domain.User, error) {
	var user domain.User
	if err := tx.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return &user, nil
}

// loadServer reads a server inside tx
func loadServer(tx *gorm.DB, serverID uint) (*domain.Server, error) {
	var server domain.Server
	if err := tx.First(&server, serverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrServerNotFound
		}
		return nil, fmt.Errorf("load server %d: %w", serverID, err)
	}
	return &server, nil
}

// claimServer marks a server occupied by userID only if it is still free.
// It reports false when another writer got there first.
func claimServer(tx *gorm.DB, serverID, userID uint) (bool, error) {
	res := tx.Model(&domain.Server{}).
		Where("id = ? AND is_occupied = ?", serverID, false).
		Updates(map[string]any{"is_occupied": true, "occupied_by": userID})
	if res.Error != nil {
		return false, fmt.Errorf("claim server %d: %w", serverID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// bindUser points a server-less user at serverID. It reports false when the
// user picked up a server concurrently.
func bindUser(tx *gorm.DB, userID, serverID uint) (bool, error) {
	res := tx.Model(&domain.User{}).
		Where("id = ? AND server_id IS NULL", userID).
		Update("server_id", serverID)
	if res.Error != nil {
		return false, fmt.Errorf("bind user %d: %w", userID, res.Error)
	}
	return res.RowsAffected == 1, nil
}
