package service

import (
	"context" // Request scoped contexts
	"errors"  // Error inspection
	"fmt"     // Error wrapping

	"server_rental/internal/domain"  // Domain models
	"server_rental/internal/metrics" // Prometheus collectors

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
)

// Deallocation reasons, used as log fields and metric labels
const (
	ReasonLogout   = "logout"
	ReasonEviction = "eviction"
	ReasonPurchase = "purchase"
	ReasonAdmin    = "admin"
	ReasonRelease  = "release"
)

// AllocateFree binds the user to the first unoccupied free-tier server in id order.
// It returns (nil, nil) when none is available, leaving state unchanged. A user
// that already holds a server keeps it and gets it back.
func (s *Service) AllocateFree(ctx context.Context, userID uint) (*domain.Server, error) {
	var (
		allocated *domain.Server // Server the user ends up on
		fresh     bool           // False when the user already held it
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		allocated, fresh, err = allocateFreeTx(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if fresh {
		s.recordAllocation(ctx, userID, allocated)
	}
	return allocated, nil
}

// RequestFree allocates a free server on the user's own request. Unlike
// AllocateFree it refuses a user that already holds a server or has no coins
// left, and reports an empty free pool as ErrServerUnavailable.
func (s *Service) RequestFree(ctx context.Context, userID uint) (*domain.Server, error) {
	var allocated *domain.Server
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID) // Current balance and allocation
		if err != nil {
			return err
		}
		switch {
		case user.HasServer():
			return domain.ErrAlreadyAllocated // Release or buy instead
		case user.Coins <= 0:
			return domain.ErrInsufficientFunds // Nothing left to meter
		}
		allocated, _, err = allocateFreeTx(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAllocation(ctx, userID, allocated)
	if allocated == nil {
		return nil, domain.ErrServerUnavailable
	}
	return allocated, nil
}

// recordAllocation logs and counts a fresh allocation attempt, srv nil when the pool was empty
func (s *Service) recordAllocation(ctx context.Context, userID uint, srv *domain.Server) {
	if srv == nil {
		metrics.AllocationsTotal.WithLabelValues("unavailable").Inc()
		logrus.WithField("user_id", userID).Info("No free server available")
		return
	}
	metrics.AllocationsTotal.WithLabelValues("allocated").Inc()
	s.invalidate(ctx, userID) // Inventory and the user's dashboard changed
	logrus.WithFields(logrus.Fields{
		"user_id":   userID,   // User ID
		"server_id": srv.ID,   // Allocated server
		"server":    srv.Name, // Server name
	}).Info("Free server allocated")
}

// allocateFreeTx reports fresh=false when the user already held a server.
func allocateFreeTx(tx *gorm.DB, userID uint) (srv *domain.Server, fresh bool, err error) {
	user, err := loadUser(tx, userID)
	if err != nil {
		return nil, false, err
	}
	if user.HasServer() {
		srv, err = loadServer(tx, *user.ServerID)
		return srv, false, err
	}

	var candidates []domain.Server // Free servers in claim order
	if err := tx.Where("server_type = ? AND is_occupied = ?", domain.TierFree, false).
		Order("id").
		Find(&candidates).Error; err != nil {
		return nil, false, fmt.Errorf("find free servers: %w", err)
	}
	for i := range candidates {
		srv = &candidates[i]
		claimed, err := claimServer(tx, srv.ID, userID) // Compare-and-set on is_occupied
		if err != nil {
			return nil, false, err
		}
		if !claimed {
			// Taken between the read and the claim, try the next one
			metrics.AllocationConflicts.Inc()
			continue
		}
		bound, err := bindUser(tx, userID, srv.ID) // Point the user at the claimed server
		if err != nil {
			return nil, false, err
		}
		if !bound {
			return nil, false, domain.ErrConflict
		}
		srv.IsOccupied = true
		srv.OccupiedBy = &user.ID
		return srv, true, nil
	}
	return nil, true, nil
}

// Deallocate releases the user's server, if any. Holding nothing is not an error.
func (s *Service) Deallocate(ctx context.Context, userID uint) error {
	_, err := s.deallocate(ctx, userID, ReasonLogout)
	return err
}

// Release gives up the user's server while the session stays open. It reports
// whether there was anything to release.
func (s *Service) Release(ctx context.Context, userID uint) (bool, error) {
	released, err := s.deallocate(ctx, userID, ReasonRelease)
	return released != nil, err
}

func (s *Service) deallocate(ctx context.Context, userID uint, reason string) (*uint, error) {
	var released *uint // Server given up, nil when the user held none
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		released, err = deallocateTx(tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	if released != nil {
		s.logRelease(ctx, userID, *released, reason)
	}
	return released, nil
}

// deallocateTx clears both sides of the user's occupancy and returns the
// released server id, nil when the user held nothing.
func deallocateTx(tx *gorm.DB, user *domain.User) (*uint, error) {
	if !user.HasServer() {
		return nil, nil
	}
	serverID := *user.ServerID
	// The server may already be gone; the user side is cleared regardless
	if err := tx.Model(&domain.Server{}).
		Where("id = ? AND occupied_by = ?", serverID, user.ID).
		Updates(map[string]any{"is_occupied": false, "occupied_by": nil}).Error; err != nil {
		return nil, fmt.Errorf("release server %d: %w", serverID, err)
	}
	if err := tx.Model(&domain.User{}).
		Where("id = ?", user.ID).
		Update("server_id", nil).Error; err != nil {
		return nil, fmt.Errorf("unbind user %d: %w", user.ID, err)
	}
	user.ServerID = nil
	return &serverID, nil
}

func (s *Service) logRelease(ctx context.Context, userID, serverID uint, reason string) {
	metrics.DeallocationsTotal.WithLabelValues(reason).Inc()
	s.invalidate(ctx, userID)
	logrus.WithFields(logrus.Fields{
		"user_id":   userID,   // User ID
		"server_id": serverID, // Released server
		"reason":    reason,   // What triggered the release
	}).Info("Server deallocated")
}

// ReleaseServer force-releases a server from whoever occupies it.
func (s *Service) ReleaseServer(ctx context.Context, serverID uint) error {
	var occupant *uint // Released user, nil when the server was idle
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		srv, err := loadServer(tx, serverID)
		if err != nil {
			return err
		}
		occupant = srv.OccupiedBy // Current occupant
		if occupant != nil {
			user, err := loadUser(tx, *occupant)
			switch {
			case err == nil && user.HasServer() && *user.ServerID == serverID:
				_, err = deallocateTx(tx, user)
				return err
			case err != nil && !errors.Is(err, domain.ErrUserNotFound):
				return err
			}
		}
		// Occupant missing or pointing elsewhere: reset the server on its own
		return tx.Model(&domain.Server{}).
			Where("id = ?", serverID).
			Updates(map[string]any{"is_occupied": false, "occupied_by": nil}).Error
	})
	if err != nil {
		return err
	}
	if occupant != nil {
		s.logRelease(ctx, *occupant, serverID, ReasonAdmin)
	} else {
		s.invalidate(ctx)
	}
	return nil
}
