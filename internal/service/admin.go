package service

import (
	"context" // Request scoped contexts
	"fmt"     // Error wrapping
	"strings" // Input trimming

	"server_rental/internal/domain"  // Domain models
	"server_rental/internal/metrics" // Prometheus collectors

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
)

// AddServer adds a server to the inventory. Its price follows from the tier.
func (s *Service) AddServer(ctx context.Context, name, url, tier string) (*domain.Server, error) {
	name, url = strings.TrimSpace(name), strings.TrimSpace(url)
	if name == "" || url == "" || tier == "" {
		return nil, domain.ErrMissingField
	}
	t, err := domain.ParseTier(tier) // free, paid_5, paid_10 or paid_15
	if err != nil {
		return nil, err
	}
	srv := &domain.Server{
		Name:      name,          // Display name
		URL:       url,           // Connection address
		Tier:      t,             // Server tier
		Price:     t.Price(),     // Derived from the tier
		CreatedAt: s.clock.Now(), // Creation time
	}
	if err := s.db.WithContext(ctx).Create(srv).Error; err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	s.invalidate(ctx) // Inventory changed
	logrus.WithFields(logrus.Fields{
		"server_id": srv.ID,    // New server ID
		"name":      srv.Name,  // Display name
		"tier":      srv.Tier,  // Server tier
		"price":     srv.Price, // Price in coins
	}).Info("Server added")
	return srv, nil
}

// DeleteServer removes a server and clears the reference of every user on it.
// Balances are untouched. It returns the affected user ids.
func (s *Service) DeleteServer(ctx context.Context, serverID uint) ([]uint, error) {
	var occupants []uint // Users pointing at the server, normally at most one
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadServer(tx, serverID); err != nil {
			return err
		}
		if err := tx.Model(&domain.User{}).Where("server_id = ?", serverID).Pluck("id", &occupants).Error; err != nil {
			return fmt.Errorf("list occupants: %w", err)
		}
		if err := tx.Model(&domain.User{}).Where("server_id = ?", serverID).Update("server_id", nil).Error; err != nil {
			return fmt.Errorf("unbind occupants: %w", err)
		}
		if err := tx.Delete(&domain.Server{}, serverID).Error; err != nil {
			return fmt.Errorf("delete server: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for range occupants {
		metrics.DeallocationsTotal.WithLabelValues(ReasonAdmin).Inc()
	}
	s.invalidate(ctx, occupants...) // Inventory and every occupant's dashboard
	logrus.WithFields(logrus.Fields{
		"server_id": serverID,  // Deleted server
		"occupants": occupants, // Users left without a server
	}).Info("Server deleted")
	return occupants, nil
}

// AddCoins credits a user. Only positive amounts take effect.
func (s *Service) AddCoins(ctx context.Context, userID uint, amount int) (*domain.User, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	var user *domain.User // Credited user
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).Where("id = ?", userID).Update("coins", gorm.Expr("coins + ?", amount)) // Atomic credit
		if res.Error != nil {
			return fmt.Errorf("credit user %d: %w", userID, res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrUserNotFound
		}
		var err error
		user, err = loadUser(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID) // Balance shows on the dashboard
	logrus.WithFields(logrus.Fields{
		"user_id": userID,     // Credited user
		"amount":  amount,     // Coins added
		"coins":   user.Coins, // New balance
	}).Info("Coins added")
	return user, nil
}

// ListUsers returns every account in id order
func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ListServers returns the whole inventory in id order
func (s *Service) ListServers(ctx context.Context) ([]domain.Server, error) {
	var servers []domain.Server
	if err := s.db.WithContext(ctx).Order("id").Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}
	return servers, nil
}

// AvailableServers returns unoccupied servers, cheapest first
func (s *Service) AvailableServers(ctx context.Context) ([]domain.Server, error) {
	var servers []domain.Server
	if err := s.db.WithContext(ctx).
		Where("is_occupied = ?", false).
		Order("price, id").
		Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("list available servers: %w", err)
	}
	return servers, nil
}

// RecentTransactions returns the newest ledger entries, newest first
func (s *Service) RecentTransactions(ctx context.Context) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	if err := s.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(domain.RecentTransactionsLimit).
		Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Stats counts the inventory
type Stats struct {
	Total     int64 `json:"total"`     // Every server
	Available int64 `json:"available"` // Unoccupied servers
	Occupied  int64 `json:"occupied"`  // Servers in use
}

// Stats returns inventory counters and refreshes the matching gauges
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats // Counters to fill
	if err := s.db.WithContext(ctx).Model(&domain.Server{}).Count(&st.Total).Error; err != nil {
		return nil, fmt.Errorf("count servers: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&domain.Server{}).Where("is_occupied = ?", true).Count(&st.Occupied).Error; err != nil {
		return nil, fmt.Errorf("count occupied servers: %w", err)
	}
	st.Available = st.Total - st.Occupied
	metrics.ServersTotal.Set(float64(st.Total))       // Inventory gauge
	metrics.ServersOccupied.Set(float64(st.Occupied)) // Occupancy gauge
	return &st, nil
}
