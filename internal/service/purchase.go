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

// Purchase exchanges coins for a paid server. Preconditions are checked in
// order: the server must exist and be free, must not be free-tier, and the
// user must afford its price. On success any server the user held is released,
// the price is debited, the server is claimed and a purchase entry is written,
// all in one commit.
func (s *Service) Purchase(ctx context.Context, userID, serverID uint) (*domain.Server, error) {
	var (
		bought   *domain.Server // Server the user ends up on
		released *uint          // Server given up for it, nil when none
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		srv, err := loadServer(tx, serverID) // Target server
		if errors.Is(err, domain.ErrServerNotFound) {
			return domain.ErrServerUnavailable
		}
		if err != nil {
			return err
		}
		if srv.IsOccupied {
			return domain.ErrServerUnavailable
		}
		if srv.Tier == domain.TierFree {
			return domain.ErrFreeServerNotPurchasable
		}
		user, err := loadUser(tx, userID) // Buyer
		if err != nil {
			return err
		}
		if user.Coins < srv.Price { // Equal is enough
			return domain.ErrInsufficientFunds
		}

		if released, err = deallocateTx(tx, user); err != nil { // Give up the current server
			return err
		}

		// Conditional debit so a concurrent spend cannot push the balance under the price
		res := tx.Model(&domain.User{}).
			Where("id = ? AND coins >= ?", user.ID, srv.Price).
			Update("coins", gorm.Expr("coins - ?", srv.Price))
		if res.Error != nil {
			return fmt.Errorf("debit: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrInsufficientFunds
		}

		claimed, err := claimServer(tx, srv.ID, user.ID)
		if err != nil {
			return err
		}
		if !claimed {
			metrics.AllocationConflicts.Inc()
			return domain.ErrServerUnavailable
		}
		bound, err := bindUser(tx, user.ID, srv.ID)
		if err != nil {
			return err
		}
		if !bound {
			return domain.ErrConflict
		}

		entry := domain.Transaction{
			UserID:    user.ID,           // Buyer
			Amount:    srv.Price,         // Coins spent
			ServerID:  &srv.ID,           // Bought server
			Kind:      domain.TxPurchase, // Purchase entry
			CreatedAt: s.clock.Now(),     // Purchase time
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("record purchase: %w", err)
		}

		srv.IsOccupied = true
		srv.OccupiedBy = &user.ID
		bought = srv
		return nil
	})
	if err != nil {
		metrics.PurchasesTotal.WithLabelValues(domain.Code(err)).Inc()
		fields := logrus.Fields{
			"user_id":   userID,      // Buyer
			"server_id": serverID,    // Requested server
			"error":     err.Error(), // Rejection or failure
		}
		if domain.IsExpected(err) {
			logrus.WithFields(fields).Info("Purchase rejected")
		} else {
			logrus.WithFields(fields).Error("Purchase failed")
		}
		return nil, err
	}

	if released != nil {
		s.logRelease(ctx, userID, *released, ReasonPurchase)
	}
	metrics.PurchasesTotal.WithLabelValues("ok").Inc()
	metrics.CoinsSpentTotal.Add(float64(bought.Price))
	s.invalidate(ctx, userID) // Inventory and the buyer's dashboard changed
	logrus.WithFields(logrus.Fields{
		"user_id":   userID,       // Buyer
		"server_id": bought.ID,    // Bought server
		"tier":      bought.Tier,  // Server tier
		"amount":    bought.Price, // Coins spent
	}).Info("Server purchased")
	return bought, nil
}
