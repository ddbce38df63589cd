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

// Eviction records a user removed from a server for running out of coins
type Eviction struct {
	UserID   uint   `json:"user_id"`   // Evicted user
	Username string `json:"username"`  // For the notice
	ServerID uint   `json:"server_id"` // Released server
	Coins    int    `json:"coins"`     // Balance at eviction
}

// Notice is the human readable message shown for an eviction
func (e Eviction) Notice() string {
	return fmt.Sprintf("User %s ran out of coins and was logged out.", e.Username)
}

// SweepReport summarizes one metering sweep
type SweepReport struct {
	Rate     int        `json:"coin_deduction_rate"` // Rate applied to this sweep
	Deducted int        `json:"deducted"`            // Users debited
	Coins    int        `json:"coins"`               // Coins removed in total
	Evicted  []Eviction `json:"evicted"`             // Users removed from their servers
}

// Sweep debits coin_deduction_rate from every user holding a server. A user
// whose balance is already zero or below is deallocated instead. The balance
// check happens before the subtraction, so a user may go negative once and is
// evicted on the following sweep. Each user is committed on its own.
func (s *Service) Sweep(ctx context.Context) (*SweepReport, error) {
	start := s.clock.Now() // Sweep duration start

	settings, err := s.Settings(ctx) // Read once per sweep
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	report := &SweepReport{Rate: settings.CoinDeductionRate, Evicted: []Eviction{}}

	var ids []uint // Users holding a server
	if err := s.db.WithContext(ctx).Model(&domain.User{}).
		Where("server_id IS NOT NULL").
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		metrics.SweepsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list occupied users: %w", err)
	}

	for _, id := range ids {
		eviction, debited, err := s.meterUser(ctx, id, settings.CoinDeductionRate)
		if err != nil {
			metrics.SweepsTotal.WithLabelValues("error").Inc()
			return report, fmt.Errorf("meter user %d: %w", id, err)
		}
		switch {
		case eviction != nil:
			report.Evicted = append(report.Evicted, *eviction)
			metrics.EvictionsTotal.Inc()
			s.logRelease(ctx, eviction.UserID, eviction.ServerID, ReasonEviction)
			logrus.WithFields(logrus.Fields{
				"user_id":   eviction.UserID,   // Evicted user
				"server_id": eviction.ServerID, // Released server
				"coins":     eviction.Coins,    // Balance at eviction
			}).Warn(eviction.Notice())
		case debited:
			report.Deducted++
			report.Coins += settings.CoinDeductionRate
			metrics.CoinsDeductedTotal.Add(float64(settings.CoinDeductionRate))
			s.invalidate(ctx, id)
		}
	}

	metrics.SweepsTotal.WithLabelValues("ok").Inc()
	metrics.SweepDuration.Observe(s.clock.Since(start).Seconds())
	logrus.WithFields(logrus.Fields{
		"rate":     report.Rate,         // Coins per user
		"deducted": report.Deducted,     // Users debited
		"coins":    report.Coins,        // Coins removed
		"evicted":  len(report.Evicted), // Users evicted
	}).Info("Metering sweep completed")
	return report, nil
}

// meterUser applies one sweep step to a single user atomically.
func (s *Service) meterUser(ctx context.Context, userID uint, rate int) (*Eviction, bool, error) {
	var (
		eviction *Eviction // Set when the user ran dry
		debited  bool      // Set when coins were taken
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		// Released since the sweep listed it
		if !user.HasServer() {
			return nil
		}
		serverID := *user.ServerID // Server being metered

		if user.Coins > 0 { // Checked before subtracting, no clamp
			res := tx.Model(&domain.User{}).
				Where("id = ? AND server_id = ?", user.ID, serverID).
				Update("coins", gorm.Expr("coins - ?", rate))
			if res.Error != nil {
				return fmt.Errorf("debit: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return nil
			}
			entry := domain.Transaction{
				UserID:    user.ID,            // Debited user
				Amount:    rate,               // Coins taken
				ServerID:  &serverID,          // Metered server
				Kind:      domain.TxDeduction, // Deduction entry
				CreatedAt: s.clock.Now(),      // Sweep time
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("record deduction: %w", err)
			}
			debited = true
			return nil
		}

		if _, err := deallocateTx(tx, user); err != nil {
			return err
		}
		eviction = &Eviction{
			UserID:   user.ID,       // Evicted user
			Username: user.Username, // For the notice
			ServerID: serverID,      // Released server
			Coins:    user.Coins,    // Balance at eviction
		}
		return nil
	})
	// A user deleted mid-sweep is skipped rather than failing the whole pass
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, false, nil
	}
	return eviction, debited, err
}
