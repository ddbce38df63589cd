package service

import (
	"context" // Request scoped contexts
	"fmt"     // Error wrapping
	"strings" // Input trimming

	"server_rental/internal/domain" // Domain models

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
	"gorm.io/gorm/clause"        // Upsert clauses
)

// Settings returns the global settings row, creating it with defaults on first access.
func (s *Service) Settings(ctx context.Context) (*domain.Settings, error) {
	return settingsTx(s.db.WithContext(ctx))
}

func settingsTx(tx *gorm.DB) (*domain.Settings, error) {
	st := domain.DefaultSettings() // Seed values for a fresh store
	// Concurrent first accesses both insert; the loser's insert is ignored
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&st).Error; err != nil {
		return nil, fmt.Errorf("ensure settings: %w", err)
	}
	if err := tx.First(&st, domain.SettingsID).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return &st, nil
}

// UpdateSettings replaces the cosmetic fields and the deduction rate.
func (s *Service) UpdateSettings(ctx context.Context, logoURL, songURL string, rate int) (*domain.Settings, error) {
	if rate <= 0 {
		return nil, domain.ErrInvalidRate
	}
	var out *domain.Settings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := settingsTx(tx)
		if err != nil {
			return err
		}
		st.LogoURL = strings.TrimSpace(logoURL)           // Cosmetic
		st.BackgroundSongURL = strings.TrimSpace(songURL) // Cosmetic
		st.CoinDeductionRate = rate                       // Applied from the next sweep
		if err := tx.Save(st).Error; err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx) // Every dashboard reads the shared settings entry
	logrus.WithFields(logrus.Fields{
		"logo_url":            out.LogoURL,           // New logo
		"background_song_url": out.BackgroundSongURL, // New background song
		"coin_deduction_rate": out.CoinDeductionRate, // Coins per sweep
	}).Info("Settings updated")
	return out, nil
}
