package service

import (
	"context" // Request scoped contexts
	"errors"  // Error inspection
	"fmt"     // Error wrapping
	"strings" // Input trimming

	"server_rental/internal/domain" // Domain models

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
)

// Registration is the outcome of Register and Login: the account plus the
// server it ended up on, nil when none was free.
type Registration struct {
	User   *domain.User   `json:"user"`
	Server *domain.Server `json:"server"`
}

// Register creates an account with the starting balance and tries to put it
// on a free server. No free server is not an error.
func (s *Service) Register(ctx context.Context, username, password, confirm string) (*Registration, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.ErrMissingField
	}
	if password != confirm {
		return nil, domain.ErrPasswordMismatch
	}

	var exists int64 // Accounts already using the name
	if err := s.db.WithContext(ctx).Model(&domain.User{}).Where("username = ?", username).Count(&exists).Error; err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists > 0 {
		return nil, domain.ErrDuplicateUsername
	}

	hash, err := s.hasher.Hash(password) // Never store the plain password
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Username:  username,        // Trimmed username
		Password:  hash,            // bcrypt hash, never the plain password
		Coins:     s.startingCoins, // Starting balance
		CreatedAt: s.clock.Now(),   // Registration time
	}
	var srv *domain.Server // Free server picked up at registration, nil when none
	// The account and its first allocation commit together
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			// Lost a race with another registration of the same name
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrDuplicateUsername
			}
			return fmt.Errorf("create user: %w", err)
		}
		var err error
		srv, _, err = allocateFreeTx(tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,       // New user ID
		"username": user.Username, // Username
		"coins":    user.Coins,    // Starting balance
	}).Info("User registered")
	s.recordAllocation(ctx, user.ID, srv)
	if srv != nil {
		user.ServerID = &srv.ID
	}
	return &Registration{User: user, Server: srv}, nil
}

// Authenticate checks a username and password and returns the user id
func (s *Service) Authenticate(ctx context.Context, username, password string) (uint, error) {
	var user domain.User // Account being checked
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, domain.ErrInvalidCredentials
	}
	if err != nil {
		return 0, fmt.Errorf("load user: %w", err)
	}
	if !s.hasher.Verify(password, user.Password) { // Same error as an unknown user
		return 0, domain.ErrInvalidCredentials
	}
	return user.ID, nil
}

// Login authenticates and, for a user holding no server with coins left,
// allocates a free one.
func (s *Service) Login(ctx context.Context, username, password string) (*Registration, error) {
	userID, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	user, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	var srv *domain.Server // Server after login, nil when none
	if user.HasServer() {
		srv, err = s.CurrentAllocation(ctx, userID)
	} else if user.Coins > 0 { // Idle users with coins get a free server back
		srv, err = s.AllocateFree(ctx, userID)
		if srv != nil {
			user.ServerID = &srv.ID
		}
	}
	if err != nil {
		return nil, err
	}
	logrus.WithField("user_id", userID).Info("User logged in")
	return &Registration{User: user, Server: srv}, nil
}

// Logout releases the user's server
func (s *Service) Logout(ctx context.Context, userID uint) error {
	return s.Deallocate(ctx, userID)
}

// User returns one account
func (s *Service) User(ctx context.Context, userID uint) (*domain.User, error) {
	return loadUser(s.db.WithContext(ctx), userID)
}

// CurrentAllocation returns the server the user occupies, nil when none
func (s *Service) CurrentAllocation(ctx context.Context, userID uint) (*domain.Server, error) {
	user, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasServer() {
		return nil, nil
	}
	srv, err := loadServer(s.db.WithContext(ctx), *user.ServerID)
	if errors.Is(err, domain.ErrServerNotFound) {
		return nil, nil
	}
	return srv, err
}

// Account is the per-user part of a dashboard
type Account struct {
	User   *domain.User   `json:"user"`   // The signed in user
	Server *domain.Server `json:"server"` // Current allocation, nil when none
}

// Account returns the user together with their current server
func (s *Service) Account(ctx context.Context, userID uint) (*Account, error) {
	user, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	account := &Account{User: user}
	if !user.HasServer() {
		return account, nil
	}
	account.Server, err = loadServer(s.db.WithContext(ctx), *user.ServerID)
	if errors.Is(err, domain.ErrServerNotFound) {
		return account, nil // Deleted under the user, reported as none
	}
	return account, err
}

// Dashboard is everything a signed in user sees
type Dashboard struct {
	*Account                                              // User and server
	Settings  *domain.Settings `json:"settings"`          // Global settings
	Available []domain.Server  `json:"available_servers"` // Purchasable inventory
}

// Dashboard assembles the user's view
func (s *Service) Dashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	account, err := s.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}
	available, err := s.AvailableServers(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Account: account, Settings: settings, Available: available}, nil
}
