// Package auth holds the credential capabilities the service depends on:
// password hashing for user accounts and the administrator check.
package auth

import (
	"crypto/subtle" // Constant time comparison

	"golang.org/x/crypto/bcrypt" // Password hashing
)

// PasswordHasher hashes and verifies user passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// BcryptHasher implements PasswordHasher with bcrypt
type BcryptHasher struct {
	Cost int // bcrypt cost, bcrypt.DefaultCost when zero
}

// Hash returns the bcrypt hash of password
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches hash
func (h BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// AdminAuthenticator decides whether a credential pair belongs to the administrator.
// It is kept behind an interface so a real credential store can replace the static pair.
type AdminAuthenticator interface {
	Authenticate(username, password string) bool
}

// StaticAdmin compares against one configured username and password
type StaticAdmin struct {
	Username string
	Password string
}

// Authenticate compares both fields in constant time. An unconfigured
// password never matches.
func (a StaticAdmin) Authenticate(username, password string) bool {
	if a.Password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.Username))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.Password))
	return userOK&passOK == 1
}
