package utils

import (
	"time" // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
	"github.com/google/uuid"       // Token ids
)

// JWT Claims
type Claims struct {
	UserID               uint `json:"user_id"`         // Custom claim for user ID, zero for the administrator
	Admin                bool `json:"admin,omitempty"` // Set on administrator sessions
	jwt.RegisteredClaims      // Standard JWT claims
}

// TokenIssuer signs and parses session tokens
type TokenIssuer struct {
	secret []byte        // HMAC key
	ttl    time.Duration // Token lifetime
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. A zero ttl falls back to 24 hours.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueUser creates a token for a registered user
func (t *TokenIssuer) IssueUser(userID uint) (string, error) {
	return t.sign(Claims{UserID: userID})
}

// IssueAdmin creates a token for the administrator
func (t *TokenIssuer) IssueAdmin(username string) (string, error) {
	c := Claims{Admin: true}
	c.Subject = username
	return t.sign(c)
}

func (t *TokenIssuer) sign(claims Claims) (string, error) {
	now := t.now()
	// Set standard claims
	claims.RegisteredClaims.ID = uuid.NewString()                          // Token id, used for revocation
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl)) // Token expiry
	claims.RegisteredClaims.IssuedAt = jwt.NewNumericDate(now)             // Issued at current time
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)             // Create token with claims
	return token.SignedString(t.secret)                                    // Sign the token with the secret
}

// Parse parses and validates a token string
func (t *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return t.secret, nil // Return the secret key for validation
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	// Check for parsing errors
	if err != nil {
		return nil, err // Return error if parsing fails
	}
	// Validate token and extract claims
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil // Return claims if valid
	}
	// Return error if token is invalid
	return nil, jwt.ErrSignatureInvalid
}

// Remaining returns how long the token stays valid
func (t *TokenIssuer) Remaining(c *Claims) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(t.now())
}
