package domain

import "errors" // Sentinel errors

// Expected, recoverable outcomes. Callers compare with errors.Is.
var (
	ErrDuplicateUsername        = errors.New("username already exists")
	ErrMissingField             = errors.New("required field is missing")
	ErrPasswordMismatch         = errors.New("passwords do not match")
	ErrInvalidCredentials       = errors.New("invalid username or password")
	ErrServerUnavailable        = errors.New("server not available")
	ErrFreeServerNotPurchasable = errors.New("free servers cannot be purchased")
	ErrInsufficientFunds        = errors.New("insufficient coins")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrUserNotFound             = errors.New("user not found")
	ErrServerNotFound           = errors.New("server not found")
	ErrInvalidTier              = errors.New("invalid server type")
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrInvalidRate              = errors.New("coin deduction rate must be positive")
	ErrConflict                 = errors.New("concurrent update, try again")
	ErrAlreadyAllocated         = errors.New("user already holds a server")
)

// codes maps every sentinel to a stable machine readable code
var codes = []struct {
	err  error
	code string
}{
	{ErrDuplicateUsername, "duplicate_username"},
	{ErrMissingField, "missing_field"},
	{ErrPasswordMismatch, "password_mismatch"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrServerUnavailable, "server_unavailable"},
	{ErrFreeServerNotPurchasable, "free_server_not_purchasable"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrUnauthorized, "unauthorized"},
	{ErrUserNotFound, "user_not_found"},
	{ErrServerNotFound, "server_not_found"},
	{ErrInvalidTier, "invalid_tier"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidRate, "invalid_rate"},
	{ErrConflict, "conflict"},
	{ErrAlreadyAllocated, "already_allocated"},
}

// Code returns the stable code of an expected error, or "internal" for anything else.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// IsExpected reports whether err belongs to the recoverable taxonomy.
func IsExpected(err error) bool {
	return err != nil && Code(err) != "internal"
}
