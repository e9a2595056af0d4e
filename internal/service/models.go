package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// LoginResponse bundles tokens with the user profile.
type LoginResponse struct {
	TokenResponse
	User UserViewModel `json:"user"`
	// SessionActive is false when the session store could not be written.
	SessionActive bool `json:"session_active"`
}

// LogoutResponse reports what logout managed to invalidate.
type LogoutResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	TokensRevoked bool   `json:"tokens_revoked"`
	SessionClosed bool   `json:"session_closed"`
}

// UserViewModel represents lightweight user profile data returned to clients.
type UserViewModel struct {
	ID      string            `json:"user_id"`
	Name    string            `json:"name,omitempty"`
	Email   string            `json:"email,omitempty"`
	Phone   string            `json:"phone,omitempty"`
	Account *AccountViewModel `json:"account,omitempty"`
}

// AccountViewModel is the primary account summary.
type AccountViewModel struct {
	AccountNumber string          `json:"account_number"`
	AccountType   string          `json:"account_type"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
}

// MeResponse describes the authenticated caller.
type MeResponse struct {
	UserViewModel
	SessionActive        bool   `json:"session_active"`
	PendingTransactionID string `json:"pending_transaction_id,omitempty"`
}

// SecurityEventViewModel is one entry of the caller's audit trail.
type SecurityEventViewModel struct {
	EventType string    `json:"event_type"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	Timestamp time.Time `json:"timestamp"`
}

// SecurityEventsResponse lists the caller's recent security events.
type SecurityEventsResponse struct {
	Success bool                     `json:"success"`
	UserID  string                   `json:"user_id"`
	Events  []SecurityEventViewModel `json:"events"`
	Count   int                      `json:"count"`
}

// Transfer result statuses.
const (
	StatusPending       = "pending"
	StatusVerified      = "verified"
	StatusFailed        = "failed"
	StatusExhausted     = "exhausted"
	StatusExpired       = "expired"
	StatusNoTransaction = "no_transaction"
	StatusNoCode        = "no_code"
)

// TransferResult is returned by every transfer operation.
type TransferResult struct {
	Success          bool             `json:"success"`
	Message          string           `json:"message"`
	Status           string           `json:"status"`
	AttemptsLeft     *int             `json:"attempts_left,omitempty"`
	TransactionID    string           `json:"transaction_id,omitempty"`
	ReferenceNumber  string           `json:"reference_number,omitempty"`
	OTP              string           `json:"otp,omitempty"`
	Recipient        string           `json:"recipient,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	ExpiresInSeconds int              `json:"expires_in_seconds,omitempty"`
	Prompt           string           `json:"prompt,omitempty"`
}

func intPtr(v int) *int {
	return &v
}
