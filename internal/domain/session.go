package domain

import "time"

// Session is the advisory per-user record kept in the TTL store. One per user;
// opening a new one replaces the previous payload entirely.
type Session struct {
	Name                 string    `json:"name"`
	Email                string    `json:"email"`
	Phone                string    `json:"phone,omitempty"`
	LoginTime            time.Time `json:"login_time"`
	IPAddress            string    `json:"ip_address,omitempty"`
	PendingTransactionID string    `json:"pending_transaction_id,omitempty"`
	ExpiresAt            time.Time `json:"expires_at"`
}

// HasPendingTransaction reports whether a transfer is awaiting OTP confirmation.
func (s Session) HasPendingTransaction() bool {
	return s.PendingTransactionID != ""
}
