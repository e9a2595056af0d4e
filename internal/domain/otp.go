package domain

import "time"

// OTPRecord is the serialized passcode bound to one pending transaction.
type OTPRecord struct {
	Code          string `json:"otp"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Attempts      int    `json:"attempts"`
}

// OTPIssue is returned to the orchestrator when a code is minted.
type OTPIssue struct {
	Code          string
	TransactionID string
	ExpiresAt     time.Time
}

// OTPOutcome is the terminal or intermediate state reached by a verification.
type OTPOutcome string

const (
	OTPVerified  OTPOutcome = "verified"
	OTPMismatch  OTPOutcome = "failed"
	OTPExhausted OTPOutcome = "exhausted"
	OTPExpired   OTPOutcome = "expired"
)

// Terminal reports whether the transfer must restart from initiation.
func (o OTPOutcome) Terminal() bool {
	return o == OTPExhausted || o == OTPExpired
}
