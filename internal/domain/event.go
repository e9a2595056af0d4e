package domain

import "time"

// Security event types written to the audit trail.
const (
	EventLoginSuccess       = "LOGIN_SUCCESS"
	EventLoginFailed        = "LOGIN_FAILED"
	EventLoginRateLimited   = "LOGIN_RATE_LIMITED"
	EventLogoutSuccess      = "LOGOUT_SUCCESS"
	EventOTPGenerated       = "OTP_GENERATED"
	EventOTPRateLimited     = "OTP_RATE_LIMITED"
	EventOTPVerified        = "OTP_VERIFIED"
	EventOTPFailed          = "OTP_FAILED"
	EventTransactionSuccess = "TRANSACTION_SUCCESS"
)

// SecurityEvent is one row of the security audit trail.
type SecurityEvent struct {
	UserID    string
	EventType string
	Details   string
	IPAddress string
	Timestamp time.Time
}
