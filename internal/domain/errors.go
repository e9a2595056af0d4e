package domain

import "errors"

var (
	// ErrStoreUnavailable signals the shared TTL store could not be reached.
	ErrStoreUnavailable = errors.New("authz: store unavailable")
	// ErrSessionNotFound means no active session exists for the user.
	ErrSessionNotFound = errors.New("authz: session not found")
	// ErrSessionUnavailable means the session could not be read; callers must force re-authentication.
	ErrSessionUnavailable = errors.New("authz: session unavailable")
	// ErrOTPNotFound covers both expired and never-issued passcodes.
	ErrOTPNotFound = errors.New("authz: otp expired or not found")
	// ErrOTPExhausted means the attempt budget for a passcode is spent.
	ErrOTPExhausted = errors.New("authz: maximum otp attempts exceeded")
	// ErrRateLimited means the action exceeded its window budget.
	ErrRateLimited = errors.New("authz: rate limited")
	// ErrTokenRevoked means the presented token is blacklisted.
	ErrTokenRevoked = errors.New("authz: token revoked")
	// ErrInvalidToken covers signature, expiry and type failures.
	ErrInvalidToken = errors.New("authz: invalid token")
	// ErrInvalidCredentials is returned for unknown users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("authz: invalid credentials")
	// ErrUserNotFound signals a missing or inactive user.
	ErrUserNotFound = errors.New("ledger: user not found")
	// ErrBeneficiaryNotFound signals the recipient nickname did not resolve.
	ErrBeneficiaryNotFound = errors.New("ledger: beneficiary not found")
	// ErrAccountNotFound signals the user has no primary account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrInsufficientFunds signals the primary account cannot cover the amount.
	ErrInsufficientFunds = errors.New("ledger: insufficient balance")
	// ErrTransferNotFound signals no pending transfer matches the transaction id.
	ErrTransferNotFound = errors.New("ledger: transfer not found")
)
