package domain

import "time"

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Principal is the identity carried by a verified token.
type Principal struct {
	UserID    string
	Name      string
	Email     string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}
