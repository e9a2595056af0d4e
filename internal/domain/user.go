package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents an account holder that can authenticate.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// Account is the user's primary bank account as seen by the ledger.
type Account struct {
	UserID        string
	AccountNumber string
	AccountType   string
	Balance       decimal.Decimal
	Currency      string
}

// Covers reports whether the balance can fund amount.
func (a Account) Covers(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}
