package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus tracks a money movement in the ledger.
type TransferStatus string

const (
	TransferPending TransferStatus = "PENDING"
	TransferSuccess TransferStatus = "SUCCESS"
	// TransferFailed marks a transfer whose passcode was never issued, whose
	// attempts ran out or whose debit was refused.
	TransferFailed TransferStatus = "FAILED"
	// TransferExpired marks a transfer whose passcode lapsed unconfirmed.
	TransferExpired TransferStatus = "EXPIRED"
)

// Beneficiary is a saved recipient addressed by nickname.
type Beneficiary struct {
	Nickname      string
	FullName      string
	AccountNumber string
	BankName      string
	IFSC          string
}

// Transfer is a fund transfer awaiting or past OTP confirmation.
type Transfer struct {
	TransactionID   string
	UserID          string
	FromAccount     string
	ToAccount       string
	RecipientName   string
	Amount          decimal.Decimal
	Status          TransferStatus
	ReferenceNumber string
	Channel         string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}
