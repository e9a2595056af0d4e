package repository

import (
	"context"

	"github.com/smallbiznis/valora-txauth/internal/domain"
)

// UserRepository exposes persistence for bank customers.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID string) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
}

// BankingRepository is the ledger collaborator of the transfer flow.
type BankingRepository interface {
	// FindBeneficiary resolves an active beneficiary by case-insensitive nickname.
	FindBeneficiary(ctx context.Context, userID, nickname string) (domain.Beneficiary, error)
	ListBeneficiaryNicknames(ctx context.Context, userID string) ([]string, error)
	PrimaryAccount(ctx context.Context, userID string) (domain.Account, error)
	CreateAccount(ctx context.Context, account domain.Account) error
	CreateBeneficiary(ctx context.Context, userID string, b domain.Beneficiary) error
	CreatePendingTransfer(ctx context.Context, transfer domain.Transfer) error
	// FinalizeTransfer debits the primary account and marks the transfer SUCCESS.
	FinalizeTransfer(ctx context.Context, userID, transactionID, reference string) (domain.Transfer, error)
	// FailTransfer moves a transfer that is still PENDING to a terminal status.
	// Transfers in any other state are left alone.
	FailTransfer(ctx context.Context, userID, transactionID string, status domain.TransferStatus) error
}

// SecurityEventRepository appends to and reads the security audit trail.
type SecurityEventRepository interface {
	Record(ctx context.Context, event domain.SecurityEvent) error
	// ListByUser returns the user's most recent events, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.SecurityEvent, error)
}
