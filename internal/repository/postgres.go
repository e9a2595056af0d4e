package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/smallbiznis/valora-txauth/internal/domain"
)

// systemUserID owns events whose subject is not a known user.
const systemUserID = "system"

type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const selectUserSQL = `SELECT user_id, name, email, COALESCE(phone, ''), password_hash, is_active, created_at FROM users`

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
	)
	return user, err
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, selectUserSQL+` WHERE LOWER(email) = LOWER($1) AND is_active = TRUE`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID string) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, selectUserSQL+` WHERE user_id = $1 AND is_active = TRUE`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO users (user_id, name, email, phone, password_hash, is_active)
VALUES ($1, $2, $3, $4, $5, TRUE)
RETURNING user_id, name, email, COALESCE(phone, ''), password_hash, is_active, created_at`

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	created, err := scanUser(r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		user.Name,
		strings.ToLower(user.Email),
		user.Phone,
		user.PasswordHash,
	))
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return created, nil
}

type PostgresBankingRepo struct {
	db *pgxpool.Pool
}

func NewPostgresBankingRepo(pool *pgxpool.Pool) *PostgresBankingRepo {
	return &PostgresBankingRepo{db: pool}
}

func (r *PostgresBankingRepo) FindBeneficiary(ctx context.Context, userID, nickname string) (domain.Beneficiary, error) {
	const query = `
SELECT nickname, full_name, account_number, COALESCE(bank_name, ''), COALESCE(ifsc_code, '')
FROM beneficiaries
WHERE user_id = $1 AND LOWER(nickname) = LOWER($2) AND is_active = TRUE
LIMIT 1`

	var b domain.Beneficiary
	err := r.db.QueryRow(ctx, query, userID, strings.TrimSpace(nickname)).Scan(
		&b.Nickname,
		&b.FullName,
		&b.AccountNumber,
		&b.BankName,
		&b.IFSC,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Beneficiary{}, domain.ErrBeneficiaryNotFound
	}
	if err != nil {
		return domain.Beneficiary{}, fmt.Errorf("find beneficiary: %w", err)
	}
	return b, nil
}

func (r *PostgresBankingRepo) ListBeneficiaryNicknames(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT nickname FROM beneficiaries WHERE user_id = $1 AND is_active = TRUE ORDER BY nickname`, userID)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan beneficiaries: %w", err)
	}
	return names, nil
}

func (r *PostgresBankingRepo) CreateBeneficiary(ctx context.Context, userID string, b domain.Beneficiary) error {
	const stmt = `
INSERT INTO beneficiaries (user_id, nickname, full_name, account_number, bank_name, ifsc_code, is_active)
VALUES ($1, $2, $3, $4, $5, $6, TRUE)
ON CONFLICT DO NOTHING`
	if _, err := r.db.Exec(ctx, stmt, userID, b.Nickname, b.FullName, b.AccountNumber, b.BankName, b.IFSC); err != nil {
		return fmt.Errorf("insert beneficiary: %w", err)
	}
	return nil
}

func (r *PostgresBankingRepo) PrimaryAccount(ctx context.Context, userID string) (domain.Account, error) {
	const query = `
SELECT user_id, account_number, account_type, balance::text, currency
FROM accounts
WHERE user_id = $1 AND is_primary = TRUE
LIMIT 1`

	var (
		account domain.Account
		balance string
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&account.UserID,
		&account.AccountNumber,
		&account.AccountType,
		&balance,
		&account.Currency,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("primary account: %w", err)
	}
	account.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return domain.Account{}, fmt.Errorf("decode balance: %w", err)
	}
	return account, nil
}

func (r *PostgresBankingRepo) CreateAccount(ctx context.Context, account domain.Account) error {
	const stmt = `
INSERT INTO accounts (account_number, user_id, account_type, balance, currency, is_primary)
VALUES ($1, $2, $3, $4::numeric, $5, TRUE)
ON CONFLICT (account_number) DO NOTHING`
	if _, err := r.db.Exec(ctx, stmt,
		account.AccountNumber,
		account.UserID,
		account.AccountType,
		account.Balance.String(),
		account.Currency,
	); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *PostgresBankingRepo) CreatePendingTransfer(ctx context.Context, t domain.Transfer) error {
	const stmt = `
INSERT INTO transactions (transaction_id, user_id, from_account, to_account, recipient_name, amount, type, status, description, timestamp)
VALUES ($1, $2, $3, $4, $5, $6::numeric, 'TRANSFER', $7, $8, $9)`

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := r.db.Exec(ctx, stmt,
		t.TransactionID,
		t.UserID,
		t.FromAccount,
		t.ToAccount,
		t.RecipientName,
		t.Amount.String(),
		string(domain.TransferPending),
		"transfer via "+t.Channel,
		createdAt,
	); err != nil {
		return fmt.Errorf("insert pending transfer: %w", err)
	}
	return nil
}

func (r *PostgresBankingRepo) FinalizeTransfer(ctx context.Context, userID, transactionID, reference string) (domain.Transfer, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("begin finalize: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const lockTransfer = `
SELECT transaction_id, user_id, from_account, to_account, recipient_name, amount::text, timestamp
FROM transactions
WHERE transaction_id = $1 AND user_id = $2 AND status = $3
FOR UPDATE`

	var (
		t      domain.Transfer
		amount string
	)
	err = tx.QueryRow(ctx, lockTransfer, transactionID, userID, string(domain.TransferPending)).Scan(
		&t.TransactionID,
		&t.UserID,
		&t.FromAccount,
		&t.ToAccount,
		&t.RecipientName,
		&amount,
		&t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transfer{}, domain.ErrTransferNotFound
	}
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("lock transfer: %w", err)
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Transfer{}, fmt.Errorf("decode amount: %w", err)
	}

	tag, err := tx.Exec(ctx, `
UPDATE accounts SET balance = balance - $1::numeric
WHERE user_id = $2 AND is_primary = TRUE AND balance >= $1::numeric`, t.Amount.String(), userID)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("debit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Transfer{}, domain.ErrInsufficientFunds
	}

	completedAt := time.Now().UTC()
	if _, err := tx.Exec(ctx, `
UPDATE transactions SET status = $1, reference_number = $2, timestamp = $3
WHERE transaction_id = $4`, string(domain.TransferSuccess), reference, completedAt, transactionID); err != nil {
		return domain.Transfer{}, fmt.Errorf("complete transfer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Transfer{}, fmt.Errorf("commit finalize: %w", err)
	}

	t.Status = domain.TransferSuccess
	t.ReferenceNumber = reference
	t.CompletedAt = &completedAt
	return t, nil
}

func (r *PostgresBankingRepo) FailTransfer(ctx context.Context, userID, transactionID string, status domain.TransferStatus) error {
	const stmt = `
UPDATE transactions SET status = $1, timestamp = $2
WHERE transaction_id = $3 AND user_id = $4 AND status = $5`

	if _, err := r.db.Exec(ctx, stmt, string(status), time.Now().UTC(), transactionID, userID, string(domain.TransferPending)); err != nil {
		return fmt.Errorf("fail transfer: %w", err)
	}
	return nil
}

type PostgresSecurityEventRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSecurityEventRepo(pool *pgxpool.Pool) *PostgresSecurityEventRepo {
	return &PostgresSecurityEventRepo{db: pool}
}

func (r *PostgresSecurityEventRepo) Record(ctx context.Context, event domain.SecurityEvent) error {
	const stmt = `
INSERT INTO security_events (user_id, event_type, details, ip_address, timestamp)
VALUES (COALESCE((SELECT user_id FROM users WHERE user_id = $1), $2), $3, $4, $5, $6)`

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if _, err := r.db.Exec(ctx, stmt, event.UserID, systemUserID, event.EventType, event.Details, event.IPAddress, ts); err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

func (r *PostgresSecurityEventRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.SecurityEvent, error) {
	const query = `
SELECT user_id, event_type, COALESCE(details, ''), COALESCE(ip_address, ''), timestamp
FROM security_events
WHERE user_id = $1
ORDER BY timestamp DESC, id DESC
LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var ev domain.SecurityEvent
		if err := rows.Scan(&ev.UserID, &ev.EventType, &ev.Details, &ev.IPAddress, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security events: %w", err)
	}
	return events, nil
}
