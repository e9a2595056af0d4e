// Package repositorytest provides in-memory repositories for tests.
package repositorytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/repository"
)

type Users struct {
	mu    sync.Mutex
	users map[string]domain.User
}

var _ repository.UserRepository = (*Users)(nil)

func NewUsers(users ...domain.User) *Users {
	u := &Users{users: make(map[string]domain.User)}
	for _, user := range users {
		user.IsActive = true
		u.users[user.ID] = user
	}
	return u
}

func (u *Users) GetByEmail(_ context.Context, email string) (domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if strings.EqualFold(user.Email, email) && user.IsActive {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (u *Users) GetByID(_ context.Context, userID string) (domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[userID]
	if !ok || !user.IsActive {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (u *Users) Create(_ context.Context, user domain.User) (domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user.IsActive = true
	user.CreatedAt = time.Now().UTC()
	u.users[user.ID] = user
	return user, nil
}

type Banking struct {
	mu            sync.Mutex
	accounts      map[string]domain.Account
	beneficiaries map[string][]domain.Beneficiary
	transfers     map[string]domain.Transfer
}

var _ repository.BankingRepository = (*Banking)(nil)

func NewBanking() *Banking {
	return &Banking{
		accounts:      make(map[string]domain.Account),
		beneficiaries: make(map[string][]domain.Beneficiary),
		transfers:     make(map[string]domain.Transfer),
	}
}

func (b *Banking) FindBeneficiary(_ context.Context, userID, nickname string) (domain.Beneficiary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ben := range b.beneficiaries[userID] {
		if strings.EqualFold(ben.Nickname, strings.TrimSpace(nickname)) {
			return ben, nil
		}
	}
	return domain.Beneficiary{}, domain.ErrBeneficiaryNotFound
}

func (b *Banking) ListBeneficiaryNicknames(_ context.Context, userID string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, ben := range b.beneficiaries[userID] {
		names = append(names, ben.Nickname)
	}
	sort.Strings(names)
	return names, nil
}

func (b *Banking) CreateBeneficiary(_ context.Context, userID string, ben domain.Beneficiary) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.beneficiaries[userID] = append(b.beneficiaries[userID], ben)
	return nil
}

func (b *Banking) PrimaryAccount(_ context.Context, userID string) (domain.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[userID]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return acc, nil
}

func (b *Banking) CreateAccount(_ context.Context, account domain.Account) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[account.UserID] = account
	return nil
}

func (b *Banking) CreatePendingTransfer(_ context.Context, t domain.Transfer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.Status = domain.TransferPending
	b.transfers[t.TransactionID] = t
	return nil
}

func (b *Banking) FinalizeTransfer(_ context.Context, userID, transactionID, reference string) (domain.Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.transfers[transactionID]
	if !ok || t.UserID != userID || t.Status != domain.TransferPending {
		return domain.Transfer{}, domain.ErrTransferNotFound
	}
	acc, ok := b.accounts[userID]
	if !ok || !acc.Covers(t.Amount) {
		return domain.Transfer{}, domain.ErrInsufficientFunds
	}
	acc.Balance = acc.Balance.Sub(t.Amount)
	b.accounts[userID] = acc

	now := time.Now().UTC()
	t.Status = domain.TransferSuccess
	t.ReferenceNumber = reference
	t.CompletedAt = &now
	b.transfers[transactionID] = t
	return t, nil
}

func (b *Banking) FailTransfer(_ context.Context, userID, transactionID string, status domain.TransferStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.transfers[transactionID]
	if !ok || t.UserID != userID || t.Status != domain.TransferPending {
		return nil
	}
	t.Status = status
	b.transfers[transactionID] = t
	return nil
}

// Transfer returns a stored transfer for assertions.
func (b *Banking) Transfer(transactionID string) (domain.Transfer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.transfers[transactionID]
	return t, ok
}

// Transfers returns every stored transfer, oldest first.
func (b *Banking) Transfers() []domain.Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Transfer, 0, len(b.transfers))
	for _, t := range b.transfers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type Events struct {
	mu     sync.Mutex
	known  func(string) bool
	events []domain.SecurityEvent
}

var _ repository.SecurityEventRepository = (*Events)(nil)

// NewEvents attributes events of users for which known returns false to "system".
func NewEvents(known func(string) bool) *Events {
	return &Events{known: known}
}

func (e *Events) Record(_ context.Context, event domain.SecurityEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.known != nil && !e.known(event.UserID) {
		event.UserID = "system"
	}
	e.events = append(e.events, event)
	return nil
}

func (e *Events) ListByUser(_ context.Context, userID string, limit int) ([]domain.SecurityEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.SecurityEvent
	for i := len(e.events) - 1; i >= 0 && len(out) < limit; i-- {
		if e.events[i].UserID == userID {
			out = append(out, e.events[i])
		}
	}
	return out, nil
}

// Types lists recorded event types in order.
func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	types := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		types = append(types, ev.EventType)
	}
	return types
}

// All returns a copy of the recorded events.
func (e *Events) All() []domain.SecurityEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.SecurityEvent(nil), e.events...)
}
