package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/config"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/password"
	"github.com/smallbiznis/valora-txauth/internal/repository"
)

var (
	demoOpeningBalance = decimal.NewFromInt(50000)
	demoBeneficiaries  = []domain.Beneficiary{
		{Nickname: "Mom", FullName: "Sunita Rao", BankName: "SBI", IFSC: "SBIN0000000"},
		{Nickname: "Landlord", FullName: "Vikram Shah", BankName: "HDFC", IFSC: "HDFC0000001"},
	}
)

// EnsureDemoUser seeds a customer with a funded primary account for dev/e2e
// when DEMO_USER_EMAIL and DEMO_USER_PASSWORD are set.
func EnsureDemoUser(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, banking repository.BankingRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureDemoUser(ctx, cfg, users, banking, node, logger)
		},
	})
}

func ensureDemoUser(ctx context.Context, cfg config.Config, users repository.UserRepository, banking repository.BankingRepository, node *snowflake.Node, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.DemoUserEmail))
	if email == "" || cfg.DemoUserPassword == "" {
		return nil
	}
	if logger == nil {
		logger = zap.L()
	}

	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("bootstrap lookup user: %w", err)
	}

	hashed, err := password.Hash(cfg.DemoUserPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	created, err := users.Create(ctx, domain.User{
		ID:           "USR" + node.Generate().String(),
		Name:         "Demo Customer",
		Email:        email,
		PasswordHash: hashed,
		IsActive:     true,
	})
	if err != nil {
		return fmt.Errorf("bootstrap create user: %w", err)
	}

	account := domain.Account{
		UserID:        created.ID,
		AccountNumber: "ACC" + node.Generate().String(),
		AccountType:   "SAVINGS",
		Balance:       demoOpeningBalance,
		Currency:      "INR",
	}
	if err := banking.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("bootstrap create account: %w", err)
	}

	for _, b := range demoBeneficiaries {
		b.AccountNumber = "ACC" + node.Generate().String()
		if err := banking.CreateBeneficiary(ctx, created.ID, b); err != nil {
			return fmt.Errorf("bootstrap create beneficiary %s: %w", b.Nickname, err)
		}
	}

	logger.Info("bootstrap demo user created",
		zap.String("email", created.Email),
		zap.String("user_id", created.ID),
		zap.String("account_number", account.AccountNumber),
	)
	return nil
}
