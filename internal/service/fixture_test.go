package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/adapter/cache/cachetest"
	"github.com/smallbiznis/valora-txauth/internal/config"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/jwt"
	"github.com/smallbiznis/valora-txauth/internal/otp"
	"github.com/smallbiznis/valora-txauth/internal/password"
	"github.com/smallbiznis/valora-txauth/internal/ratelimit"
	"github.com/smallbiznis/valora-txauth/internal/repository/repositorytest"
	"github.com/smallbiznis/valora-txauth/internal/revocation"
	"github.com/smallbiznis/valora-txauth/internal/service"
	"github.com/smallbiznis/valora-txauth/internal/session"
)

const (
	testUserID   = "user001"
	testEmail    = "asha@bank.test"
	testPassword = "correct-horse"
)

type fixture struct {
	redis     *miniredis.Miniredis
	store     cache.Store
	users     *repositorytest.Users
	banking   *repositorytest.Banking
	events    *repositorytest.Events
	sessions  *session.Manager
	otps      *otp.Authority
	auth      *service.AuthService
	transfers *service.TransferService
	admin     *service.AdminService
	cfg       config.Config
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:              "0123456789abcdef0123456789abcdef",
		JWTIssuer:              "valora-txauth-test",
		AccessTokenTTL:         15 * time.Minute,
		RefreshTokenTTL:        7 * 24 * time.Hour,
		SessionTTL:             15 * time.Minute,
		ConversationSessionTTL: 24 * time.Hour,
		OTPTTL:                 5 * time.Minute,
		OTPMaxAttempts:         3,
		LoginRateLimit:         5,
		LoginRateWindow:        5 * time.Minute,
		OTPRateLimit:           5,
		OTPRateWindow:          5 * time.Minute,
	}
}

func newFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, testConfig(), codes...)
}

func newFixtureWithConfig(t *testing.T, cfg config.Config, codes ...string) *fixture {
	t.Helper()

	store, srv := cachetest.New(t)
	optional := cache.Available(store)
	logger := zap.NewNop()

	hash, err := password.Hash(testPassword)
	require.NoError(t, err)
	users := repositorytest.NewUsers(domain.User{
		ID:           testUserID,
		Name:         "Asha Rao",
		Email:        testEmail,
		Phone:        "9000000001",
		PasswordHash: hash,
	})

	banking := repositorytest.NewBanking()
	require.NoError(t, banking.CreateAccount(context.Background(), domain.Account{
		UserID:        testUserID,
		AccountNumber: "ACC0001",
		AccountType:   "SAVINGS",
		Balance:       decimal.NewFromInt(50000),
		Currency:      "INR",
	}))
	require.NoError(t, banking.CreateBeneficiary(context.Background(), testUserID, domain.Beneficiary{
		Nickname:      "Mom",
		FullName:      "Sunita Rao",
		AccountNumber: "ACC0002",
		BankName:      "Valora Bank",
	}))
	require.NoError(t, banking.CreateBeneficiary(context.Background(), testUserID, domain.Beneficiary{
		Nickname:      "Landlord",
		FullName:      "Vikram Shah",
		AccountNumber: "ACC0003",
	}))

	events := repositorytest.NewEvents(func(id string) bool {
		_, err := users.GetByID(context.Background(), id)
		return err == nil
	})

	opts := []otp.Option{otp.WithLogger(logger)}
	if len(codes) > 0 {
		i := 0
		opts = append(opts, otp.WithGenerator(func() (string, error) {
			code := codes[i%len(codes)]
			i++
			return code, nil
		}))
	}

	generator := jwt.NewGenerator([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	sessions := session.NewManager(optional, cfg.SessionTTL, session.WithLogger(logger))
	limiter := ratelimit.NewLimiter(optional, nil, logger)
	revocations := revocation.NewList(optional, generator, nil, logger)
	otps := otp.NewAuthority(optional, otp.Config{TTL: cfg.OTPTTL, MaxAttempts: cfg.OTPMaxAttempts}, opts...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &fixture{
		redis:     srv,
		store:     store,
		users:     users,
		banking:   banking,
		events:    events,
		sessions:  sessions,
		otps:      otps,
		auth:      service.NewAuthService(users, banking, sessions, limiter, revocations, generator, events, cfg, logger),
		transfers: service.NewTransferService(banking, otps, sessions, limiter, node, events, cfg, logger),
		admin:     service.NewAdminService(optional, sessions, users, logger),
		cfg:       cfg,
	}
}

func requireServiceError(t *testing.T, err error, code string, status int) *service.Error {
	t.Helper()
	var svcErr *service.Error
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, code, svcErr.Code)
	require.Equal(t, status, svcErr.Status)
	return svcErr
}
