package bootstrap

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/config"
	"github.com/smallbiznis/valora-txauth/internal/password"
	"github.com/smallbiznis/valora-txauth/internal/repository/repositorytest"
)

func TestEnsureDemoUserSeedsOnce(t *testing.T) {
	ctx := context.Background()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	users := repositorytest.NewUsers()
	banking := repositorytest.NewBanking()
	cfg := config.Config{DemoUserEmail: " Demo@Bank.test ", DemoUserPassword: "demo-pass"}

	require.NoError(t, ensureDemoUser(ctx, cfg, users, banking, node, zap.NewNop()))

	user, err := users.GetByEmail(ctx, "demo@bank.test")
	require.NoError(t, err)
	ok, err := password.Verify("demo-pass", user.PasswordHash)
	require.NoError(t, err)
	require.True(t, ok)

	account, err := banking.PrimaryAccount(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "50000", account.Balance.String())

	mom, err := banking.FindBeneficiary(ctx, user.ID, "mom")
	require.NoError(t, err)
	require.Equal(t, "Sunita Rao", mom.FullName)

	// A second start leaves the seeded user alone.
	require.NoError(t, ensureDemoUser(ctx, cfg, users, banking, node, zap.NewNop()))
	again, err := users.GetByEmail(ctx, "demo@bank.test")
	require.NoError(t, err)
	require.Equal(t, user.ID, again.ID)
}

func TestEnsureDemoUserDisabledWithoutCredentials(t *testing.T) {
	users := repositorytest.NewUsers()
	require.NoError(t, ensureDemoUser(context.Background(), config.Config{DemoUserEmail: "demo@bank.test"}, users, repositorytest.NewBanking(), nil, nil))

	_, err := users.GetByEmail(context.Background(), "demo@bank.test")
	require.Error(t, err)
}
