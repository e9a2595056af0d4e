package service_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/adapter/cache"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/otp"
	"github.com/smallbiznis/valora-txauth/internal/ratelimit"
	"github.com/smallbiznis/valora-txauth/internal/service"
)

func loginAndInitiate(t *testing.T, f *fixture, channel string) *service.TransferResult {
	t.Helper()
	ctx := context.Background()

	_, err := f.auth.Login(ctx, service.LoginRequest{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	result, err := f.transfers.Initiate(ctx, service.InitiateRequest{
		UserID:    testUserID,
		Recipient: "mom",
		Amount:    decimal.NewFromInt(1000),
		Channel:   channel,
	})
	require.NoError(t, err)
	return result
}

func TestTransferVerifiedEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "123456")

	initiated := loginAndInitiate(t, f, "")
	require.True(t, initiated.Success)
	require.Equal(t, service.StatusPending, initiated.Status)
	require.Equal(t, "123456", initiated.OTP)
	require.Equal(t, "Sunita Rao", initiated.Recipient)
	require.True(t, strings.HasPrefix(initiated.TransactionID, "TXN"))
	require.Equal(t, 3, *initiated.AttemptsLeft)
	require.Equal(t, 300, initiated.ExpiresInSeconds)
	require.Empty(t, initiated.Prompt)

	sess, err := f.sessions.Read(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, initiated.TransactionID, sess.PendingTransactionID)

	pending, ok := f.banking.Transfer(initiated.TransactionID)
	require.True(t, ok)
	require.Equal(t, domain.TransferPending, pending.Status)

	verified, err := f.transfers.Verify(ctx, service.VerifyRequest{
		UserID:        testUserID,
		TransactionID: initiated.TransactionID,
		Code:          "123456",
	})
	require.NoError(t, err)
	require.True(t, verified.Success)
	require.Equal(t, service.StatusVerified, verified.Status)
	require.Equal(t, "REF"+initiated.TransactionID, verified.ReferenceNumber)

	sess, err = f.sessions.Read(ctx, testUserID)
	require.NoError(t, err)
	require.False(t, sess.HasPendingTransaction())

	account, err := f.banking.PrimaryAccount(ctx, testUserID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(49000).Equal(account.Balance))

	_, found, err := f.store.Get(ctx, otp.Key(testUserID, initiated.TransactionID))
	require.NoError(t, err)
	require.False(t, found)

	replay, err := f.transfers.Verify(ctx, service.VerifyRequest{
		UserID:        testUserID,
		TransactionID: initiated.TransactionID,
		Code:          "123456",
	})
	require.NoError(t, err)
	require.False(t, replay.Success)
	require.Equal(t, service.StatusExpired, replay.Status)

	done, ok := f.banking.Transfer(initiated.TransactionID)
	require.True(t, ok)
	require.Equal(t, domain.TransferSuccess, done.Status)

	require.Contains(t, f.events.Types(), domain.EventTransactionSuccess)
}

func TestTransferExhaustedAfterThreeWrongCodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "123456")
	initiated := loginAndInitiate(t, f, service.ChannelAPI)

	var last *service.TransferResult
	for i := 0; i < 3; i++ {
		res, err := f.transfers.Verify(ctx, service.VerifyRequest{
			UserID:        testUserID,
			TransactionID: initiated.TransactionID,
			Code:          "654321",
		})
		require.NoError(t, err)
		require.Equal(t, service.StatusFailed, res.Status)
		require.Equal(t, 2-i, *res.AttemptsLeft)
		last = res
	}
	require.Zero(t, *last.AttemptsLeft)

	sess, err := f.sessions.Read(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, initiated.TransactionID, sess.PendingTransactionID)

	fourth, err := f.transfers.Verify(ctx, service.VerifyRequest{
		UserID:        testUserID,
		TransactionID: initiated.TransactionID,
		Code:          "123456",
	})
	require.NoError(t, err)
	require.False(t, fourth.Success)
	require.Equal(t, service.StatusExhausted, fourth.Status)
	require.Zero(t, *fourth.AttemptsLeft)

	sess, err = f.sessions.Read(ctx, testUserID)
	require.NoError(t, err)
	require.False(t, sess.HasPendingTransaction())

	account, err := f.banking.PrimaryAccount(ctx, testUserID)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(50000).Equal(account.Balance))

	transfer, ok := f.banking.Transfer(initiated.TransactionID)
	require.True(t, ok)
	require.Equal(t, domain.TransferFailed, transfer.Status)
}

func TestTransferExpiresWithOTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "123456")
	initiated := loginAndInitiate(t, f, service.ChannelAPI)

	f.redis.FastForward(5*time.Minute + time.Second)

	res, err := f.transfers.Verify(ctx, service.VerifyRequest{
		UserID:        testUserID,
		TransactionID: initiated.TransactionID,
		Code:          "123456",
	})
	require.NoError(t, err)
	require.Equal(t, service.StatusExpired, res.Status)
	require.Contains(t, res.Message, "start the transfer again")

	transfer, ok := f.banking.Transfer(initiated.TransactionID)
	require.True(t, ok)
	require.Equal(t, domain.TransferExpired, transfer.Status)
}

func TestExpiresInSecondsFollowsConfiguredTTL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// The authority's clock runs an hour behind the wall clock.
	optional := cache.Available(f.store)
	otps := otp.NewAuthority(optional, otp.Config{TTL: f.cfg.OTPTTL, MaxAttempts: f.cfg.OTPMaxAttempts},
		otp.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	transfers := service.NewTransferService(f.banking, otps, f.sessions, ratelimit.NewLimiter(optional, nil, zap.NewNop()), node, f.events, f.cfg, zap.NewNop())

	res, err := transfers.Initiate(ctx, service.InitiateRequest{UserID: testUserID, Recipient: "Mom", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.Equal(t, 300, res.ExpiresInSeconds)
}

func TestInitiateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.transfers.Initiate(ctx, service.InitiateRequest{UserID: testUserID, Recipient: "mom", Amount: decimal.Zero})
	requireServiceError(t, err, "invalid_request", http.StatusBadRequest)

	_, err = f.transfers.Initiate(ctx, service.InitiateRequest{UserID: testUserID, Recipient: "mom", Amount: decimal.NewFromInt(-5)})
	requireServiceError(t, err, "invalid_request", http.StatusBadRequest)

	_, err = f.transfers.Initiate(ctx, service.InitiateRequest{UserID: testUserID, Recipient: "  ", Amount: decimal.NewFromInt(5)})
	requireServiceError(t, err, "invalid_request", http.StatusBadRequest)

	_, err = f.transfers.Initiate(ctx, service.InitiateRequest{UserID: testUserID, Recipient: "uncle", Amount: decimal.NewFromInt(5)})
	svcErr := requireServiceError(t, err, "recipient_not_found", http.StatusNotFound)
	require.Contains(t, svcErr.Description, "Available: Landlord, Mom")

	_, err = f.transfers.Initiate(ctx, service.InitiateRequest{UserID: testUserID, Recipient: "Mom", Amount: decimal.NewFromInt(60000)})
	svcErr = requireServiceError(t, err, "insufficient_funds", http.StatusUnprocessableEntity)
	require.Contains(t, svcErr.Description, "50000.00")

	for _, amount := range []string{"0.001", "1000.005", "10000000000000"} {
		_, err = f.transfers.Initiate(ctx, service.InitiateRequest{UserID: testUserID, Recipient: "Mom", Amount: decimal.RequireFromString(amount)})
		requireServiceError(t, err, "invalid_request", http.StatusBadRequest)
	}
	require.Empty(t, f.banking.Transfers())

	res, err := f.transfers.Initiate(ctx, service.InitiateRequest{UserID: testUserID, Recipient: "Mom", Amount: decimal.RequireFromString("10.500")})
	require.NoError(t, err)
	require.Equal(t, service.StatusPending, res.Status)
}

func TestInitiateRateLimited(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.OTPRateLimit = 2
	f := newFixtureWithConfig(t, cfg)

	req := service.InitiateRequest{UserID: testUserID, Recipient: "Mom", Amount: decimal.NewFromInt(10)}
	for i := 0; i < 2; i++ {
		_, err := f.transfers.Initiate(ctx, req)
		require.NoError(t, err)
	}
	_, err := f.transfers.Initiate(ctx, req)
	svcErr := requireServiceError(t, err, "rate_limited", http.StatusTooManyRequests)
	require.Greater(t, svcErr.ResetIn, time.Duration(0))
}

func TestInitiateFailsWhenOTPStoreDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.redis.Close()

	_, err := f.transfers.Initiate(ctx, service.InitiateRequest{UserID: testUserID, Recipient: "Mom", Amount: decimal.NewFromInt(10)})
	requireServiceError(t, err, "temporarily_unavailable", http.StatusServiceUnavailable)

	recorded := f.banking.Transfers()
	require.Len(t, recorded, 1)
	require.Equal(t, domain.TransferFailed, recorded[0].Status)

	_, err = f.transfers.Verify(ctx, service.VerifyRequest{UserID: testUserID, TransactionID: "TXN1", Code: "123456"})
	requireServiceError(t, err, "temporarily_unavailable", http.StatusServiceUnavailable)
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.transfers.Verify(ctx, service.VerifyRequest{UserID: testUserID, TransactionID: "TXN1", Code: "12345"})
	requireServiceError(t, err, "invalid_request", http.StatusBadRequest)

	_, err = f.transfers.Verify(ctx, service.VerifyRequest{UserID: testUserID, Code: "123456"})
	requireServiceError(t, err, "invalid_request", http.StatusBadRequest)
}

func TestVerifyUtteranceCompletesPendingTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "482913")

	initiated := loginAndInitiate(t, f, service.ChannelVoice)
	require.Equal(t, "Please say your OTP to complete the transaction.", initiated.Prompt)

	wrong, err := f.transfers.VerifyUtterance(ctx, service.UtteranceRequest{UserID: testUserID, Text: "my otp is 111111"})
	require.NoError(t, err)
	require.Equal(t, service.StatusFailed, wrong.Status)
	require.Equal(t, 2, *wrong.AttemptsLeft)

	res, err := f.transfers.VerifyUtterance(ctx, service.UtteranceRequest{UserID: testUserID, Text: "four eight two nine one three"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, service.StatusVerified, res.Status)
	require.Equal(t, initiated.TransactionID, res.TransactionID)

	again, err := f.transfers.VerifyUtterance(ctx, service.UtteranceRequest{UserID: testUserID, Text: "482913"})
	require.NoError(t, err)
	require.Equal(t, service.StatusNoTransaction, again.Status)
	require.Equal(t, "No pending transaction found.", again.Message)

	sessionTTL, ok, err := f.store.TTL(ctx, "session:"+testUserID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Greater(t, sessionTTL, time.Hour)
}

func TestDirectVerifyKeepsConversationSessionLifetime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "246810")

	initiated := loginAndInitiate(t, f, service.ChannelVoice)
	res, err := f.transfers.Verify(ctx, service.VerifyRequest{UserID: testUserID, TransactionID: initiated.TransactionID, Code: "246810"})
	require.NoError(t, err)
	require.Equal(t, service.StatusVerified, res.Status)

	sessionTTL, ok, err := f.store.TTL(ctx, "session:"+testUserID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Greater(t, sessionTTL, time.Hour)
}

func TestVerifyUtteranceWithoutCode(t *testing.T) {
	f := newFixture(t)
	res, err := f.transfers.VerifyUtterance(context.Background(), service.UtteranceRequest{UserID: testUserID, Text: "what is my balance"})
	require.NoError(t, err)
	require.Equal(t, service.StatusNoCode, res.Status)
	require.Equal(t, "Please say your OTP to complete the transaction.", res.Prompt)

	res, err = f.transfers.VerifyUtterance(context.Background(), service.UtteranceRequest{UserID: testUserID, Text: "my otp is 12 34"})
	require.NoError(t, err)
	require.Equal(t, service.StatusNoCode, res.Status)
	require.Empty(t, res.Prompt)
	require.Contains(t, res.Message, "6-digit")
}

func TestVerifyUtteranceFailsClosedWithoutSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.transfers.VerifyUtterance(ctx, service.UtteranceRequest{UserID: testUserID, Text: "123456"})
	requireServiceError(t, err, "session_expired", http.StatusUnauthorized)

	f.redis.Close()
	_, err = f.transfers.VerifyUtterance(ctx, service.UtteranceRequest{UserID: testUserID, Text: "123456"})
	requireServiceError(t, err, "session_unavailable", http.StatusUnauthorized)
}
