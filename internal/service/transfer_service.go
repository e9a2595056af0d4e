package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-txauth/internal/config"
	"github.com/smallbiznis/valora-txauth/internal/conversation"
	"github.com/smallbiznis/valora-txauth/internal/domain"
	"github.com/smallbiznis/valora-txauth/internal/otp"
	"github.com/smallbiznis/valora-txauth/internal/ratelimit"
	"github.com/smallbiznis/valora-txauth/internal/repository"
	"github.com/smallbiznis/valora-txauth/internal/session"
)

// Channels a transfer can be driven from.
const (
	ChannelAPI   = "api"
	ChannelVoice = "voice"
	ChannelChat  = "chat"
)

const (
	promptSayOTP       = "Please say your OTP to complete the transaction."
	messageNoPending   = "No pending transaction found."
	messageNoCode      = "Could not extract OTP. Please say your 6-digit OTP clearly."
	messageNoOTPInText = "No OTP found in your message."
	messageStartOver   = "Please start the transfer again."
	transactionPrefix  = "TXN"
	referencePrefix    = "REF"
	amountScale        = 2
)

// maxAmount is the first value the ledger's NUMERIC(15,2) columns cannot hold.
var maxAmount = decimal.New(1, 13)

// TransferService drives a transfer from initiation through OTP confirmation.
type TransferService struct {
	banking   repository.BankingRepository
	otps      *otp.Authority
	sessions  *session.Manager
	limiter   *ratelimit.Limiter
	snowflake *snowflake.Node
	cfg       config.Config
	observer
}

// NewTransferService wires dependencies.
func NewTransferService(banking repository.BankingRepository, otps *otp.Authority, sessions *session.Manager, limiter *ratelimit.Limiter, node *snowflake.Node, events repository.SecurityEventRepository, cfg config.Config, logger *zap.Logger) *TransferService {
	return &TransferService{
		banking:   banking,
		otps:      otps,
		sessions:  sessions,
		limiter:   limiter,
		snowflake: node,
		cfg:       cfg,
		observer:  newObserver(logger, events),
	}
}

// InitiateRequest asks to move Amount to the beneficiary nicknamed Recipient.
type InitiateRequest struct {
	UserID    string
	Recipient string
	Amount    decimal.Decimal
	Channel   string
	IPAddress string
}

// Initiate validates the transfer against the ledger, records it as pending
// and issues the passcode that confirms it.
func (s *TransferService) Initiate(ctx context.Context, req InitiateRequest) (*TransferResult, error) {
	ctx, span := s.startSpan(ctx, "TransferService.Initiate")
	defer span.End()

	recipient := strings.TrimSpace(req.Recipient)
	if !req.Amount.IsPositive() {
		return nil, invalidRequest("Amount must be positive.")
	}
	if !req.Amount.Equal(req.Amount.Round(amountScale)) {
		return nil, invalidRequest("Amount cannot have more than two decimal places.")
	}
	if req.Amount.GreaterThanOrEqual(maxAmount) {
		return nil, invalidRequest("Amount is too large.")
	}
	if recipient == "" {
		return nil, invalidRequest("Recipient cannot be empty.")
	}
	channel := normalizeChannel(req.Channel)

	decision := s.limiter.Check(ctx, req.UserID, ratelimit.ActionOTPIssue, ratelimit.Policy{
		Max:    s.cfg.OTPRateLimit,
		Window: s.cfg.OTPRateWindow,
	})
	if !decision.Allowed {
		s.securityEvent(ctx, req.UserID, domain.EventOTPRateLimited, "Too many transfer attempts", req.IPAddress)
		return nil, rateLimited(fmt.Sprintf("Too many transfer attempts. Try again in %d seconds.", decision.ResetInSeconds()), decision.ResetIn)
	}

	beneficiary, err := s.banking.FindBeneficiary(ctx, req.UserID, recipient)
	if errors.Is(err, domain.ErrBeneficiaryNotFound) {
		available, listErr := s.banking.ListBeneficiaryNicknames(ctx, req.UserID)
		if listErr != nil {
			span.RecordError(listErr)
		}
		desc := fmt.Sprintf("Recipient '%s' not found.", recipient)
		if len(available) > 0 {
			desc += " Available: " + strings.Join(available, ", ")
		}
		return nil, newError("recipient_not_found", desc, http.StatusNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, serverError("Unable to resolve recipient.")
	}

	account, err := s.banking.PrimaryAccount(ctx, req.UserID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, newError("account_not_found", "Account not found.", http.StatusNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, serverError("Unable to load account.")
	}
	if !account.Covers(req.Amount) {
		return nil, newError("insufficient_funds",
			fmt.Sprintf("Insufficient balance. Available: %s %s", account.Balance.StringFixed(2), account.Currency),
			http.StatusUnprocessableEntity)
	}

	txnID := transactionPrefix + s.snowflake.Generate().String()
	if err := s.banking.CreatePendingTransfer(ctx, domain.Transfer{
		TransactionID: txnID,
		UserID:        req.UserID,
		FromAccount:   account.AccountNumber,
		ToAccount:     beneficiary.AccountNumber,
		RecipientName: beneficiary.FullName,
		Amount:        req.Amount,
		Status:        domain.TransferPending,
		Channel:       channel,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		span.RecordError(err)
		return nil, serverError("Unable to record transfer.")
	}

	issue, err := s.otps.Issue(ctx, req.UserID, txnID)
	if err != nil {
		span.RecordError(err)
		s.failTransfer(ctx, req.UserID, txnID, domain.TransferFailed)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, unavailable("OTP service unavailable. Please try again shortly.")
		}
		return nil, serverError("Unable to issue OTP.")
	}

	if _, err := s.sessions.SetPendingTransaction(ctx, req.UserID, txnID, s.sessionTTL(channel)); err != nil {
		// The direct path carries the transaction id explicitly; only the
		// conversational path depends on the session link.
		s.log().Warn("pending transaction not linked to session",
			zap.String("user_id", req.UserID),
			zap.String("transaction_id", txnID),
			zap.Error(err),
		)
	}

	s.securityEvent(ctx, req.UserID, domain.EventOTPGenerated,
		fmt.Sprintf("OTP for %s to %s", req.Amount.StringFixed(2), beneficiary.Nickname), req.IPAddress)
	s.audit("transfer.initiated", "user_id", req.UserID, "transaction_id", txnID, "channel", channel)

	amount := req.Amount
	result := &TransferResult{
		Success:          true,
		Message:          "OTP sent",
		Status:           StatusPending,
		AttemptsLeft:     intPtr(s.otps.MaxAttempts()),
		TransactionID:    txnID,
		OTP:              issue.Code,
		Recipient:        beneficiary.FullName,
		Amount:           &amount,
		ExpiresInSeconds: int(s.otps.TTL().Seconds()),
	}
	if channel != ChannelAPI {
		result.Prompt = promptSayOTP
	}
	return result, nil
}

// VerifyRequest submits Code for TransactionID.
type VerifyRequest struct {
	UserID        string
	TransactionID string
	Code          string
	IPAddress     string
}

// Verify checks a passcode submitted through the direct API.
func (s *TransferService) Verify(ctx context.Context, req VerifyRequest) (*TransferResult, error) {
	ctx, span := s.startSpan(ctx, "TransferService.Verify")
	defer span.End()

	txnID := strings.TrimSpace(req.TransactionID)
	if txnID == "" {
		return nil, invalidRequest("transaction_id is required.")
	}
	if !otp.WellFormed(req.Code) {
		return nil, invalidRequest("Invalid OTP format.")
	}
	return s.verify(ctx, req.UserID, txnID, req.Code, req.IPAddress, ChannelAPI)
}

// UtteranceRequest carries transcribed or typed text from the conversational
// front end.
type UtteranceRequest struct {
	UserID    string
	Text      string
	IPAddress string
}

// VerifyUtterance extracts a passcode from Text and checks it against the
// transfer pending in the caller's session.
func (s *TransferService) VerifyUtterance(ctx context.Context, req UtteranceRequest) (*TransferResult, error) {
	ctx, span := s.startSpan(ctx, "TransferService.VerifyUtterance")
	defer span.End()

	code, ok := conversation.ExtractCode(req.Text)
	if !ok {
		// Text that never mentions a passcode gets the prompt again instead of
		// a complaint about an unclear code.
		if !conversation.IsOTPUtterance(req.Text) {
			return &TransferResult{Success: false, Message: messageNoOTPInText, Status: StatusNoCode, Prompt: promptSayOTP}, nil
		}
		return &TransferResult{Success: false, Message: messageNoCode, Status: StatusNoCode}, nil
	}

	sess, err := s.sessions.Read(ctx, req.UserID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return nil, newError("session_expired", "Session expired. Please log in again.", http.StatusUnauthorized)
	case err != nil:
		span.RecordError(err)
		return nil, newError("session_unavailable", "Session unavailable. Please log in again.", http.StatusUnauthorized)
	}
	if !sess.HasPendingTransaction() {
		return &TransferResult{Success: false, Message: messageNoPending, Status: StatusNoTransaction}, nil
	}

	return s.verify(ctx, req.UserID, sess.PendingTransactionID, code, req.IPAddress, ChannelVoice)
}

func (s *TransferService) verify(ctx context.Context, userID, txnID, code, ip, channel string) (*TransferResult, error) {
	v, err := s.otps.Verify(ctx, userID, txnID, code)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, unavailable("OTP service unavailable. Please try again shortly.")
		}
		return nil, serverError("Unable to verify OTP.")
	}

	ttl := s.sessionTTL(channel)
	switch v.Outcome {
	case domain.OTPVerified:
		s.clearPending(ctx, userID, txnID, ttl)
		s.securityEvent(ctx, userID, domain.EventOTPVerified, fmt.Sprintf("OTP verified via %s for %s", channel, txnID), ip)

		transfer, err := s.banking.FinalizeTransfer(ctx, userID, txnID, referencePrefix+txnID)
		switch {
		case errors.Is(err, domain.ErrInsufficientFunds):
			s.failTransfer(ctx, userID, txnID, domain.TransferFailed)
			return nil, newError("insufficient_funds", "Insufficient balance to complete the transfer.", http.StatusUnprocessableEntity)
		case errors.Is(err, domain.ErrTransferNotFound):
			return nil, newError("transfer_not_found", "Transfer not found.", http.StatusNotFound)
		case err != nil:
			s.log().Error("transfer verified but not finalized", zap.String("transaction_id", txnID), zap.Error(err))
			return nil, serverError("Unable to complete transfer.")
		}

		s.securityEvent(ctx, userID, domain.EventTransactionSuccess, fmt.Sprintf("Transaction %s completed via %s", txnID, channel), ip)
		s.audit("transfer.completed", "user_id", userID, "transaction_id", txnID, "channel", channel)
		amount := transfer.Amount
		return &TransferResult{
			Success:         true,
			Message:         "Transaction completed",
			Status:          StatusVerified,
			AttemptsLeft:    intPtr(v.AttemptsLeft),
			TransactionID:   txnID,
			ReferenceNumber: transfer.ReferenceNumber,
			Recipient:       transfer.RecipientName,
			Amount:          &amount,
		}, nil

	case domain.OTPMismatch:
		s.securityEvent(ctx, userID, domain.EventOTPFailed, fmt.Sprintf("Invalid OTP for %s. Attempts left: %d", txnID, v.AttemptsLeft), ip)
		return &TransferResult{
			Success:       false,
			Message:       fmt.Sprintf("Invalid OTP. %d attempts left.", v.AttemptsLeft),
			Status:        StatusFailed,
			AttemptsLeft:  intPtr(v.AttemptsLeft),
			TransactionID: txnID,
		}, nil

	case domain.OTPExhausted:
		s.clearPending(ctx, userID, txnID, ttl)
		s.failTransfer(ctx, userID, txnID, domain.TransferFailed)
		s.securityEvent(ctx, userID, domain.EventOTPFailed, fmt.Sprintf("Maximum OTP attempts exceeded for %s", txnID), ip)
		return &TransferResult{
			Success:       false,
			Message:       "Maximum OTP attempts exceeded. " + messageStartOver,
			Status:        StatusExhausted,
			AttemptsLeft:  intPtr(0),
			TransactionID: txnID,
		}, nil

	default:
		s.clearPending(ctx, userID, txnID, ttl)
		// A replayed passcode lands here too; only a transfer still pending
		// is moved.
		s.failTransfer(ctx, userID, txnID, domain.TransferExpired)
		return &TransferResult{
			Success:       false,
			Message:       "OTP expired or not found. " + messageStartOver,
			Status:        StatusExpired,
			AttemptsLeft:  intPtr(0),
			TransactionID: txnID,
		}, nil
	}
}

func (s *TransferService) clearPending(ctx context.Context, userID, txnID string, ttl time.Duration) {
	if err := s.sessions.ClearPendingTransaction(ctx, userID, txnID, ttl); err != nil {
		s.log().Warn("pending transaction not cleared",
			zap.String("user_id", userID),
			zap.String("transaction_id", txnID),
			zap.Error(err),
		)
	}
}

func (s *TransferService) failTransfer(ctx context.Context, userID, txnID string, status domain.TransferStatus) {
	if err := s.banking.FailTransfer(ctx, userID, txnID, status); err != nil {
		s.log().Warn("transfer left pending",
			zap.String("user_id", userID),
			zap.String("transaction_id", txnID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// sessionTTL is longer for conversational channels, whose sessions outlive
// the login that created them.
func (s *TransferService) sessionTTL(channel string) time.Duration {
	if channel == ChannelAPI {
		return s.cfg.SessionTTL
	}
	return s.cfg.ConversationSessionTTL
}

func normalizeChannel(channel string) string {
	switch strings.ToLower(strings.TrimSpace(channel)) {
	case ChannelVoice:
		return ChannelVoice
	case ChannelChat:
		return ChannelChat
	default:
		return ChannelAPI
	}
}
