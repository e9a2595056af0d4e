package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/smallbiznis/valora-txauth/internal/http/middleware"
	"github.com/smallbiznis/valora-txauth/internal/service"
)

// TransferHandler serves the transfer initiation and confirmation endpoints.
type TransferHandler struct {
	Transfers *service.TransferService
}

// NewTransferHandler creates the handler set.
func NewTransferHandler(transfers *service.TransferService) *TransferHandler {
	return &TransferHandler{Transfers: transfers}
}

// Initiate starts a transfer and issues its passcode.
func (h *TransferHandler) Initiate(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		unauthenticated(c)
		return
	}

	var req struct {
		Recipient string          `form:"recipient" json:"recipient" binding:"required"`
		Amount    decimal.Decimal `form:"amount" json:"amount"`
		Channel   string          `form:"channel" json:"channel"`
	}
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "recipient and a numeric amount are required")
		return
	}

	resp, err := h.Transfers.Initiate(c.Request.Context(), service.InitiateRequest{
		UserID:    principal.UserID,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Channel:   req.Channel,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Verify confirms a transfer with the passcode typed by the user.
func (h *TransferHandler) Verify(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		unauthenticated(c)
		return
	}

	var req struct {
		TransactionID string `form:"transaction_id" json:"transaction_id" binding:"required"`
		OTP           string `form:"otp" json:"otp" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "transaction_id and otp are required")
		return
	}

	resp, err := h.Transfers.Verify(c.Request.Context(), service.VerifyRequest{
		UserID:        principal.UserID,
		TransactionID: req.TransactionID,
		Code:          req.OTP,
		IPAddress:     c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyUtterance confirms the session's pending transfer from spoken or
// typed text.
func (h *TransferHandler) VerifyUtterance(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		unauthenticated(c)
		return
	}

	var req struct {
		Text string `form:"text" json:"text" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "text is required")
		return
	}

	resp, err := h.Transfers.VerifyUtterance(c.Request.Context(), service.UtteranceRequest{
		UserID:    principal.UserID,
		Text:      req.Text,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
