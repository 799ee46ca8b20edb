package handler

import (
	"net/http"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/middleware"
	"github.com/custody_settlement/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type WalletHandler struct {
	ledger      *service.LedgerService
	deposits    *service.DepositService
	withdrawals *service.WithdrawService
}

func NewWalletHandler(ledger *service.LedgerService, deposits *service.DepositService, withdrawals *service.WithdrawService) *WalletHandler {
	RegisterValidators()
	return &WalletHandler{ledger: ledger, deposits: deposits, withdrawals: withdrawals}
}

// GET /api/wallet/balance
func (h *WalletHandler) GetBalance(c *gin.Context) {
	actor := middleware.Principal(c)
	if currency := c.Query("currency"); currency != "" {
		bal, err := h.ledger.GetBalance(c.Request.Context(), actor.UserID, currency)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, bal)
		return
	}
	list, err := h.ledger.ListBalances(c.Request.Context(), actor, actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": list})
}

type submitDepositRequest struct {
	Currency string          `json:"currency" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"decimal_gt0"`
	TxHash   *string         `json:"tx_hash"`
}

// POST /api/wallet/deposits
func (h *WalletHandler) SubmitDeposit(c *gin.Context) {
	var req submitDepositRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.deposits.SubmitDeposit(c.Request.Context(), middleware.Principal(c), service.SubmitDepositInput{
		Currency: req.Currency,
		Amount:   req.Amount,
		TxHash:   req.TxHash,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// GET /api/wallet/deposits
func (h *WalletHandler) ListDeposits(c *gin.Context) {
	list, total, err := h.deposits.ListDeposits(c.Request.Context(), middleware.Principal(c), listQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	page(c, total, list)
}

// GET /api/wallet/deposits/:id
func (h *WalletHandler) GetDeposit(c *gin.Context) {
	d, err := h.deposits.GetDeposit(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type submitWithdrawalRequest struct {
	Currency           string          `json:"currency" binding:"required"`
	Amount             decimal.Decimal `json:"amount" binding:"decimal_gt0"`
	DestinationAddress string          `json:"destination_address" binding:"required"`
	Note               *string         `json:"note"`
}

// POST /api/wallet/withdrawals
func (h *WalletHandler) SubmitWithdrawal(c *gin.Context) {
	var req submitWithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.withdrawals.SubmitWithdrawal(c.Request.Context(), middleware.Principal(c), service.SubmitWithdrawalInput{
		Currency:           req.Currency,
		Amount:             req.Amount,
		DestinationAddress: req.DestinationAddress,
		Note:               req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// GET /api/wallet/withdrawals
func (h *WalletHandler) ListWithdrawals(c *gin.Context) {
	list, total, err := h.withdrawals.ListWithdrawals(c.Request.Context(), middleware.Principal(c), listQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	page(c, total, list)
}

// GET /api/wallet/withdrawals/:id
func (h *WalletHandler) GetWithdrawal(c *gin.Context) {
	w, err := h.withdrawals.GetWithdrawal(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// GET /api/wallet/withdrawals/fee?currency=USDT&amount=100
func (h *WalletHandler) QuoteFee(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		respondError(c, apperrors.Newf(apperrors.KindInvalidAmount, "quote fee", "invalid amount %q", c.Query("amount")))
		return
	}
	q, err := h.withdrawals.QuoteFee(c.Query("currency"), amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}
