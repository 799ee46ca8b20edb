package handler

import (
	"net/http"
	"strconv"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/middleware"
	"github.com/custody_settlement/repository"
	"github.com/custody_settlement/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AdminHandler struct {
	ledger      *service.LedgerService
	deposits    *service.DepositService
	withdrawals *service.WithdrawService
	wallets     *service.WalletService
	audit       *service.AuditService
}

func NewAdminHandler(ledger *service.LedgerService, deposits *service.DepositService, withdrawals *service.WithdrawService,
	wallets *service.WalletService, audit *service.AuditService) *AdminHandler {
	RegisterValidators()
	return &AdminHandler{ledger: ledger, deposits: deposits, withdrawals: withdrawals, wallets: wallets, audit: audit}
}

type reviewRequest struct {
	Decision string  `json:"decision" binding:"required"`
	Note     *string `json:"note"`
	TxHash   *string `json:"tx_hash"`
}

func (r reviewRequest) input() service.ReviewInput {
	return service.ReviewInput{Decision: r.Decision, Note: r.Note, TxHash: r.TxHash}
}

// GET /api/admin/deposits
func (h *AdminHandler) ListDeposits(c *gin.Context) {
	list, total, err := h.deposits.ListDeposits(c.Request.Context(), middleware.Principal(c), listQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	page(c, total, list)
}

// POST /api/admin/deposits/:id/review
func (h *AdminHandler) ReviewDeposit(c *gin.Context) {
	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.deposits.ReviewDeposit(c.Request.Context(), middleware.Principal(c), c.Param("id"), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type verifyRequest struct {
	TxHash *string `json:"tx_hash"`
}

// POST /api/admin/deposits/:id/verify
func (h *AdminHandler) VerifyDeposit(c *gin.Context) {
	var req verifyRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	res, err := h.deposits.VerifyDeposit(c.Request.Context(), middleware.Principal(c), c.Param("id"), req.TxHash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/admin/withdrawals
func (h *AdminHandler) ListWithdrawals(c *gin.Context) {
	list, total, err := h.withdrawals.ListWithdrawals(c.Request.Context(), middleware.Principal(c), listQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	page(c, total, list)
}

// POST /api/admin/withdrawals/:id/review
func (h *AdminHandler) ReviewWithdrawal(c *gin.Context) {
	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.withdrawals.ReviewWithdrawal(c.Request.Context(), middleware.Principal(c), c.Param("id"), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// POST /api/admin/withdrawals/:id/execute
func (h *AdminHandler) ExecuteWithdrawal(c *gin.Context) {
	w, err := h.withdrawals.ExecuteWithdrawal(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		body := errorBody(err)
		// a failed payout still changed the request
		if w != nil {
			body["withdrawal"] = w
		}
		_ = c.Error(err)
		c.JSON(statusOf(apperrors.KindOf(err)), body)
		return
	}
	c.JSON(http.StatusOK, w)
}

// GET /api/admin/hot-wallets
func (h *AdminHandler) ListHotWallets(c *gin.Context) {
	list, err := h.wallets.ListHotWallets(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hot_wallets": list})
}

type upsertHotWalletRequest struct {
	Address string  `json:"address" binding:"required"`
	Label   *string `json:"label"`
}

// PUT /api/admin/hot-wallets/:currency
func (h *AdminHandler) UpsertHotWallet(c *gin.Context) {
	var req upsertHotWalletRequest
	if !bindJSON(c, &req) {
		return
	}
	w, err := h.wallets.UpsertHotWallet(c.Request.Context(), middleware.Principal(c), service.UpsertHotWalletInput{
		Currency: c.Param("currency"),
		Address:  req.Address,
		Label:    req.Label,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// DELETE /api/admin/hot-wallets/:id
func (h *AdminHandler) DeleteHotWallet(c *gin.Context) {
	if err := h.wallets.DeleteHotWallet(c.Request.Context(), middleware.Principal(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/admin/audit-logs
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	pg, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	list, total, err := h.audit.List(c.Request.Context(), middleware.Principal(c), repository.AuditQuery{
		ActorID:  c.Query("actor_id"),
		Entity:   c.Query("entity"),
		EntityID: c.Query("entity_id"),
		Action:   c.Query("action"),
		Page:     pg,
		Size:     size,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	page(c, total, list)
}

// GET /api/admin/balances/:user_id
func (h *AdminHandler) ListBalances(c *gin.Context) {
	list, err := h.ledger.ListBalances(c.Request.Context(), middleware.Principal(c), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "balances": list})
}

type adjustBalanceRequest struct {
	Currency string          `json:"currency" binding:"required"`
	Delta    decimal.Decimal `json:"delta"`
	Note     string          `json:"note" binding:"required"`
}

// POST /api/admin/balances/:user_id/adjust
func (h *AdminHandler) AdjustBalance(c *gin.Context) {
	var req adjustBalanceRequest
	if !bindJSON(c, &req) {
		return
	}
	bal, err := h.ledger.AdjustBalance(c.Request.Context(), middleware.Principal(c), service.AdjustBalanceInput{
		UserID:   c.Param("user_id"),
		Currency: req.Currency,
		Delta:    req.Delta,
		Note:     req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}
