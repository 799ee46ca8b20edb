package service

import (
	"context"
	"strings"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/config"
	"github.com/custody_settlement/logging"
	"github.com/custody_settlement/model"
	"github.com/custody_settlement/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type LedgerService struct {
	store  repository.Store
	policy *config.Policy
	audit  *AuditService
	log    *logging.Logger
}

func NewLedgerService(store repository.Store, policy *config.Policy, audit *AuditService, log *logging.Logger) *LedgerService {
	return &LedgerService{store: store, policy: policy, audit: audit, log: log}
}

// Currency resolves a configured currency or fails with INVALID_INPUT.
func (l *LedgerService) Currency(op, symbol string) (config.CurrencyPolicy, error) {
	cp, ok := l.policy.Currency(symbol)
	if !ok {
		return cp, apperrors.Newf(apperrors.KindInvalidInput, op, "unsupported currency %q", strings.TrimSpace(symbol))
	}
	return cp, nil
}

// ValidateAmount requires a positive amount representable in the currency's decimals.
func (l *LedgerService) ValidateAmount(op, symbol string, amount decimal.Decimal) (config.CurrencyPolicy, error) {
	cp, err := l.Currency(op, symbol)
	if err != nil {
		return cp, err
	}
	if !amount.IsPositive() {
		return cp, apperrors.Newf(apperrors.KindInvalidAmount, op, "amount must be positive, got %s", amount)
	}
	if !cp.Fits(amount) {
		return cp, apperrors.Newf(apperrors.KindInvalidAmount, op, "%s supports at most %d decimals", cp.Symbol, cp.Decimals)
	}
	return cp, nil
}

func (l *LedgerService) Credit(ctx context.Context, tx repository.Tx, userID, currency string, amount decimal.Decimal) (*model.Balance, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Newf(apperrors.KindInvalidAmount, "credit", "amount must be positive, got %s", amount)
	}
	return tx.CreditBalance(ctx, userID, currency, amount)
}

// Debit fails with INSUFFICIENT_FUNDS without side effects when the balance is short.
func (l *LedgerService) Debit(ctx context.Context, tx repository.Tx, userID, currency string, amount decimal.Decimal) (*model.Balance, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Newf(apperrors.KindInvalidAmount, "debit", "amount must be positive, got %s", amount)
	}
	return tx.DebitBalance(ctx, userID, currency, amount)
}

func (l *LedgerService) GetBalance(ctx context.Context, userID, currency string) (*model.Balance, error) {
	cp, err := l.Currency("get balance", currency)
	if err != nil {
		return nil, err
	}
	return l.store.GetBalance(ctx, userID, cp.Symbol)
}

// ListBalances returns one entry per configured currency, zero-filled.
func (l *LedgerService) ListBalances(ctx context.Context, actor model.Principal, userID string) ([]*model.Balance, error) {
	const op = "list balances"
	if err := requireUser(actor, op); err != nil {
		return nil, err
	}
	if !canSee(actor, userID) {
		return nil, apperrors.New(apperrors.KindNotAuthorized, op, "cannot read another user's balances")
	}
	rows, err := l.store.ListBalances(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, op, err)
	}
	byCurrency := make(map[string]*model.Balance, len(rows))
	for _, b := range rows {
		byCurrency[b.Currency] = b
	}
	out := make([]*model.Balance, 0, len(rows))
	for _, sym := range l.policy.Symbols() {
		if b, ok := byCurrency[sym]; ok {
			out = append(out, b)
			delete(byCurrency, sym)
			continue
		}
		out = append(out, &model.Balance{UserID: userID, Currency: sym, Amount: decimal.Zero})
	}
	// currencies dropped from the policy still show while they hold funds
	for _, b := range rows {
		if _, ok := byCurrency[b.Currency]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

type AdjustBalanceInput struct {
	UserID   string
	Currency string
	Delta    decimal.Decimal
	Note     string
}

// AdjustBalance is a manual admin correction: positive delta credits, negative debits.
func (l *LedgerService) AdjustBalance(ctx context.Context, actor model.Principal, in AdjustBalanceInput) (*model.Balance, error) {
	const op = "adjust balance"
	if err := requireAdmin(actor, op); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "user id required")
	}
	if strings.TrimSpace(in.Note) == "" {
		return nil, apperrors.New(apperrors.KindInvalidInput, op, "a note is required for manual adjustments")
	}
	cp, err := l.ValidateAmount(op, in.Currency, in.Delta.Abs())
	if err != nil {
		return nil, err
	}

	var bal *model.Balance
	err = l.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		if in.Delta.IsPositive() {
			bal, err = l.Credit(ctx, tx, in.UserID, cp.Symbol, in.Delta)
		} else {
			bal, err = l.Debit(ctx, tx, in.UserID, cp.Symbol, in.Delta.Abs())
		}
		if err != nil {
			return err
		}
		return l.audit.Record(ctx, tx, actor.UserID, ActionBalanceAdjust, model.EntityBalance, in.UserID+":"+cp.Symbol, model.Metadata{
			"user_id":  in.UserID,
			"currency": cp.Symbol,
			"delta":    in.Delta.String(),
			"balance":  bal.Amount.String(),
			"note":     in.Note,
		})
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"admin_id": actor.UserID,
		"user_id":  in.UserID,
		"currency": cp.Symbol,
		"delta":    in.Delta.String(),
	}).Info("balance adjusted")
	return bal, nil
}
