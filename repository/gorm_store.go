package repository

import (
	"context"
	"errors"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GormStore struct {
	db          *gorm.DB
	balances    *BalanceRepository
	deposits    *DepositRepository
	withdrawals *WithdrawRepository
	wallets     *HotWalletRepository
	audit       *AuditRepository
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:          db,
		balances:    NewBalanceRepository(db),
		deposits:    NewDepositRepository(db),
		withdrawals: NewWithdrawRepository(db),
		wallets:     NewHotWalletRepository(db),
		audit:       NewAuditRepository(db),
	}
}

func (s *GormStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{
			balances:    NewBalanceRepository(db),
			deposits:    NewDepositRepository(db),
			withdrawals: NewWithdrawRepository(db),
			wallets:     NewHotWalletRepository(db),
			audit:       NewAuditRepository(db),
		})
	})
}

func (s *GormStore) GetBalance(ctx context.Context, userID, currency string) (*model.Balance, error) {
	return s.balances.Get(ctx, userID, currency)
}

func (s *GormStore) ListBalances(ctx context.Context, userID string) ([]*model.Balance, error) {
	return s.balances.ListByUser(ctx, userID)
}

func (s *GormStore) GetDeposit(ctx context.Context, id string) (*model.DepositRequest, error) {
	return s.deposits.Get(ctx, id, false)
}

func (s *GormStore) ListDeposits(ctx context.Context, q ListQuery) ([]*model.DepositRequest, int64, error) {
	return s.deposits.List(ctx, q)
}

func (s *GormStore) GetWithdrawal(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	return s.withdrawals.Get(ctx, id, false)
}

func (s *GormStore) ListWithdrawals(ctx context.Context, q ListQuery) ([]*model.WithdrawalRequest, int64, error) {
	return s.withdrawals.List(ctx, q)
}

func (s *GormStore) GetHotWallet(ctx context.Context, currency string) (*model.HotWallet, error) {
	return s.wallets.FindByCurrency(ctx, currency, false)
}

func (s *GormStore) ListHotWallets(ctx context.Context) ([]*model.HotWallet, error) {
	return s.wallets.List(ctx)
}

func (s *GormStore) ListAuditLogs(ctx context.Context, q AuditQuery) ([]*model.AuditLogEntry, int64, error) {
	return s.audit.List(ctx, q)
}

type gormTx struct {
	balances    *BalanceRepository
	deposits    *DepositRepository
	withdrawals *WithdrawRepository
	wallets     *HotWalletRepository
	audit       *AuditRepository
}

func (t *gormTx) CreditBalance(ctx context.Context, userID, currency string, amount decimal.Decimal) (*model.Balance, error) {
	return t.balances.Credit(ctx, userID, currency, amount)
}

func (t *gormTx) DebitBalance(ctx context.Context, userID, currency string, amount decimal.Decimal) (*model.Balance, error) {
	return t.balances.Debit(ctx, userID, currency, amount)
}

func (t *gormTx) CreateDeposit(ctx context.Context, d *model.DepositRequest) error {
	return t.deposits.Create(ctx, d)
}

func (t *gormTx) LockDeposit(ctx context.Context, id string) (*model.DepositRequest, error) {
	return t.deposits.Get(ctx, id, true)
}

func (t *gormTx) UpdateDeposit(ctx context.Context, d *model.DepositRequest) error {
	return t.deposits.Update(ctx, d)
}

func (t *gormTx) FindApprovedDepositByTxHash(ctx context.Context, currency, txHash string) (*model.DepositRequest, error) {
	return t.deposits.FindApprovedByTxHash(ctx, currency, txHash)
}

func (t *gormTx) CreateWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error {
	return t.withdrawals.Create(ctx, w)
}

func (t *gormTx) LockWithdrawal(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	return t.withdrawals.Get(ctx, id, true)
}

func (t *gormTx) UpdateWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error {
	return t.withdrawals.Update(ctx, w)
}

func (t *gormTx) LockHotWallet(ctx context.Context, currency string) (*model.HotWallet, error) {
	return t.wallets.FindByCurrency(ctx, currency, true)
}

func (t *gormTx) UpsertHotWallet(ctx context.Context, w *model.HotWallet) (*model.HotWallet, error) {
	return t.wallets.Upsert(ctx, w)
}

func (t *gormTx) DeleteHotWallet(ctx context.Context, id string) (*model.HotWallet, error) {
	return t.wallets.Delete(ctx, id)
}

func (t *gormTx) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	return t.audit.Create(ctx, e)
}

func notFound(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.KindNotFound, op, err)
	}
	return apperrors.Wrap(apperrors.KindInternal, op, err)
}
