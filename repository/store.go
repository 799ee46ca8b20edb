package repository

import (
	"context"

	"github.com/custody_settlement/model"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ListQuery struct {
	UserID   string
	Currency string
	Status   string
	Page     int
	Size     int
}

type AuditQuery struct {
	ActorID  string
	Entity   string
	EntityID string
	Action   string
	Page     int
	Size     int
}

func pageWindow(page, size int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return (page - 1) * size, size
}

// Tx is the set of mutations that must commit together. Lock* methods take a
// row lock that is held until the transaction ends.
type Tx interface {
	CreditBalance(ctx context.Context, userID, currency string, amount decimal.Decimal) (*model.Balance, error)
	// DebitBalance fails with INSUFFICIENT_FUNDS and changes nothing when amount exceeds the balance.
	DebitBalance(ctx context.Context, userID, currency string, amount decimal.Decimal) (*model.Balance, error)

	CreateDeposit(ctx context.Context, d *model.DepositRequest) error
	LockDeposit(ctx context.Context, id string) (*model.DepositRequest, error)
	UpdateDeposit(ctx context.Context, d *model.DepositRequest) error
	// FindApprovedDepositByTxHash returns the approved deposit of currency that
	// claims txHash (case-insensitive), or NOT_FOUND.
	FindApprovedDepositByTxHash(ctx context.Context, currency, txHash string) (*model.DepositRequest, error)

	CreateWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error
	LockWithdrawal(ctx context.Context, id string) (*model.WithdrawalRequest, error)
	UpdateWithdrawal(ctx context.Context, w *model.WithdrawalRequest) error

	LockHotWallet(ctx context.Context, currency string) (*model.HotWallet, error)
	// UpsertHotWallet replaces the row of w.Currency or inserts it, returning the stored row.
	UpsertHotWallet(ctx context.Context, w *model.HotWallet) (*model.HotWallet, error)
	DeleteHotWallet(ctx context.Context, id string) (*model.HotWallet, error)

	AppendAudit(ctx context.Context, e *model.AuditLogEntry) error
}

// Store must not be read from inside WithTx; use the Tx instead.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetBalance(ctx context.Context, userID, currency string) (*model.Balance, error)
	ListBalances(ctx context.Context, userID string) ([]*model.Balance, error)

	GetDeposit(ctx context.Context, id string) (*model.DepositRequest, error)
	ListDeposits(ctx context.Context, q ListQuery) ([]*model.DepositRequest, int64, error)

	GetWithdrawal(ctx context.Context, id string) (*model.WithdrawalRequest, error)
	ListWithdrawals(ctx context.Context, q ListQuery) ([]*model.WithdrawalRequest, int64, error)

	GetHotWallet(ctx context.Context, currency string) (*model.HotWallet, error)
	ListHotWallets(ctx context.Context) ([]*model.HotWallet, error)

	ListAuditLogs(ctx context.Context, q AuditQuery) ([]*model.AuditLogEntry, int64, error)
}
