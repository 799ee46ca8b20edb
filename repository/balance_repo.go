package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Get reads a missing row as a zero balance.
func (r *BalanceRepository) Get(ctx context.Context, userID, currency string) (*model.Balance, error) {
	var bal model.Balance
	err := r.db.WithContext(ctx).Where("user_id = ? AND currency = ?", userID, currency).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.Balance{UserID: userID, Currency: currency, Amount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &bal, nil
}

func (r *BalanceRepository) ListByUser(ctx context.Context, userID string) ([]*model.Balance, error) {
	var list []*model.Balance
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("currency").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return list, nil
}

func (r *BalanceRepository) Credit(ctx context.Context, userID, currency string, amount decimal.Decimal) (*model.Balance, error) {
	now := time.Now().UTC()
	row := model.Balance{UserID: userID, Currency: currency, Amount: amount, UpdatedAt: now}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "currency"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":     gorm.Expr("balances.amount + EXCLUDED.amount"),
			"updated_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("credit balance: %w", err)
	}
	return r.Get(ctx, userID, currency)
}

// Debit checks and writes in one statement so concurrent debits cannot overdraw.
func (r *BalanceRepository) Debit(ctx context.Context, userID, currency string, amount decimal.Decimal) (*model.Balance, error) {
	res := r.db.WithContext(ctx).Model(&model.Balance{}).
		Where("user_id = ? AND currency = ? AND amount >= ?", userID, currency, amount).
		Updates(map[string]interface{}{
			"amount":     gorm.Expr("amount - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("debit balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.Newf(apperrors.KindInsufficientFunds, "debit balance", "%s balance below %s", currency, amount)
	}
	return r.Get(ctx, userID, currency)
}
