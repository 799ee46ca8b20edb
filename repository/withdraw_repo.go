package repository

import (
	"context"
	"fmt"

	"github.com/custody_settlement/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WithdrawRepository struct {
	db *gorm.DB
}

func NewWithdrawRepository(db *gorm.DB) *WithdrawRepository {
	return &WithdrawRepository{db: db}
}

func (r *WithdrawRepository) Create(ctx context.Context, w *model.WithdrawalRequest) error {
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("create withdrawal: %w", err)
	}
	return nil
}

func (r *WithdrawRepository) Get(ctx context.Context, id string, forUpdate bool) (*model.WithdrawalRequest, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var w model.WithdrawalRequest
	if err := q.Where("id = ?", id).First(&w).Error; err != nil {
		return nil, notFound("get withdrawal", err)
	}
	return &w, nil
}

func (r *WithdrawRepository) Update(ctx context.Context, w *model.WithdrawalRequest) error {
	if err := r.db.WithContext(ctx).Save(w).Error; err != nil {
		return fmt.Errorf("update withdrawal: %w", err)
	}
	return nil
}

func (r *WithdrawRepository) List(ctx context.Context, q ListQuery) ([]*model.WithdrawalRequest, int64, error) {
	var list []*model.WithdrawalRequest
	var total int64
	offset, limit := pageWindow(q.Page, q.Size)
	scope := applyListQuery(r.db.WithContext(ctx).Model(&model.WithdrawalRequest{}), q)
	scope = scope.Session(&gorm.Session{})
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}
	if err := scope.Order("created_at DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}
	return list, total, nil
}
