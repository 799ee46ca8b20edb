package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DepositRepository struct {
	db *gorm.DB
}

func NewDepositRepository(db *gorm.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) Create(ctx context.Context, d *model.DepositRequest) error {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("create deposit: %w", err)
	}
	return nil
}

func (r *DepositRepository) Get(ctx context.Context, id string, forUpdate bool) (*model.DepositRequest, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var d model.DepositRequest
	if err := q.Where("id = ?", id).First(&d).Error; err != nil {
		return nil, notFound("get deposit", err)
	}
	return &d, nil
}

// Update relies on the uq_deposit_requests_approved_tx index to refuse a
// second approved deposit for the same transaction.
func (r *DepositRepository) Update(ctx context.Context, d *model.DepositRequest) error {
	err := r.db.WithContext(ctx).Save(d).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Newf(apperrors.KindInvalidInput, "update deposit", "transaction %s is already credited", strings.ToLower(*d.ClaimedTxHash))
	}
	if err != nil {
		return fmt.Errorf("update deposit: %w", err)
	}
	return nil
}

func (r *DepositRepository) FindApprovedByTxHash(ctx context.Context, currency, txHash string) (*model.DepositRequest, error) {
	var d model.DepositRequest
	err := r.db.WithContext(ctx).
		Where("currency = ? AND lower(claimed_tx_hash) = lower(?) AND status = ?", currency, txHash, model.DepositApproved).
		First(&d).Error
	if err != nil {
		return nil, notFound("find deposit by tx hash", err)
	}
	return &d, nil
}

func (r *DepositRepository) List(ctx context.Context, q ListQuery) ([]*model.DepositRequest, int64, error) {
	var list []*model.DepositRequest
	var total int64
	offset, limit := pageWindow(q.Page, q.Size)
	scope := applyListQuery(r.db.WithContext(ctx).Model(&model.DepositRequest{}), q)
	scope = scope.Session(&gorm.Session{})
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count deposits: %w", err)
	}
	if err := scope.Order("created_at DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, fmt.Errorf("list deposits: %w", err)
	}
	return list, total, nil
}

func applyListQuery(db *gorm.DB, q ListQuery) *gorm.DB {
	if q.UserID != "" {
		db = db.Where("user_id = ?", q.UserID)
	}
	if q.Currency != "" {
		db = db.Where("currency = ?", q.Currency)
	}
	if q.Status != "" {
		db = db.Where("status = ?", q.Status)
	}
	return db
}
