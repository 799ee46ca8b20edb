package repository

import (
	"context"
	"fmt"

	"github.com/custody_settlement/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type HotWalletRepository struct {
	db *gorm.DB
}

func NewHotWalletRepository(db *gorm.DB) *HotWalletRepository {
	return &HotWalletRepository{db: db}
}

func (r *HotWalletRepository) FindByCurrency(ctx context.Context, currency string, forUpdate bool) (*model.HotWallet, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var w model.HotWallet
	if err := q.Where("currency = ?", currency).First(&w).Error; err != nil {
		return nil, notFound("get hot wallet", err)
	}
	return &w, nil
}

func (r *HotWalletRepository) List(ctx context.Context) ([]*model.HotWallet, error) {
	var list []*model.HotWallet
	if err := r.db.WithContext(ctx).Order("currency").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list hot wallets: %w", err)
	}
	return list, nil
}

// Upsert keys on currency; an existing row keeps its id.
func (r *HotWalletRepository) Upsert(ctx context.Context, w *model.HotWallet) (*model.HotWallet, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "currency"}},
		DoUpdates: clause.AssignmentColumns([]string{"address", "label", "updated_at", "updated_by"}),
	}).Create(w).Error
	if err != nil {
		return nil, fmt.Errorf("upsert hot wallet: %w", err)
	}
	return r.FindByCurrency(ctx, w.Currency, false)
}

func (r *HotWalletRepository) Delete(ctx context.Context, id string) (*model.HotWallet, error) {
	var w model.HotWallet
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, notFound("delete hot wallet", err)
	}
	if err := r.db.WithContext(ctx).Delete(&model.HotWallet{}, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("delete hot wallet: %w", err)
	}
	return &w, nil
}
