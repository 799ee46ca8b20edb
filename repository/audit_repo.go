package repository

import (
	"context"
	"fmt"

	"github.com/custody_settlement/model"
	"gorm.io/gorm"
)

// AuditRepository only inserts and reads; audit rows are never updated.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, e *model.AuditLogEntry) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, q AuditQuery) ([]*model.AuditLogEntry, int64, error) {
	var list []*model.AuditLogEntry
	var total int64
	offset, limit := pageWindow(q.Page, q.Size)

	scope := r.db.WithContext(ctx).Model(&model.AuditLogEntry{})
	if q.ActorID != "" {
		scope = scope.Where("actor_id = ?", q.ActorID)
	}
	if q.Entity != "" {
		scope = scope.Where("entity = ?", q.Entity)
	}
	if q.EntityID != "" {
		scope = scope.Where("entity_id = ?", q.EntityID)
	}
	if q.Action != "" {
		scope = scope.Where("action = ?", q.Action)
	}
	scope = scope.Session(&gorm.Session{})
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	if err := scope.Order("created_at DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	return list, total, nil
}
