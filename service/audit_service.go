package service

import (
	"context"
	"time"

	"github.com/custody_settlement/model"
	"github.com/custody_settlement/repository"
	"github.com/google/uuid"
)

const (
	ActionDepositSubmit      = "deposit.submit"
	ActionDepositApprove     = "deposit.approve"
	ActionDepositReject      = "deposit.reject"
	ActionDepositVerify      = "deposit.verify"
	ActionWithdrawalSubmit   = "withdrawal.submit"
	ActionWithdrawalExecute  = "withdrawal.execute"
	ActionWithdrawalExecFail = "withdrawal.execute_failed"
	ActionHotWalletUpsert    = "hot_wallet.upsert"
	ActionHotWalletDelete    = "hot_wallet.delete"
	ActionBalanceAdjust      = "balance.adjust"
	withdrawalDecisionPrefix = "withdrawal."
)

type AuditService struct {
	store repository.Store
}

func NewAuditService(store repository.Store) *AuditService {
	return &AuditService{store: store}
}

// Record appends inside the caller's transaction so the entry commits or
// rolls back with the mutation it describes.
func (s *AuditService) Record(ctx context.Context, tx repository.Tx, actorID, action, entity, entityID string, metadata model.Metadata) error {
	if metadata == nil {
		metadata = model.Metadata{}
	}
	return tx.AppendAudit(ctx, &model.AuditLogEntry{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *AuditService) List(ctx context.Context, actor model.Principal, q repository.AuditQuery) ([]*model.AuditLogEntry, int64, error) {
	if err := requireAdmin(actor, "list audit logs"); err != nil {
		return nil, 0, err
	}
	return s.store.ListAuditLogs(ctx, q)
}
