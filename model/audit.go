package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is stored as jsonb.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported scan type %T", src)
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// AuditLogEntry is append-only. One row per privileged transition.
type AuditLogEntry struct {
	ID        string    `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	ActorID   string    `gorm:"column:actor_id;not null;index" json:"actor_id"`
	Action    string    `gorm:"column:action;type:varchar(64);not null" json:"action"`
	Entity    string    `gorm:"column:entity;type:varchar(32);not null;index:idx_audit_entity,priority:1" json:"entity"`
	EntityID  string    `gorm:"column:entity_id;not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	Metadata  Metadata  `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (AuditLogEntry) TableName() string {
	return "audit_logs"
}

const (
	EntityDeposit    = "deposit_request"
	EntityWithdrawal = "withdrawal_request"
	EntityHotWallet  = "hot_wallet"
	EntityBalance    = "balance"
)
