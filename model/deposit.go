package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus string

const (
	DepositPending  DepositStatus = "pending"
	DepositApproved DepositStatus = "approved"
	DepositRejected DepositStatus = "rejected"
)

// DepositRequest is a user's claim that funds were sent to the custodian.
// Nothing is credited until an admin approves it.
type DepositRequest struct {
	ID            string          `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	UserID        string          `gorm:"column:user_id;not null;index" json:"user_id"`
	Currency      string          `gorm:"column:currency;type:varchar(16);not null" json:"currency"`
	ClaimedAmount decimal.Decimal `gorm:"column:claimed_amount;type:numeric(38,18);not null" json:"claimed_amount"`
	ClaimedTxHash *string         `gorm:"column:claimed_tx_hash;type:varchar(128)" json:"claimed_tx_hash,omitempty"`
	Status        DepositStatus   `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	AdminNote     *string         `gorm:"column:admin_note" json:"admin_note,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null" json:"created_at"`
	ReviewedAt    *time.Time      `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy    *string         `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
}

func (DepositRequest) TableName() string {
	return "deposit_requests"
}
