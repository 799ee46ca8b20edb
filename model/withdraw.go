package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalRejected || s == WithdrawalFailed
}

// WithdrawalRequest is a user payout request. RequestedAmount is reserved
// (debited) when the request is created and released on reject/fail.
type WithdrawalRequest struct {
	ID                 string           `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	UserID             string           `gorm:"column:user_id;not null;index" json:"user_id"`
	Currency           string           `gorm:"column:currency;type:varchar(16);not null" json:"currency"`
	RequestedAmount    decimal.Decimal  `gorm:"column:requested_amount;type:numeric(38,18);not null" json:"requested_amount"`
	RequestedFee       decimal.Decimal  `gorm:"column:requested_fee;type:numeric(38,18);not null" json:"requested_fee"`
	FinalAmount        decimal.Decimal  `gorm:"column:final_amount;type:numeric(38,18);not null" json:"final_amount"`
	DestinationAddress string           `gorm:"column:destination_address;type:varchar(256);not null" json:"destination_address"`
	UserNote           *string          `gorm:"column:user_note" json:"user_note,omitempty"`
	Status             WithdrawalStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	AdminNote          *string          `gorm:"column:admin_note" json:"admin_note,omitempty"`
	FailureReason      *string          `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	TxHash             *string          `gorm:"column:tx_hash;type:varchar(128)" json:"tx_hash,omitempty"`
	CreatedAt          time.Time        `gorm:"column:created_at;not null" json:"created_at"`
	ReviewedAt         *time.Time       `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy         *string          `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
	// ExecutionStartedAt is committed before the payout is handed to the
	// executor. Set with a non-terminal status it means the outcome is unknown.
	ExecutionStartedAt *time.Time       `gorm:"column:execution_started_at" json:"execution_started_at,omitempty"`
	ExecutedAt         *time.Time       `gorm:"column:executed_at" json:"executed_at,omitempty"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}
