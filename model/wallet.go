package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is one user's holding in one currency. Never negative.
type Balance struct {
	UserID    string          `gorm:"primaryKey;column:user_id" json:"user_id"`
	Currency  string          `gorm:"primaryKey;column:currency;type:varchar(16)" json:"currency"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(38,18);not null" json:"amount"`
	UpdatedAt time.Time       `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Balance) TableName() string {
	return "balances"
}

// HotWallet is the custodial payout source for a currency, at most one per currency.
type HotWallet struct {
	ID        string    `gorm:"primaryKey;column:id;type:uuid" json:"id"`
	Currency  string    `gorm:"column:currency;type:varchar(16);uniqueIndex" json:"currency"`
	Address   string    `gorm:"column:address;type:varchar(256);not null" json:"address"`
	Label     *string   `gorm:"column:label" json:"label,omitempty"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
	UpdatedBy string    `gorm:"column:updated_by;not null" json:"updated_by"`
}

func (HotWallet) TableName() string {
	return "hot_wallets"
}
