// Package domain contains the token wallet models. Wallets hold platform
// tokens in minor units and every balance change is backed by a transaction
// row with a unique reference.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Wallet is one user's token balance. Version guards concurrent balance
// updates with compare-and-swap.
type Wallet struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex"`
	Balance   int64        `gorm:"not null"`
	Currency  string       `gorm:"type:text;not null"`
	Version   int64        `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Wallet) TableName() string { return "wallets" }

type TransactionKind string

const (
	TransactionKindCredit TransactionKind = "credit"
	TransactionKindDebit  TransactionKind = "debit"
)

// WalletTransaction records a single balance movement. Reference is unique
// so replayed credits (refund retries) land on the conflict and are dropped.
type WalletTransaction struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	WalletID    snowflake.ID    `gorm:"not null;index"`
	Kind        TransactionKind `gorm:"type:text;not null"`
	Amount      int64           `gorm:"not null"`
	Reference   string          `gorm:"type:text;not null;uniqueIndex"`
	Description string          `gorm:"type:text"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }
