package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Wallet, error)
	FindByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Wallet, error)
	Insert(ctx context.Context, db *gorm.DB, wallet *Wallet) error

	// ApplyDelta adjusts the balance iff the version still matches.
	ApplyDelta(ctx context.Context, db *gorm.DB, walletID snowflake.ID, delta int64, version int64, now time.Time) (bool, error)

	InsertTransaction(ctx context.Context, db *gorm.DB, txn *WalletTransaction) error
	FindTransactionByReference(ctx context.Context, db *gorm.DB, reference string) (*WalletTransaction, error)
}
