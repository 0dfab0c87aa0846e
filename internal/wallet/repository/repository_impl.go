package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const walletColumns = `id, user_id, balance, currency, version, created_at, updated_at`

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = ?`,
		userID,
	).Scan(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *repo) FindByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = ? FOR UPDATE`,
		userID,
	).Scan(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, wallet *domain.Wallet) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallets (id, user_id, balance, currency, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		wallet.ID,
		wallet.UserID,
		wallet.Balance,
		wallet.Currency,
		wallet.Version,
		wallet.CreatedAt,
		wallet.UpdatedAt,
	).Error
}

func (r *repo) ApplyDelta(ctx context.Context, db *gorm.DB, walletID snowflake.ID, delta int64, version int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE wallets
		 SET balance = balance + ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		delta,
		now,
		walletID,
		version,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.WalletTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallet_transactions (id, wallet_id, kind, amount, reference, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.WalletID,
		txn.Kind,
		txn.Amount,
		txn.Reference,
		txn.Description,
		txn.CreatedAt,
	).Error
}

func (r *repo) FindTransactionByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.WalletTransaction, error) {
	var txn domain.WalletTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, wallet_id, kind, amount, reference, description, created_at
		 FROM wallet_transactions WHERE reference = ?`,
		reference,
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}
