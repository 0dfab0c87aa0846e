package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrWalletNotFound      = errors.New("wallet_not_found")
	ErrInvalidAmount       = errors.New("invalid_wallet_amount")
	ErrInsufficientBalance = errors.New("insufficient_wallet_balance")
	ErrMissingReference    = errors.New("missing_wallet_reference")
	ErrVersionConflict     = errors.New("wallet_version_conflict")
)

type CreditRequest struct {
	UserID      snowflake.ID
	Amount      int64
	Currency    string
	Reference   string
	Description string
}

type DebitRequest struct {
	UserID      snowflake.ID
	Amount      int64
	Reference   string
	Description string
}

// Service mutates wallet balances. Credit and Debit are idempotent on
// Reference: a replay returns the original transaction with applied=false.
type Service interface {
	Credit(ctx context.Context, req CreditRequest) (*WalletTransaction, bool, error)
	Debit(ctx context.Context, req DebitRequest) (*WalletTransaction, bool, error)
	Balance(ctx context.Context, userID snowflake.ID) (*Wallet, error)
}
