// Package domain defines the outbound money-movement contract. Settlement
// code depends on Gateway only; provider adapters live under adapters/.
package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidConfig     = errors.New("transfer_invalid_config")
	ErrAccountNotReady   = errors.New("transfer_account_not_ready")
	ErrAccountNotFound   = errors.New("transfer_account_not_found")
	ErrDuplicateTransfer = errors.New("transfer_duplicate")
	ErrProviderRejected  = errors.New("transfer_provider_rejected")
	ErrProviderDown      = errors.New("transfer_provider_unavailable")
)

type TransferRequest struct {
	// IdempotencyKey is stable per settlement item. The provider must
	// treat a replay with the same key as the original call.
	IdempotencyKey string
	AccountID      string
	Amount         int64
	Currency       string
	Description    string
	Metadata       map[string]string
}

type TransferResult struct {
	TransferRef string
	// Replayed is true when the provider matched an earlier call with the
	// same idempotency key.
	Replayed bool
}

type RefundRequest struct {
	IdempotencyKey string
	ChargeRef      string
	Amount         int64
	Reason         string
}

type RefundResult struct {
	RefundRef string
}

// Gateway moves real money. Every method is safe to retry with the same
// idempotency key.
type Gateway interface {
	Name() string
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	AccountReady(ctx context.Context, accountID string) (bool, error)
}
