package service

import (
	"context"
	"testing"
	"time"

	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/testutil"
	"github.com/mentorhive/mentorhive/internal/wallet/domain"
	"github.com/mentorhive/mentorhive/internal/wallet/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWalletService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    testutil.NewDB(t),
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk
}

func TestCreditCreatesWalletOnFirstUse(t *testing.T) {
	svc, clk := newWalletService(t)
	node := testutil.NewNode(t)
	userID := node.Generate()

	txn, applied, err := svc.Credit(context.Background(), domain.CreditRequest{
		UserID:    userID,
		Amount:    5000,
		Currency:  "USD",
		Reference: "topup:1",
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(5000), txn.Amount)

	wallet, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), wallet.Balance)

	// Every timestamp on the money path comes from the injected clock.
	assert.Equal(t, clk.Now(), txn.CreatedAt.UTC())
	assert.Equal(t, clk.Now(), wallet.UpdatedAt.UTC())
}

func TestCreditIsIdempotentOnReference(t *testing.T) {
	svc, _ := newWalletService(t)
	node := testutil.NewNode(t)
	userID := node.Generate()

	first, applied, err := svc.Credit(context.Background(), domain.CreditRequest{
		UserID:    userID,
		Amount:    5000,
		Currency:  "USD",
		Reference: "topup:1",
	})
	require.NoError(t, err)
	assert.True(t, applied)

	replay, applied, err := svc.Credit(context.Background(), domain.CreditRequest{
		UserID:    userID,
		Amount:    5000,
		Currency:  "USD",
		Reference: "topup:1",
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, first.ID, replay.ID)

	wallet, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), wallet.Balance)
}

func TestDebit(t *testing.T) {
	svc, _ := newWalletService(t)
	node := testutil.NewNode(t)
	userID := node.Generate()

	_, _, err := svc.Credit(context.Background(), domain.CreditRequest{
		UserID:    userID,
		Amount:    5000,
		Currency:  "USD",
		Reference: "topup:1",
	})
	require.NoError(t, err)

	txn, applied, err := svc.Debit(context.Background(), domain.DebitRequest{
		UserID:    userID,
		Amount:    3000,
		Reference: "booking:1:payment",
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(-3000), txn.Amount)

	// Replays do not move money twice.
	_, applied, err = svc.Debit(context.Background(), domain.DebitRequest{
		UserID:    userID,
		Amount:    3000,
		Reference: "booking:1:payment",
	})
	require.NoError(t, err)
	assert.False(t, applied)

	wallet, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), wallet.Balance)

	_, _, err = svc.Debit(context.Background(), domain.DebitRequest{
		UserID:    userID,
		Amount:    9000,
		Reference: "booking:2:payment",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestDebitRequiresWallet(t *testing.T) {
	svc, _ := newWalletService(t)
	node := testutil.NewNode(t)

	_, _, err := svc.Debit(context.Background(), domain.DebitRequest{
		UserID:    node.Generate(),
		Amount:    100,
		Reference: "booking:1:payment",
	})
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestAmountAndReferenceValidation(t *testing.T) {
	svc, _ := newWalletService(t)
	node := testutil.NewNode(t)
	userID := node.Generate()

	_, _, err := svc.Credit(context.Background(), domain.CreditRequest{UserID: userID, Amount: 0, Reference: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, _, err = svc.Credit(context.Background(), domain.CreditRequest{UserID: userID, Amount: 100})
	assert.ErrorIs(t, err, domain.ErrMissingReference)

	_, _, err = svc.Debit(context.Background(), domain.DebitRequest{UserID: userID, Amount: -5, Reference: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}
