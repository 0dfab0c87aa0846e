// Package domain defines the settlement contracts. One settlement path
// serves the hourly sweep, dispute resolutions, and operator replays; they
// differ only in the options they pass.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
)

var (
	ErrNotSettleable    = errors.New("booking_not_settleable")
	ErrWindowOpen       = errors.New("dispute_window_open")
	ErrDisputed         = errors.New("booking_disputed")
	ErrAlreadySettled   = errors.New("booking_already_settled")
	ErrAlreadyClaimed   = errors.New("booking_payout_claimed")
	ErrColdMessageState = errors.New("cold_message_not_settleable")
)

type SettleOptions struct {
	// Force settles even when the dispute window is still open. Dispute
	// resolutions and operator force-process use it.
	Force bool
	// BaseOverride forces the split base. When unset the service derives
	// the base from the booking amount less any recorded refund.
	BaseOverride *int64
}

type Outcome struct {
	BookingID    snowflake.ID
	Commission   int64
	Payout       int64
	Tier         string
	TransferRef  string
	AlreadyPaid  bool
}

// Service settles one item at a time. All entry points are idempotent: the
// transfer idempotency key derives from the item id, and the payout status
// row acts as the claim.
type Service interface {
	SettleBooking(ctx context.Context, bookingID snowflake.ID, opts SettleOptions) (*Outcome, error)
	SettleColdMessage(ctx context.Context, messageID snowflake.ID) (*Outcome, error)
	// MarkDisputed parks a booking's payout while a dispute is open.
	MarkDisputed(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) error
	// MarkRefunded closes the payout after a full refund resolution.
	MarkRefunded(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) error
	// ReleaseDispute puts a parked payout back in the sweep's reach once
	// the dispute ends in the mentor's favor.
	ReleaseDispute(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) error
	// FailedPayouts lists payouts stuck in the failed state for the
	// operator dashboard.
	FailedPayouts(ctx context.Context, limit int) ([]bookingdomain.Booking, error)
}

// DisputeGate answers whether an open dispute blocks settlement. The
// dispute feature provides it; settlement stays ignorant of dispute
// internals.
type DisputeGate interface {
	ActiveDisputeExists(ctx context.Context, bookingID snowflake.ID) (bool, error)
}

type Repository interface {
	// ClaimBookings locks up to limit bookings whose dispute window has
	// lapsed and whose payout is still pending, skipping rows other
	// workers already hold. Results are ordered by mentor so one sweep
	// pays each mentor serially.
	ClaimBookings(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]bookingdomain.Booking, error)
	ClaimColdMessages(ctx context.Context, db *gorm.DB, limit int) ([]bookingdomain.ColdMessage, error)

	// RefundedAmount returns what the booking's refund row owes the
	// student, zero when no refund exists. A booking has at most one.
	RefundedAmount(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (int64, error)

	// BeginPayout stamps the split snapshot and flips the payout to
	// processing iff it is still claimable.
	BeginPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, commission, payout int64, tier string, now time.Time) (bool, error)
	FinishPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, transferRef string, now time.Time) (bool, error)
	FailPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error)
	// ReleasePayout puts a processing booking back in the sweep's reach,
	// recording why the attempt did not land.
	ReleasePayout(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error)
	SetPayoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []bookingdomain.PayoutStatus, to bookingdomain.PayoutStatus, now time.Time) (bool, error)

	FindColdMessage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*bookingdomain.ColdMessage, error)
	BeginColdPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, commission, payout int64, tier string, now time.Time) (bool, error)
	FinishColdPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, transferRef string, now time.Time) (bool, error)
	FailColdPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error)
	ReleaseColdPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error)

	ListFailedPayouts(ctx context.Context, db *gorm.DB, limit int) ([]bookingdomain.Booking, error)
}
