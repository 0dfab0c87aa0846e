// Package domain holds the refund policy computation and the refund
// execution contracts.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/config"
	"github.com/mentorhive/mentorhive/internal/money"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
)

var (
	ErrRefundNotFound      = errors.New("refund_not_found")
	ErrRefundAlreadyExists = errors.New("refund_already_exists")
	ErrNothingToRefund     = errors.New("nothing_to_refund")
)

type ComputeInput struct {
	Amount            money.Amount
	ScheduledAt       time.Time
	CancellationHours int
	CancelledByMentor bool
	Now               time.Time
}

// Compute returns the refund due on cancellation. Mentor cancellations
// always refund in full. Student cancellations refund in full outside the
// booking's notice window, half inside it down to the floor, and nothing
// under the floor. A session already started refunds nothing.
func Compute(in ComputeInput, policy config.Policy) money.Amount {
	if in.CancelledByMentor {
		return in.Amount
	}

	until := in.ScheduledAt.Sub(in.Now)
	if until <= 0 {
		return 0
	}

	notice := time.Duration(in.CancellationHours) * time.Hour
	floor := time.Duration(policy.PartialRefundFloorHours) * time.Hour

	switch {
	case until >= notice:
		return in.Amount
	case until >= floor:
		return money.PercentOf(in.Amount, int64(policy.PartialRefundPercent)*100)
	default:
		return 0
	}
}

type ExecuteRequest struct {
	Booking *bookingdomain.Booking
	Amount  money.Amount
	// ToTokens credits the student's wallet instead of reversing the
	// external charge. Token-paid bookings always refund to tokens.
	ToTokens bool
	Reason   string
}

// Service owns booking_refunds rows. Create runs inside the cancellation
// transaction; Process moves money and may be replayed safely.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, req ExecuteRequest) (*bookingdomain.BookingRefund, error)
	Process(ctx context.Context, bookingID snowflake.ID) error
	// ProcessStuck retries pending refunds older than the configured
	// threshold. Used by the scheduler sweep.
	ProcessStuck(ctx context.Context, olderThan time.Time) (int, error)
	GetByBookingID(ctx context.Context, bookingID snowflake.ID) (*bookingdomain.BookingRefund, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, refund *bookingdomain.BookingRefund) error
	FindByBookingID(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*bookingdomain.BookingRefund, error)
	FindByBookingIDForUpdate(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*bookingdomain.BookingRefund, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, externalRef string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error)
	ListPendingOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]bookingdomain.BookingRefund, error)
}
