package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)

	// MarkPaid flips pending -> confirmed iff the booking is still pending.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, chargeRef string, now time.Time) (bool, error)
	// MarkCompleted flips confirmed -> completed and stamps the dispute window.
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, now, disputePeriodEnds time.Time) (bool, error)
	// MarkStatus performs a guarded forward transition (reviewable/reviewed).
	MarkStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to BookingStatus, now time.Time) (bool, error)
	// MarkCancelled flips a pending/confirmed booking to cancelled.
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, from BookingStatus, cancelledBy snowflake.ID, now time.Time) (bool, error)

	SetPaymentRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error

	InsertColdMessage(ctx context.Context, db *gorm.DB, message *ColdMessage) error

	// RejectPendingReschedules closes out open reschedule requests when a
	// booking is cancelled; returns how many were rejected.
	RejectPendingReschedules(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, now time.Time) (int64, error)
}
