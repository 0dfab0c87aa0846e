package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/settlement/domain"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ClaimBookings(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]bookingdomain.Booking, error) {
	var bookings []bookingdomain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, mentor_id, student_id, amount, currency, status, payout_status,
		        platform_commission, mentor_payout, commission_tier, dispute_period_ends, completed_at
		 FROM bookings
		 WHERE status IN (?, ?, ?)
		   AND payout_status = ?
		   AND dispute_period_ends <= ?
		 ORDER BY mentor_id, id
		 FOR UPDATE SKIP LOCKED
		 LIMIT ?`,
		bookingdomain.BookingStatusCompleted,
		bookingdomain.BookingStatusReviewable,
		bookingdomain.BookingStatusReviewed,
		bookingdomain.PayoutStatusPending,
		now,
		limit,
	).Scan(&bookings).Error
	return bookings, err
}

func (r *repo) ClaimColdMessages(ctx context.Context, db *gorm.DB, limit int) ([]bookingdomain.ColdMessage, error) {
	var messages []bookingdomain.ColdMessage
	err := db.WithContext(ctx).Raw(
		`SELECT id, mentor_id, student_id, amount, currency, payout_status, paid_at
		 FROM cold_messages
		 WHERE payout_status = ? AND paid_at IS NOT NULL
		 ORDER BY mentor_id, id
		 FOR UPDATE SKIP LOCKED
		 LIMIT ?`,
		bookingdomain.PayoutStatusPending,
		limit,
	).Scan(&messages).Error
	return messages, err
}

func (r *repo) RefundedAmount(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (int64, error) {
	var row struct{ Amount int64 }
	err := db.WithContext(ctx).Raw(
		`SELECT amount FROM booking_refunds WHERE booking_id = ?`,
		bookingID,
	).Scan(&row).Error
	return row.Amount, err
}

func (r *repo) BeginPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, commission, payout int64, tier string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payout_status = ?, platform_commission = ?, mentor_payout = ?, commission_tier = ?,
		     payout_failure_reason = '', updated_at = ?
		 WHERE id = ? AND payout_status IN (?, ?)`,
		bookingdomain.PayoutStatusProcessing,
		commission,
		payout,
		tier,
		now,
		id,
		bookingdomain.PayoutStatusPending,
		bookingdomain.PayoutStatusFailed,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) FinishPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, transferRef string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payout_status = ?, transfer_ref = ?, payout_date = ?, updated_at = ?
		 WHERE id = ? AND payout_status = ?`,
		bookingdomain.PayoutStatusPaid,
		transferRef,
		now,
		now,
		id,
		bookingdomain.PayoutStatusProcessing,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) FailPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payout_status = ?, payout_failure_reason = ?, updated_at = ?
		 WHERE id = ? AND payout_status IN (?, ?)`,
		bookingdomain.PayoutStatusFailed,
		reason,
		now,
		id,
		bookingdomain.PayoutStatusProcessing,
		bookingdomain.PayoutStatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) ReleasePayout(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET payout_status = ?, payout_failure_reason = ?, updated_at = ?
		 WHERE id = ? AND payout_status = ?`,
		bookingdomain.PayoutStatusPending,
		reason,
		now,
		id,
		bookingdomain.PayoutStatusProcessing,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) SetPayoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []bookingdomain.PayoutStatus, to bookingdomain.PayoutStatus, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings SET payout_status = ?, updated_at = ? WHERE id = ? AND payout_status IN (?)`,
		to,
		now,
		id,
		from,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) FindColdMessage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*bookingdomain.ColdMessage, error) {
	var message bookingdomain.ColdMessage
	err := db.WithContext(ctx).Raw(
		`SELECT id, mentor_id, student_id, amount, currency, paid_at,
		        platform_commission, mentor_payout, commission_tier,
		        payout_status, transfer_ref, failure_reason, created_at, updated_at
		 FROM cold_messages WHERE id = ?`,
		id,
	).Scan(&message).Error
	if err != nil {
		return nil, err
	}
	if message.ID == 0 {
		return nil, nil
	}
	return &message, nil
}

func (r *repo) BeginColdPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, commission, payout int64, tier string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE cold_messages
		 SET payout_status = ?, platform_commission = ?, mentor_payout = ?, commission_tier = ?,
		     failure_reason = '', updated_at = ?
		 WHERE id = ? AND payout_status IN (?, ?)`,
		bookingdomain.PayoutStatusProcessing,
		commission,
		payout,
		tier,
		now,
		id,
		bookingdomain.PayoutStatusPending,
		bookingdomain.PayoutStatusFailed,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) FinishColdPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, transferRef string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE cold_messages
		 SET payout_status = ?, transfer_ref = ?, updated_at = ?
		 WHERE id = ? AND payout_status = ?`,
		bookingdomain.PayoutStatusPaid,
		transferRef,
		now,
		id,
		bookingdomain.PayoutStatusProcessing,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) FailColdPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE cold_messages
		 SET payout_status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND payout_status IN (?, ?)`,
		bookingdomain.PayoutStatusFailed,
		reason,
		now,
		id,
		bookingdomain.PayoutStatusProcessing,
		bookingdomain.PayoutStatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) ReleaseColdPayout(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE cold_messages
		 SET payout_status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND payout_status = ?`,
		bookingdomain.PayoutStatusPending,
		reason,
		now,
		id,
		bookingdomain.PayoutStatusProcessing,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) ListFailedPayouts(ctx context.Context, db *gorm.DB, limit int) ([]bookingdomain.Booking, error) {
	var bookings []bookingdomain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, mentor_id, student_id, amount, currency, status, payout_status,
		        platform_commission, mentor_payout, commission_tier,
		        payout_failure_reason, dispute_period_ends, completed_at, updated_at
		 FROM bookings
		 WHERE payout_status = ?
		 ORDER BY updated_at DESC
		 LIMIT ?`,
		bookingdomain.PayoutStatusFailed,
		limit,
	).Scan(&bookings).Error
	return bookings, err
}
