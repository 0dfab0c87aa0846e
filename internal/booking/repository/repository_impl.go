package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bookings (
			id, service_id, mentor_id, student_id,
			scheduled_at, student_timezone, mentor_timezone, duration_minutes,
			status, payment_status, payment_method, amount, currency, charge_ref,
			payout_status,
			cancellation_hours, cancellation_policy_set_by, cancellation_policy_set_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID,
		booking.ServiceID,
		booking.MentorID,
		booking.StudentID,
		booking.ScheduledAt,
		booking.StudentTimezone,
		booking.MentorTimezone,
		booking.DurationMinutes,
		booking.Status,
		booking.PaymentStatus,
		booking.PaymentMethod,
		booking.Amount,
		booking.Currency,
		booking.ChargeRef,
		booking.PayoutStatus,
		booking.CancellationHours,
		booking.CancellationPolicySetBy,
		booking.CancellationPolicySetAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	).Error
}

const bookingColumns = `id, service_id, mentor_id, student_id,
	scheduled_at, student_timezone, mentor_timezone, duration_minutes,
	status, payment_status, payment_method, amount, currency, charge_ref,
	platform_commission, mentor_payout, commission_tier, payout_status,
	payout_date, transfer_ref, payout_failure_reason, dispute_period_ends,
	cancellation_hours, cancellation_policy_set_by, cancellation_policy_set_at,
	cancelled_by, cancelled_at, completed_at, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`,
		id,
	).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, nil
	}
	return &booking, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, nil
	}
	return &booking, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, chargeRef string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, payment_status = ?, charge_ref = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.BookingStatusConfirmed,
		domain.PaymentStatusPaid,
		chargeRef,
		now,
		id,
		domain.BookingStatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, now, disputePeriodEnds time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, completed_at = ?, dispute_period_ends = ?, payout_status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.BookingStatusCompleted,
		now,
		disputePeriodEnds,
		domain.PayoutStatusPending,
		now,
		id,
		domain.BookingStatusConfirmed,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.BookingStatus, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		now,
		id,
		from,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, from domain.BookingStatus, cancelledBy snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, cancelled_by = ?, cancelled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.BookingStatusCancelled,
		cancelledBy,
		now,
		now,
		id,
		from,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) SetPaymentRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bookings SET payment_status = ?, updated_at = ? WHERE id = ?`,
		domain.PaymentStatusRefunded,
		now,
		id,
	).Error
}

func (r *repo) RejectPendingReschedules(ctx context.Context, db *gorm.DB, bookingID snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE reschedule_requests
		 SET status = ?, resolved_at = ?
		 WHERE booking_id = ? AND status = ?`,
		domain.RescheduleStatusRejected,
		now,
		bookingID,
		domain.RescheduleStatusPending,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) InsertColdMessage(ctx context.Context, db *gorm.DB, message *domain.ColdMessage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO cold_messages (
			id, mentor_id, student_id, amount, currency,
			paid_at, payout_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID,
		message.MentorID,
		message.StudentID,
		message.Amount,
		message.Currency,
		message.PaidAt,
		message.PayoutStatus,
		message.CreatedAt,
		message.UpdatedAt,
	).Error
}
