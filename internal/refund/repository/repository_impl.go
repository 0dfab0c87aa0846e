package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/refund/domain"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const refundColumns = `id, booking_id, status, type, amount, external_refund_ref,
	processed_at, reason, failure_reason, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, refund *bookingdomain.BookingRefund) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO booking_refunds (
			id, booking_id, status, type, amount, external_refund_ref,
			processed_at, reason, failure_reason, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		refund.ID,
		refund.BookingID,
		refund.Status,
		refund.Type,
		refund.Amount,
		refund.ExternalRefundRef,
		refund.ProcessedAt,
		refund.Reason,
		refund.FailureReason,
		refund.CreatedAt,
		refund.UpdatedAt,
	).Error
}

func (r *repo) FindByBookingID(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*bookingdomain.BookingRefund, error) {
	var refund bookingdomain.BookingRefund
	err := db.WithContext(ctx).Raw(
		`SELECT `+refundColumns+` FROM booking_refunds WHERE booking_id = ?`,
		bookingID,
	).Scan(&refund).Error
	if err != nil {
		return nil, err
	}
	if refund.ID == 0 {
		return nil, nil
	}
	return &refund, nil
}

func (r *repo) FindByBookingIDForUpdate(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*bookingdomain.BookingRefund, error) {
	var refund bookingdomain.BookingRefund
	err := db.WithContext(ctx).Raw(
		`SELECT `+refundColumns+` FROM booking_refunds WHERE booking_id = ? FOR UPDATE`,
		bookingID,
	).Scan(&refund).Error
	if err != nil {
		return nil, err
	}
	if refund.ID == 0 {
		return nil, nil
	}
	return &refund, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, externalRef string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE booking_refunds
		 SET status = ?, external_refund_ref = ?, processed_at = ?, failure_reason = '', updated_at = ?
		 WHERE id = ? AND status = ?`,
		bookingdomain.RefundStatusProcessed,
		externalRef,
		now,
		now,
		id,
		bookingdomain.RefundStatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE booking_refunds
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		bookingdomain.RefundStatusFailed,
		reason,
		now,
		id,
		bookingdomain.RefundStatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) ListPendingOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]bookingdomain.BookingRefund, error) {
	var refunds []bookingdomain.BookingRefund
	err := db.WithContext(ctx).Raw(
		`SELECT `+refundColumns+` FROM booking_refunds
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at ASC
		 LIMIT ?`,
		bookingdomain.RefundStatusPending,
		cutoff,
		limit,
	).Scan(&refunds).Error
	return refunds, err
}
