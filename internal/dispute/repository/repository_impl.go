package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/dispute/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const disputeColumns = `id, booking_id, filed_by, status, reason, details, evidence,
	mentor_response, mentor_evidence, mentor_responded_at,
	decision, partial_refund_amount, resolution_notes, resolved_by, resolved_at,
	created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, dispute *domain.Dispute) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO disputes (
			id, booking_id, filed_by, status, reason, details, evidence,
			mentor_response, mentor_evidence, mentor_responded_at,
			decision, partial_refund_amount, resolution_notes, resolved_by, resolved_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dispute.ID,
		dispute.BookingID,
		dispute.FiledBy,
		dispute.Status,
		dispute.Reason,
		dispute.Details,
		dispute.Evidence,
		dispute.MentorResponse,
		dispute.MentorEvidence,
		dispute.MentorRespondedAt,
		dispute.Decision,
		dispute.PartialRefundAmount,
		dispute.ResolutionNotes,
		dispute.ResolvedBy,
		dispute.ResolvedAt,
		dispute.CreatedAt,
		dispute.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Dispute, error) {
	var dispute domain.Dispute
	err := db.WithContext(ctx).Raw(
		`SELECT `+disputeColumns+` FROM disputes WHERE id = ?`,
		id,
	).Scan(&dispute).Error
	if err != nil {
		return nil, err
	}
	if dispute.ID == 0 {
		return nil, nil
	}
	return &dispute, nil
}

func (r *repo) FindActiveByBookingID(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*domain.Dispute, error) {
	var dispute domain.Dispute
	err := db.WithContext(ctx).Raw(
		`SELECT `+disputeColumns+` FROM disputes
		 WHERE booking_id = ? AND status IN (?, ?, ?)
		 LIMIT 1`,
		bookingID,
		domain.DisputeStatusPending,
		domain.DisputeStatusMentorResponded,
		domain.DisputeStatusAdminReview,
	).Scan(&dispute).Error
	if err != nil {
		return nil, err
	}
	if dispute.ID == 0 {
		return nil, nil
	}
	return &dispute, nil
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, statuses []domain.DisputeStatus, limit int) ([]domain.Dispute, error) {
	var disputes []domain.Dispute
	err := db.WithContext(ctx).Raw(
		`SELECT `+disputeColumns+` FROM disputes
		 WHERE status IN (?)
		 ORDER BY created_at ASC
		 LIMIT ?`,
		statuses,
		limit,
	).Scan(&disputes).Error
	return disputes, err
}

func (r *repo) SetMentorResponse(ctx context.Context, db *gorm.DB, id snowflake.ID, response string, evidence datatypes.JSON, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE disputes
		 SET status = ?, mentor_response = ?, mentor_evidence = ?, mentor_responded_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.DisputeStatusMentorResponded,
		response,
		evidence,
		now,
		now,
		id,
		domain.DisputeStatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.DisputeStatus, to domain.DisputeStatus, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE disputes SET status = ?, updated_at = ? WHERE id = ? AND status IN (?)`,
		to,
		now,
		id,
		from,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, decision domain.Decision, partialAmount *int64, notes string, resolvedBy snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE disputes
		 SET status = ?, decision = ?, partial_refund_amount = ?, resolution_notes = ?,
		     resolved_by = ?, resolved_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?, ?)`,
		domain.DisputeStatusResolved,
		decision,
		partialAmount,
		notes,
		resolvedBy,
		now,
		now,
		id,
		domain.DisputeStatusPending,
		domain.DisputeStatusMentorResponded,
		domain.DisputeStatusAdminReview,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkDismissed(ctx context.Context, db *gorm.DB, id snowflake.ID, notes string, resolvedBy snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE disputes
		 SET status = ?, resolution_notes = ?, resolved_by = ?, resolved_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?, ?)`,
		domain.DisputeStatusDismissed,
		notes,
		resolvedBy,
		now,
		now,
		id,
		domain.DisputeStatusPending,
		domain.DisputeStatusMentorResponded,
		domain.DisputeStatusAdminReview,
	)
	return result.RowsAffected > 0, result.Error
}
