package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound             = errors.New("dispute_not_found")
	ErrBookingNotDisputable = errors.New("booking_not_disputable")
	ErrWindowClosed         = errors.New("dispute_window_closed")
	ErrAlreadyDisputed      = errors.New("dispute_already_open")
	ErrNotStudent           = errors.New("dispute_filer_not_student")
	ErrNotMentor            = errors.New("responder_not_mentor")
	ErrAlreadyResponded     = errors.New("mentor_already_responded")
	ErrNotActive            = errors.New("dispute_not_active")
	ErrAlreadyResolved      = errors.New("dispute_already_resolved")
	ErrInvalidDecision      = errors.New("invalid_dispute_decision")
	ErrInvalidPartialAmount = errors.New("invalid_partial_refund_amount")
	ErrMissingReason        = errors.New("dispute_reason_required")
)

type FileRequest struct {
	BookingID string         `json:"-"`
	Reason    string         `json:"reason"`
	Details   string         `json:"details"`
	Evidence  []EvidenceItem `json:"evidence,omitempty"`
}

type RespondRequest struct {
	DisputeID string         `json:"-"`
	Response  string         `json:"response"`
	Evidence  []EvidenceItem `json:"evidence,omitempty"`
}

type ResolveRequest struct {
	DisputeID           string `json:"-"`
	Decision            string `json:"decision"`
	PartialRefundAmount *int64 `json:"partial_refund_amount,omitempty"`
	Notes               string `json:"notes"`
}

// Service runs the dispute lifecycle. Filing parks the payout; resolving
// routes the held money exactly once per the admin decision.
type Service interface {
	File(ctx context.Context, req FileRequest) (*Dispute, error)
	MentorRespond(ctx context.Context, req RespondRequest) (*Dispute, error)
	Escalate(ctx context.Context, disputeID string) (*Dispute, error)
	Resolve(ctx context.Context, req ResolveRequest) (*Dispute, error)
	Dismiss(ctx context.Context, disputeID string, notes string) (*Dispute, error)
	GetByID(ctx context.Context, disputeID string) (*Dispute, error)
	ListOpen(ctx context.Context, limit int) ([]Dispute, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, dispute *Dispute) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Dispute, error)
	FindActiveByBookingID(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*Dispute, error)
	ListByStatus(ctx context.Context, db *gorm.DB, statuses []DisputeStatus, limit int) ([]Dispute, error)

	// SetMentorResponse records the mentor's one reply, pending only.
	SetMentorResponse(ctx context.Context, db *gorm.DB, id snowflake.ID, response string, evidence datatypes.JSON, now time.Time) (bool, error)
	MarkStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []DisputeStatus, to DisputeStatus, now time.Time) (bool, error)
	// MarkResolved closes the dispute with its decision, exactly once.
	MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, decision Decision, partialAmount *int64, notes string, resolvedBy snowflake.ID, now time.Time) (bool, error)
	MarkDismissed(ctx context.Context, db *gorm.DB, id snowflake.ID, notes string, resolvedBy snowflake.ID, now time.Time) (bool, error)
}
