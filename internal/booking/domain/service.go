package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CheckoutRequest struct {
	ServiceID       string `json:"service_id"`
	MentorID        string `json:"mentor_id"`
	ScheduledAt     string `json:"scheduled_at"` // RFC3339
	StudentTimezone string `json:"student_timezone"`
	MentorTimezone  string `json:"mentor_timezone"`
	DurationMinutes int    `json:"duration_minutes"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaymentMethod   string `json:"payment_method"`
	// Cancellation policy snapshot captured from the mentor's service at
	// checkout time.
	CancellationHours int `json:"cancellation_hours"`
}

type CancelRequest struct {
	BookingID string `json:"-"`
	// RefundToTokens lets a student opt for wallet credit instead of an
	// external refund when one is due.
	RefundToTokens bool   `json:"refund_to_tokens"`
	Reason         string `json:"reason"`
}

type BookingResponse struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	PaymentStatus     string     `json:"payment_status"`
	PayoutStatus      string     `json:"payout_status,omitempty"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	ScheduledAt       time.Time  `json:"scheduled_at"`
	DisputePeriodEnds *time.Time `json:"dispute_period_ends,omitempty"`
	RefundAmount      *int64     `json:"refund_amount,omitempty"`
}

type ColdMessageRequest struct {
	MentorID string `json:"mentor_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*Booking, error)
	// PurchaseColdMessage records a paid introduction. The message is
	// payout-eligible immediately; settlement happens right after or on
	// the next sweep.
	PurchaseColdMessage(ctx context.Context, req ColdMessageRequest) (*ColdMessage, error)
	MarkPaid(ctx context.Context, bookingID string, chargeRef string) error
	Complete(ctx context.Context, bookingID string) error
	MarkReviewable(ctx context.Context, bookingID string) error
	MarkReviewed(ctx context.Context, bookingID string) error
	Cancel(ctx context.Context, req CancelRequest) (*Booking, error)
	GetByID(ctx context.Context, bookingID string) (*Booking, error)
}

var (
	ErrNotFound              = errors.New("booking_not_found")
	ErrInvalidBookingID      = errors.New("invalid_booking_id")
	ErrInvalidMentor         = errors.New("invalid_mentor")
	ErrInvalidService        = errors.New("invalid_service")
	ErrInvalidScheduleTime   = errors.New("invalid_schedule_time")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidPaymentMethod  = errors.New("invalid_payment_method")
	ErrInvalidDuration       = errors.New("invalid_duration")
	ErrInvalidTransition     = errors.New("invalid_booking_transition")
	ErrNotPaid               = errors.New("booking_not_paid")
	ErrNotParticipant        = errors.New("caller_not_on_booking")
	ErrCancellationWindow    = errors.New("cancellation_window_closed")
	ErrAlreadyCancelled      = errors.New("booking_already_cancelled")
	ErrAlreadyCompleted      = errors.New("booking_already_completed")
	ErrMissingIdentity       = errors.New("missing_identity")
	ErrPaymentMethodMismatch = errors.New("payment_method_mismatch")
)

// CanTransition encodes the forward-only booking status graph. cancelled is
// reachable from pending and confirmed only.
func CanTransition(from, to BookingStatus) bool {
	switch from {
	case BookingStatusPending:
		return to == BookingStatusConfirmed || to == BookingStatusCancelled
	case BookingStatusConfirmed:
		return to == BookingStatusCompleted || to == BookingStatusCancelled
	case BookingStatusCompleted:
		return to == BookingStatusReviewable
	case BookingStatusReviewable:
		return to == BookingStatusReviewed
	default:
		return false
	}
}

// ParticipantRole reports whether userID is the mentor or student on b.
func (b *Booking) ParticipantRole(userID snowflake.ID) (mentor bool, student bool) {
	return b.MentorID == userID, b.StudentID == userID
}
