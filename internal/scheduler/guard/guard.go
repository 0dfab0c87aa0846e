// Package guard holds the settlement precondition checks shared by the
// sweep and the operator paths.
package guard

import (
	"time"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	settlementdomain "github.com/mentorhive/mentorhive/internal/settlement/domain"
)

// EnsureBookingSettleable validates that a booking may enter the payout
// path right now. force bypasses the escrow wait, not the state checks.
func EnsureBookingSettleable(booking *bookingdomain.Booking, now time.Time, force bool) error {
	switch booking.PayoutStatus {
	case bookingdomain.PayoutStatusRefunded:
		return settlementdomain.ErrAlreadySettled
	case bookingdomain.PayoutStatusDisputed:
		return settlementdomain.ErrDisputed
	case bookingdomain.PayoutStatusProcessing:
		if !force {
			return settlementdomain.ErrAlreadyClaimed
		}
	case bookingdomain.PayoutStatusPending, bookingdomain.PayoutStatusFailed, bookingdomain.PayoutStatusPaid:
	default:
		return settlementdomain.ErrNotSettleable
	}

	switch booking.Status {
	case bookingdomain.BookingStatusCompleted, bookingdomain.BookingStatusReviewable, bookingdomain.BookingStatusReviewed:
	default:
		return settlementdomain.ErrNotSettleable
	}

	if !force {
		if booking.DisputePeriodEnds == nil || now.Before(*booking.DisputePeriodEnds) {
			return settlementdomain.ErrWindowOpen
		}
	}
	return nil
}

// EnsureColdMessageSettleable validates a cold message payout attempt.
func EnsureColdMessageSettleable(message *bookingdomain.ColdMessage) error {
	switch message.PayoutStatus {
	case bookingdomain.PayoutStatusPending, bookingdomain.PayoutStatusFailed, bookingdomain.PayoutStatusPaid:
	default:
		return settlementdomain.ErrColdMessageState
	}
	if message.PaidAt == nil {
		return settlementdomain.ErrColdMessageState
	}
	return nil
}
