package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/config"
	"github.com/mentorhive/mentorhive/internal/events"
	"github.com/mentorhive/mentorhive/internal/identity"
	"github.com/mentorhive/mentorhive/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mentorhive/mentorhive/internal/booking/domain"
	bookingrepo "github.com/mentorhive/mentorhive/internal/booking/repository"
	refundrepo "github.com/mentorhive/mentorhive/internal/refund/repository"
	refundsvc "github.com/mentorhive/mentorhive/internal/refund/service"
	"github.com/mentorhive/mentorhive/internal/transfer/adapters/fake"
	walletdomain "github.com/mentorhive/mentorhive/internal/wallet/domain"
	walletrepo "github.com/mentorhive/mentorhive/internal/wallet/repository"
	walletsvc "github.com/mentorhive/mentorhive/internal/wallet/service"
)

type bookingFixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clk       *clock.FakeClock
	gateway   *fake.Gateway
	svc       domain.Service
	wallets   walletdomain.Service
	studentID snowflake.ID
	mentorID  snowflake.ID
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	gateway := fake.New()
	bookings := bookingrepo.Provide()

	wallets := walletsvc.New(walletsvc.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  walletrepo.Provide(),
	})

	refunds := refundsvc.New(refundsvc.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Repo:     refundrepo.Provide(),
		Bookings: bookings,
		Wallets:  wallets,
		Gateway:  gateway,
	})

	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      bookings,
		Refunds:   refunds,
		Wallets:   wallets,
		Policy:    config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Publisher: events.NewPublisher(node),
	})

	return &bookingFixture{
		db:        db,
		node:      node,
		clk:       clk,
		gateway:   gateway,
		svc:       svc,
		wallets:   wallets,
		studentID: node.Generate(),
		mentorID:  node.Generate(),
	}
}

func (f *bookingFixture) studentCtx() context.Context {
	return identity.WithActor(context.Background(), identity.Actor{UserID: f.studentID, Role: identity.RoleStudent})
}

func (f *bookingFixture) mentorCtx() context.Context {
	return identity.WithActor(context.Background(), identity.Actor{UserID: f.mentorID, Role: identity.RoleMentor})
}

func (f *bookingFixture) checkoutRequest(hoursAhead int) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		ServiceID:       f.node.Generate().String(),
		MentorID:        f.mentorID.String(),
		ScheduledAt:     f.clk.Now().Add(time.Duration(hoursAhead) * time.Hour).Format(time.RFC3339),
		StudentTimezone: "UTC",
		MentorTimezone:  "UTC",
		DurationMinutes: 60,
		Amount:          10000,
		Currency:        "usd",
		PaymentMethod:   "external",
	}
}

func (f *bookingFixture) confirmedBooking(t *testing.T, hoursAhead int) *domain.Booking {
	t.Helper()
	booking, err := f.svc.Checkout(f.studentCtx(), f.checkoutRequest(hoursAhead))
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkPaid(f.studentCtx(), booking.ID.String(), "ch_test"))
	booking, err = f.svc.GetByID(f.studentCtx(), booking.ID.String())
	require.NoError(t, err)
	return booking
}

func TestCheckoutCreatesPendingBooking(t *testing.T) {
	f := newBookingFixture(t)

	booking, err := f.svc.Checkout(f.studentCtx(), f.checkoutRequest(48))
	require.NoError(t, err)

	assert.Equal(t, domain.BookingStatusPending, booking.Status)
	assert.Equal(t, domain.PaymentStatusPending, booking.PaymentStatus)
	assert.Equal(t, "USD", booking.Currency)
	assert.Equal(t, 24, booking.CancellationHours)
	assert.Equal(t, f.mentorID, booking.CancellationPolicySetBy)
}

func TestCheckoutValidation(t *testing.T) {
	f := newBookingFixture(t)

	cases := []struct {
		name   string
		mutate func(*domain.CheckoutRequest)
		expect error
	}{
		{"booking own session", func(r *domain.CheckoutRequest) { r.MentorID = f.studentID.String() }, domain.ErrInvalidMentor},
		{"garbage mentor id", func(r *domain.CheckoutRequest) { r.MentorID = "nope" }, domain.ErrInvalidMentor},
		{"past schedule", func(r *domain.CheckoutRequest) {
			r.ScheduledAt = f.clk.Now().Add(-time.Hour).Format(time.RFC3339)
		}, domain.ErrInvalidScheduleTime},
		{"zero amount", func(r *domain.CheckoutRequest) { r.Amount = 0 }, domain.ErrInvalidAmount},
		{"bad currency", func(r *domain.CheckoutRequest) { r.Currency = "dollars" }, domain.ErrInvalidCurrency},
		{"bad method", func(r *domain.CheckoutRequest) { r.PaymentMethod = "cash" }, domain.ErrInvalidPaymentMethod},
		{"bad duration", func(r *domain.CheckoutRequest) { r.DurationMinutes = 0 }, domain.ErrInvalidDuration},
		{"bad timezone", func(r *domain.CheckoutRequest) { r.StudentTimezone = "Mars/Olympus" }, domain.ErrInvalidScheduleTime},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.checkoutRequest(48)
			tc.mutate(&req)
			_, err := f.svc.Checkout(f.studentCtx(), req)
			assert.ErrorIs(t, err, tc.expect)
		})
	}

	t.Run("missing identity", func(t *testing.T) {
		_, err := f.svc.Checkout(context.Background(), f.checkoutRequest(48))
		assert.ErrorIs(t, err, domain.ErrMissingIdentity)
	})
}

func TestCheckoutWithTokensConfirmsImmediately(t *testing.T) {
	f := newBookingFixture(t)

	_, _, err := f.wallets.Credit(context.Background(), walletdomain.CreditRequest{
		UserID:    f.studentID,
		Amount:    20000,
		Currency:  "USD",
		Reference: "topup:1",
	})
	require.NoError(t, err)

	req := f.checkoutRequest(48)
	req.PaymentMethod = "tokens"
	booking, err := f.svc.Checkout(f.studentCtx(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, domain.PaymentStatusPaid, booking.PaymentStatus)

	wallet, err := f.wallets.Balance(context.Background(), f.studentID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), wallet.Balance)
}

func TestCheckoutWithTokensInsufficientBalance(t *testing.T) {
	f := newBookingFixture(t)

	_, _, err := f.wallets.Credit(context.Background(), walletdomain.CreditRequest{
		UserID:    f.studentID,
		Amount:    500,
		Currency:  "USD",
		Reference: "topup:1",
	})
	require.NoError(t, err)

	req := f.checkoutRequest(48)
	req.PaymentMethod = "tokens"
	_, err = f.svc.Checkout(f.studentCtx(), req)
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientBalance)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	f := newBookingFixture(t)
	booking, err := f.svc.Checkout(f.studentCtx(), f.checkoutRequest(48))
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkPaid(f.studentCtx(), booking.ID.String(), "ch_1"))
	require.NoError(t, f.svc.MarkPaid(f.studentCtx(), booking.ID.String(), "ch_1"))

	stored, err := f.svc.GetByID(f.studentCtx(), booking.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, "ch_1", stored.ChargeRef)
}

func TestMarkPaidRejectsCancelledBooking(t *testing.T) {
	f := newBookingFixture(t)
	booking, err := f.svc.Checkout(f.studentCtx(), f.checkoutRequest(48))
	require.NoError(t, err)

	_, err = f.svc.Cancel(f.studentCtx(), domain.CancelRequest{BookingID: booking.ID.String()})
	require.NoError(t, err)

	err = f.svc.MarkPaid(f.studentCtx(), booking.ID.String(), "ch_late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestMarkPaidRejectsNonParticipants(t *testing.T) {
	f := newBookingFixture(t)
	booking, err := f.svc.Checkout(f.studentCtx(), f.checkoutRequest(48))
	require.NoError(t, err)

	err = f.svc.MarkPaid(context.Background(), booking.ID.String(), "ch_anon")
	assert.ErrorIs(t, err, domain.ErrMissingIdentity)

	strangerCtx := identity.WithActor(context.Background(), identity.Actor{UserID: f.node.Generate(), Role: identity.RoleStudent})
	err = f.svc.MarkPaid(strangerCtx, booking.ID.String(), "ch_stranger")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	err = f.svc.MarkPaid(f.mentorCtx(), booking.ID.String(), "ch_mentor")
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	stored, err := f.svc.GetByID(f.studentCtx(), booking.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, stored.Status)
	assert.Empty(t, stored.ChargeRef)
}

func TestCompleteOpensDisputeWindow(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.confirmedBooking(t, 2)

	// Too early: the session has not started yet.
	err := f.svc.Complete(f.mentorCtx(), booking.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidScheduleTime)

	f.clk.Advance(3 * time.Hour)

	// Only the mentor side completes.
	err = f.svc.Complete(f.studentCtx(), booking.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	require.NoError(t, f.svc.Complete(f.mentorCtx(), booking.ID.String()))

	stored, err := f.svc.GetByID(f.studentCtx(), booking.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCompleted, stored.Status)
	assert.Equal(t, domain.PayoutStatusPending, stored.PayoutStatus)
	require.NotNil(t, stored.DisputePeriodEnds)
	assert.WithinDuration(t, f.clk.Now().Add(48*time.Hour), *stored.DisputePeriodEnds, time.Second)

	// Completing again is a no-op.
	require.NoError(t, f.svc.Complete(f.mentorCtx(), booking.ID.String()))
}

func TestReviewTransitions(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.confirmedBooking(t, 1)
	f.clk.Advance(2 * time.Hour)
	require.NoError(t, f.svc.Complete(f.mentorCtx(), booking.ID.String()))

	require.NoError(t, f.svc.MarkReviewable(context.Background(), booking.ID.String()))
	require.NoError(t, f.svc.MarkReviewable(context.Background(), booking.ID.String()))
	require.NoError(t, f.svc.MarkReviewed(context.Background(), booking.ID.String()))

	err := f.svc.MarkReviewable(context.Background(), booking.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelFullRefundOutsideWindow(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.confirmedBooking(t, 48)

	cancelled, err := f.svc.Cancel(f.studentCtx(), domain.CancelRequest{BookingID: booking.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, domain.PaymentStatusRefunded, cancelled.PaymentStatus)

	var refund domain.BookingRefund
	require.NoError(t, f.db.First(&refund, "booking_id = ?", booking.ID).Error)
	assert.Equal(t, int64(10000), refund.Amount)
	assert.Equal(t, domain.RefundStatusProcessed, refund.Status)
	assert.Equal(t, 1, f.gateway.RefundCalls)
}

func TestCancelPartialRefundInsideWindow(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.confirmedBooking(t, 12)

	_, err := f.svc.Cancel(f.studentCtx(), domain.CancelRequest{BookingID: booking.ID.String()})
	require.NoError(t, err)

	var refund domain.BookingRefund
	require.NoError(t, f.db.First(&refund, "booking_id = ?", booking.ID).Error)
	assert.Equal(t, int64(5000), refund.Amount)
}

func TestCancelNoRefundUnderFloor(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.confirmedBooking(t, 1)

	cancelled, err := f.svc.Cancel(f.studentCtx(), domain.CancelRequest{BookingID: booking.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)

	var count int64
	require.NoError(t, f.db.Model(&domain.BookingRefund{}).Where("booking_id = ?", booking.ID).Count(&count).Error)
	assert.Zero(t, count)
	assert.Zero(t, f.gateway.RefundCalls)
}

func TestCancelByMentorAlwaysRefundsInFull(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.confirmedBooking(t, 1)

	_, err := f.svc.Cancel(f.mentorCtx(), domain.CancelRequest{BookingID: booking.ID.String()})
	require.NoError(t, err)

	var refund domain.BookingRefund
	require.NoError(t, f.db.First(&refund, "booking_id = ?", booking.ID).Error)
	assert.Equal(t, int64(10000), refund.Amount)
}

func TestCancelRefundToTokensCreditsWallet(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.confirmedBooking(t, 48)

	_, err := f.svc.Cancel(f.studentCtx(), domain.CancelRequest{BookingID: booking.ID.String(), RefundToTokens: true})
	require.NoError(t, err)

	wallet, err := f.wallets.Balance(context.Background(), f.studentID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), wallet.Balance)
	assert.Zero(t, f.gateway.RefundCalls)
}

func TestCancelAfterSessionStart(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.confirmedBooking(t, 1)
	f.clk.Advance(2 * time.Hour)

	_, err := f.svc.Cancel(f.studentCtx(), domain.CancelRequest{BookingID: booking.ID.String()})
	assert.ErrorIs(t, err, domain.ErrCancellationWindow)
}

func TestCancelTwice(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.confirmedBooking(t, 48)

	_, err := f.svc.Cancel(f.studentCtx(), domain.CancelRequest{BookingID: booking.ID.String()})
	require.NoError(t, err)

	_, err = f.svc.Cancel(f.studentCtx(), domain.CancelRequest{BookingID: booking.ID.String()})
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
}

func TestCancelByStrangerRejected(t *testing.T) {
	f := newBookingFixture(t)
	booking := f.confirmedBooking(t, 48)

	stranger := identity.WithActor(context.Background(), identity.Actor{UserID: f.node.Generate(), Role: identity.RoleStudent})
	_, err := f.svc.Cancel(stranger, domain.CancelRequest{BookingID: booking.ID.String()})
	assert.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestPurchaseColdMessage(t *testing.T) {
	f := newBookingFixture(t)

	message, err := f.svc.PurchaseColdMessage(f.studentCtx(), domain.ColdMessageRequest{
		MentorID: f.mentorID.String(),
		Amount:   2000,
		Currency: "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, message.PayoutStatus)
	assert.Equal(t, "USD", message.Currency)
	require.NotNil(t, message.PaidAt)

	_, err = f.svc.PurchaseColdMessage(f.studentCtx(), domain.ColdMessageRequest{
		MentorID: f.studentID.String(),
		Amount:   2000,
		Currency: "usd",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMentor)
}
