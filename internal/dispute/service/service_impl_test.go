package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/events"
	"github.com/mentorhive/mentorhive/internal/identity"
	"github.com/mentorhive/mentorhive/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	bookingrepo "github.com/mentorhive/mentorhive/internal/booking/repository"
	"github.com/mentorhive/mentorhive/internal/dispute/domain"
	disputerepo "github.com/mentorhive/mentorhive/internal/dispute/repository"
	earningsrepo "github.com/mentorhive/mentorhive/internal/earnings/repository"
	earningssvc "github.com/mentorhive/mentorhive/internal/earnings/service"
	refundrepo "github.com/mentorhive/mentorhive/internal/refund/repository"
	refundsvc "github.com/mentorhive/mentorhive/internal/refund/service"
	settlementdomain "github.com/mentorhive/mentorhive/internal/settlement/domain"
	settlementrepo "github.com/mentorhive/mentorhive/internal/settlement/repository"
	settlementsvc "github.com/mentorhive/mentorhive/internal/settlement/service"
	"github.com/mentorhive/mentorhive/internal/transfer/adapters/fake"
	walletrepo "github.com/mentorhive/mentorhive/internal/wallet/repository"
	walletsvc "github.com/mentorhive/mentorhive/internal/wallet/service"
)

// repoGate mirrors the adapter the dispute module provides to settlement.
// Importing the module package here would cycle back into this package.
type repoGate struct {
	db   *gorm.DB
	repo domain.Repository
}

func (g *repoGate) ActiveDisputeExists(ctx context.Context, bookingID snowflake.ID) (bool, error) {
	active, err := g.repo.FindActiveByBookingID(ctx, g.db, bookingID)
	if err != nil {
		return false, err
	}
	return active != nil, nil
}

type disputeFixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	clk        *clock.FakeClock
	gateway    *fake.Gateway
	svc        domain.Service
	settlement settlementdomain.Service
	studentID  snowflake.ID
	mentorID   snowflake.ID
}

func newDisputeFixture(t *testing.T) *disputeFixture {
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
	earnings := earningssvc.New(earningssvc.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  earningsrepo.Provide(),
	})
	settlement := settlementsvc.New(settlementsvc.Params{
		DB:        db,
		Log:       log,
		Clock:     clk,
		Repo:      settlementrepo.Provide(),
		Bookings:  bookings,
		Earnings:  earnings,
		Gateway:   gateway,
		Gate:      &repoGate{db: db, repo: disputerepo.Provide()},
		Publisher: events.NewPublisher(node),
	})

	mentorID := node.Generate()
	require.NoError(t, earnings.SetPayoutAccount(context.Background(), mentorID, "acct_ready"))
	gateway.ReadyAccounts["acct_ready"] = true

	svc := New(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       disputerepo.Provide(),
		Bookings:   bookings,
		Refunds:    refunds,
		Settlement: settlement,
		Publisher:  events.NewPublisher(node),
	})

	return &disputeFixture{
		db:         db,
		node:       node,
		clk:        clk,
		gateway:    gateway,
		svc:        svc,
		settlement: settlement,
		studentID:  node.Generate(),
		mentorID:   mentorID,
	}
}

func (f *disputeFixture) studentCtx() context.Context {
	return identity.WithActor(context.Background(), identity.Actor{UserID: f.studentID, Role: identity.RoleStudent})
}

func (f *disputeFixture) mentorCtx() context.Context {
	return identity.WithActor(context.Background(), identity.Actor{UserID: f.mentorID, Role: identity.RoleMentor})
}

func (f *disputeFixture) adminCtx() context.Context {
	return identity.WithActor(context.Background(), identity.Actor{UserID: f.node.Generate(), Role: identity.RoleAdmin})
}

// seedCompletedBooking creates a settled-eligible booking with the dispute
// window still open.
func (f *disputeFixture) seedCompletedBooking(t *testing.T, amount int64) *bookingdomain.Booking {
	t.Helper()
	now := f.clk.Now()
	windowEnds := now.Add(24 * time.Hour)
	booking := &bookingdomain.Booking{
		ID:                f.node.Generate(),
		ServiceID:         f.node.Generate(),
		MentorID:          f.mentorID,
		StudentID:         f.studentID,
		ScheduledAt:       now.Add(-72 * time.Hour),
		StudentTimezone:   "UTC",
		MentorTimezone:    "UTC",
		DurationMinutes:   60,
		Status:            bookingdomain.BookingStatusCompleted,
		PaymentStatus:     bookingdomain.PaymentStatusPaid,
		PaymentMethod:     bookingdomain.PaymentMethodExternal,
		ChargeRef:         "ch_test",
		Amount:            amount,
		Currency:          "USD",
		PayoutStatus:      bookingdomain.PayoutStatusPending,
		DisputePeriodEnds: &windowEnds,
		CancellationHours: 24,
		CreatedAt:         now.Add(-96 * time.Hour),
		UpdatedAt:         now,
	}
	require.NoError(t, f.db.Create(booking).Error)
	return booking
}

func (f *disputeFixture) fileDispute(t *testing.T, booking *bookingdomain.Booking) *domain.Dispute {
	t.Helper()
	filed, err := f.svc.File(f.studentCtx(), domain.FileRequest{
		BookingID: booking.ID.String(),
		Reason:    "session never happened",
	})
	require.NoError(t, err)
	return filed
}

func (f *disputeFixture) reloadBooking(t *testing.T, id snowflake.ID) *bookingdomain.Booking {
	t.Helper()
	var booking bookingdomain.Booking
	require.NoError(t, f.db.First(&booking, "id = ?", id).Error)
	return &booking
}

func TestFileDisputeParksPayout(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)

	filed := f.fileDispute(t, booking)
	assert.Equal(t, domain.DisputeStatusPending, filed.Status)
	assert.Equal(t, f.studentID, filed.FiledBy)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusDisputed, stored.PayoutStatus)
	assert.Zero(t, f.gateway.TransferCalls)
}

func TestFileDisputeValidation(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)

	t.Run("missing reason", func(t *testing.T) {
		_, err := f.svc.File(f.studentCtx(), domain.FileRequest{BookingID: booking.ID.String()})
		assert.ErrorIs(t, err, domain.ErrMissingReason)
	})

	t.Run("mentor cannot file", func(t *testing.T) {
		_, err := f.svc.File(f.mentorCtx(), domain.FileRequest{
			BookingID: booking.ID.String(),
			Reason:    "no show",
		})
		assert.ErrorIs(t, err, domain.ErrNotStudent)
	})

	t.Run("window closed", func(t *testing.T) {
		late := f.seedCompletedBooking(t, 10000)
		past := f.clk.Now().Add(-time.Hour)
		require.NoError(t, f.db.Model(late).Update("dispute_period_ends", past).Error)

		_, err := f.svc.File(f.studentCtx(), domain.FileRequest{
			BookingID: late.ID.String(),
			Reason:    "too late",
		})
		assert.ErrorIs(t, err, domain.ErrWindowClosed)
	})

	t.Run("duplicate filing", func(t *testing.T) {
		f.fileDispute(t, booking)
		_, err := f.svc.File(f.studentCtx(), domain.FileRequest{
			BookingID: booking.ID.String(),
			Reason:    "again",
		})
		assert.ErrorIs(t, err, domain.ErrAlreadyDisputed)
	})
}

func TestMentorRespondsOnce(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)
	filed := f.fileDispute(t, booking)

	_, err := f.svc.MentorRespond(f.studentCtx(), domain.RespondRequest{
		DisputeID: filed.ID.String(),
		Response:  "not my session",
	})
	assert.ErrorIs(t, err, domain.ErrNotMentor)

	responded, err := f.svc.MentorRespond(f.mentorCtx(), domain.RespondRequest{
		DisputeID: filed.ID.String(),
		Response:  "the session ran over video",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusMentorResponded, responded.Status)

	_, err = f.svc.MentorRespond(f.mentorCtx(), domain.RespondRequest{
		DisputeID: filed.ID.String(),
		Response:  "one more thing",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyResponded)
}

func TestEvidenceIsStoredForBothSides(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)

	filed, err := f.svc.File(f.studentCtx(), domain.FileRequest{
		BookingID: booking.ID.String(),
		Reason:    "session never happened",
		Evidence: []domain.EvidenceItem{
			{Type: "screenshot", Content: "https://files.example/empty-call.png"},
		},
	})
	require.NoError(t, err)

	var studentItems []domain.EvidenceItem
	require.NoError(t, json.Unmarshal(filed.Evidence, &studentItems))
	require.Len(t, studentItems, 1)
	assert.Equal(t, "screenshot", studentItems[0].Type)
	assert.Equal(t, f.clk.Now(), studentItems[0].UploadedAt.UTC())

	responded, err := f.svc.MentorRespond(f.mentorCtx(), domain.RespondRequest{
		DisputeID: filed.ID.String(),
		Response:  "call log shows a full hour",
		Evidence: []domain.EvidenceItem{
			{Type: "log", Content: "https://files.example/call-log.txt"},
		},
	})
	require.NoError(t, err)

	var mentorItems []domain.EvidenceItem
	require.NoError(t, json.Unmarshal(responded.MentorEvidence, &mentorItems))
	require.Len(t, mentorItems, 1)
	assert.Equal(t, "log", mentorItems[0].Type)
}

func TestEscalateMovesToAdminReview(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)
	filed := f.fileDispute(t, booking)

	escalated, err := f.svc.Escalate(context.Background(), filed.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusAdminReview, escalated.Status)

	_, err = f.svc.Escalate(context.Background(), filed.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotActive)
}

func TestResolveRefundMentee(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)
	filed := f.fileDispute(t, booking)

	resolved, err := f.svc.Resolve(f.adminCtx(), domain.ResolveRequest{
		DisputeID: filed.ID.String(),
		Decision:  string(domain.DecisionRefundMentee),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusResolved, resolved.Status)

	var refund bookingdomain.BookingRefund
	require.NoError(t, f.db.First(&refund, "booking_id = ?", booking.ID).Error)
	assert.Equal(t, int64(10000), refund.Amount)
	assert.Equal(t, bookingdomain.RefundStatusProcessed, refund.Status)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusRefunded, stored.PayoutStatus)
	assert.Equal(t, bookingdomain.PaymentStatusRefunded, stored.PaymentStatus)
	assert.Zero(t, f.gateway.TransferCalls)
}

func TestResolvePayMentor(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)
	filed := f.fileDispute(t, booking)

	_, err := f.svc.Resolve(f.adminCtx(), domain.ResolveRequest{
		DisputeID: filed.ID.String(),
		Decision:  string(domain.DecisionPayMentor),
	})
	require.NoError(t, err)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusPaid, stored.PayoutStatus)
	require.NotNil(t, stored.MentorPayout)
	assert.Equal(t, int64(7500), *stored.MentorPayout)
	assert.Equal(t, 1, f.gateway.TransferCalls)
	assert.Zero(t, f.gateway.RefundCalls)
}

func TestResolvePartialRefundSplitsReducedBase(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)
	filed := f.fileDispute(t, booking)

	partial := int64(4000)
	_, err := f.svc.Resolve(f.adminCtx(), domain.ResolveRequest{
		DisputeID:           filed.ID.String(),
		Decision:            string(domain.DecisionPartialRefund),
		PartialRefundAmount: &partial,
	})
	require.NoError(t, err)

	var refund bookingdomain.BookingRefund
	require.NoError(t, f.db.First(&refund, "booking_id = ?", booking.ID).Error)
	assert.Equal(t, int64(4000), refund.Amount)
	assert.Equal(t, bookingdomain.RefundStatusProcessed, refund.Status)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusPaid, stored.PayoutStatus)
	require.NotNil(t, stored.PlatformCommission)
	assert.Equal(t, int64(1500), *stored.PlatformCommission)
	require.NotNil(t, stored.MentorPayout)
	assert.Equal(t, int64(4500), *stored.MentorPayout)
}

func TestResolvePartialRefundRetryKeepsReducedBase(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)
	filed := f.fileDispute(t, booking)

	// The provider is down when the resolution tries to pay: the refund
	// lands, the payout is released back to pending.
	f.gateway.FailTransfers = true
	partial := int64(4000)
	_, err := f.svc.Resolve(f.adminCtx(), domain.ResolveRequest{
		DisputeID:           filed.ID.String(),
		Decision:            string(domain.DecisionPartialRefund),
		PartialRefundAmount: &partial,
	})
	require.NoError(t, err)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusPending, stored.PayoutStatus)

	// The provider recovers and the ordinary sweep path settles, without
	// any memory of the resolution's options. The split must still come
	// off the reduced base.
	f.gateway.FailTransfers = false
	f.clk.Advance(25 * time.Hour)
	outcome, err := f.settlement.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(4500), outcome.Payout)
	assert.Equal(t, int64(1500), outcome.Commission)

	stored = f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusPaid, stored.PayoutStatus)
	require.NotNil(t, stored.MentorPayout)
	assert.Equal(t, int64(4500), *stored.MentorPayout)
	require.NotNil(t, stored.PlatformCommission)
	assert.Equal(t, int64(1500), *stored.PlatformCommission)
	assert.Equal(t, 1, f.gateway.TransferCount())
}

func TestResolveRejectsBadPartialAmount(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)
	filed := f.fileDispute(t, booking)

	whole := int64(10000)
	_, err := f.svc.Resolve(f.adminCtx(), domain.ResolveRequest{
		DisputeID:           filed.ID.String(),
		Decision:            string(domain.DecisionPartialRefund),
		PartialRefundAmount: &whole,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPartialAmount)

	_, err = f.svc.Resolve(f.adminCtx(), domain.ResolveRequest{
		DisputeID: filed.ID.String(),
		Decision:  "split_the_difference",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDecision)
}

func TestResolveExactlyOnce(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)
	filed := f.fileDispute(t, booking)

	_, err := f.svc.Resolve(f.adminCtx(), domain.ResolveRequest{
		DisputeID: filed.ID.String(),
		Decision:  string(domain.DecisionPayMentor),
	})
	require.NoError(t, err)

	_, err = f.svc.Resolve(f.adminCtx(), domain.ResolveRequest{
		DisputeID: filed.ID.String(),
		Decision:  string(domain.DecisionRefundMentee),
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.Equal(t, 1, f.gateway.TransferCalls)
}

func TestDismissReleasesPayout(t *testing.T) {
	f := newDisputeFixture(t)
	booking := f.seedCompletedBooking(t, 10000)
	filed := f.fileDispute(t, booking)

	dismissed, err := f.svc.Dismiss(f.adminCtx(), filed.ID.String(), "no evidence")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusDismissed, dismissed.Status)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusPending, stored.PayoutStatus)
}
