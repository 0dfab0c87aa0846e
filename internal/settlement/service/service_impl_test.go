package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/dispute"
	"github.com/mentorhive/mentorhive/internal/events"
	"github.com/mentorhive/mentorhive/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	bookingrepo "github.com/mentorhive/mentorhive/internal/booking/repository"
	disputedomain "github.com/mentorhive/mentorhive/internal/dispute/domain"
	disputerepo "github.com/mentorhive/mentorhive/internal/dispute/repository"
	earningsdomain "github.com/mentorhive/mentorhive/internal/earnings/domain"
	earningsrepo "github.com/mentorhive/mentorhive/internal/earnings/repository"
	earningssvc "github.com/mentorhive/mentorhive/internal/earnings/service"
	settlementdomain "github.com/mentorhive/mentorhive/internal/settlement/domain"
	settlementrepo "github.com/mentorhive/mentorhive/internal/settlement/repository"
	"github.com/mentorhive/mentorhive/internal/transfer/adapters/fake"
	transferdomain "github.com/mentorhive/mentorhive/internal/transfer/domain"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	gateway  *fake.Gateway
	svc      settlementdomain.Service
	earnings earningsdomain.Service
	mentorID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	earningsSvc := earningssvc.New(earningssvc.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  earningsrepo.Provide(),
	})

	gateway := fake.New()
	mentorID := node.Generate()

	svc := New(Params{
		DB:        db,
		Log:       log,
		Clock:     clk,
		Repo:      settlementrepo.Provide(),
		Bookings:  bookingrepo.Provide(),
		Earnings:  earningsSvc,
		Gateway:   gateway,
		Gate:      dispute.NewGate(db, disputerepo.Provide()),
		Publisher: events.NewPublisher(node),
	})

	require.NoError(t, earningsSvc.SetPayoutAccount(context.Background(), mentorID, "acct_ready"))
	gateway.ReadyAccounts["acct_ready"] = true

	return &fixture{
		db:       db,
		node:     node,
		clk:      clk,
		gateway:  gateway,
		svc:      svc,
		earnings: earningsSvc,
		mentorID: mentorID,
	}
}

func (f *fixture) seedCompletedBooking(t *testing.T, amount int64, windowEnds time.Time) *bookingdomain.Booking {
	t.Helper()
	now := f.clk.Now()
	booking := &bookingdomain.Booking{
		ID:                f.node.Generate(),
		ServiceID:         f.node.Generate(),
		MentorID:          f.mentorID,
		StudentID:         f.node.Generate(),
		ScheduledAt:       now.Add(-72 * time.Hour),
		StudentTimezone:   "UTC",
		MentorTimezone:    "UTC",
		DurationMinutes:   60,
		Status:            bookingdomain.BookingStatusCompleted,
		PaymentStatus:     bookingdomain.PaymentStatusPaid,
		PaymentMethod:     bookingdomain.PaymentMethodExternal,
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

func (f *fixture) reloadBooking(t *testing.T, id snowflake.ID) *bookingdomain.Booking {
	t.Helper()
	var booking bookingdomain.Booking
	require.NoError(t, f.db.First(&booking, "id = ?", id).Error)
	return &booking
}

func TestSettleBookingSplitsTierOne(t *testing.T) {
	f := newFixture(t)
	booking := f.seedCompletedBooking(t, 10000, f.clk.Now().Add(-time.Hour))

	outcome, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.NoError(t, err)

	assert.Equal(t, int64(2500), outcome.Commission)
	assert.Equal(t, int64(7500), outcome.Payout)
	assert.Equal(t, "tier1", outcome.Tier)
	assert.NotEmpty(t, outcome.TransferRef)
	assert.Equal(t, 1, f.gateway.TransferCalls)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusPaid, stored.PayoutStatus)
	assert.Equal(t, outcome.TransferRef, stored.TransferRef)
	require.NotNil(t, stored.PlatformCommission)
	assert.Equal(t, int64(2500), *stored.PlatformCommission)

	agg, err := f.earnings.GetByMentor(context.Background(), f.mentorID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), agg.TotalEarnings)
}

func TestSettleBookingIsIdempotent(t *testing.T) {
	f := newFixture(t)
	booking := f.seedCompletedBooking(t, 10000, f.clk.Now().Add(-time.Hour))

	first, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.NoError(t, err)

	second, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.NoError(t, err)
	assert.True(t, second.AlreadyPaid)
	assert.Equal(t, first.TransferRef, second.TransferRef)
	assert.Equal(t, 1, f.gateway.TransferCalls)

	agg, err := f.earnings.GetByMentor(context.Background(), f.mentorID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), agg.TotalEarnings)
}

func TestSettleBookingBlockedByOpenDispute(t *testing.T) {
	f := newFixture(t)
	booking := f.seedCompletedBooking(t, 10000, f.clk.Now().Add(-time.Hour))

	require.NoError(t, f.db.Create(&disputedomain.Dispute{
		ID:             f.node.Generate(),
		BookingID:      booking.ID,
		FiledBy:        booking.StudentID,
		Status:         disputedomain.DisputeStatusPending,
		Reason:         "no-show",
		Evidence:       datatypes.JSON("[]"),
		MentorEvidence: datatypes.JSON("[]"),
		CreatedAt:      f.clk.Now(),
		UpdatedAt:      f.clk.Now(),
	}).Error)

	_, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.ErrorIs(t, err, settlementdomain.ErrDisputed)
	assert.Zero(t, f.gateway.TransferCalls)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusDisputed, stored.PayoutStatus)
}

func TestSettleBookingRespectsDisputeWindow(t *testing.T) {
	f := newFixture(t)
	booking := f.seedCompletedBooking(t, 10000, f.clk.Now().Add(24*time.Hour))

	_, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.ErrorIs(t, err, settlementdomain.ErrWindowOpen)
	assert.Zero(t, f.gateway.TransferCalls)

	outcome, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, int64(7500), outcome.Payout)
}

func TestSettleBookingPartialRefundReducesBase(t *testing.T) {
	f := newFixture(t)
	booking := f.seedCompletedBooking(t, 10000, f.clk.Now().Add(-time.Hour))

	base := int64(6000)
	outcome, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{
		Force:        true,
		BaseOverride: &base,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), outcome.Commission)
	assert.Equal(t, int64(4500), outcome.Payout)
}

func TestSettleBookingDerivesBaseFromRefundRow(t *testing.T) {
	f := newFixture(t)
	booking := f.seedCompletedBooking(t, 10000, f.clk.Now().Add(-time.Hour))

	processedAt := f.clk.Now()
	require.NoError(t, f.db.Create(&bookingdomain.BookingRefund{
		ID:          f.node.Generate(),
		BookingID:   booking.ID,
		Status:      bookingdomain.RefundStatusProcessed,
		Type:        bookingdomain.RefundTypeExternal,
		Amount:      4000,
		ProcessedAt: &processedAt,
		Reason:      "dispute resolved with partial refund",
		CreatedAt:   processedAt,
		UpdatedAt:   processedAt,
	}).Error)

	// No options: the sweep path must land on the same reduced split the
	// resolution computed.
	outcome, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), outcome.Commission)
	assert.Equal(t, int64(4500), outcome.Payout)

	stored := f.reloadBooking(t, booking.ID)
	require.NotNil(t, stored.MentorPayout)
	assert.Equal(t, int64(4500), *stored.MentorPayout)
}

func TestSettleBookingUnreadyAccountParksPayout(t *testing.T) {
	f := newFixture(t)
	f.gateway.ReadyAccounts["acct_ready"] = false
	booking := f.seedCompletedBooking(t, 10000, f.clk.Now().Add(-time.Hour))

	_, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.ErrorIs(t, err, transferdomain.ErrAccountNotReady)
	assert.Zero(t, f.gateway.TransferCalls)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusFailed, stored.PayoutStatus)
	assert.NotEmpty(t, stored.PayoutFailureReason)
}

func TestSettleBookingTransientFailureReleasesClaim(t *testing.T) {
	f := newFixture(t)
	booking := f.seedCompletedBooking(t, 10000, f.clk.Now().Add(-time.Hour))

	f.gateway.FailTransfers = true
	_, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.Error(t, err)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusPending, stored.PayoutStatus)
	assert.Equal(t, "transfer_provider_unavailable", stored.PayoutFailureReason)

	f.gateway.FailTransfers = false
	outcome, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.NoError(t, err)
	assert.False(t, outcome.AlreadyPaid)

	stored = f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusPaid, stored.PayoutStatus)
	assert.Empty(t, stored.PayoutFailureReason)
}

// slowGateway runs a callback between accepting a transfer and returning,
// standing in for state changes that land while the provider call is in
// flight.
type slowGateway struct {
	*fake.Gateway
	onTransfer func()
}

func (g *slowGateway) Transfer(ctx context.Context, req transferdomain.TransferRequest) (*transferdomain.TransferResult, error) {
	if g.onTransfer != nil {
		g.onTransfer()
	}
	return g.Gateway.Transfer(ctx, req)
}

func TestSettleBookingDisputedMidTransferSkipsEarnings(t *testing.T) {
	f := newFixture(t)
	booking := f.seedCompletedBooking(t, 10000, f.clk.Now().Add(-time.Hour))

	gateway := &slowGateway{Gateway: f.gateway}
	svc := New(Params{
		DB:        f.db,
		Log:       zap.NewNop(),
		Clock:     f.clk,
		Repo:      settlementrepo.Provide(),
		Bookings:  bookingrepo.Provide(),
		Earnings:  f.earnings,
		Gateway:   gateway,
		Gate:      dispute.NewGate(f.db, disputerepo.Provide()),
		Publisher: events.NewPublisher(f.node),
	})
	gateway.onTransfer = func() {
		require.NoError(t, svc.MarkDisputed(context.Background(), f.db, booking.ID))
	}

	_, err := svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.ErrorIs(t, err, settlementdomain.ErrDisputed)

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusDisputed, stored.PayoutStatus)

	agg, err := f.earnings.GetByMentor(context.Background(), f.mentorID)
	require.NoError(t, err)
	assert.Zero(t, agg.TotalEarnings)

	var paidEvents int64
	require.NoError(t, f.db.Model(&events.OutboxEvent{}).
		Where("topic = ?", events.TopicPayoutPaid).
		Count(&paidEvents).Error)
	assert.Zero(t, paidEvents)
}

func TestSettleBookingTerminalFailureParksForOperator(t *testing.T) {
	f := newFixture(t)
	booking := f.seedCompletedBooking(t, 10000, f.clk.Now().Add(-time.Hour))

	f.gateway.RejectTransfers = true
	_, err := f.svc.SettleBooking(context.Background(), booking.ID, settlementdomain.SettleOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, settlementdomain.ErrAlreadyClaimed))

	stored := f.reloadBooking(t, booking.ID)
	assert.Equal(t, bookingdomain.PayoutStatusFailed, stored.PayoutStatus)

	failed, err := f.svc.FailedPayouts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, booking.ID, failed[0].ID)
}

func TestSettleColdMessagePaysImmediately(t *testing.T) {
	f := newFixture(t)
	now := f.clk.Now()
	message := &bookingdomain.ColdMessage{
		ID:           f.node.Generate(),
		MentorID:     f.mentorID,
		StudentID:    f.node.Generate(),
		Amount:       2000,
		Currency:     "USD",
		PaidAt:       &now,
		PayoutStatus: bookingdomain.PayoutStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.db.Create(message).Error)

	outcome, err := f.svc.SettleColdMessage(context.Background(), message.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), outcome.Commission)
	assert.Equal(t, int64(1500), outcome.Payout)

	replay, err := f.svc.SettleColdMessage(context.Background(), message.ID)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyPaid)
	assert.Equal(t, 1, f.gateway.TransferCalls)

	agg, err := f.earnings.GetByMentor(context.Background(), f.mentorID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), agg.TotalEarnings)
}
