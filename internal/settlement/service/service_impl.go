package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/commission"
	"github.com/mentorhive/mentorhive/internal/events"
	"github.com/mentorhive/mentorhive/internal/fault"
	"github.com/mentorhive/mentorhive/internal/observability/metrics"
	"github.com/mentorhive/mentorhive/internal/scheduler/guard"
	"github.com/mentorhive/mentorhive/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	earningsdomain "github.com/mentorhive/mentorhive/internal/earnings/domain"
	transferdomain "github.com/mentorhive/mentorhive/internal/transfer/domain"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	Bookings  bookingdomain.Repository
	Earnings  earningsdomain.Service
	Gateway   transferdomain.Gateway
	Gate      domain.DisputeGate
	Publisher events.Publisher
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	bookings  bookingdomain.Repository
	earnings  earningsdomain.Service
	gateway   transferdomain.Gateway
	gate      domain.DisputeGate
	publisher events.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("settlement.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		bookings:  p.Bookings,
		earnings:  p.Earnings,
		gateway:   p.Gateway,
		gate:      p.Gate,
		publisher: p.Publisher,
	}
}

// SettleBooking pays the mentor for one completed booking. The sequence is
// claim, compute split, verify account, transfer, record. A crash between
// transfer and record is healed by the provider idempotency key on replay.
func (s *Service) SettleBooking(ctx context.Context, bookingID snowflake.ID, opts domain.SettleOptions) (*domain.Outcome, error) {
	booking, err := s.bookings.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrNotFound
	}

	now := s.clock.Now()
	if err := guard.EnsureBookingSettleable(booking, now, opts.Force); err != nil {
		return nil, err
	}
	if booking.PayoutStatus == bookingdomain.PayoutStatusPaid {
		return &domain.Outcome{
			BookingID:   booking.ID,
			Commission:  derefInt64(booking.PlatformCommission),
			Payout:      derefInt64(booking.MentorPayout),
			Tier:        booking.CommissionTier,
			TransferRef: booking.TransferRef,
			AlreadyPaid: true,
		}, nil
	}

	if active, err := s.gate.ActiveDisputeExists(ctx, bookingID); err != nil {
		return nil, err
	} else if active {
		if err := s.MarkDisputed(ctx, s.db, bookingID); err != nil {
			return nil, err
		}
		return nil, domain.ErrDisputed
	}

	// The split base is the booking amount less whatever a refund row has
	// already promised the student. Deriving it here keeps the sweep, a
	// forced settle and any retry on the same reduced split after a
	// partial-refund resolution.
	base := booking.Amount
	if opts.BaseOverride != nil {
		base = *opts.BaseOverride
	} else {
		refunded, err := s.repo.RefundedAmount(ctx, s.db, bookingID)
		if err != nil {
			return nil, err
		}
		base -= refunded
	}
	if base <= 0 {
		return nil, domain.ErrNotSettleable
	}
	tier, err := s.earnings.TierFor(ctx, booking.MentorID)
	if err != nil {
		return nil, err
	}
	commissionAmount, payout := commission.Split(base, tier)

	// Account readiness is checked before the claim so an unonboarded
	// mentor fails fast without burning a processing slot.
	accountID, err := s.earnings.PayoutAccountID(ctx, booking.MentorID)
	if err != nil {
		s.failBooking(ctx, bookingID, "payout account missing")
		return nil, fault.Terminal(err)
	}
	ready, err := s.gateway.AccountReady(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !ready {
		s.failBooking(ctx, bookingID, "payout account not ready")
		return nil, fault.Terminal(transferdomain.ErrAccountNotReady)
	}

	claimed, err := s.repo.BeginPayout(ctx, s.db, bookingID, commissionAmount, payout, string(tier), now)
	if err != nil {
		return nil, err
	}
	if !claimed && !opts.Force {
		return nil, domain.ErrAlreadyClaimed
	}

	result, err := s.gateway.Transfer(ctx, transferdomain.TransferRequest{
		IdempotencyKey: fmt.Sprintf("booking:%s:payout", bookingID),
		AccountID:      accountID,
		Amount:         payout,
		Currency:       booking.Currency,
		Description:    fmt.Sprintf("Session payout for booking %s", bookingID),
		Metadata: map[string]string{
			"booking_id": bookingID.String(),
			"mentor_id":  booking.MentorID.String(),
		},
	})
	if err != nil {
		s.settleTransferError(ctx, bookingID, err)
		return nil, err
	}

	finishedAt := s.clock.Now()
	var finished bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		finished, err = s.repo.FinishPayout(ctx, tx, bookingID, result.TransferRef, finishedAt)
		if err != nil {
			return err
		}
		if !finished {
			return nil
		}
		return s.publisher.PublishTx(ctx, tx, events.TopicPayoutPaid,
			fmt.Sprintf("payout.paid:booking:%s", bookingID),
			map[string]any{
				"booking_id":   bookingID.String(),
				"mentor_id":    booking.MentorID.String(),
				"payout":       payout,
				"commission":   commissionAmount,
				"tier":         string(tier),
				"transfer_ref": result.TransferRef,
			},
		)
	})
	if err != nil {
		return nil, err
	}
	if !finished {
		// A dispute parked the booking while the transfer was in flight.
		// The transfer already happened; its idempotency key makes a
		// pay_mentor resolution replay it without a second disbursement.
		s.log.Warn("settlement.booking.finish_lost_to_dispute",
			zap.String("booking_id", bookingID.String()),
			zap.String("transfer_ref", result.TransferRef),
		)
		return nil, domain.ErrDisputed
	}

	// The earnings aggregate dedupes on (kind, source), so a replayed
	// settlement cannot double-advance a tier.
	if _, err := s.earnings.Add(ctx, earningsdomain.AddEntryRequest{
		MentorID:   booking.MentorID,
		Kind:       earningsdomain.EntryKindBooking,
		SourceID:   bookingID,
		Amount:     payout,
		Currency:   booking.Currency,
		OccurredAt: finishedAt,
	}); err != nil {
		return nil, err
	}

	metrics.Scheduler().IncPayoutOutcome("paid")
	s.log.Info("settlement.booking.paid",
		zap.String("booking_id", bookingID.String()),
		zap.String("mentor_id", booking.MentorID.String()),
		zap.Int64("payout", payout),
		zap.Int64("commission", commissionAmount),
		zap.String("tier", string(tier)),
		zap.String("transfer_ref", result.TransferRef),
	)

	return &domain.Outcome{
		BookingID:   bookingID,
		Commission:  commissionAmount,
		Payout:      payout,
		Tier:        string(tier),
		TransferRef: result.TransferRef,
	}, nil
}

// SettleColdMessage pays the mentor for a paid intro message. No dispute
// window applies.
func (s *Service) SettleColdMessage(ctx context.Context, messageID snowflake.ID) (*domain.Outcome, error) {
	message, err := s.repo.FindColdMessage(ctx, s.db, messageID)
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, bookingdomain.ErrNotFound
	}
	if err := guard.EnsureColdMessageSettleable(message); err != nil {
		return nil, err
	}
	if message.PayoutStatus == bookingdomain.PayoutStatusPaid {
		return &domain.Outcome{BookingID: messageID, TransferRef: message.TransferRef, AlreadyPaid: true}, nil
	}

	tier, err := s.earnings.TierFor(ctx, message.MentorID)
	if err != nil {
		return nil, err
	}
	commissionAmount, payout := commission.Split(message.Amount, tier)

	accountID, err := s.earnings.PayoutAccountID(ctx, message.MentorID)
	if err != nil {
		_, _ = s.repo.FailColdPayout(ctx, s.db, messageID, "payout account missing", s.clock.Now())
		return nil, fault.Terminal(err)
	}
	ready, err := s.gateway.AccountReady(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !ready {
		_, _ = s.repo.FailColdPayout(ctx, s.db, messageID, "payout account not ready", s.clock.Now())
		return nil, fault.Terminal(transferdomain.ErrAccountNotReady)
	}

	now := s.clock.Now()
	claimed, err := s.repo.BeginColdPayout(ctx, s.db, messageID, commissionAmount, payout, string(tier), now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, domain.ErrAlreadyClaimed
	}

	result, err := s.gateway.Transfer(ctx, transferdomain.TransferRequest{
		IdempotencyKey: fmt.Sprintf("cold_message:%s:payout", messageID),
		AccountID:      accountID,
		Amount:         payout,
		Currency:       message.Currency,
		Description:    fmt.Sprintf("Cold message payout %s", messageID),
		Metadata:       map[string]string{"cold_message_id": messageID.String()},
	})
	if err != nil {
		now := s.clock.Now()
		if fault.Retryable(err) {
			_, _ = s.repo.ReleaseColdPayout(ctx, s.db, messageID, err.Error(), now)
		} else {
			_, _ = s.repo.FailColdPayout(ctx, s.db, messageID, err.Error(), now)
			metrics.Scheduler().IncPayoutOutcome("failed")
		}
		return nil, err
	}

	finishedAt := s.clock.Now()
	if _, err := s.repo.FinishColdPayout(ctx, s.db, messageID, result.TransferRef, finishedAt); err != nil {
		return nil, err
	}
	if _, err := s.earnings.Add(ctx, earningsdomain.AddEntryRequest{
		MentorID:   message.MentorID,
		Kind:       earningsdomain.EntryKindColdMessage,
		SourceID:   messageID,
		Amount:     payout,
		Currency:   message.Currency,
		OccurredAt: finishedAt,
	}); err != nil {
		return nil, err
	}

	metrics.Scheduler().IncPayoutOutcome("paid")
	return &domain.Outcome{
		BookingID:   messageID,
		Commission:  commissionAmount,
		Payout:      payout,
		Tier:        string(tier),
		TransferRef: result.TransferRef,
	}, nil
}

func (s *Service) MarkDisputed(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) error {
	_, err := s.repo.SetPayoutStatus(ctx, tx, bookingID,
		[]bookingdomain.PayoutStatus{bookingdomain.PayoutStatusPending, bookingdomain.PayoutStatusProcessing, bookingdomain.PayoutStatusFailed},
		bookingdomain.PayoutStatusDisputed,
		s.clock.Now(),
	)
	return err
}

func (s *Service) MarkRefunded(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) error {
	_, err := s.repo.SetPayoutStatus(ctx, tx, bookingID,
		[]bookingdomain.PayoutStatus{bookingdomain.PayoutStatusDisputed, bookingdomain.PayoutStatusPending},
		bookingdomain.PayoutStatusRefunded,
		s.clock.Now(),
	)
	return err
}

func (s *Service) ReleaseDispute(ctx context.Context, tx *gorm.DB, bookingID snowflake.ID) error {
	_, err := s.repo.SetPayoutStatus(ctx, tx, bookingID,
		[]bookingdomain.PayoutStatus{bookingdomain.PayoutStatusDisputed},
		bookingdomain.PayoutStatusPending,
		s.clock.Now(),
	)
	return err
}

func (s *Service) FailedPayouts(ctx context.Context, limit int) ([]bookingdomain.Booking, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListFailedPayouts(ctx, s.db, limit)
}

// settleTransferError releases the claim on transient failures so the next
// sweep retries, and parks terminal failures for the operator.
func (s *Service) settleTransferError(ctx context.Context, bookingID snowflake.ID, transferErr error) {
	now := s.clock.Now()
	if fault.Retryable(transferErr) {
		if _, err := s.repo.ReleasePayout(ctx, s.db, bookingID, transferErr.Error(), now); err != nil {
			s.log.Error("settlement.release_failed", zap.String("booking_id", bookingID.String()), zap.Error(err))
		}
		s.log.Warn("settlement.booking.deferred",
			zap.String("booking_id", bookingID.String()),
			zap.Error(transferErr),
		)
		return
	}
	s.failBooking(ctx, bookingID, transferErr.Error())
}

func (s *Service) failBooking(ctx context.Context, bookingID snowflake.ID, reason string) {
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.FailPayout(ctx, tx, bookingID, reason, now); err != nil {
			return err
		}
		return s.publisher.PublishTx(ctx, tx, events.TopicPayoutFailed,
			fmt.Sprintf("payout.failed:booking:%s:%d", bookingID, now.Unix()),
			map[string]any{"booking_id": bookingID.String(), "reason": reason},
		)
	})
	if err != nil {
		s.log.Error("settlement.fail_mark_failed", zap.String("booking_id", bookingID.String()), zap.Error(err))
		return
	}
	metrics.Scheduler().IncPayoutOutcome("failed")
	s.log.Warn("settlement.booking.failed",
		zap.String("booking_id", bookingID.String()),
		zap.String("reason", reason),
	)
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
