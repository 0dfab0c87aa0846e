package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	settlementdomain "github.com/mentorhive/mentorhive/internal/settlement/domain"
)

// PayoutSweepJob settles every booking whose dispute window has lapsed.
// Claiming happens in a short transaction; the settlement itself runs
// outside it, guarded by the payout status CAS and the provider
// idempotency key.
func (s *Scheduler) PayoutSweepJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	now := s.clock.Now()

	var claimed []bookingdomain.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = s.settleRepo.ClaimBookings(ctx, tx, now, s.cfg.BatchSize)
		return err
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, booking := range claimed {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := s.settlementSvc.SettleBooking(ctx, booking.ID, settlementdomain.SettleOptions{})
		switch {
		case err == nil:
			metrics.Scheduler().IncTransferCall("booking", "ok")
			run.AddProcessed(1)
		case errors.Is(err, settlementdomain.ErrDisputed),
			errors.Is(err, settlementdomain.ErrAlreadyClaimed),
			errors.Is(err, settlementdomain.ErrAlreadySettled):
			// Another worker or a dispute got there first.
			metrics.Scheduler().IncTransferCall("booking", "skipped")
		default:
			metrics.Scheduler().IncTransferCall("booking", "error")
			run.IncError()
			errs = append(errs, fmt.Errorf("settle booking %s: %w", booking.ID, err))
		}
	}
	metrics.Scheduler().AddBatchProcessed(metrics.JobPayoutSweep, "booking", len(claimed))
	return errors.Join(errs...)
}

// BusinessHoursSweepJob drains the same payout backlog on a tighter cadence
// while operators are around to react to failures. The scheduler gates it
// to business hours before calling.
func (s *Scheduler) BusinessHoursSweepJob(ctx context.Context) error {
	return s.PayoutSweepJob(ctx)
}

// ColdMessagePayoutJob settles paid intro messages. They carry no dispute
// window, so anything pending is due immediately.
func (s *Scheduler) ColdMessagePayoutJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	var claimed []bookingdomain.ColdMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = s.settleRepo.ClaimColdMessages(ctx, tx, s.cfg.BatchSize)
		return err
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, message := range claimed {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := s.settlementSvc.SettleColdMessage(ctx, message.ID)
		switch {
		case err == nil:
			metrics.Scheduler().IncTransferCall("cold_message", "ok")
			run.AddProcessed(1)
		case errors.Is(err, settlementdomain.ErrAlreadyClaimed):
			metrics.Scheduler().IncTransferCall("cold_message", "skipped")
		default:
			metrics.Scheduler().IncTransferCall("cold_message", "error")
			run.IncError()
			errs = append(errs, fmt.Errorf("settle cold message %s: %w", message.ID, err))
		}
	}
	metrics.Scheduler().AddBatchProcessed(metrics.JobColdMessagePayout, "cold_message", len(claimed))
	return errors.Join(errs...)
}

// AutoCancelJob expires bookings that never got paid. Token-paid bookings
// confirm at checkout, so anything still pending past the timeout is an
// abandoned external payment.
func (s *Scheduler) AutoCancelJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	now := s.clock.Now()
	cutoff := now.Add(-s.policy.Get().PendingPaymentTimeout())

	var stale []snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []struct{ ID snowflake.ID }
		err := tx.WithContext(ctx).Raw(
			`SELECT id FROM bookings
			 WHERE status = ? AND payment_status = ? AND created_at < ?
			 ORDER BY id
			 FOR UPDATE SKIP LOCKED
			 LIMIT ?`,
			bookingdomain.BookingStatusPending,
			bookingdomain.PaymentStatusPending,
			cutoff,
			s.cfg.BatchSize,
		).Scan(&rows).Error
		if err != nil {
			return err
		}
		for _, row := range rows {
			ok, err := s.bookings.MarkCancelled(ctx, tx, row.ID, bookingdomain.BookingStatusPending, 0, now)
			if err != nil {
				return err
			}
			if ok {
				stale = append(stale, row.ID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range stale {
		run.AddProcessed(1)
		s.log.Info("scheduler.booking.auto_cancelled", zap.String("booking_id", id.String()))
	}
	metrics.Scheduler().AddBatchProcessed(metrics.JobAutoCancel, "booking", len(stale))
	return nil
}

// RefundRetryJob replays refunds stuck in pending past the policy
// threshold, typically after a provider outage.
func (s *Scheduler) RefundRetryJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	olderThan := s.clock.Now().Add(-s.policy.Get().RefundRetryThreshold())

	processed, err := s.refundSvc.ProcessStuck(ctx, olderThan)
	run.AddProcessed(processed)
	metrics.Scheduler().AddBatchProcessed(metrics.JobRefundRetry, "refund", processed)
	return err
}
