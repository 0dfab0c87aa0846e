package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/booking/domain"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/config"
	"github.com/mentorhive/mentorhive/internal/events"
	"github.com/mentorhive/mentorhive/internal/identity"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	refunddomain "github.com/mentorhive/mentorhive/internal/refund/domain"
	walletdomain "github.com/mentorhive/mentorhive/internal/wallet/domain"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Refunds   refunddomain.Service
	Wallets   walletdomain.Service
	Policy    *config.PolicyHolder
	Publisher events.Publisher
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	refunds   refunddomain.Service
	wallets   walletdomain.Service
	policy    *config.PolicyHolder
	publisher events.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("booking.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		refunds:   p.Refunds,
		wallets:   p.Wallets,
		policy:    p.Policy,
		publisher: p.Publisher,
	}
}

// Checkout creates a booking in pending and freezes the cancellation policy
// on the row. Token-paid bookings debit the student's wallet and confirm in
// the same call; external payments confirm later through MarkPaid.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.Booking, error) {
	actor, ok := identity.ActorFromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingIdentity
	}

	mentorID, err := snowflake.ParseString(strings.TrimSpace(req.MentorID))
	if err != nil || mentorID == actor.UserID {
		return nil, domain.ErrInvalidMentor
	}
	serviceID, err := snowflake.ParseString(strings.TrimSpace(req.ServiceID))
	if err != nil {
		return nil, domain.ErrInvalidService
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return nil, domain.ErrInvalidScheduleTime
	}
	scheduledAt = scheduledAt.UTC()

	now := s.clock.Now()
	if !scheduledAt.After(now) {
		return nil, domain.ErrInvalidScheduleTime
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes > 24*60 {
		return nil, domain.ErrInvalidDuration
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}
	if _, err := time.LoadLocation(strings.TrimSpace(req.StudentTimezone)); err != nil {
		return nil, domain.ErrInvalidScheduleTime
	}
	if _, err := time.LoadLocation(strings.TrimSpace(req.MentorTimezone)); err != nil {
		return nil, domain.ErrInvalidScheduleTime
	}

	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
	switch method {
	case domain.PaymentMethodExternal, domain.PaymentMethodTokens:
	default:
		return nil, domain.ErrInvalidPaymentMethod
	}

	cancellationHours := req.CancellationHours
	if cancellationHours <= 0 {
		cancellationHours = s.policy.Get().DefaultCancellationHours
	}

	booking := &domain.Booking{
		ID:              s.genID.Generate(),
		ServiceID:       serviceID,
		MentorID:        mentorID,
		StudentID:       actor.UserID,
		ScheduledAt:     scheduledAt,
		StudentTimezone: strings.TrimSpace(req.StudentTimezone),
		MentorTimezone:  strings.TrimSpace(req.MentorTimezone),
		DurationMinutes: req.DurationMinutes,
		Status:          domain.BookingStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   method,
		Amount:          req.Amount,
		Currency:        currency,
		PayoutStatus:    domain.PayoutStatusNone,

		CancellationHours:       cancellationHours,
		CancellationPolicySetBy: mentorID,
		CancellationPolicySetAt: now,

		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, booking); err != nil {
		return nil, err
	}

	if method == domain.PaymentMethodTokens {
		txn, _, err := s.wallets.Debit(ctx, walletdomain.DebitRequest{
			UserID:      actor.UserID,
			Amount:      req.Amount,
			Reference:   fmt.Sprintf("booking:%s:payment", booking.ID),
			Description: "session booking",
		})
		if err != nil {
			// The pending row stays behind; the stale-booking sweep
			// cancels it if the student never retries.
			return nil, err
		}
		if err := s.MarkPaid(ctx, booking.ID.String(), "tokens:"+txn.ID.String()); err != nil {
			return nil, err
		}
		return s.mustFind(ctx, booking.ID)
	}

	s.log.Info("booking.created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("student_id", actor.UserID.String()),
		zap.String("mentor_id", mentorID.String()),
		zap.Int64("amount", req.Amount),
	)
	return booking, nil
}

// MarkPaid confirms a pending booking once payment lands. Only the paying
// student (or an operator) confirms. Replays are harmless; a cancelled
// booking rejects the transition.
func (s *Service) MarkPaid(ctx context.Context, rawID string, chargeRef string) error {
	actor, ok := identity.ActorFromContext(ctx)
	if !ok {
		return domain.ErrMissingIdentity
	}
	bookingID, err := snowflake.ParseString(rawID)
	if err != nil {
		return domain.ErrInvalidBookingID
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := s.repo.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return domain.ErrNotFound
		}
		if !(actor.IsAdmin() || actor.IsSystem() || booking.StudentID == actor.UserID) {
			return domain.ErrNotParticipant
		}
		if booking.Status == domain.BookingStatusConfirmed {
			return nil
		}

		ok, err := s.repo.MarkPaid(ctx, tx, bookingID, chargeRef, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		return s.publisher.PublishTx(ctx, tx, events.TopicBookingConfirmed,
			fmt.Sprintf("booking.confirmed:%s", bookingID),
			map[string]any{"booking_id": bookingID.String()},
		)
	})
}

// Complete marks the session held and opens the dispute window. Only the
// mentor (or an operator) completes, and only after the scheduled start.
func (s *Service) Complete(ctx context.Context, rawID string) error {
	actor, ok := identity.ActorFromContext(ctx)
	if !ok {
		return domain.ErrMissingIdentity
	}
	bookingID, err := snowflake.ParseString(rawID)
	if err != nil {
		return domain.ErrInvalidBookingID
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := s.repo.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return domain.ErrNotFound
		}
		if !(actor.IsAdmin() || actor.IsSystem() || booking.MentorID == actor.UserID) {
			return domain.ErrNotParticipant
		}
		if booking.Status == domain.BookingStatusCompleted {
			return nil
		}
		if booking.Status != domain.BookingStatusConfirmed {
			return domain.ErrInvalidTransition
		}
		if booking.PaymentStatus != domain.PaymentStatusPaid {
			return domain.ErrNotPaid
		}
		if now.Before(booking.ScheduledAt) {
			return domain.ErrInvalidScheduleTime
		}

		windowEnds := now.Add(s.policy.Get().DisputeWindow())
		ok, err := s.repo.MarkCompleted(ctx, tx, bookingID, now, windowEnds)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		return s.publisher.PublishTx(ctx, tx, events.TopicBookingCompleted,
			fmt.Sprintf("booking.completed:%s", bookingID),
			map[string]any{
				"booking_id":          bookingID.String(),
				"dispute_period_ends": windowEnds,
			},
		)
	})
}

func (s *Service) MarkReviewable(ctx context.Context, rawID string) error {
	return s.forwardStatus(ctx, rawID, domain.BookingStatusCompleted, domain.BookingStatusReviewable)
}

func (s *Service) MarkReviewed(ctx context.Context, rawID string) error {
	return s.forwardStatus(ctx, rawID, domain.BookingStatusReviewable, domain.BookingStatusReviewed)
}

func (s *Service) forwardStatus(ctx context.Context, rawID string, from, to domain.BookingStatus) error {
	bookingID, err := snowflake.ParseString(rawID)
	if err != nil {
		return domain.ErrInvalidBookingID
	}
	ok, err := s.repo.MarkStatus(ctx, s.db, bookingID, from, to, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		booking, findErr := s.repo.FindByID(ctx, s.db, bookingID)
		if findErr != nil {
			return findErr
		}
		if booking == nil {
			return domain.ErrNotFound
		}
		if booking.Status == to {
			return nil
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

// Cancel tears a booking down before the session. The refund computed here
// is frozen into a booking_refunds row inside the same transaction; moving
// the money happens after commit and is retried by the sweep on failure.
func (s *Service) Cancel(ctx context.Context, req domain.CancelRequest) (*domain.Booking, error) {
	actor, ok := identity.ActorFromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingIdentity
	}
	bookingID, err := snowflake.ParseString(req.BookingID)
	if err != nil {
		return nil, domain.ErrInvalidBookingID
	}

	now := s.clock.Now()
	refundDue := int64(0)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := s.repo.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return domain.ErrNotFound
		}

		isMentor, isStudent := booking.ParticipantRole(actor.UserID)
		if !isMentor && !isStudent && !actor.IsAdmin() {
			return domain.ErrNotParticipant
		}

		switch booking.Status {
		case domain.BookingStatusCancelled:
			return domain.ErrAlreadyCancelled
		case domain.BookingStatusPending, domain.BookingStatusConfirmed:
		default:
			return domain.ErrAlreadyCompleted
		}
		if !now.Before(booking.ScheduledAt) {
			return domain.ErrCancellationWindow
		}

		ok, err := s.repo.MarkCancelled(ctx, tx, bookingID, booking.Status, actor.UserID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyCancelled
		}

		if _, err := s.repo.RejectPendingReschedules(ctx, tx, bookingID, now); err != nil {
			return err
		}

		if booking.PaymentStatus == domain.PaymentStatusPaid {
			refundDue = refunddomain.Compute(refunddomain.ComputeInput{
				Amount:            booking.Amount,
				ScheduledAt:       booking.ScheduledAt,
				CancellationHours: booking.CancellationHours,
				CancelledByMentor: isMentor,
				Now:               now,
			}, s.policy.Get())
			if refundDue > 0 {
				if _, err := s.refunds.Create(ctx, tx, refunddomain.ExecuteRequest{
					Booking:  booking,
					Amount:   refundDue,
					ToTokens: req.RefundToTokens,
					Reason:   strings.TrimSpace(req.Reason),
				}); err != nil && !errors.Is(err, refunddomain.ErrRefundAlreadyExists) {
					return err
				}
			}
		}

		return s.publisher.PublishTx(ctx, tx, events.TopicBookingCancelled,
			fmt.Sprintf("booking.cancelled:%s", bookingID),
			map[string]any{
				"booking_id":   bookingID.String(),
				"cancelled_by": actor.UserID.String(),
				"refund":       refundDue,
			},
		)
	})
	if err != nil {
		return nil, err
	}

	if refundDue > 0 {
		if err := s.refunds.Process(ctx, bookingID); err != nil {
			s.log.Warn("booking.cancel.refund_deferred",
				zap.String("booking_id", bookingID.String()),
				zap.Error(err),
			)
		}
	}

	s.log.Info("booking.cancelled",
		zap.String("booking_id", bookingID.String()),
		zap.String("cancelled_by", actor.UserID.String()),
		zap.Int64("refund", refundDue),
	)
	return s.mustFind(ctx, bookingID)
}

func (s *Service) GetByID(ctx context.Context, rawID string) (*domain.Booking, error) {
	actor, ok := identity.ActorFromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingIdentity
	}
	bookingID, err := snowflake.ParseString(rawID)
	if err != nil {
		return nil, domain.ErrInvalidBookingID
	}

	booking, err := s.repo.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, domain.ErrNotFound
	}

	isMentor, isStudent := booking.ParticipantRole(actor.UserID)
	if !isMentor && !isStudent && !actor.IsAdmin() && !actor.IsSystem() {
		return nil, domain.ErrNotParticipant
	}
	return booking, nil
}

func (s *Service) mustFind(ctx context.Context, bookingID snowflake.ID) (*domain.Booking, error) {
	booking, err := s.repo.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, domain.ErrNotFound
	}
	return booking, nil
}

// PurchaseColdMessage records a paid introduction. Payment clears upstream
// before this call, so the message is born payout-eligible.
func (s *Service) PurchaseColdMessage(ctx context.Context, req domain.ColdMessageRequest) (*domain.ColdMessage, error) {
	actor, ok := identity.ActorFromContext(ctx)
	if !ok {
		return nil, domain.ErrMissingIdentity
	}

	mentorID, err := snowflake.ParseString(strings.TrimSpace(req.MentorID))
	if err != nil || mentorID == actor.UserID {
		return nil, domain.ErrInvalidMentor
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	now := s.clock.Now().UTC()
	message := &domain.ColdMessage{
		ID:           s.genID.Generate(),
		MentorID:     mentorID,
		StudentID:    actor.UserID,
		Amount:       req.Amount,
		Currency:     currency,
		PaidAt:       &now,
		PayoutStatus: domain.PayoutStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertColdMessage(ctx, s.db, message); err != nil {
		return nil, fmt.Errorf("insert cold message: %w", err)
	}

	s.log.Info("booking.cold_message.purchased",
		zap.Int64("cold_message_id", int64(message.ID)),
		zap.Int64("mentor_id", int64(mentorID)),
		zap.Int64("amount", req.Amount),
	)
	return message, nil
}
