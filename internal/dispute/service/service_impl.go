package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/dispute/domain"
	"github.com/mentorhive/mentorhive/internal/events"
	"github.com/mentorhive/mentorhive/internal/identity"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	refunddomain "github.com/mentorhive/mentorhive/internal/refund/domain"
	settlementdomain "github.com/mentorhive/mentorhive/internal/settlement/domain"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Bookings   bookingdomain.Repository
	Refunds    refunddomain.Service
	Settlement settlementdomain.Service
	Publisher  events.Publisher
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	bookings   bookingdomain.Repository
	refunds    refunddomain.Service
	settlement settlementdomain.Service
	publisher  events.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("dispute.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		bookings:   p.Bookings,
		refunds:    p.Refunds,
		settlement: p.Settlement,
		publisher:  p.Publisher,
	}
}

// File opens a dispute on a completed booking inside the dispute window and
// parks the payout in the same transaction, so a sweep racing the filing
// can never pay the mentor.
func (s *Service) File(ctx context.Context, req domain.FileRequest) (*domain.Dispute, error) {
	actor, ok := identity.ActorFromContext(ctx)
	if !ok {
		return nil, bookingdomain.ErrMissingIdentity
	}
	bookingID, err := snowflake.ParseString(req.BookingID)
	if err != nil {
		return nil, bookingdomain.ErrInvalidBookingID
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, domain.ErrMissingReason
	}

	var dispute *domain.Dispute
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		booking, err := s.bookings.FindByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return bookingdomain.ErrNotFound
		}
		if booking.StudentID != actor.UserID {
			return domain.ErrNotStudent
		}

		switch booking.Status {
		case bookingdomain.BookingStatusCompleted, bookingdomain.BookingStatusReviewable, bookingdomain.BookingStatusReviewed:
		default:
			return domain.ErrBookingNotDisputable
		}

		now := s.clock.Now()
		if booking.DisputePeriodEnds == nil || !now.Before(*booking.DisputePeriodEnds) {
			return domain.ErrWindowClosed
		}
		if booking.PayoutStatus == bookingdomain.PayoutStatusPaid || booking.PayoutStatus == bookingdomain.PayoutStatusRefunded {
			return domain.ErrBookingNotDisputable
		}

		if existing, err := s.repo.FindActiveByBookingID(ctx, tx, bookingID); err != nil {
			return err
		} else if existing != nil {
			return domain.ErrAlreadyDisputed
		}

		evidence, err := packEvidence(req.Evidence, now)
		if err != nil {
			return err
		}
		dispute = &domain.Dispute{
			ID:             s.genID.Generate(),
			BookingID:      bookingID,
			FiledBy:        actor.UserID,
			Status:         domain.DisputeStatusPending,
			Reason:         reason,
			Details:        strings.TrimSpace(req.Details),
			Evidence:       evidence,
			MentorEvidence: datatypes.JSON("[]"),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Insert(ctx, tx, dispute); err != nil {
			return err
		}
		if err := s.settlement.MarkDisputed(ctx, tx, bookingID); err != nil {
			return err
		}
		return s.publisher.PublishTx(ctx, tx, events.TopicDisputeFiled,
			fmt.Sprintf("dispute.filed:%s", dispute.ID),
			map[string]any{
				"dispute_id": dispute.ID.String(),
				"booking_id": bookingID.String(),
				"mentor_id":  booking.MentorID.String(),
			},
		)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("dispute.filed",
		zap.String("dispute_id", dispute.ID.String()),
		zap.String("booking_id", bookingID.String()),
	)
	return dispute, nil
}

func (s *Service) MentorRespond(ctx context.Context, req domain.RespondRequest) (*domain.Dispute, error) {
	actor, ok := identity.ActorFromContext(ctx)
	if !ok {
		return nil, bookingdomain.ErrMissingIdentity
	}
	disputeID, err := snowflake.ParseString(req.DisputeID)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	response := strings.TrimSpace(req.Response)
	if response == "" {
		return nil, domain.ErrMissingReason
	}

	dispute, err := s.repo.FindByID(ctx, s.db, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, domain.ErrNotFound
	}

	booking, err := s.bookings.FindByID(ctx, s.db, dispute.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil || booking.MentorID != actor.UserID {
		return nil, domain.ErrNotMentor
	}

	now := s.clock.Now()
	evidence, err := packEvidence(req.Evidence, now)
	if err != nil {
		return nil, err
	}
	ok, err = s.repo.SetMentorResponse(ctx, s.db, disputeID, response, evidence, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		if dispute.Status.Active() {
			return nil, domain.ErrAlreadyResponded
		}
		return nil, domain.ErrNotActive
	}
	return s.repo.FindByID(ctx, s.db, disputeID)
}

// packEvidence serializes submitted evidence for storage, stamping any item
// the caller left undated with the submission time.
func packEvidence(items []domain.EvidenceItem, now time.Time) (datatypes.JSON, error) {
	if len(items) == 0 {
		return datatypes.JSON("[]"), nil
	}
	stamped := make([]domain.EvidenceItem, 0, len(items))
	for _, item := range items {
		if item.UploadedAt.IsZero() {
			item.UploadedAt = now
		}
		stamped = append(stamped, item)
	}
	body, err := json.Marshal(stamped)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(body), nil
}

func (s *Service) Escalate(ctx context.Context, rawID string) (*domain.Dispute, error) {
	disputeID, err := snowflake.ParseString(rawID)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	ok, err := s.repo.MarkStatus(ctx, s.db, disputeID,
		[]domain.DisputeStatus{domain.DisputeStatusPending, domain.DisputeStatusMentorResponded},
		domain.DisputeStatusAdminReview,
		s.clock.Now(),
	)
	if err != nil {
		return nil, err
	}
	if !ok {
		dispute, findErr := s.repo.FindByID(ctx, s.db, disputeID)
		if findErr != nil {
			return nil, findErr
		}
		if dispute == nil {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrNotActive
	}
	return s.repo.FindByID(ctx, s.db, disputeID)
}

// Resolve closes the dispute exactly once and routes the held money. The
// CAS on the dispute row is the only gate: whoever wins it executes the
// decision, and every money movement below is itself idempotent.
func (s *Service) Resolve(ctx context.Context, req domain.ResolveRequest) (*domain.Dispute, error) {
	actor, ok := identity.ActorFromContext(ctx)
	if !ok || !(actor.IsAdmin() || actor.IsSystem()) {
		return nil, bookingdomain.ErrMissingIdentity
	}
	disputeID, err := snowflake.ParseString(req.DisputeID)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	decision := domain.Decision(strings.TrimSpace(req.Decision))
	switch decision {
	case domain.DecisionRefundMentee, domain.DecisionPayMentor, domain.DecisionPartialRefund:
	default:
		return nil, domain.ErrInvalidDecision
	}

	dispute, err := s.repo.FindByID(ctx, s.db, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, domain.ErrNotFound
	}
	if !dispute.Status.Active() {
		return nil, domain.ErrAlreadyResolved
	}

	booking, err := s.bookings.FindByID(ctx, s.db, dispute.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, bookingdomain.ErrNotFound
	}

	var partial *int64
	if decision == domain.DecisionPartialRefund {
		if req.PartialRefundAmount == nil || *req.PartialRefundAmount <= 0 || *req.PartialRefundAmount >= booking.Amount {
			return nil, domain.ErrInvalidPartialAmount
		}
		amount := *req.PartialRefundAmount
		partial = &amount
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.MarkResolved(ctx, tx, disputeID, decision, partial, strings.TrimSpace(req.Notes), actor.UserID, now)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrAlreadyResolved
		}

		switch decision {
		case domain.DecisionRefundMentee:
			if _, err := s.refunds.Create(ctx, tx, refunddomain.ExecuteRequest{
				Booking: booking,
				Amount:  booking.Amount,
				Reason:  "dispute resolved in student's favor",
			}); err != nil && !errors.Is(err, refunddomain.ErrRefundAlreadyExists) {
				return err
			}
			if err := s.settlement.MarkRefunded(ctx, tx, booking.ID); err != nil {
				return err
			}
		case domain.DecisionPayMentor:
			if err := s.settlement.ReleaseDispute(ctx, tx, booking.ID); err != nil {
				return err
			}
		case domain.DecisionPartialRefund:
			if _, err := s.refunds.Create(ctx, tx, refunddomain.ExecuteRequest{
				Booking: booking,
				Amount:  *partial,
				Reason:  "dispute resolved with partial refund",
			}); err != nil && !errors.Is(err, refunddomain.ErrRefundAlreadyExists) {
				return err
			}
			if err := s.settlement.ReleaseDispute(ctx, tx, booking.ID); err != nil {
				return err
			}
		}

		return s.publisher.PublishTx(ctx, tx, events.TopicDisputeResolved,
			fmt.Sprintf("dispute.resolved:%s", disputeID),
			map[string]any{
				"dispute_id": disputeID.String(),
				"booking_id": booking.ID.String(),
				"decision":   string(decision),
			},
		)
	})
	if err != nil {
		return nil, err
	}

	s.executeDecision(ctx, booking, decision, partial)

	s.log.Info("dispute.resolved",
		zap.String("dispute_id", disputeID.String()),
		zap.String("booking_id", booking.ID.String()),
		zap.String("decision", string(decision)),
	)
	return s.repo.FindByID(ctx, s.db, disputeID)
}

// executeDecision moves the money after the decision commits. Failures here
// are retried by the refund and payout sweeps, which pick up the pending
// rows the transaction left behind.
func (s *Service) executeDecision(ctx context.Context, booking *bookingdomain.Booking, decision domain.Decision, partial *int64) {
	switch decision {
	case domain.DecisionRefundMentee:
		if err := s.refunds.Process(ctx, booking.ID); err != nil {
			s.log.Warn("dispute.refund_deferred", zap.String("booking_id", booking.ID.String()), zap.Error(err))
		}
	case domain.DecisionPayMentor:
		if _, err := s.settlement.SettleBooking(ctx, booking.ID, settlementdomain.SettleOptions{Force: true}); err != nil {
			s.log.Warn("dispute.payout_deferred", zap.String("booking_id", booking.ID.String()), zap.Error(err))
		}
	case domain.DecisionPartialRefund:
		if err := s.refunds.Process(ctx, booking.ID); err != nil {
			s.log.Warn("dispute.refund_deferred", zap.String("booking_id", booking.ID.String()), zap.Error(err))
		}
		base := booking.Amount - *partial
		if _, err := s.settlement.SettleBooking(ctx, booking.ID, settlementdomain.SettleOptions{Force: true, BaseOverride: &base}); err != nil {
			s.log.Warn("dispute.payout_deferred", zap.String("booking_id", booking.ID.String()), zap.Error(err))
		}
	}
}

func (s *Service) Dismiss(ctx context.Context, rawID string, notes string) (*domain.Dispute, error) {
	actor, ok := identity.ActorFromContext(ctx)
	if !ok || !(actor.IsAdmin() || actor.IsSystem()) {
		return nil, bookingdomain.ErrMissingIdentity
	}
	disputeID, err := snowflake.ParseString(rawID)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	dispute, err := s.repo.FindByID(ctx, s.db, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.MarkDismissed(ctx, tx, disputeID, strings.TrimSpace(notes), actor.UserID, now)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrAlreadyResolved
		}
		// The payout returns to the sweep; the window has already lapsed
		// by the time anyone dismisses, so the next pass pays the mentor.
		return s.settlement.ReleaseDispute(ctx, tx, dispute.BookingID)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, s.db, disputeID)
}

func (s *Service) GetByID(ctx context.Context, rawID string) (*domain.Dispute, error) {
	disputeID, err := snowflake.ParseString(rawID)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	dispute, err := s.repo.FindByID(ctx, s.db, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute == nil {
		return nil, domain.ErrNotFound
	}
	return dispute, nil
}

func (s *Service) ListOpen(ctx context.Context, limit int) ([]domain.Dispute, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByStatus(ctx, s.db,
		[]domain.DisputeStatus{domain.DisputeStatusPending, domain.DisputeStatusMentorResponded, domain.DisputeStatusAdminReview},
		limit,
	)
}
