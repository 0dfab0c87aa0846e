package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/fault"
	"github.com/mentorhive/mentorhive/internal/refund/domain"
	"github.com/mentorhive/mentorhive/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	transferdomain "github.com/mentorhive/mentorhive/internal/transfer/domain"
	walletdomain "github.com/mentorhive/mentorhive/internal/wallet/domain"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Bookings bookingdomain.Repository
	Wallets  walletdomain.Service
	Gateway  transferdomain.Gateway
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	bookings bookingdomain.Repository
	wallets  walletdomain.Service
	gateway  transferdomain.Gateway
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("refund.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		bookings: p.Bookings,
		wallets:  p.Wallets,
		gateway:  p.Gateway,
	}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, req domain.ExecuteRequest) (*bookingdomain.BookingRefund, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrNothingToRefund
	}

	refundType := bookingdomain.RefundTypeExternal
	if req.ToTokens || req.Booking.PaymentMethod == bookingdomain.PaymentMethodTokens {
		refundType = bookingdomain.RefundTypeTokens
	}

	now := s.clock.Now()
	refund := &bookingdomain.BookingRefund{
		ID:        s.genID.Generate(),
		BookingID: req.Booking.ID,
		Status:    bookingdomain.RefundStatusPending,
		Type:      refundType,
		Amount:    req.Amount,
		Reason:    req.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, tx, refund); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrRefundAlreadyExists
		}
		return nil, err
	}
	return refund, nil
}

// Process moves the money for a pending refund. The provider idempotency
// key and the wallet transaction reference both derive from the booking id,
// so replays after a crash cannot pay twice.
func (s *Service) Process(ctx context.Context, bookingID snowflake.ID) error {
	refund, err := s.repo.FindByBookingID(ctx, s.db, bookingID)
	if err != nil {
		return err
	}
	if refund == nil {
		return domain.ErrRefundNotFound
	}
	if refund.Status == bookingdomain.RefundStatusProcessed {
		return nil
	}

	booking, err := s.bookings.FindByID(ctx, s.db, bookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return bookingdomain.ErrNotFound
	}

	var externalRef string
	switch refund.Type {
	case bookingdomain.RefundTypeTokens:
		txn, _, err := s.wallets.Credit(ctx, walletdomain.CreditRequest{
			UserID:      booking.StudentID,
			Amount:      refund.Amount,
			Currency:    booking.Currency,
			Reference:   fmt.Sprintf("refund:%s", booking.ID),
			Description: refund.Reason,
		})
		if err != nil {
			return err
		}
		externalRef = txn.ID.String()
	default:
		result, err := s.gateway.Refund(ctx, transferdomain.RefundRequest{
			IdempotencyKey: fmt.Sprintf("booking:%s:refund", booking.ID),
			ChargeRef:      booking.ChargeRef,
			Amount:         refund.Amount,
			Reason:         refund.Reason,
		})
		if err != nil {
			if !fault.Retryable(err) {
				now := s.clock.Now()
				if _, markErr := s.repo.MarkFailed(ctx, s.db, refund.ID, err.Error(), now); markErr != nil {
					return markErr
				}
				s.log.Error("refund.process.rejected",
					zap.String("booking_id", booking.ID.String()),
					zap.Error(err),
				)
			}
			return err
		}
		externalRef = result.RefundRef
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.MarkProcessed(ctx, tx, refund.ID, externalRef, now)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent processor won the race; the money moved once
			// either way.
			return nil
		}
		if err := s.bookings.SetPaymentRefunded(ctx, tx, booking.ID, now); err != nil {
			return err
		}
		s.log.Info("refund.processed",
			zap.String("booking_id", booking.ID.String()),
			zap.Int64("amount", refund.Amount),
			zap.String("type", string(refund.Type)),
			zap.String("external_ref", externalRef),
		)
		return nil
	})
}

func (s *Service) ProcessStuck(ctx context.Context, olderThan time.Time) (int, error) {
	refunds, err := s.repo.ListPendingOlderThan(ctx, s.db, olderThan, 100)
	if err != nil {
		return 0, err
	}

	processed := 0
	var errs []error
	for _, refund := range refunds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Process(ctx, refund.BookingID); err != nil {
			errs = append(errs, fmt.Errorf("refund booking %s: %w", refund.BookingID, err))
			continue
		}
		processed++
	}
	return processed, errors.Join(errs...)
}

func (s *Service) GetByBookingID(ctx context.Context, bookingID snowflake.ID) (*bookingdomain.BookingRefund, error) {
	refund, err := s.repo.FindByBookingID(ctx, s.db, bookingID)
	if err != nil {
		return nil, err
	}
	if refund == nil {
		return nil, domain.ErrRefundNotFound
	}
	return refund, nil
}
