package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/commission"
	"github.com/mentorhive/mentorhive/internal/earnings/domain"
	"github.com/mentorhive/mentorhive/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("earnings.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Add(ctx context.Context, req domain.AddEntryRequest) (bool, error) {
	if req.MentorID == 0 || req.SourceID == 0 || req.Amount <= 0 {
		return false, domain.ErrInvalidEntry
	}

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		earnings, err := s.ensureAggregate(ctx, tx, req.MentorID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		entry := &domain.EarningEntry{
			ID:         s.genID.Generate(),
			MentorID:   req.MentorID,
			Kind:       req.Kind,
			SourceID:   req.SourceID,
			Amount:     req.Amount,
			Currency:   req.Currency,
			OccurredAt: req.OccurredAt,
			CreatedAt:  now,
		}
		if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
			if db.IsDuplicateKeyErr(err) {
				// Settlement replay. The aggregate already counted it.
				return nil
			}
			return err
		}

		newTotal := earnings.TotalEarnings + req.Amount
		current, err := commission.Parse(earnings.CommissionTier)
		if err != nil {
			current = commission.Tier1
		}
		// Earned advancement never demotes an admin-pinned tier.
		next := commission.Max(current, commission.TierForEarnings(newTotal))

		ok, err := s.repo.AddToTotal(ctx, tx, earnings.ID, req.Amount, req.Kind, string(next), earnings.Version, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVersionConflict
		}

		month := time.Date(req.OccurredAt.Year(), req.OccurredAt.Month(), 1, 0, 0, 0, 0, time.UTC)
		if err := s.repo.UpsertMonthly(ctx, tx, req.MentorID, month, req.Amount, s.genID.Generate(), now); err != nil {
			return err
		}

		if next != current {
			s.log.Info("earnings.tier.advanced",
				zap.String("mentor_id", req.MentorID.String()),
				zap.String("from", string(current)),
				zap.String("to", string(next)),
				zap.Int64("total_earnings", newTotal),
			)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *Service) TierFor(ctx context.Context, mentorID snowflake.ID) (commission.Tier, error) {
	var tier commission.Tier
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		earnings, err := s.ensureAggregate(ctx, tx, mentorID)
		if err != nil {
			return err
		}
		parsed, err := commission.Parse(earnings.CommissionTier)
		if err != nil {
			parsed = commission.Tier1
		}
		tier = parsed
		return nil
	})
	return tier, err
}

func (s *Service) SetTier(ctx context.Context, mentorID snowflake.ID, tier commission.Tier, setBy snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ensureAggregate(ctx, tx, mentorID); err != nil {
			return err
		}
		ok, err := s.repo.SetTier(ctx, tx, mentorID, string(tier), setBy, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrMentorNotFound
		}
		s.log.Info("earnings.tier.set",
			zap.String("mentor_id", mentorID.String()),
			zap.String("tier", string(tier)),
			zap.String("set_by", setBy.String()),
		)
		return nil
	})
}

func (s *Service) SetPayoutAccount(ctx context.Context, mentorID snowflake.ID, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return domain.ErrNoPayoutAccount
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ensureAggregate(ctx, tx, mentorID); err != nil {
			return err
		}
		ok, err := s.repo.SetPayoutAccount(ctx, tx, mentorID, accountID, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrMentorNotFound
		}
		return nil
	})
}

func (s *Service) PayoutAccountID(ctx context.Context, mentorID snowflake.ID) (string, error) {
	earnings, err := s.repo.FindByMentorID(ctx, s.db, mentorID)
	if err != nil {
		return "", err
	}
	if earnings == nil || strings.TrimSpace(earnings.PayoutAccountID) == "" {
		return "", domain.ErrNoPayoutAccount
	}
	return earnings.PayoutAccountID, nil
}

func (s *Service) GetByMentor(ctx context.Context, mentorID snowflake.ID) (*domain.MentorEarnings, error) {
	earnings, err := s.repo.FindByMentorID(ctx, s.db, mentorID)
	if err != nil {
		return nil, err
	}
	if earnings == nil {
		return nil, domain.ErrMentorNotFound
	}
	return earnings, nil
}

func (s *Service) MonthlyReport(ctx context.Context, mentorID snowflake.ID, months int) ([]domain.MonthlyEarnings, error) {
	if months <= 0 {
		months = 12
	}
	now := s.clock.Now()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
	return s.repo.ListMonthly(ctx, s.db, mentorID, since)
}

// ensureAggregate loads the mentor row under lock, creating it at the entry
// tier the first time a mentor earns anything.
func (s *Service) ensureAggregate(ctx context.Context, tx *gorm.DB, mentorID snowflake.ID) (*domain.MentorEarnings, error) {
	earnings, err := s.repo.FindByMentorIDForUpdate(ctx, tx, mentorID)
	if err != nil {
		return nil, err
	}
	if earnings != nil {
		return earnings, nil
	}

	now := s.clock.Now()
	earnings = &domain.MentorEarnings{
		ID:             s.genID.Generate(),
		MentorID:       mentorID,
		CommissionTier: string(commission.Tier1),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, tx, earnings); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.repo.FindByMentorIDForUpdate(ctx, tx, mentorID)
		}
		return nil, err
	}
	return earnings, nil
}
