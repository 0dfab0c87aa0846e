package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/clock"
	"github.com/mentorhive/mentorhive/internal/wallet/domain"
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
		log:   p.Log.Named("wallet.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Credit(ctx context.Context, req domain.CreditRequest) (*domain.WalletTransaction, bool, error) {
	if req.Amount <= 0 {
		return nil, false, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, false, domain.ErrMissingReference
	}

	var (
		txn     *domain.WalletTransaction
		applied bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindTransactionByReference(ctx, tx, req.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			txn = existing
			return nil
		}

		wallet, err := s.repo.FindByUserIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if wallet == nil {
			wallet = &domain.Wallet{
				ID:        s.genID.Generate(),
				UserID:    req.UserID,
				Currency:  req.Currency,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.repo.Insert(ctx, tx, wallet); err != nil {
				return err
			}
		}

		record := &domain.WalletTransaction{
			ID:          s.genID.Generate(),
			WalletID:    wallet.ID,
			Kind:        domain.TransactionKindCredit,
			Amount:      req.Amount,
			Reference:   req.Reference,
			Description: req.Description,
			CreatedAt:   now,
		}
		if err := s.repo.InsertTransaction(ctx, tx, record); err != nil {
			if db.IsDuplicateKeyErr(err) {
				existing, findErr := s.repo.FindTransactionByReference(ctx, tx, req.Reference)
				if findErr != nil {
					return findErr
				}
				txn = existing
				return nil
			}
			return err
		}

		ok, err := s.repo.ApplyDelta(ctx, tx, wallet.ID, req.Amount, wallet.Version, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVersionConflict
		}

		txn = record
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if applied {
		s.log.Info("wallet.credit.applied",
			zap.String("user_id", req.UserID.String()),
			zap.Int64("amount", req.Amount),
			zap.String("reference", req.Reference),
		)
	}
	return txn, applied, nil
}

func (s *Service) Debit(ctx context.Context, req domain.DebitRequest) (*domain.WalletTransaction, bool, error) {
	if req.Amount <= 0 {
		return nil, false, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, false, domain.ErrMissingReference
	}

	var (
		txn     *domain.WalletTransaction
		applied bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindTransactionByReference(ctx, tx, req.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			txn = existing
			return nil
		}

		wallet, err := s.repo.FindByUserIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if wallet == nil {
			return domain.ErrWalletNotFound
		}
		if wallet.Balance < req.Amount {
			return domain.ErrInsufficientBalance
		}

		now := s.clock.Now()
		record := &domain.WalletTransaction{
			ID:          s.genID.Generate(),
			WalletID:    wallet.ID,
			Kind:        domain.TransactionKindDebit,
			Amount:      -req.Amount,
			Reference:   req.Reference,
			Description: req.Description,
			CreatedAt:   now,
		}
		if err := s.repo.InsertTransaction(ctx, tx, record); err != nil {
			if db.IsDuplicateKeyErr(err) {
				existing, findErr := s.repo.FindTransactionByReference(ctx, tx, req.Reference)
				if findErr != nil {
					return findErr
				}
				txn = existing
				return nil
			}
			return err
		}

		ok, err := s.repo.ApplyDelta(ctx, tx, wallet.ID, -req.Amount, wallet.Version, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVersionConflict
		}

		txn = record
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return txn, applied, nil
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (*domain.Wallet, error) {
	wallet, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, domain.ErrWalletNotFound
	}
	return wallet, nil
}
