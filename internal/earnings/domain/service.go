package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/commission"
)

var (
	ErrMentorNotFound  = errors.New("mentor_earnings_not_found")
	ErrInvalidEntry    = errors.New("invalid_earning_entry")
	ErrNoPayoutAccount = errors.New("mentor_payout_account_missing")
	ErrVersionConflict = errors.New("earnings_version_conflict")
)

type AddEntryRequest struct {
	MentorID   snowflake.ID
	Kind       EntryKind
	SourceID   snowflake.ID
	Amount     int64
	Currency   string
	OccurredAt time.Time
}

// Service maintains the per-mentor earnings aggregate.
type Service interface {
	// Add records a settled payout. Replays on the same (kind, source)
	// return applied=false and leave the aggregate untouched. Tier
	// advancement happens here, forward only.
	Add(ctx context.Context, req AddEntryRequest) (applied bool, err error)

	// TierFor resolves the commission tier to charge a mentor right now,
	// creating the aggregate at the entry tier on first sight.
	TierFor(ctx context.Context, mentorID snowflake.ID) (commission.Tier, error)

	// SetTier is the admin override. It may move the tier in either
	// direction and pins who set it.
	SetTier(ctx context.Context, mentorID snowflake.ID, tier commission.Tier, setBy snowflake.ID) error

	SetPayoutAccount(ctx context.Context, mentorID snowflake.ID, accountID string) error
	PayoutAccountID(ctx context.Context, mentorID snowflake.ID) (string, error)

	GetByMentor(ctx context.Context, mentorID snowflake.ID) (*MentorEarnings, error)
	MonthlyReport(ctx context.Context, mentorID snowflake.ID, months int) ([]MonthlyEarnings, error)
}
