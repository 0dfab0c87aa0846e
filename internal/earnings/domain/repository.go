package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByMentorID(ctx context.Context, db *gorm.DB, mentorID snowflake.ID) (*MentorEarnings, error)
	FindByMentorIDForUpdate(ctx context.Context, db *gorm.DB, mentorID snowflake.ID) (*MentorEarnings, error)
	Insert(ctx context.Context, db *gorm.DB, earnings *MentorEarnings) error

	// AddToTotal bumps the lifetime total, the kind-specific sub-total and
	// count, and optionally the tier iff the version still matches.
	AddToTotal(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, kind EntryKind, tier string, version int64, now time.Time) (bool, error)

	SetTier(ctx context.Context, db *gorm.DB, mentorID snowflake.ID, tier string, setBy snowflake.ID, now time.Time) (bool, error)
	SetPayoutAccount(ctx context.Context, db *gorm.DB, mentorID snowflake.ID, accountID string, now time.Time) (bool, error)

	InsertEntry(ctx context.Context, db *gorm.DB, entry *EarningEntry) error
	UpsertMonthly(ctx context.Context, db *gorm.DB, mentorID snowflake.ID, month time.Time, amount int64, genID snowflake.ID, now time.Time) error
	ListMonthly(ctx context.Context, db *gorm.DB, mentorID snowflake.ID, since time.Time) ([]MonthlyEarnings, error)
}
