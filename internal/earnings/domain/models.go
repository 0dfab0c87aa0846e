// Package domain contains mentor earnings aggregates. The lifetime total
// drives commission tier advancement; monthly buckets feed reporting.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MentorEarnings is the per-mentor aggregate. Version guards concurrent
// settlement writers with compare-and-swap.
type MentorEarnings struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	MentorID snowflake.ID `gorm:"not null;uniqueIndex"`

	TotalEarnings    int64 `gorm:"not null"`
	SessionEarnings  int64 `gorm:"not null"`
	MessageEarnings  int64 `gorm:"not null"`
	SessionCount     int64 `gorm:"not null"`
	ColdMessageCount int64 `gorm:"not null"`

	CommissionTier  string `gorm:"type:text;not null"`
	TierSetBy       *snowflake.ID
	TierSetAt       *time.Time
	PayoutAccountID string    `gorm:"type:text"`
	Version         int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MentorEarnings) TableName() string { return "mentor_earnings" }

type EntryKind string

const (
	EntryKindBooking     EntryKind = "booking"
	EntryKindColdMessage EntryKind = "cold_message"
)

// EarningEntry is one settled payout feeding the aggregate. The (kind,
// source_id) pair is unique so a replayed settlement cannot double-count.
type EarningEntry struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	MentorID   snowflake.ID `gorm:"not null;index"`
	Kind       EntryKind    `gorm:"type:text;not null;uniqueIndex:idx_earning_entries_source,priority:1"`
	SourceID   snowflake.ID `gorm:"not null;uniqueIndex:idx_earning_entries_source,priority:2"`
	Amount     int64        `gorm:"not null"`
	Currency   string       `gorm:"type:text;not null"`
	OccurredAt time.Time    `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (EarningEntry) TableName() string { return "earning_entries" }

// MonthlyEarnings is a denormalized month bucket, keyed by the first day of
// the month in UTC.
type MonthlyEarnings struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	MentorID  snowflake.ID `gorm:"not null;uniqueIndex:idx_monthly_earnings_bucket,priority:1"`
	Month     time.Time    `gorm:"not null;uniqueIndex:idx_monthly_earnings_bucket,priority:2"`
	Amount    int64        `gorm:"not null"`
	Sessions  int64        `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MonthlyEarnings) TableName() string { return "mentor_monthly_earnings" }
