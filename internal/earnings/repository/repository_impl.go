package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/earnings/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const earningsColumns = `id, mentor_id, total_earnings, session_earnings, message_earnings,
	session_count, cold_message_count, commission_tier, tier_set_by, tier_set_at,
	payout_account_id, version, created_at, updated_at`

func (r *repo) FindByMentorID(ctx context.Context, db *gorm.DB, mentorID snowflake.ID) (*domain.MentorEarnings, error) {
	var earnings domain.MentorEarnings
	err := db.WithContext(ctx).Raw(
		`SELECT `+earningsColumns+` FROM mentor_earnings WHERE mentor_id = ?`,
		mentorID,
	).Scan(&earnings).Error
	if err != nil {
		return nil, err
	}
	if earnings.ID == 0 {
		return nil, nil
	}
	return &earnings, nil
}

func (r *repo) FindByMentorIDForUpdate(ctx context.Context, db *gorm.DB, mentorID snowflake.ID) (*domain.MentorEarnings, error) {
	var earnings domain.MentorEarnings
	err := db.WithContext(ctx).Raw(
		`SELECT `+earningsColumns+` FROM mentor_earnings WHERE mentor_id = ? FOR UPDATE`,
		mentorID,
	).Scan(&earnings).Error
	if err != nil {
		return nil, err
	}
	if earnings.ID == 0 {
		return nil, nil
	}
	return &earnings, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, earnings *domain.MentorEarnings) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO mentor_earnings (
			id, mentor_id, total_earnings, session_earnings, message_earnings,
			session_count, cold_message_count, commission_tier, tier_set_by, tier_set_at,
			payout_account_id, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		earnings.ID,
		earnings.MentorID,
		earnings.TotalEarnings,
		earnings.SessionEarnings,
		earnings.MessageEarnings,
		earnings.SessionCount,
		earnings.ColdMessageCount,
		earnings.CommissionTier,
		earnings.TierSetBy,
		earnings.TierSetAt,
		earnings.PayoutAccountID,
		earnings.Version,
		earnings.CreatedAt,
		earnings.UpdatedAt,
	).Error
}

func (r *repo) AddToTotal(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64, kind domain.EntryKind, tier string, version int64, now time.Time) (bool, error) {
	var sessionDelta, messageDelta int64
	var sessionCount, messageCount int64
	if kind == domain.EntryKindColdMessage {
		messageDelta, messageCount = amount, 1
	} else {
		sessionDelta, sessionCount = amount, 1
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE mentor_earnings
		 SET total_earnings = total_earnings + ?,
		     session_earnings = session_earnings + ?,
		     message_earnings = message_earnings + ?,
		     session_count = session_count + ?,
		     cold_message_count = cold_message_count + ?,
		     commission_tier = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		amount,
		sessionDelta,
		messageDelta,
		sessionCount,
		messageCount,
		tier,
		now,
		id,
		version,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) SetTier(ctx context.Context, db *gorm.DB, mentorID snowflake.ID, tier string, setBy snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE mentor_earnings
		 SET commission_tier = ?, tier_set_by = ?, tier_set_at = ?, version = version + 1, updated_at = ?
		 WHERE mentor_id = ?`,
		tier,
		setBy,
		now,
		now,
		mentorID,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) SetPayoutAccount(ctx context.Context, db *gorm.DB, mentorID snowflake.ID, accountID string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE mentor_earnings SET payout_account_id = ?, updated_at = ? WHERE mentor_id = ?`,
		accountID,
		now,
		mentorID,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.EarningEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO earning_entries (id, mentor_id, kind, source_id, amount, currency, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.MentorID,
		entry.Kind,
		entry.SourceID,
		entry.Amount,
		entry.Currency,
		entry.OccurredAt,
		entry.CreatedAt,
	).Error
}

func (r *repo) UpsertMonthly(ctx context.Context, db *gorm.DB, mentorID snowflake.ID, month time.Time, amount int64, genID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO mentor_monthly_earnings (id, mentor_id, month, amount, sessions, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT (mentor_id, month) DO UPDATE
		 SET amount = mentor_monthly_earnings.amount + excluded.amount,
		     sessions = mentor_monthly_earnings.sessions + 1,
		     updated_at = excluded.updated_at`,
		genID,
		mentorID,
		month,
		amount,
		now,
	).Error
}

func (r *repo) ListMonthly(ctx context.Context, db *gorm.DB, mentorID snowflake.ID, since time.Time) ([]domain.MonthlyEarnings, error) {
	var rows []domain.MonthlyEarnings
	err := db.WithContext(ctx).Raw(
		`SELECT id, mentor_id, month, amount, sessions, updated_at
		 FROM mentor_monthly_earnings
		 WHERE mentor_id = ? AND month >= ?
		 ORDER BY month DESC`,
		mentorID,
		since,
	).Scan(&rows).Error
	return rows, err
}
