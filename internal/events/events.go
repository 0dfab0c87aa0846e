// Package events is a transactional outbox. Features append events inside
// their own transactions; a poller delivers them to notifiers after commit,
// so a crashed process never loses or invents a notification.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TopicBookingConfirmed = "booking.confirmed"
	TopicBookingCancelled = "booking.cancelled"
	TopicBookingCompleted = "booking.completed"
	TopicPayoutPaid       = "payout.paid"
	TopicPayoutFailed     = "payout.failed"
	TopicRefundProcessed  = "refund.processed"
	TopicDisputeFiled     = "dispute.filed"
	TopicDisputeResolved  = "dispute.resolved"
)

type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusPublished EventStatus = "published"
)

type OutboxEvent struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	Topic       string         `gorm:"type:text;not null;index"`
	DedupeKey   string         `gorm:"type:text;not null;uniqueIndex"`
	Payload     datatypes.JSON `gorm:"not null"`
	Status      EventStatus    `gorm:"type:text;not null;index"`
	Attempts    int            `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	PublishedAt *time.Time
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// Publisher appends events to the outbox inside the caller's transaction.
// A duplicate dedupe key is silently dropped.
type Publisher interface {
	PublishTx(ctx context.Context, tx *gorm.DB, topic, dedupeKey string, payload any) error
}

// Notifier receives committed events. Delivery is at-least-once and
// failures never block the money path.
type Notifier interface {
	Notify(ctx context.Context, event OutboxEvent) error
}

type publisher struct {
	genID *snowflake.Node
}

func NewPublisher(genID *snowflake.Node) Publisher {
	return &publisher{genID: genID}
}

func (p *publisher) PublishTx(ctx context.Context, tx *gorm.DB, topic, dedupeKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, topic, dedupe_key, payload, status, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		p.genID.Generate(),
		topic,
		dedupeKey,
		body,
		EventStatusPending,
		time.Now().UTC(),
	).Error
}
