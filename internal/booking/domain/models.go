// Package domain contains persistence models for bookings and their refund
// and reschedule sub-records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BookingStatus represents lifecycle states for a booking.
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusReviewable BookingStatus = "reviewable"
	BookingStatusReviewed   BookingStatus = "reviewed"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodExternal PaymentMethod = "external"
	PaymentMethodTokens   PaymentMethod = "tokens"
)

// PayoutStatus only moves forward, except the disputed side branch which
// returns to the sweep once the dispute resolves.
type PayoutStatus string

const (
	PayoutStatusNone       PayoutStatus = ""
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusDisputed   PayoutStatus = "disputed"
	PayoutStatusRefunded   PayoutStatus = "refunded"
)

// Booking is one scheduled paid session between a mentor and a student.
// Bookings are never hard-deleted; terminal states are kept for audit.
type Booking struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	ServiceID snowflake.ID `gorm:"not null;index"`
	MentorID  snowflake.ID `gorm:"not null;index"`
	StudentID snowflake.ID `gorm:"not null;index"`

	ScheduledAt     time.Time `gorm:"not null;index"`
	StudentTimezone string    `gorm:"type:text;not null"`
	MentorTimezone  string    `gorm:"type:text;not null"`
	DurationMinutes int       `gorm:"not null"`

	Status        BookingStatus `gorm:"type:text;not null;index"`
	PaymentStatus PaymentStatus `gorm:"type:text;not null"`
	PaymentMethod PaymentMethod `gorm:"type:text;not null"`
	Amount        int64         `gorm:"not null"`
	Currency      string        `gorm:"type:text;not null"`
	ChargeRef     string        `gorm:"type:text"`

	// Settlement snapshot, written once by the settlement path.
	PlatformCommission  *int64       `gorm:""`
	MentorPayout        *int64       `gorm:""`
	CommissionTier      string       `gorm:"type:text"`
	PayoutStatus        PayoutStatus `gorm:"type:text;index"`
	PayoutDate          *time.Time   `gorm:""`
	TransferRef         string       `gorm:"type:text"`
	PayoutFailureReason string       `gorm:"type:text"`
	DisputePeriodEnds   *time.Time   `gorm:""`

	// Cancellation policy frozen at checkout; later policy edits cannot
	// retroactively change a booking's rules.
	CancellationHours       int          `gorm:"not null"`
	CancellationPolicySetBy snowflake.ID `gorm:"not null"`
	CancellationPolicySetAt time.Time    `gorm:"not null"`

	CancelledBy *snowflake.ID `gorm:""`
	CancelledAt *time.Time    `gorm:""`
	CompletedAt *time.Time    `gorm:""`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Booking) TableName() string { return "bookings" }

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusProcessed RefundStatus = "processed"
	RefundStatusFailed    RefundStatus = "failed"
)

type RefundType string

const (
	RefundTypeExternal RefundType = "external"
	RefundTypeTokens   RefundType = "tokens"
)

// BookingRefund is the refund sub-record, at most one per booking.
type BookingRefund struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	BookingID         snowflake.ID `gorm:"not null;uniqueIndex"`
	Status            RefundStatus `gorm:"type:text;not null"`
	Type              RefundType   `gorm:"type:text;not null"`
	Amount            int64        `gorm:"not null"`
	ExternalRefundRef string       `gorm:"type:text"`
	ProcessedAt       *time.Time   `gorm:""`
	Reason            string       `gorm:"type:text"`
	FailureReason     string       `gorm:"type:text"`
	CreatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (BookingRefund) TableName() string { return "booking_refunds" }

type RescheduleStatus string

const (
	RescheduleStatusPending  RescheduleStatus = "pending"
	RescheduleStatusAccepted RescheduleStatus = "accepted"
	RescheduleStatusRejected RescheduleStatus = "rejected"
)

// RescheduleRequest is a proposed new time for a booking. Pending requests
// are auto-rejected when the booking is cancelled.
type RescheduleRequest struct {
	ID          snowflake.ID     `gorm:"primaryKey"`
	BookingID   snowflake.ID     `gorm:"not null;index"`
	RequestedBy snowflake.ID     `gorm:"not null"`
	ProposedAt  time.Time        `gorm:"not null"`
	Status      RescheduleStatus `gorm:"type:text;not null"`
	ResolvedAt  *time.Time       `gorm:""`
	CreatedAt   time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (RescheduleRequest) TableName() string { return "reschedule_requests" }

// ColdMessage is a paid introductory message. It settles without the
// dispute window since there is no session-completion risk.
type ColdMessage struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	MentorID           snowflake.ID `gorm:"not null;index"`
	StudentID          snowflake.ID `gorm:"not null;index"`
	Amount             int64        `gorm:"not null"`
	Currency           string       `gorm:"type:text;not null"`
	PaidAt             *time.Time   `gorm:""`
	PlatformCommission *int64       `gorm:""`
	MentorPayout       *int64       `gorm:""`
	CommissionTier     string       `gorm:"type:text"`
	PayoutStatus       PayoutStatus `gorm:"type:text;index"`
	TransferRef        string       `gorm:"type:text"`
	FailureReason      string       `gorm:"type:text"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ColdMessage) TableName() string { return "cold_messages" }
