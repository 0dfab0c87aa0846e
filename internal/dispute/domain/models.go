// Package domain contains dispute models and contracts. A dispute freezes
// the booking's payout until an admin decides where the money goes.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type DisputeStatus string

const (
	DisputeStatusPending         DisputeStatus = "pending"
	DisputeStatusMentorResponded DisputeStatus = "mentor_responded"
	DisputeStatusAdminReview     DisputeStatus = "admin_review"
	DisputeStatusResolved        DisputeStatus = "resolved"
	DisputeStatusDismissed       DisputeStatus = "dismissed"
)

// Active reports whether the dispute still blocks settlement.
func (s DisputeStatus) Active() bool {
	switch s {
	case DisputeStatusPending, DisputeStatusMentorResponded, DisputeStatusAdminReview:
		return true
	default:
		return false
	}
}

type Decision string

const (
	DecisionRefundMentee  Decision = "refund_mentee"
	DecisionPayMentor     Decision = "pay_mentor"
	DecisionPartialRefund Decision = "partial_refund"
)

// EvidenceItem is one attachment a party submits with their side of the
// dispute. Items are stored as a JSON list on the dispute row.
type EvidenceItem struct {
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Dispute struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	BookingID snowflake.ID   `gorm:"not null;index"`
	FiledBy   snowflake.ID   `gorm:"not null"`
	Status    DisputeStatus  `gorm:"type:text;not null;index"`
	Reason    string         `gorm:"type:text;not null"`
	Details   string         `gorm:"type:text"`
	Evidence  datatypes.JSON `gorm:"not null"`

	MentorResponse    string         `gorm:"type:text"`
	MentorEvidence    datatypes.JSON `gorm:"not null"`
	MentorRespondedAt *time.Time     `gorm:""`

	Decision            Decision `gorm:"type:text"`
	PartialRefundAmount *int64
	ResolutionNotes     string        `gorm:"type:text"`
	ResolvedBy          *snowflake.ID `gorm:""`
	ResolvedAt          *time.Time    `gorm:""`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Dispute) TableName() string { return "disputes" }
