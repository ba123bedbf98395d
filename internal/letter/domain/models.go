// Package domain contains the letter workflow model: a demand letter moving
// from subscriber draft through AI generation and attorney review to delivery.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the letter's position in the review workflow.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusGenerating    Status = "generating"
	StatusPendingReview Status = "pending_review"
	StatusUnderReview   Status = "under_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// Letter is one demand letter. claimed_by/claimed_at form the review claim;
// both are set together and cleared together, always under row lock.
type Letter struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID           snowflake.ID      `gorm:"not null;index:ix_letters_user_status" json:"user_id"`
	LetterType       string            `gorm:"type:text;not null" json:"letter_type"`
	Status           Status            `gorm:"type:text;not null;index:ix_letters_user_status" json:"status"`
	ClaimedBy        *snowflake.ID     `json:"claimed_by,omitempty"`
	ClaimedAt        *time.Time        `json:"claimed_at,omitempty"`
	SenderName       string            `gorm:"type:text;not null" json:"sender_name"`
	RecipientName    string            `gorm:"type:text;not null" json:"recipient_name"`
	IssueDescription string            `gorm:"type:text;not null" json:"issue_description"`
	DesiredOutcome   string            `gorm:"type:text;not null" json:"desired_outcome"`
	DraftContent     string            `gorm:"type:text;not null" json:"draft_content"`
	FinalContent     string            `gorm:"type:text;not null" json:"final_content"`
	ReviewedBy       *snowflake.ID     `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time        `json:"reviewed_at,omitempty"`
	ReviewNotes      string            `gorm:"type:text;not null" json:"review_notes"`
	RejectionReason  string            `gorm:"type:text;not null" json:"rejection_reason"`
	ApprovedAt       *time.Time        `json:"approved_at,omitempty"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Letter) TableName() string { return "letters" }

// ClaimExpired reports whether the letter's claim has outlived ttl at now.
// An unclaimed letter has no claim to expire.
func (l *Letter) ClaimExpired(now time.Time, ttl time.Duration) bool {
	if l.ClaimedBy == nil || l.ClaimedAt == nil {
		return false
	}
	return now.Sub(*l.ClaimedAt) > ttl
}
