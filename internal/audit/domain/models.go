// Package domain contains the append-only audit trail model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Actions recorded by the core. Every letter transition, claim movement and
// allowance mutation writes exactly one entry in the same transaction.
const (
	ActionCreated               = "created"
	ActionSubmitted             = "submitted"
	ActionGenerated             = "generated"
	ActionGenerationFailed      = "generation_failed"
	ActionClaimed               = "claimed"
	ActionReleased              = "released"
	ActionApproved              = "approved"
	ActionRejected              = "rejected"
	ActionDelivered             = "delivered"
	ActionResubmitted           = "resubmitted"
	ActionCreditDeducted        = "credit_deducted"
	ActionCreditRefunded        = "credit_refunded"
	ActionSubscriptionActivated = "subscription_activated"
)

// Entry is one append-only audit record. Entries are never updated or
// deleted by the application.
type Entry struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	LetterID  *snowflake.ID     `gorm:"index:ix_audit_entries_letter"`
	Action    string            `gorm:"type:text;not null"`
	ActorID   snowflake.ID      `gorm:"not null"`
	ActorRole string            `gorm:"type:text;not null"`
	OldStatus string            `gorm:"type:text;not null"`
	NewStatus string            `gorm:"type:text;not null"`
	Notes     string            `gorm:"type:text;not null"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;index:ix_audit_entries_letter"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "audit_entries" }
