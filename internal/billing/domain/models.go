// Package domain contains the payment-provider webhook model. The unique
// (provider, provider_event_id) pair is the dedup key that makes event
// processing exactly-once under redelivery.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// WebhookEvent is one received provider notification. processed_at is set in
// the same transaction as the event's side effects; a row without it is a
// recorded-but-unprocessed event whose redelivery may retry processing.
type WebhookEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event" json:"provider"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event" json:"provider_event_id"`
	EventType       string         `gorm:"type:text;not null" json:"event_type"`
	UserID          snowflake.ID   `gorm:"not null" json:"user_id"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }

// ActivationEvent is a parsed checkout completion: who subscribed, to what
// plan, at what price, and which referral moved the sale.
type ActivationEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	UserID          snowflake.ID
	PlanCode        string
	BasePriceCents  int64
	FinalPriceCents int64
	CouponCode      string
	EmployeeID      *snowflake.ID
	OccurredAt      time.Time
	RawPayload      []byte
}
