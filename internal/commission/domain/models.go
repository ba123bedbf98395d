// Package domain contains referral commission models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CommissionStatus tracks payout progress. The engine only ever creates
// pending rows; payout tooling moves them onward.
type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusPaid    CommissionStatus = "paid"
)

// Commission is the referring employee's cut of one subscription sale.
// Exactly one row per processed activation event.
type Commission struct {
	ID             snowflake.ID     `gorm:"primaryKey" json:"id"`
	EmployeeID     snowflake.ID     `gorm:"not null;index:ix_commissions_employee" json:"employee_id"`
	UserID         snowflake.ID     `gorm:"not null" json:"user_id"`
	WebhookEventID snowflake.ID     `gorm:"not null" json:"webhook_event_id"`
	AmountCents    int64            `gorm:"not null" json:"amount_cents"`
	Rate           float64          `gorm:"not null" json:"rate"`
	Status         CommissionStatus `gorm:"type:text;not null;default:pending" json:"status"`
	CreatedAt      time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Commission) TableName() string { return "commissions" }
