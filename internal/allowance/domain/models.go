// Package domain contains persistence models for subscriber letter-credit
// allowances.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AllowanceStatus represents lifecycle states for an allowance record.
type AllowanceStatus string

const (
	AllowanceStatusActive   AllowanceStatus = "active"
	AllowanceStatusPending  AllowanceStatus = "pending"
	AllowanceStatusExpired  AllowanceStatus = "expired"
	AllowanceStatusCanceled AllowanceStatus = "canceled"
)

// Allowance is a user's metered credit balance for one subscription period.
// At most one row per user is active; earlier rows are historical.
// credits_remaining never goes negative and is only mutated under row lock.
type Allowance struct {
	ID               snowflake.ID    `gorm:"primaryKey"`
	UserID           snowflake.ID    `gorm:"not null;index"`
	PlanCode         string          `gorm:"type:text;not null"`
	Status           AllowanceStatus `gorm:"type:text;not null"`
	CreditsRemaining int             `gorm:"not null;default:0"`
	PeriodStart      time.Time       `gorm:"not null"`
	PeriodEnd        time.Time       `gorm:"not null"`
	CreatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Allowance) TableName() string { return "allowances" }

// Consumption tracks a user's lifetime credit consumption. The row's absence
// (or a zero count) combined with no active allowance is what entitles the
// user to the one-time free trial.
type Consumption struct {
	UserID        snowflake.ID `gorm:"primaryKey"`
	LifetimeCount int          `gorm:"not null;default:0"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Consumption) TableName() string { return "user_consumptions" }
