// Package domain contains referral coupon models. Employees hand out coupon
// codes; each redemption is recorded with the price it changed.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Coupon is an employee's referral discount code.
type Coupon struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	EmployeeID      snowflake.ID `gorm:"not null;index:ix_coupons_employee" json:"employee_id"`
	Code            string       `gorm:"type:text;not null;uniqueIndex:ux_coupons_code" json:"code"`
	DiscountPercent int          `gorm:"not null;default:0" json:"discount_percent"`
	UsageCount      int          `gorm:"not null;default:0" json:"usage_count"`
	Active          bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Coupon) TableName() string { return "coupons" }

// Usage records one redemption with the before/after price.
type Usage struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	CouponCode      string       `gorm:"type:text;not null;index:ix_coupon_usages_code" json:"coupon_code"`
	UserID          snowflake.ID `gorm:"not null" json:"user_id"`
	WebhookEventID  snowflake.ID `gorm:"not null" json:"webhook_event_id"`
	BasePriceCents  int64        `gorm:"not null" json:"base_price_cents"`
	FinalPriceCents int64        `gorm:"not null" json:"final_price_cents"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Usage) TableName() string { return "coupon_usages" }
