package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Coupon, error)
	ListByEmployee(ctx context.Context, db *gorm.DB, employeeID snowflake.ID) ([]*Coupon, error)
	// IncrementUsage bumps the redemption counter inside the caller's
	// activation transaction.
	IncrementUsage(ctx context.Context, db *gorm.DB, code string, now time.Time) error
	InsertUsage(ctx context.Context, db *gorm.DB, usage *Usage) error
	ListUsagesByCode(ctx context.Context, db *gorm.DB, code string, limit int) ([]*Usage, error)
}
