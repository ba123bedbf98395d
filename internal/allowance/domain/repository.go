package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Allowance, error)
	FindActiveByUserForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Allowance, error)
	DeductCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	AddCredits(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int, now time.Time) error
	ExpireActive(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) error
	Insert(ctx context.Context, db *gorm.DB, allowance *Allowance) error

	FindConsumptionForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Consumption, error)
	// InsertConsumption creates the lifetime counter row with count 1 and
	// reports whether this call created it. The unique primary key makes the
	// insert the atomic free-trial arbiter under concurrency.
	InsertConsumption(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (bool, error)
	IncrementConsumption(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) error
}
