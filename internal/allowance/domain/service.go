package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// DeductionResult reports the outcome of a successful CheckAndDeduct.
// Remaining is the post-decrement balance; it carries no meaning when the
// deduction was satisfied by the one-time free trial.
type DeductionResult struct {
	FreeTrial bool `json:"free_trial"`
	Remaining int  `json:"remaining"`
}

// GrantRequest activates a fresh allowance inside the caller's transaction.
type GrantRequest struct {
	UserID      snowflake.ID
	PlanCode    string
	Credits     int
	PeriodStart time.Time
	PeriodEnd   time.Time
}

type Service interface {
	// CheckAndDeduct atomically checks the user may consume one letter credit
	// and deducts it. Same-user calls serialize on the allowance row lock.
	CheckAndDeduct(ctx context.Context, userID snowflake.ID) (DeductionResult, error)
	// Refund compensates a deduction after downstream generation fails.
	Refund(ctx context.Context, userID snowflake.ID, amount int) error
	// Grant supersedes any active allowance with a new one. It runs inside
	// the supplied transaction; only the subscription activation flow uses it.
	Grant(ctx context.Context, tx *gorm.DB, req GrantRequest) error
	GetActive(ctx context.Context, userID snowflake.ID) (Allowance, error)
}

var (
	ErrInvalidUser        = errors.New("invalid_user")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidPlan        = errors.New("invalid_plan")
	ErrNoActiveAllowance  = errors.New("no_active_allowance")
	ErrAllowanceExhausted = errors.New("allowance_exhausted")
)
