package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/allowance/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Allowance, error) {
	return findActive(ctx, db, userID, false)
}

func (r *repo) FindActiveByUserForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Allowance, error) {
	return findActive(ctx, db, userID, true)
}

func findActive(ctx context.Context, db *gorm.DB, userID snowflake.ID, forUpdate bool) (*domain.Allowance, error) {
	var allowance domain.Allowance
	query := `SELECT id, user_id, plan_code, status, credits_remaining,
			period_start, period_end, created_at, updated_at
	 FROM allowances
	 WHERE user_id = ? AND status = ?
	 ORDER BY created_at DESC
	 LIMIT 1`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}
	err := db.WithContext(ctx).Raw(query, userID, domain.AllowanceStatusActive).Scan(&allowance).Error
	if err != nil {
		return nil, err
	}
	if allowance.ID == 0 {
		return nil, nil
	}
	return &allowance, nil
}

// DeductCredit decrements the balance only while it is positive, so a stale
// caller racing past the lock can never drive the balance negative.
func (r *repo) DeductCredit(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE allowances
		 SET credits_remaining = credits_remaining - 1, updated_at = ?
		 WHERE id = ? AND credits_remaining > 0`,
		now,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAllowanceExhausted
	}
	return nil
}

func (r *repo) AddCredits(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE allowances
		 SET credits_remaining = credits_remaining + ?, updated_at = ?
		 WHERE id = ?`,
		amount,
		now,
		id,
	).Error
}

func (r *repo) ExpireActive(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE allowances
		 SET status = ?, updated_at = ?
		 WHERE user_id = ? AND status = ?`,
		domain.AllowanceStatusExpired,
		now,
		userID,
		domain.AllowanceStatusActive,
	).Error
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, allowance *domain.Allowance) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO allowances (
			id, user_id, plan_code, status, credits_remaining,
			period_start, period_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		allowance.ID,
		allowance.UserID,
		allowance.PlanCode,
		allowance.Status,
		allowance.CreditsRemaining,
		allowance.PeriodStart,
		allowance.PeriodEnd,
		allowance.CreatedAt,
		allowance.UpdatedAt,
	).Error
}

func (r *repo) FindConsumptionForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Consumption, error) {
	var consumption domain.Consumption
	query := `SELECT user_id, lifetime_count, updated_at
	 FROM user_consumptions
	 WHERE user_id = ?`
	if db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}
	err := db.WithContext(ctx).Raw(query, userID).Scan(&consumption).Error
	if err != nil {
		return nil, err
	}
	if consumption.UserID == 0 {
		return nil, nil
	}
	return &consumption, nil
}

func (r *repo) InsertConsumption(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO user_consumptions (user_id, lifetime_count, updated_at)
		 VALUES (?, 1, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
		now,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) IncrementConsumption(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE user_consumptions
		 SET lifetime_count = lifetime_count + 1, updated_at = ?
		 WHERE user_id = ?`,
		now,
		userID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return db.WithContext(ctx).Exec(
			`INSERT INTO user_consumptions (user_id, lifetime_count, updated_at)
			 VALUES (?, 1, ?)
			 ON CONFLICT (user_id) DO NOTHING`,
			userID,
			now,
		).Error
	}
	return nil
}
