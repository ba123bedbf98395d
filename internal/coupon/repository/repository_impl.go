package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/coupon/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, coupon *domain.Coupon) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO coupons (
			id, employee_id, code, discount_percent, usage_count, active,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		coupon.ID,
		coupon.EmployeeID,
		coupon.Code,
		coupon.DiscountPercent,
		coupon.UsageCount,
		coupon.Active,
		coupon.CreatedAt,
		coupon.UpdatedAt,
	).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Coupon, error) {
	var coupon domain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT id, employee_id, code, discount_percent, usage_count, active,
			created_at, updated_at
		 FROM coupons
		 WHERE code = ?
		 LIMIT 1`,
		code,
	).Scan(&coupon).Error
	if err != nil {
		return nil, err
	}
	if coupon.ID == 0 {
		return nil, nil
	}
	return &coupon, nil
}

func (r *repo) ListByEmployee(ctx context.Context, db *gorm.DB, employeeID snowflake.ID) ([]*domain.Coupon, error) {
	var coupons []*domain.Coupon
	err := db.WithContext(ctx).
		Model(&domain.Coupon{}).
		Where("employee_id = ?", employeeID).
		Order("created_at asc, id asc").
		Find(&coupons).Error
	if err != nil {
		return nil, err
	}
	return coupons, nil
}

func (r *repo) IncrementUsage(ctx context.Context, db *gorm.DB, code string, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE coupons
		 SET usage_count = usage_count + 1, updated_at = ?
		 WHERE code = ?`,
		now,
		code,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrCouponNotFound
	}
	return nil
}

func (r *repo) InsertUsage(ctx context.Context, db *gorm.DB, usage *domain.Usage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO coupon_usages (
			id, coupon_code, user_id, webhook_event_id,
			base_price_cents, final_price_cents, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		usage.ID,
		usage.CouponCode,
		usage.UserID,
		usage.WebhookEventID,
		usage.BasePriceCents,
		usage.FinalPriceCents,
		usage.CreatedAt,
	).Error
}

func (r *repo) ListUsagesByCode(ctx context.Context, db *gorm.DB, code string, limit int) ([]*domain.Usage, error) {
	var usages []*domain.Usage
	stmt := db.WithContext(ctx).
		Model(&domain.Usage{}).
		Where("coupon_code = ?", code).
		Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&usages).Error; err != nil {
		return nil, err
	}
	return usages, nil
}
