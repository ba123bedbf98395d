package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/commission/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, commission *domain.Commission) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO commissions (
			id, employee_id, user_id, webhook_event_id,
			amount_cents, rate, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		commission.ID,
		commission.EmployeeID,
		commission.UserID,
		commission.WebhookEventID,
		commission.AmountCents,
		commission.Rate,
		commission.Status,
		commission.CreatedAt,
	).Error
}

func (r *repo) ListByEmployee(ctx context.Context, db *gorm.DB, employeeID snowflake.ID, limit, offset int) ([]*domain.Commission, error) {
	var commissions []*domain.Commission
	stmt := db.WithContext(ctx).
		Model(&domain.Commission{}).
		Where("employee_id = ?", employeeID).
		Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if offset > 0 {
		stmt = stmt.Offset(offset)
	}
	if err := stmt.Find(&commissions).Error; err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *repo) TotalByEmployee(ctx context.Context, db *gorm.DB, employeeID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount_cents), 0)
		 FROM commissions
		 WHERE employee_id = ?`,
		employeeID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
