package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/letter/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, letter *domain.Letter) error {
	return db.WithContext(ctx).Create(letter).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Letter, error) {
	return findByID(ctx, db, id, false)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Letter, error) {
	return findByID(ctx, db, id, true)
}

func findByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Letter, error) {
	var letter domain.Letter
	query := `SELECT id, user_id, letter_type, status, claimed_by, claimed_at,
			sender_name, recipient_name, issue_description, desired_outcome,
			draft_content, final_content, reviewed_by, reviewed_at,
			review_notes, rejection_reason, approved_at, metadata,
			created_at, updated_at
	 FROM letters
	 WHERE id = ?`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}
	err := db.WithContext(ctx).Raw(query, id).Scan(&letter).Error
	if err != nil {
		return nil, err
	}
	if letter.ID == 0 {
		return nil, nil
	}
	return &letter, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, letter *domain.Letter) error {
	return db.WithContext(ctx).
		Model(&domain.Letter{}).
		Where("id = ?", letter.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(letter).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Letter, error) {
	var letters []*domain.Letter
	stmt := db.WithContext(ctx).Model(&domain.Letter{})

	if filter.UserID != 0 {
		stmt = stmt.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	stmt = stmt.Order("created_at asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		stmt = stmt.Offset(filter.Offset)
	}

	if err := stmt.Find(&letters).Error; err != nil {
		return nil, err
	}
	return letters, nil
}
