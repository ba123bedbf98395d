package repository

import (
	"context"
	"strings"

	"github.com/counselkit/letterflow/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_entries (
			id, letter_id, action, actor_id, actor_role, old_status, new_status,
			notes, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.LetterID,
		entry.Action,
		entry.ActorID,
		entry.ActorRole,
		entry.OldStatus,
		entry.NewStatus,
		entry.Notes,
		entry.Metadata,
		entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Entry, error) {
	var entries []*domain.Entry
	stmt := db.WithContext(ctx).Model(&domain.Entry{})

	if filter.LetterID != 0 {
		stmt = stmt.Where("letter_id = ?", filter.LetterID)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		stmt = stmt.Where("action = ?", action)
	}
	if filter.ActorID != 0 {
		stmt = stmt.Where("actor_id = ?", filter.ActorID)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		stmt = stmt.Offset(filter.Offset)
	}

	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
