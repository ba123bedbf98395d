package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Entry, error)
}

type ListFilter struct {
	LetterID int64
	Action   string
	ActorID  int64
	Limit    int
	Offset   int
}
