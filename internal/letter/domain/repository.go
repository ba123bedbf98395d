package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows letter listings. Status empty means any status.
type ListFilter struct {
	UserID snowflake.ID
	Status Status
	Limit  int
	Offset int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, letter *Letter) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Letter, error)
	// FindByIDForUpdate locks the letter row for the caller's transaction.
	// Every transition and claim mutation goes through this lock.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Letter, error)
	Update(ctx context.Context, db *gorm.DB, letter *Letter) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Letter, error)
}
