package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert runs inside the subscription activation transaction.
	Insert(ctx context.Context, db *gorm.DB, commission *Commission) error
	ListByEmployee(ctx context.Context, db *gorm.DB, employeeID snowflake.ID, limit, offset int) ([]*Commission, error)
	TotalByEmployee(ctx context.Context, db *gorm.DB, employeeID snowflake.ID) (int64, error)
}
