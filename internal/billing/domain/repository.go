package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent records the event if it has never been seen and reports
	// whether this call created the row. The unique (provider, event id)
	// index arbitrates concurrent redeliveries.
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*WebhookEvent, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time) error
	// PurgeProcessedBefore removes processed events older than the cutoff.
	// Unprocessed rows are kept regardless of age.
	PurgeProcessedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
