package repository

import (
	"context"
	"time"

	"github.com/counselkit/letterflow/internal/billing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider, provider_event_id, event_type, user_id,
			payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.UserID,
		event.Payload,
		event.ReceivedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.WebhookEvent, error) {
	var event domain.WebhookEvent
	query := `SELECT id, provider, provider_event_id, event_type, user_id,
			payload, received_at, processed_at
	 FROM webhook_events
	 WHERE provider = ? AND provider_event_id = ?
	 LIMIT 1`
	if db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}
	err := db.WithContext(ctx).Raw(query, provider, providerEventID).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed_at = ?
		 WHERE provider = ? AND provider_event_id = ?`,
		processedAt,
		provider,
		providerEventID,
	).Error
}

func (r *repo) PurgeProcessedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM webhook_events
		 WHERE processed_at IS NOT NULL AND processed_at < ?`,
		cutoff,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
