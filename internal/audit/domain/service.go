package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type ListAuditRequest struct {
	LetterID string
	Action   string
	ActorID  string
	Limit    int
	Offset   int
}

type ListAuditResponse struct {
	Entries []Entry `json:"entries"`
}

// Service records and reads audit entries. Record takes the caller's
// transaction handle so the entry becomes durable with the transition it
// documents, never separately.
type Service interface {
	Record(ctx context.Context, db *gorm.DB, entry *Entry) error
	List(ctx context.Context, req ListAuditRequest) (ListAuditResponse, error)
}

var (
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidActor  = errors.New("invalid_actor")
)
