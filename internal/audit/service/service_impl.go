package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/audit/domain"
	"github.com/counselkit/letterflow/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record appends one entry using the caller's handle, which is expected to be
// the transaction performing the transition being documented.
func (s *Service) Record(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	if entry == nil {
		return nil
	}
	if strings.TrimSpace(entry.Action) == "" {
		return domain.ErrInvalidAction
	}
	if entry.ActorID == 0 {
		return domain.ErrInvalidActor
	}
	if entry.ID == 0 {
		entry.ID = s.genID.Generate()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now()
	}
	if db == nil {
		db = s.db
	}
	return s.repo.Insert(ctx, db, entry)
}

func (s *Service) List(ctx context.Context, req domain.ListAuditRequest) (domain.ListAuditResponse, error) {
	filter := domain.ListFilter{
		Action: req.Action,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	if raw := strings.TrimSpace(req.LetterID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListAuditResponse{}, err
		}
		filter.LetterID = int64(id)
	}
	if raw := strings.TrimSpace(req.ActorID); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListAuditResponse{}, err
		}
		filter.ActorID = int64(id)
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListAuditResponse{}, err
	}

	entries := make([]domain.Entry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}
	return domain.ListAuditResponse{Entries: entries}, nil
}
