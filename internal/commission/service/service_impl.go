package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/commission/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("commission.service"),
		repo: p.Repo,
	}
}

func (s *Service) Dashboard(ctx context.Context, employeeID snowflake.ID, limit, offset int) (domain.DashboardResponse, error) {
	if employeeID == 0 {
		return domain.DashboardResponse{}, domain.ErrInvalidEmployee
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	items, err := s.repo.ListByEmployee(ctx, s.db, employeeID, limit, offset)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	total, err := s.repo.TotalByEmployee(ctx, s.db, employeeID)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	commissions := make([]domain.Commission, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		commissions = append(commissions, *item)
	}
	return domain.DashboardResponse{
		Commissions:     commissions,
		TotalCents:      total,
		TotalCommission: float64(total) / 100,
	}, nil
}
