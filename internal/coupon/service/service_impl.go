package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/clock"
	"github.com/counselkit/letterflow/internal/coupon/domain"
	"github.com/counselkit/letterflow/pkg/db"
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
		log:   p.Log.Named("coupon.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, employeeID snowflake.ID, req domain.CreateCouponRequest) (domain.Coupon, error) {
	if employeeID == 0 {
		return domain.Coupon{}, domain.ErrInvalidEmployee
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return domain.Coupon{}, domain.ErrInvalidCode
	}
	if req.DiscountPercent < 1 || req.DiscountPercent > 100 {
		return domain.Coupon{}, domain.ErrInvalidDiscount
	}

	now := s.clock.Now()
	coupon := domain.Coupon{
		ID:              s.genID.Generate(),
		EmployeeID:      employeeID,
		Code:            code,
		DiscountPercent: req.DiscountPercent,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, &coupon); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Coupon{}, domain.ErrCodeTaken
		}
		return domain.Coupon{}, err
	}

	s.log.Info("coupon created",
		zap.String("employee_id", employeeID.String()),
		zap.String("code", code),
	)
	return coupon, nil
}

func (s *Service) ListByEmployee(ctx context.Context, employeeID snowflake.ID) ([]domain.CouponSummary, error) {
	if employeeID == 0 {
		return nil, domain.ErrInvalidEmployee
	}
	coupons, err := s.repo.ListByEmployee(ctx, s.db, employeeID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.CouponSummary, 0, len(coupons))
	for _, coupon := range coupons {
		if coupon == nil {
			continue
		}
		usages, err := s.repo.ListUsagesByCode(ctx, s.db, coupon.Code, 20)
		if err != nil {
			return nil, err
		}
		summary := domain.CouponSummary{Coupon: *coupon, Usages: make([]domain.Usage, 0, len(usages))}
		for _, usage := range usages {
			if usage == nil {
				continue
			}
			summary.Usages = append(summary.Usages, *usage)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
