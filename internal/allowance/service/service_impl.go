package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/allowance/domain"
	auditdomain "github.com/counselkit/letterflow/internal/audit/domain"
	"github.com/counselkit/letterflow/internal/clock"
	"github.com/counselkit/letterflow/internal/metrics"
	"github.com/counselkit/letterflow/internal/principal"
	"github.com/counselkit/letterflow/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Audit   auditdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	audit   auditdomain.Service
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("allowance.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		audit:   p.Audit,
		metrics: p.Metrics,
	}
}

// CheckAndDeduct runs one transaction that locks the user's lifetime
// consumption row and active allowance, in that order. All callers take the
// same locks in the same order, so concurrent deductions for one user
// serialize and the balance can never be driven below zero.
func (s *Service) CheckAndDeduct(ctx context.Context, userID snowflake.ID) (domain.DeductionResult, error) {
	if userID == 0 {
		return domain.DeductionResult{}, domain.ErrInvalidUser
	}

	var result domain.DeductionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		consumption, err := s.repo.FindConsumptionForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		active, err := s.repo.FindActiveByUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		if active == nil {
			if consumption != nil {
				return domain.ErrNoActiveAllowance
			}
			// First-ever consumption with no subscription: the one-time
			// free trial. The insert's unique key picks a single winner
			// among concurrent first requests.
			created, err := s.repo.InsertConsumption(ctx, tx, userID, now)
			if err != nil {
				return err
			}
			if !created {
				return domain.ErrNoActiveAllowance
			}
			result = domain.DeductionResult{FreeTrial: true}
			return s.audit.Record(ctx, tx, &auditdomain.Entry{
				Action:    auditdomain.ActionCreditDeducted,
				ActorID:   userID,
				ActorRole: principal.RoleSubscriber,
				Notes:     "free trial",
				Metadata:  datatypes.JSONMap{"free_trial": true},
			})
		}

		if active.CreditsRemaining <= 0 {
			return domain.ErrAllowanceExhausted
		}
		if err := s.repo.DeductCredit(ctx, tx, active.ID, now); err != nil {
			return err
		}
		if err := s.repo.IncrementConsumption(ctx, tx, userID, now); err != nil {
			return err
		}

		result = domain.DeductionResult{Remaining: active.CreditsRemaining - 1}
		return s.audit.Record(ctx, tx, &auditdomain.Entry{
			Action:    auditdomain.ActionCreditDeducted,
			ActorID:   userID,
			ActorRole: principal.RoleSubscriber,
			Metadata: datatypes.JSONMap{
				"allowance_id": active.ID.String(),
				"plan_code":    active.PlanCode,
				"remaining":    result.Remaining,
			},
		})
	})
	if err != nil {
		switch err {
		case domain.ErrNoActiveAllowance:
			s.metrics.DeductionFailed("no_active_allowance")
		case domain.ErrAllowanceExhausted:
			s.metrics.DeductionFailed("exhausted")
		}
		return domain.DeductionResult{}, err
	}

	s.metrics.CreditDeducted(result.FreeTrial)
	log.WithContext(ctx, s.log).Info("credit deducted",
		zap.String("user_id", userID.String()),
		zap.Bool("free_trial", result.FreeTrial),
		zap.Int("remaining", result.Remaining),
	)
	return result, nil
}

// Refund returns credits to the user's active allowance. A refund against a
// lapsed subscription has nowhere to land; it is rejected and left for the
// caller to log.
func (s *Service) Refund(ctx context.Context, userID snowflake.ID, amount int) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.repo.FindActiveByUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if active == nil {
			return domain.ErrNoActiveAllowance
		}
		if err := s.repo.AddCredits(ctx, tx, active.ID, amount, s.clock.Now()); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, &auditdomain.Entry{
			Action:    auditdomain.ActionCreditRefunded,
			ActorID:   userID,
			ActorRole: principal.RoleSubscriber,
			Metadata: datatypes.JSONMap{
				"allowance_id": active.ID.String(),
				"amount":       amount,
			},
		})
	})
	if err != nil {
		return err
	}

	s.metrics.CreditRefunded()
	s.log.Info("credits refunded",
		zap.String("user_id", userID.String()),
		zap.Int("amount", amount),
	)
	return nil
}

// Grant expires whatever allowance is currently active and inserts the new
// period's allowance. It joins the caller's transaction so an activation
// that fails later rolls the grant back with it.
func (s *Service) Grant(ctx context.Context, tx *gorm.DB, req domain.GrantRequest) error {
	if req.UserID == 0 {
		return domain.ErrInvalidUser
	}
	if strings.TrimSpace(req.PlanCode) == "" {
		return domain.ErrInvalidPlan
	}
	if req.Credits < 0 {
		return domain.ErrInvalidAmount
	}
	if tx == nil {
		tx = s.db
	}

	now := s.clock.Now()
	if err := s.repo.ExpireActive(ctx, tx, req.UserID, now); err != nil {
		return err
	}
	return s.repo.Insert(ctx, tx, &domain.Allowance{
		ID:               s.genID.Generate(),
		UserID:           req.UserID,
		PlanCode:         req.PlanCode,
		Status:           domain.AllowanceStatusActive,
		CreditsRemaining: req.Credits,
		PeriodStart:      req.PeriodStart,
		PeriodEnd:        req.PeriodEnd,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

func (s *Service) GetActive(ctx context.Context, userID snowflake.ID) (domain.Allowance, error) {
	if userID == 0 {
		return domain.Allowance{}, domain.ErrInvalidUser
	}
	active, err := s.repo.FindActiveByUser(ctx, s.db, userID)
	if err != nil {
		return domain.Allowance{}, err
	}
	if active == nil {
		return domain.Allowance{}, domain.ErrNoActiveAllowance
	}
	return *active, nil
}
