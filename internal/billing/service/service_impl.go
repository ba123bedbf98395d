package service

import (
	"context"
	"math"
	"net/http"

	"github.com/bwmarrin/snowflake"
	allowancedomain "github.com/counselkit/letterflow/internal/allowance/domain"
	auditdomain "github.com/counselkit/letterflow/internal/audit/domain"
	"github.com/counselkit/letterflow/internal/billing/domain"
	"github.com/counselkit/letterflow/internal/billing/stripe"
	"github.com/counselkit/letterflow/internal/clock"
	commissiondomain "github.com/counselkit/letterflow/internal/commission/domain"
	"github.com/counselkit/letterflow/internal/config"
	coupondomain "github.com/counselkit/letterflow/internal/coupon/domain"
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

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Cfg            config.Config
	Plans          *config.PlanCatalogHolder
	Repo           domain.Repository
	Allowance      allowancedomain.Service
	CommissionRepo commissiondomain.Repository
	CouponRepo     coupondomain.Repository
	Audit          auditdomain.Service
	Metrics        *metrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	cfg            config.Config
	plans          *config.PlanCatalogHolder
	repo           domain.Repository
	allowance      allowancedomain.Service
	commissionRepo commissiondomain.Repository
	couponRepo     coupondomain.Repository
	audit          auditdomain.Service
	metrics        *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("billing.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		cfg:            p.Cfg,
		plans:          p.Plans,
		repo:           p.Repo,
		allowance:      p.Allowance,
		commissionRepo: p.CommissionRepo,
		couponRepo:     p.CouponRepo,
		audit:          p.Audit,
		metrics:        p.Metrics,
	}
}

func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	if provider != stripe.Provider {
		return domain.ErrUnknownProvider
	}
	if err := stripe.Verify(payload, headers, s.cfg.WebhookSecret); err != nil {
		return err
	}

	activation, err := stripe.Parse(payload)
	if err != nil {
		return err
	}
	return s.ProcessActivation(ctx, *activation)
}

// ProcessActivation is the exactly-once boundary. The event insert, the
// allowance grant, the referral records, the audit entry and the processed
// mark share one transaction; a redelivered event either finds the processed
// row and stops, or retries the whole thing from a clean slate.
func (s *Service) ProcessActivation(ctx context.Context, event domain.ActivationEvent) error {
	if event.UserID == 0 || event.Provider == "" || event.ProviderEventID == "" {
		return domain.ErrInvalidEvent
	}

	plan, ok := s.plans.FindPlan(event.PlanCode)
	if !ok {
		return domain.ErrUnknownPlan
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		record := domain.WebhookEvent{
			ID:              s.genID.Generate(),
			Provider:        event.Provider,
			ProviderEventID: event.ProviderEventID,
			EventType:       event.EventType,
			UserID:          event.UserID,
			Payload:         datatypes.JSON(event.RawPayload),
			ReceivedAt:      now,
		}
		if len(event.RawPayload) == 0 {
			record.Payload = datatypes.JSON([]byte("{}"))
		}

		inserted, err := s.repo.InsertEvent(ctx, tx, &record)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := s.repo.FindEvent(ctx, tx, event.Provider, event.ProviderEventID)
			if err != nil {
				return err
			}
			if existing == nil {
				// Insert conflicted with a concurrent delivery whose
				// transaction has not committed. Fail so the provider
				// redelivers; the winner's outcome decides the retry.
				return domain.ErrTransientConflict
			}
			if existing.ProcessedAt != nil {
				return domain.ErrEventAlreadyProcessed
			}
			// Recorded earlier but never processed; this delivery
			// finishes the job.
			record = *existing
		}

		if err := s.allowance.Grant(ctx, tx, allowancedomain.GrantRequest{
			UserID:      event.UserID,
			PlanCode:    plan.Code,
			Credits:     plan.Credits,
			PeriodStart: now,
			PeriodEnd:   now.AddDate(0, 0, plan.PeriodDays),
		}); err != nil {
			return err
		}

		if event.EmployeeID != nil && event.FinalPriceCents > 0 {
			amount := int64(math.Round(float64(event.FinalPriceCents) * s.cfg.CommissionRate))
			if err := s.commissionRepo.Insert(ctx, tx, &commissiondomain.Commission{
				ID:             s.genID.Generate(),
				EmployeeID:     *event.EmployeeID,
				UserID:         event.UserID,
				WebhookEventID: record.ID,
				AmountCents:    amount,
				Rate:           s.cfg.CommissionRate,
				Status:         commissiondomain.CommissionStatusPending,
				CreatedAt:      now,
			}); err != nil {
				return err
			}
			if event.CouponCode != "" {
				if err := s.couponRepo.IncrementUsage(ctx, tx, event.CouponCode, now); err != nil {
					return err
				}
			}
		}

		if event.CouponCode != "" {
			if err := s.couponRepo.InsertUsage(ctx, tx, &coupondomain.Usage{
				ID:              s.genID.Generate(),
				CouponCode:      event.CouponCode,
				UserID:          event.UserID,
				WebhookEventID:  record.ID,
				BasePriceCents:  event.BasePriceCents,
				FinalPriceCents: event.FinalPriceCents,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
		}

		if err := s.audit.Record(ctx, tx, &auditdomain.Entry{
			Action:    auditdomain.ActionSubscriptionActivated,
			ActorID:   event.UserID,
			ActorRole: principal.RoleSubscriber,
			Metadata: datatypes.JSONMap{
				"provider":          event.Provider,
				"provider_event_id": event.ProviderEventID,
				"plan_code":         plan.Code,
				"final_price_cents": event.FinalPriceCents,
			},
		}); err != nil {
			return err
		}

		return s.repo.MarkProcessed(ctx, tx, event.Provider, event.ProviderEventID, now)
	})
	if err != nil {
		if err == domain.ErrEventAlreadyProcessed {
			s.metrics.DuplicateEvent()
			s.log.Info("duplicate webhook event acknowledged",
				zap.String("provider", event.Provider),
				zap.String("provider_event_id", event.ProviderEventID),
			)
		}
		return err
	}

	s.metrics.SubscriptionActivated()
	log.WithContext(ctx, s.log).Info("subscription activated",
		zap.String("user_id", event.UserID.String()),
		zap.String("plan_code", plan.Code),
		zap.String("provider_event_id", event.ProviderEventID),
	)
	return nil
}

func (s *Service) PurgeProcessed(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.cfg.WebhookRetention)
	purged, err := s.repo.PurgeProcessedBefore(ctx, s.db, cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.log.Info("purged processed webhook events",
			zap.Int64("count", purged),
			zap.Time("cutoff", cutoff),
		)
	}
	return purged, nil
}
