package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	allowancedomain "github.com/counselkit/letterflow/internal/allowance/domain"
	auditdomain "github.com/counselkit/letterflow/internal/audit/domain"
	"github.com/counselkit/letterflow/internal/clock"
	"github.com/counselkit/letterflow/internal/config"
	"github.com/counselkit/letterflow/internal/letter/domain"
	"github.com/counselkit/letterflow/internal/metrics"
	"github.com/counselkit/letterflow/internal/principal"
	"github.com/counselkit/letterflow/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Repo      domain.Repository
	Audit     auditdomain.Service
	Allowance allowancedomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	repo      domain.Repository
	audit     auditdomain.Service
	allowance allowancedomain.Service
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("letter.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Cfg,
		repo:      p.Repo,
		audit:     p.Audit,
		allowance: p.Allowance,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, ownerID snowflake.ID, req domain.CreateLetterRequest) (domain.Letter, error) {
	if ownerID == 0 {
		return domain.Letter{}, domain.ErrInvalidArgument
	}
	if strings.TrimSpace(req.LetterType) == "" ||
		strings.TrimSpace(req.SenderName) == "" ||
		strings.TrimSpace(req.RecipientName) == "" ||
		strings.TrimSpace(req.IssueDescription) == "" {
		return domain.Letter{}, domain.ErrInvalidArgument
	}

	now := s.clock.Now()
	letter := domain.Letter{
		ID:               s.genID.Generate(),
		UserID:           ownerID,
		LetterType:       strings.TrimSpace(req.LetterType),
		Status:           domain.StatusDraft,
		SenderName:       strings.TrimSpace(req.SenderName),
		RecipientName:    strings.TrimSpace(req.RecipientName),
		IssueDescription: strings.TrimSpace(req.IssueDescription),
		DesiredOutcome:   strings.TrimSpace(req.DesiredOutcome),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &letter); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, &auditdomain.Entry{
			LetterID:  &letter.ID,
			Action:    auditdomain.ActionCreated,
			ActorID:   ownerID,
			ActorRole: principal.RoleSubscriber,
			NewStatus: string(domain.StatusDraft),
		})
	})
	if err != nil {
		return domain.Letter{}, err
	}

	s.metrics.LetterTransition(string(domain.StatusDraft))
	s.log.Info("letter created",
		zap.String("letter_id", letter.ID.String()),
		zap.String("user_id", ownerID.String()),
		zap.String("letter_type", letter.LetterType),
	)
	return letter, nil
}

// SubmitForGeneration pays for the letter before moving it. The deduction is
// its own committed transaction: once the letter is generating, the credit is
// spent, and only an explicit FailGeneration gives it back.
func (s *Service) SubmitForGeneration(ctx context.Context, letterID, ownerID snowflake.ID) (domain.SubmitResult, error) {
	// Cheap pre-checks outside the paid path.
	existing, err := s.repo.FindByID(ctx, s.db, letterID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if existing == nil {
		return domain.SubmitResult{}, domain.ErrLetterNotFound
	}
	if existing.UserID != ownerID {
		return domain.SubmitResult{}, domain.ErrNotOwner
	}
	if existing.Status != domain.StatusDraft {
		return domain.SubmitResult{}, domain.ErrInvalidState
	}

	deduction, err := s.allowance.CheckAndDeduct(ctx, ownerID)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	letter, err := s.transition(ctx, letterID, transition{
		from:      []domain.Status{domain.StatusDraft},
		to:        domain.StatusGenerating,
		action:    auditdomain.ActionSubmitted,
		actorID:   ownerID,
		actorRole: principal.RoleSubscriber,
		ownerID:   ownerID,
	})
	if err != nil {
		// The credit is spent but the letter never left draft. Pay it back
		// so the subscriber is not charged for nothing. A consumed free
		// trial has no allowance to refund into.
		if !deduction.FreeTrial {
			if refundErr := s.allowance.Refund(ctx, ownerID, 1); refundErr != nil {
				s.log.Error("refund after failed submission",
					zap.String("user_id", ownerID.String()),
					zap.String("letter_id", letterID.String()),
					zap.Error(refundErr),
				)
			}
		}
		return domain.SubmitResult{}, err
	}

	return domain.SubmitResult{
		Letter:    letter,
		FreeTrial: deduction.FreeTrial,
		Remaining: deduction.Remaining,
	}, nil
}

func (s *Service) CompleteGeneration(ctx context.Context, letterID snowflake.ID, draftContent string) (domain.Letter, error) {
	if strings.TrimSpace(draftContent) == "" {
		return domain.Letter{}, domain.ErrEmptyContent
	}
	return s.transition(ctx, letterID, transition{
		from:      []domain.Status{domain.StatusGenerating},
		to:        domain.StatusPendingReview,
		action:    auditdomain.ActionGenerated,
		actorRole: "system",
		mutate: func(l *domain.Letter) {
			l.DraftContent = draftContent
		},
	})
}

// FailGeneration moves the letter to failed and refunds the credit spent on
// submission. A refund that cannot land (subscription lapsed meanwhile) is
// logged for reconciliation, not surfaced to the generation subsystem.
func (s *Service) FailGeneration(ctx context.Context, letterID snowflake.ID, reason string) (domain.Letter, error) {
	letter, err := s.transition(ctx, letterID, transition{
		from:      []domain.Status{domain.StatusGenerating},
		to:        domain.StatusFailed,
		action:    auditdomain.ActionGenerationFailed,
		actorRole: "system",
		notes:     reason,
	})
	if err != nil {
		return domain.Letter{}, err
	}

	if err := s.allowance.Refund(ctx, letter.UserID, 1); err != nil {
		if err == allowancedomain.ErrNoActiveAllowance {
			s.log.Error("refund has no active allowance to land on",
				zap.String("user_id", letter.UserID.String()),
				zap.String("letter_id", letterID.String()),
			)
		} else {
			s.log.Error("refund after generation failure",
				zap.String("user_id", letter.UserID.String()),
				zap.String("letter_id", letterID.String()),
				zap.Error(err),
			)
		}
	}
	return letter, nil
}

func (s *Service) MarkDelivered(ctx context.Context, letterID snowflake.ID) (domain.Letter, error) {
	return s.transition(ctx, letterID, transition{
		from:      []domain.Status{domain.StatusApproved},
		to:        domain.StatusCompleted,
		action:    auditdomain.ActionDelivered,
		actorRole: "system",
	})
}

func (s *Service) Resubmit(ctx context.Context, letterID, ownerID snowflake.ID) (domain.Letter, error) {
	return s.transition(ctx, letterID, transition{
		from:      []domain.Status{domain.StatusRejected},
		to:        domain.StatusDraft,
		action:    auditdomain.ActionResubmitted,
		actorID:   ownerID,
		actorRole: principal.RoleSubscriber,
		ownerID:   ownerID,
		mutate: func(l *domain.Letter) {
			l.ReviewedBy = nil
			l.ReviewedAt = nil
			l.ReviewNotes = ""
			l.RejectionReason = ""
			l.DraftContent = ""
		},
	})
}

func (s *Service) GetByID(ctx context.Context, letterID snowflake.ID) (domain.Letter, error) {
	letter, err := s.repo.FindByID(ctx, s.db, letterID)
	if err != nil {
		return domain.Letter{}, err
	}
	if letter == nil {
		return domain.Letter{}, domain.ErrLetterNotFound
	}
	return *letter, nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID snowflake.ID, status domain.Status, limit, offset int) ([]domain.Letter, error) {
	if ownerID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	return s.list(ctx, domain.ListFilter{UserID: ownerID, Status: status, Limit: limit, Offset: offset})
}

func (s *Service) ListPendingReview(ctx context.Context, limit, offset int) ([]domain.Letter, error) {
	return s.list(ctx, domain.ListFilter{Status: domain.StatusPendingReview, Limit: limit, Offset: offset})
}

func (s *Service) ListAll(ctx context.Context, status domain.Status, limit, offset int) ([]domain.Letter, error) {
	return s.list(ctx, domain.ListFilter{Status: status, Limit: limit, Offset: offset})
}

func (s *Service) list(ctx context.Context, filter domain.ListFilter) ([]domain.Letter, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	letters := make([]domain.Letter, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		letters = append(letters, *item)
	}
	return letters, nil
}

// transition describes one guarded status move. mutate runs on the locked
// row after the guards pass and before the write.
type transition struct {
	from      []domain.Status
	to        domain.Status
	action    string
	actorID   snowflake.ID
	actorRole string
	ownerID   snowflake.ID
	notes     string
	mutate    func(*domain.Letter)
}

func (s *Service) transition(ctx context.Context, letterID snowflake.ID, t transition) (domain.Letter, error) {
	var result domain.Letter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		letter, err := s.repo.FindByIDForUpdate(ctx, tx, letterID)
		if err != nil {
			return err
		}
		if letter == nil {
			return domain.ErrLetterNotFound
		}
		if t.ownerID != 0 && letter.UserID != t.ownerID {
			return domain.ErrNotOwner
		}

		allowed := false
		for _, from := range t.from {
			if letter.Status == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return domain.ErrInvalidState
		}

		oldStatus := letter.Status
		letter.Status = t.to
		letter.UpdatedAt = s.clock.Now()
		if t.mutate != nil {
			t.mutate(letter)
		}
		if err := s.repo.Update(ctx, tx, letter); err != nil {
			return err
		}

		actorID := t.actorID
		if actorID == 0 {
			// System callbacks act on behalf of the letter's owner.
			actorID = letter.UserID
		}
		if err := s.audit.Record(ctx, tx, &auditdomain.Entry{
			LetterID:  &letter.ID,
			Action:    t.action,
			ActorID:   actorID,
			ActorRole: t.actorRole,
			OldStatus: string(oldStatus),
			NewStatus: string(t.to),
			Notes:     t.notes,
		}); err != nil {
			return err
		}

		result = *letter
		return nil
	})
	if err != nil {
		return domain.Letter{}, err
	}

	s.metrics.LetterTransition(string(t.to))
	log.WithContext(ctx, s.log).Info("letter transition",
		zap.String("letter_id", letterID.String()),
		zap.String("to", string(t.to)),
		zap.String("action", t.action),
	)
	return result, nil
}
