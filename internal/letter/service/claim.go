package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/counselkit/letterflow/internal/audit/domain"
	"github.com/counselkit/letterflow/internal/letter/domain"
	"github.com/counselkit/letterflow/internal/principal"
	"github.com/counselkit/letterflow/pkg/log"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Claim takes exclusive review hold of the letter. Expiry is evaluated here,
// lazily, under the same row lock that grants the claim: an expired claim is
// simply taken over, so no sweeper is needed.
func (s *Service) Claim(ctx context.Context, letterID, reviewerID snowflake.ID) (domain.Letter, error) {
	if reviewerID == 0 {
		return domain.Letter{}, domain.ErrInvalidArgument
	}

	var (
		result   domain.Letter
		takeover bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		letter, err := s.repo.FindByIDForUpdate(ctx, tx, letterID)
		if err != nil {
			return err
		}
		if letter == nil {
			return domain.ErrLetterNotFound
		}
		if letter.Status != domain.StatusPendingReview && letter.Status != domain.StatusUnderReview {
			return domain.ErrNotClaimable
		}

		now := s.clock.Now()
		if letter.ClaimedBy != nil && *letter.ClaimedBy != reviewerID {
			if !letter.ClaimExpired(now, s.cfg.ClaimTTL) {
				return &domain.AlreadyClaimedError{
					ClaimedBy: *letter.ClaimedBy,
					ClaimedAt: *letter.ClaimedAt,
				}
			}
			takeover = true
		}

		oldStatus := letter.Status
		letter.ClaimedBy = &reviewerID
		letter.ClaimedAt = &now
		letter.Status = domain.StatusUnderReview
		letter.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, letter); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, &auditdomain.Entry{
			LetterID:  &letter.ID,
			Action:    auditdomain.ActionClaimed,
			ActorID:   reviewerID,
			ActorRole: principal.RoleReviewer,
			OldStatus: string(oldStatus),
			NewStatus: string(domain.StatusUnderReview),
		}); err != nil {
			return err
		}

		result = *letter
		return nil
	})
	if err != nil {
		if _, ok := err.(*domain.AlreadyClaimedError); ok {
			s.metrics.ClaimConflict()
		}
		return domain.Letter{}, err
	}

	if takeover {
		s.metrics.ClaimTakeover()
	}
	log.WithContext(ctx, s.log).Info("letter claimed",
		zap.String("letter_id", letterID.String()),
		zap.String("reviewer_id", reviewerID.String()),
		zap.Bool("takeover", takeover),
	)
	return result, nil
}

// Release gives the claim up without deciding the letter. Releasing an
// unclaimed letter succeeds so retries are harmless.
func (s *Service) Release(ctx context.Context, letterID, reviewerID snowflake.ID) (domain.Letter, error) {
	if reviewerID == 0 {
		return domain.Letter{}, domain.ErrInvalidArgument
	}

	var result domain.Letter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		letter, err := s.repo.FindByIDForUpdate(ctx, tx, letterID)
		if err != nil {
			return err
		}
		if letter == nil {
			return domain.ErrLetterNotFound
		}
		if letter.ClaimedBy == nil {
			result = *letter
			return nil
		}
		if *letter.ClaimedBy != reviewerID {
			return domain.ErrNotClaimOwner
		}

		letter.ClaimedBy = nil
		letter.ClaimedAt = nil
		letter.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, letter); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, &auditdomain.Entry{
			LetterID:  &letter.ID,
			Action:    auditdomain.ActionReleased,
			ActorID:   reviewerID,
			ActorRole: principal.RoleReviewer,
			OldStatus: string(letter.Status),
			NewStatus: string(letter.Status),
		}); err != nil {
			return err
		}

		result = *letter
		return nil
	})
	if err != nil {
		return domain.Letter{}, err
	}
	return result, nil
}

// Approve decides the letter. Only the holder of a live claim may decide,
// and the final content the subscriber will receive must not be empty.
func (s *Service) Approve(ctx context.Context, letterID, reviewerID snowflake.ID, finalContent, notes string) (domain.Letter, error) {
	if reviewerID == 0 {
		return domain.Letter{}, domain.ErrInvalidArgument
	}
	if strings.TrimSpace(finalContent) == "" {
		return domain.Letter{}, domain.ErrEmptyContent
	}
	return s.decide(ctx, letterID, reviewerID, decision{
		to:     domain.StatusApproved,
		action: auditdomain.ActionApproved,
		notes:  notes,
		mutate: func(l *domain.Letter) {
			l.FinalContent = finalContent
			l.ReviewNotes = notes
		},
		approved: true,
	})
}

// Reject decides the letter the other way and records why.
func (s *Service) Reject(ctx context.Context, letterID, reviewerID snowflake.ID, reason string) (domain.Letter, error) {
	if reviewerID == 0 {
		return domain.Letter{}, domain.ErrInvalidArgument
	}
	if strings.TrimSpace(reason) == "" {
		return domain.Letter{}, domain.ErrEmptyReason
	}
	return s.decide(ctx, letterID, reviewerID, decision{
		to:     domain.StatusRejected,
		action: auditdomain.ActionRejected,
		notes:  reason,
		mutate: func(l *domain.Letter) {
			l.RejectionReason = reason
		},
	})
}

type decision struct {
	to       domain.Status
	action   string
	notes    string
	mutate   func(*domain.Letter)
	approved bool
}

func (s *Service) decide(ctx context.Context, letterID, reviewerID snowflake.ID, d decision) (domain.Letter, error) {
	var result domain.Letter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		letter, err := s.repo.FindByIDForUpdate(ctx, tx, letterID)
		if err != nil {
			return err
		}
		if letter == nil {
			return domain.ErrLetterNotFound
		}
		if letter.Status != domain.StatusUnderReview {
			return domain.ErrInvalidState
		}

		now := s.clock.Now()
		// A decision needs a live claim held by this reviewer. An expired
		// claim no longer protects the decision from a takeover.
		if letter.ClaimedBy == nil || *letter.ClaimedBy != reviewerID {
			return domain.ErrNotClaimOwner
		}
		if letter.ClaimExpired(now, s.cfg.ClaimTTL) {
			return domain.ErrNotClaimOwner
		}

		oldStatus := letter.Status
		letter.Status = d.to
		letter.ReviewedBy = &reviewerID
		letter.ReviewedAt = &now
		letter.ClaimedBy = nil
		letter.ClaimedAt = nil
		letter.UpdatedAt = now
		if d.approved {
			letter.ApprovedAt = &now
		}
		if d.mutate != nil {
			d.mutate(letter)
		}
		if err := s.repo.Update(ctx, tx, letter); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, &auditdomain.Entry{
			LetterID:  &letter.ID,
			Action:    d.action,
			ActorID:   reviewerID,
			ActorRole: principal.RoleReviewer,
			OldStatus: string(oldStatus),
			NewStatus: string(d.to),
			Notes:     d.notes,
		}); err != nil {
			return err
		}

		result = *letter
		return nil
	})
	if err != nil {
		return domain.Letter{}, err
	}

	s.metrics.LetterTransition(string(d.to))
	log.WithContext(ctx, s.log).Info("letter decided",
		zap.String("letter_id", letterID.String()),
		zap.String("reviewer_id", reviewerID.String()),
		zap.String("to", string(d.to)),
	)
	return result, nil
}
