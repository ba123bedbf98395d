package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreateLetterRequest carries the subscriber's intake form.
type CreateLetterRequest struct {
	LetterType       string `json:"letter_type" binding:"required"`
	SenderName       string `json:"sender_name" binding:"required"`
	RecipientName    string `json:"recipient_name" binding:"required"`
	IssueDescription string `json:"issue_description" binding:"required"`
	DesiredOutcome   string `json:"desired_outcome"`
}

// SubmitResult reports how the submission's credit was paid for.
type SubmitResult struct {
	Letter    Letter `json:"letter"`
	FreeTrial bool   `json:"free_trial"`
	Remaining int    `json:"remaining"`
}

type Service interface {
	Create(ctx context.Context, ownerID snowflake.ID, req CreateLetterRequest) (Letter, error)
	// SubmitForGeneration deducts one letter credit and moves the draft to
	// generating. The deduction commits first; a generation failure is paid
	// back through FailGeneration's refund.
	SubmitForGeneration(ctx context.Context, letterID, ownerID snowflake.ID) (SubmitResult, error)
	// CompleteGeneration and FailGeneration are generation-subsystem callbacks.
	CompleteGeneration(ctx context.Context, letterID snowflake.ID, draftContent string) (Letter, error)
	FailGeneration(ctx context.Context, letterID snowflake.ID, reason string) (Letter, error)

	// Claim gives the reviewer exclusive hold of the letter until released,
	// decided, or expired. A live claim by someone else fails with
	// *AlreadyClaimedError.
	Claim(ctx context.Context, letterID, reviewerID snowflake.ID) (Letter, error)
	Release(ctx context.Context, letterID, reviewerID snowflake.ID) (Letter, error)
	Approve(ctx context.Context, letterID, reviewerID snowflake.ID, finalContent, notes string) (Letter, error)
	Reject(ctx context.Context, letterID, reviewerID snowflake.ID, reason string) (Letter, error)

	MarkDelivered(ctx context.Context, letterID snowflake.ID) (Letter, error)
	Resubmit(ctx context.Context, letterID, ownerID snowflake.ID) (Letter, error)

	GetByID(ctx context.Context, letterID snowflake.ID) (Letter, error)
	ListByOwner(ctx context.Context, ownerID snowflake.ID, status Status, limit, offset int) ([]Letter, error)
	ListPendingReview(ctx context.Context, limit, offset int) ([]Letter, error)
	// ListAll is the admin view across owners.
	ListAll(ctx context.Context, status Status, limit, offset int) ([]Letter, error)
}

var (
	ErrLetterNotFound  = errors.New("letter_not_found")
	ErrInvalidState    = errors.New("invalid_state")
	ErrNotOwner        = errors.New("not_owner")
	ErrNotClaimable    = errors.New("not_claimable")
	ErrNotClaimOwner   = errors.New("not_claim_owner")
	ErrAlreadyClaimed  = errors.New("already_claimed")
	ErrEmptyContent    = errors.New("empty_content")
	ErrEmptyReason     = errors.New("empty_reason")
	ErrInvalidArgument = errors.New("invalid_argument")
)

// AlreadyClaimedError reports who holds the live claim. It matches
// ErrAlreadyClaimed under errors.Is so handlers can branch without the
// payload.
type AlreadyClaimedError struct {
	ClaimedBy snowflake.ID
	ClaimedAt time.Time
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("already_claimed: letter held by %s since %s", e.ClaimedBy, e.ClaimedAt.Format(time.RFC3339))
}

func (e *AlreadyClaimedError) Is(target error) bool {
	return target == ErrAlreadyClaimed
}
