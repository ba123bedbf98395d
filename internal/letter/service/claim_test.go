package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/letter/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaim_MutualExclusion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.node.Generate()
	alice := env.node.Generate()
	bob := env.node.Generate()

	letter := env.seedLetter(t, owner, domain.StatusPendingReview)

	claimed, err := env.svc.Claim(ctx, letter.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnderReview, claimed.Status)

	_, err = env.svc.Claim(ctx, letter.ID, bob)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	var conflict *domain.AlreadyClaimedError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, alice, conflict.ClaimedBy)

	// Re-claiming one's own letter is a refresh, not a conflict.
	again, err := env.svc.Claim(ctx, letter.ID, alice)
	require.NoError(t, err)
	require.NotNil(t, again.ClaimedBy)
	assert.Equal(t, alice, *again.ClaimedBy)
}

func TestClaim_ExpiredClaimIsTakenOver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.node.Generate()
	alice := env.node.Generate()
	bob := env.node.Generate()

	letter := env.seedLetter(t, owner, domain.StatusPendingReview)
	_, err := env.svc.Claim(ctx, letter.ID, alice)
	require.NoError(t, err)

	// One minute short of the TTL the claim still holds.
	env.clk.Advance(29 * time.Minute)
	_, err = env.svc.Claim(ctx, letter.ID, bob)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// One minute past it the claim is dead and bob takes over.
	env.clk.Advance(2 * time.Minute)
	taken, err := env.svc.Claim(ctx, letter.ID, bob)
	require.NoError(t, err)
	require.NotNil(t, taken.ClaimedBy)
	assert.Equal(t, bob, *taken.ClaimedBy)
	assert.Equal(t, env.clk.Now(), taken.ClaimedAt.UTC())
}

func TestClaim_Guards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.node.Generate()
	reviewer := env.node.Generate()

	_, err := env.svc.Claim(ctx, env.node.Generate(), reviewer)
	assert.ErrorIs(t, err, domain.ErrLetterNotFound)

	draft := env.createDraft(t, owner)
	_, err = env.svc.Claim(ctx, draft.ID, reviewer)
	assert.ErrorIs(t, err, domain.ErrNotClaimable)
}

func TestRelease_OwnershipAndRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.node.Generate()
	alice := env.node.Generate()
	bob := env.node.Generate()

	letter := env.seedLetter(t, owner, domain.StatusPendingReview)
	_, err := env.svc.Claim(ctx, letter.ID, alice)
	require.NoError(t, err)

	_, err = env.svc.Release(ctx, letter.ID, bob)
	assert.ErrorIs(t, err, domain.ErrNotClaimOwner)

	released, err := env.svc.Release(ctx, letter.ID, alice)
	require.NoError(t, err)
	assert.Nil(t, released.ClaimedBy)
	assert.Equal(t, domain.StatusUnderReview, released.Status)

	// Releasing an unclaimed letter is a harmless retry.
	_, err = env.svc.Release(ctx, letter.ID, alice)
	require.NoError(t, err)

	// The letter is free for anyone again.
	reclaimed, err := env.svc.Claim(ctx, letter.ID, bob)
	require.NoError(t, err)
	require.NotNil(t, reclaimed.ClaimedBy)
	assert.Equal(t, bob, *reclaimed.ClaimedBy)
}

func TestApprove_RequiresLiveClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.node.Generate()
	alice := env.node.Generate()
	bob := env.node.Generate()

	letter := env.seedLetter(t, owner, domain.StatusPendingReview)
	_, err := env.svc.Claim(ctx, letter.ID, alice)
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, letter.ID, bob, "final content", "")
	assert.ErrorIs(t, err, domain.ErrNotClaimOwner)

	_, err = env.svc.Approve(ctx, letter.ID, alice, "   ", "")
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	// An expired claim no longer authorizes a decision.
	env.clk.Advance(31 * time.Minute)
	_, err = env.svc.Approve(ctx, letter.ID, alice, "final content", "")
	assert.ErrorIs(t, err, domain.ErrNotClaimOwner)
}

func TestReject_RequiresReason(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.node.Generate()
	alice := env.node.Generate()

	letter := env.seedLetter(t, owner, domain.StatusPendingReview)
	_, err := env.svc.Claim(ctx, letter.ID, alice)
	require.NoError(t, err)

	_, err = env.svc.Reject(ctx, letter.ID, alice, "")
	assert.ErrorIs(t, err, domain.ErrEmptyReason)

	rejected, err := env.svc.Reject(ctx, letter.ID, alice, "missing statutory citation")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.Equal(t, "missing statutory citation", rejected.RejectionReason)
	assert.Nil(t, rejected.ClaimedBy)
}

func TestDecide_RequiresUnderReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.node.Generate()
	alice := env.node.Generate()

	letter := env.seedLetter(t, owner, domain.StatusPendingReview)

	_, err := env.svc.Approve(ctx, letter.ID, alice, "final content", "")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = env.svc.Reject(ctx, letter.ID, alice, "reason")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestClaim_ConcurrentReviewersSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	owner := env.node.Generate()
	letter := env.seedLetter(t, owner, domain.StatusPendingReview)

	const reviewers = 8
	ids := make([]snowflake.ID, reviewers)
	for i := range ids {
		ids[i] = env.node.Generate()
	}

	type outcome struct {
		reviewer snowflake.ID
		err      error
	}
	var wg sync.WaitGroup
	results := make(chan outcome, reviewers)
	for _, id := range ids {
		wg.Add(1)
		go func(id snowflake.ID) {
			defer wg.Done()
			_, err := env.svc.Claim(context.Background(), letter.ID, id)
			results <- outcome{reviewer: id, err: err}
		}(id)
	}
	wg.Wait()
	close(results)

	var winner snowflake.ID
	var won, lost int
	var conflicts []*domain.AlreadyClaimedError
	for res := range results {
		if res.err == nil {
			won++
			winner = res.reviewer
			continue
		}
		lost++
		var conflict *domain.AlreadyClaimedError
		require.True(t, errors.As(res.err, &conflict), "unexpected claim error: %v", res.err)
		conflicts = append(conflicts, conflict)
	}
	require.Equal(t, 1, won)
	assert.Equal(t, reviewers-1, lost)

	// Every loser was told who holds the claim.
	for _, conflict := range conflicts {
		assert.Equal(t, winner, conflict.ClaimedBy)
	}

	current, err := env.svc.GetByID(context.Background(), letter.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnderReview, current.Status)
	require.NotNil(t, current.ClaimedBy)
	assert.Equal(t, winner, *current.ClaimedBy)
}
