package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/counselkit/letterflow/internal/allowance/domain"
	"github.com/counselkit/letterflow/internal/allowance/repository"
	auditrepo "github.com/counselkit/letterflow/internal/audit/repository"
	auditservice "github.com/counselkit/letterflow/internal/audit/service"
	"github.com/counselkit/letterflow/internal/clock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, clk clock.Clock) (domain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	// Tables created manually to match the production migration.
	db.Exec(`CREATE TABLE IF NOT EXISTS allowances (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		plan_code TEXT NOT NULL,
		status TEXT NOT NULL,
		credits_remaining INTEGER NOT NULL DEFAULT 0,
		period_start TIMESTAMP NOT NULL,
		period_end TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	db.Exec(`CREATE TABLE IF NOT EXISTS user_consumptions (
		user_id BIGINT PRIMARY KEY,
		lifetime_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	)`)
	db.Exec(`CREATE TABLE IF NOT EXISTS audit_entries (
		id BIGINT PRIMARY KEY,
		letter_id BIGINT,
		action TEXT NOT NULL,
		actor_id BIGINT NOT NULL,
		actor_role TEXT NOT NULL,
		old_status TEXT NOT NULL DEFAULT '',
		new_status TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	)`)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})

	svc := NewService(Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
		Audit: audit,
	})
	return svc, db, node
}

func grantCredits(t *testing.T, svc domain.Service, userID snowflake.ID, credits int, now time.Time) {
	t.Helper()
	err := svc.Grant(context.Background(), nil, domain.GrantRequest{
		UserID:      userID,
		PlanCode:    "standard",
		Credits:     credits,
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
}

func TestCheckAndDeduct_FreeTrialGrantedOnce(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, clk)
	ctx := context.Background()
	userID := node.Generate()

	res, err := svc.CheckAndDeduct(ctx, userID)
	require.NoError(t, err)
	assert.True(t, res.FreeTrial)

	// The trial is lifetime-scoped, not per-period.
	_, err = svc.CheckAndDeduct(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrNoActiveAllowance)

	var count int64
	db.Table("audit_entries").Where("action = ?", "credit_deducted").Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestCheckAndDeduct_NoTrialAfterPriorConsumption(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, clk)
	ctx := context.Background()
	userID := node.Generate()

	grantCredits(t, svc, userID, 1, clk.Now())
	_, err := svc.CheckAndDeduct(ctx, userID)
	require.NoError(t, err)

	// Subscription lapses; prior consumption forecloses the trial.
	db.Exec(`UPDATE allowances SET status = 'expired' WHERE user_id = ?`, userID)

	_, err = svc.CheckAndDeduct(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrNoActiveAllowance)
}

func TestCheckAndDeduct_ExhaustsExactly(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, _, node := newTestService(t, clk)
	ctx := context.Background()
	userID := node.Generate()

	grantCredits(t, svc, userID, 3, clk.Now())

	for want := 2; want >= 0; want-- {
		res, err := svc.CheckAndDeduct(ctx, userID)
		require.NoError(t, err)
		assert.False(t, res.FreeTrial)
		assert.Equal(t, want, res.Remaining)
	}

	_, err := svc.CheckAndDeduct(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrAllowanceExhausted)
}

func TestRefund_RestoresBalance(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, clk)
	ctx := context.Background()
	userID := node.Generate()

	grantCredits(t, svc, userID, 2, clk.Now())
	_, err := svc.CheckAndDeduct(ctx, userID)
	require.NoError(t, err)

	require.NoError(t, svc.Refund(ctx, userID, 1))

	active, err := svc.GetActive(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, active.CreditsRemaining)

	var count int64
	db.Table("audit_entries").Where("action = ?", "credit_refunded").Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRefund_Validation(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, _, node := newTestService(t, clk)
	ctx := context.Background()

	err := svc.Refund(ctx, node.Generate(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// No active allowance to land on.
	err = svc.Refund(ctx, node.Generate(), 1)
	assert.ErrorIs(t, err, domain.ErrNoActiveAllowance)
}

func TestGrant_SupersedesActiveAllowance(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, clk)
	ctx := context.Background()
	userID := node.Generate()

	grantCredits(t, svc, userID, 5, clk.Now())
	clk.Advance(time.Hour)
	require.NoError(t, svc.Grant(ctx, nil, domain.GrantRequest{
		UserID: userID, PlanCode: "premium", Credits: 20,
		PeriodStart: clk.Now(), PeriodEnd: clk.Now().AddDate(0, 1, 0),
	}))

	active, err := svc.GetActive(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "premium", active.PlanCode)
	assert.Equal(t, 20, active.CreditsRemaining)

	var count int64
	db.Table("allowances").Where("user_id = ? AND status = ?", userID, "active").Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestGetActive_NoneReturnsError(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, _, node := newTestService(t, clk)

	_, err := svc.GetActive(context.Background(), node.Generate())
	assert.ErrorIs(t, err, domain.ErrNoActiveAllowance)
}

func TestCheckAndDeduct_ConcurrentCallsNeverOverdraw(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, clk)
	userID := node.Generate()
	grantCredits(t, svc, userID, 3, clk.Now())

	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CheckAndDeduct(context.Background(), userID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var deducted, exhausted int
	for err := range errs {
		switch {
		case err == nil:
			deducted++
		case errors.Is(err, domain.ErrAllowanceExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected deduction error: %v", err)
		}
	}
	assert.Equal(t, 3, deducted)
	assert.Equal(t, callers-3, exhausted)

	var remaining int
	require.NoError(t, db.Table("allowances").
		Where("user_id = ?", userID).
		Select("credits_remaining").
		Scan(&remaining).Error)
	assert.Equal(t, 0, remaining)
}

func TestCheckAndDeduct_ConcurrentTrialGrantedOnce(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, db, node := newTestService(t, clk)
	userID := node.Generate()

	const callers = 6
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.CheckAndDeduct(context.Background(), userID)
			if err == nil && !res.FreeTrial {
				err = fmt.Errorf("expected trial deduction, got paid one")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var trials, refused int
	for err := range errs {
		switch {
		case err == nil:
			trials++
		case errors.Is(err, domain.ErrNoActiveAllowance):
			refused++
		default:
			t.Fatalf("unexpected deduction error: %v", err)
		}
	}
	assert.Equal(t, 1, trials)
	assert.Equal(t, callers-1, refused)

	var lifetime int
	require.NoError(t, db.Table("user_consumptions").
		Where("user_id = ?", userID).
		Select("lifetime_count").
		Scan(&lifetime).Error)
	assert.Equal(t, 1, lifetime)
}
