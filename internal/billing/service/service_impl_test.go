package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	allowancedomain "github.com/counselkit/letterflow/internal/allowance/domain"
	allowancerepo "github.com/counselkit/letterflow/internal/allowance/repository"
	allowanceservice "github.com/counselkit/letterflow/internal/allowance/service"
	auditrepo "github.com/counselkit/letterflow/internal/audit/repository"
	auditservice "github.com/counselkit/letterflow/internal/audit/service"
	"github.com/counselkit/letterflow/internal/billing/domain"
	billingrepo "github.com/counselkit/letterflow/internal/billing/repository"
	"github.com/counselkit/letterflow/internal/billing/stripe"
	"github.com/counselkit/letterflow/internal/clock"
	commissionrepo "github.com/counselkit/letterflow/internal/commission/repository"
	"github.com/counselkit/letterflow/internal/config"
	couponrepo "github.com/counselkit/letterflow/internal/coupon/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

type billingEnv struct {
	svc       domain.Service
	allowance allowancedomain.Service
	db        *gorm.DB
	node      *snowflake.Node
	clk       *clock.FakeClock
}

func newBillingEnv(t *testing.T) *billingEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS webhook_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			payload TEXT NOT NULL,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_events_provider_event
			ON webhook_events (provider, provider_event_id)`,
		`CREATE TABLE IF NOT EXISTS allowances (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			plan_code TEXT NOT NULL,
			status TEXT NOT NULL,
			credits_remaining INTEGER NOT NULL DEFAULT 0,
			period_start TIMESTAMP NOT NULL,
			period_end TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_consumptions (
			user_id BIGINT PRIMARY KEY,
			lifetime_count INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS commissions (
			id BIGINT PRIMARY KEY,
			employee_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			webhook_event_id BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL,
			rate DOUBLE PRECISION NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS coupons (
			id BIGINT PRIMARY KEY,
			employee_id BIGINT NOT NULL,
			code TEXT NOT NULL UNIQUE,
			discount_percent INTEGER NOT NULL DEFAULT 0,
			usage_count INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS coupon_usages (
			id BIGINT PRIMARY KEY,
			coupon_code TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			webhook_event_id BIGINT NOT NULL,
			base_price_cents BIGINT NOT NULL,
			final_price_cents BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id BIGINT PRIMARY KEY,
			letter_id BIGINT,
			action TEXT NOT NULL,
			actor_id BIGINT NOT NULL,
			actor_role TEXT NOT NULL DEFAULT '',
			old_status TEXT NOT NULL DEFAULT '',
			new_status TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	} {
		require.NoError(t, db.Exec(ddl).Error)
	}

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	logger := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC))

	plans, err := config.NewPlanCatalogHolder()
	require.NoError(t, err)

	cfg := config.Config{
		WebhookSecret:    testSecret,
		CommissionRate:   0.10,
		WebhookRetention: 90 * 24 * time.Hour,
	}

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	allowance := allowanceservice.NewService(allowanceservice.Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Clock: clk,
		Repo:  allowancerepo.Provide(),
		Audit: audit,
	})
	svc := NewService(Params{
		DB:             db,
		Log:            logger,
		GenID:          node,
		Clock:          clk,
		Cfg:            cfg,
		Plans:          plans,
		Repo:           billingrepo.Provide(),
		Allowance:      allowance,
		CommissionRepo: commissionrepo.Provide(),
		CouponRepo:     couponrepo.Provide(),
		Audit:          audit,
	})

	return &billingEnv{svc: svc, allowance: allowance, db: db, node: node, clk: clk}
}

func (e *billingEnv) activation(eventID string, userID snowflake.ID) domain.ActivationEvent {
	return domain.ActivationEvent{
		Provider:        "stripe",
		ProviderEventID: eventID,
		EventType:       "checkout.session.completed",
		UserID:          userID,
		PlanCode:        "standard",
		BasePriceCents:  9900,
		FinalPriceCents: 9900,
		OccurredAt:      e.clk.Now(),
		RawPayload:      []byte(`{"id":"` + eventID + `"}`),
	}
}

func (e *billingEnv) seedCoupon(t *testing.T, employeeID snowflake.ID, code string) {
	t.Helper()
	require.NoError(t, e.db.Exec(
		`INSERT INTO coupons (id, employee_id, code, discount_percent, usage_count, active, created_at, updated_at)
		 VALUES (?, ?, ?, 10, 0, 1, ?, ?)`,
		e.node.Generate(), employeeID, code, e.clk.Now(), e.clk.Now(),
	).Error)
}

func TestProcessActivation_GrantsAllowance(t *testing.T) {
	env := newBillingEnv(t)
	ctx := context.Background()
	user := env.node.Generate()

	require.NoError(t, env.svc.ProcessActivation(ctx, env.activation("evt_1", user)))

	active, err := env.allowance.GetActive(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "standard", active.PlanCode)
	assert.Equal(t, 4, active.CreditsRemaining)
	assert.Equal(t, env.clk.Now().AddDate(0, 0, 30), active.PeriodEnd.UTC())

	var processed int64
	env.db.Table("webhook_events").
		Where("provider_event_id = ? AND processed_at IS NOT NULL", "evt_1").
		Count(&processed)
	assert.EqualValues(t, 1, processed)

	var audited int64
	env.db.Table("audit_entries").Where("action = ?", "subscription_activated").Count(&audited)
	assert.EqualValues(t, 1, audited)
}

func TestProcessActivation_ExactlyOnce(t *testing.T) {
	env := newBillingEnv(t)
	ctx := context.Background()
	user := env.node.Generate()
	event := env.activation("evt_dup", user)

	require.NoError(t, env.svc.ProcessActivation(ctx, event))

	err := env.svc.ProcessActivation(ctx, event)
	assert.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)

	// The redelivery must not stack a second grant.
	var grants int64
	env.db.Table("allowances").Where("user_id = ?", user).Count(&grants)
	assert.EqualValues(t, 1, grants)
}

func TestProcessActivation_CommissionAndCoupon(t *testing.T) {
	env := newBillingEnv(t)
	ctx := context.Background()
	user := env.node.Generate()
	employee := env.node.Generate()
	env.seedCoupon(t, employee, "SAVE10")

	event := env.activation("evt_ref", user)
	event.EmployeeID = &employee
	event.CouponCode = "SAVE10"
	event.BasePriceCents = 9900
	event.FinalPriceCents = 8910

	require.NoError(t, env.svc.ProcessActivation(ctx, event))

	var amount int64
	env.db.Table("commissions").
		Where("employee_id = ?", employee).
		Select("amount_cents").
		Scan(&amount)
	assert.EqualValues(t, 891, amount)

	var usageCount int
	env.db.Table("coupons").Where("code = ?", "SAVE10").Select("usage_count").Scan(&usageCount)
	assert.Equal(t, 1, usageCount)

	var finalPrice int64
	env.db.Table("coupon_usages").
		Where("coupon_code = ?", "SAVE10").
		Select("final_price_cents").
		Scan(&finalPrice)
	assert.EqualValues(t, 8910, finalPrice)
}

func TestProcessActivation_RollsBackAsAWhole(t *testing.T) {
	env := newBillingEnv(t)
	ctx := context.Background()
	user := env.node.Generate()
	employee := env.node.Generate()

	event := env.activation("evt_atomic", user)
	event.EmployeeID = &employee
	event.CouponCode = "NOSUCHCODE"

	// The coupon lookup fails mid-transaction; nothing may survive.
	err := env.svc.ProcessActivation(ctx, event)
	require.Error(t, err)

	_, err = env.allowance.GetActive(ctx, user)
	assert.ErrorIs(t, err, allowancedomain.ErrNoActiveAllowance)

	var events int64
	env.db.Table("webhook_events").Where("provider_event_id = ?", "evt_atomic").Count(&events)
	assert.EqualValues(t, 0, events)

	// A retry with the cause fixed goes through.
	env.seedCoupon(t, employee, "NOSUCHCODE")
	require.NoError(t, env.svc.ProcessActivation(ctx, event))

	active, err := env.allowance.GetActive(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 4, active.CreditsRemaining)
}

func TestProcessActivation_UnknownPlan(t *testing.T) {
	env := newBillingEnv(t)
	event := env.activation("evt_plan", env.node.Generate())
	event.PlanCode = "enterprise"

	err := env.svc.ProcessActivation(context.Background(), event)
	assert.ErrorIs(t, err, domain.ErrUnknownPlan)
}

func checkoutPayload(eventID string, userID snowflake.ID, planCode string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"id":      eventID,
		"type":    "checkout.session.completed",
		"created": time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC).Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":              "cs_" + eventID,
				"amount_subtotal": 9900,
				"amount_total":    9900,
				"currency":        "usd",
				"metadata": map[string]string{
					"user_id":   userID.String(),
					"plan_code": planCode,
				},
			},
		},
	})
	return payload
}

func TestIngest_VerifiesAndActivates(t *testing.T) {
	env := newBillingEnv(t)
	ctx := context.Background()
	user := env.node.Generate()
	payload := checkoutPayload("evt_http", user, "starter")

	headers := http.Header{}
	headers.Set("Stripe-Signature", stripe.SignatureHeader(payload, testSecret, env.clk.Now()))

	require.NoError(t, env.svc.Ingest(ctx, "stripe", payload, headers))

	active, err := env.allowance.GetActive(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "starter", active.PlanCode)
	assert.Equal(t, 1, active.CreditsRemaining)
}

func TestIngest_RejectsBadSignature(t *testing.T) {
	env := newBillingEnv(t)
	payload := checkoutPayload("evt_sig", env.node.Generate(), "starter")

	headers := http.Header{}
	headers.Set("Stripe-Signature", stripe.SignatureHeader(payload, "whsec_wrong", env.clk.Now()))

	err := env.svc.Ingest(context.Background(), "stripe", payload, headers)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	headers.Del("Stripe-Signature")
	err = env.svc.Ingest(context.Background(), "stripe", payload, headers)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestIngest_IgnoresUnrelatedEvents(t *testing.T) {
	env := newBillingEnv(t)
	payload := []byte(`{"id":"evt_other","type":"invoice.paid","data":{"object":{}}}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", stripe.SignatureHeader(payload, testSecret, env.clk.Now()))

	err := env.svc.Ingest(context.Background(), "stripe", payload, headers)
	assert.ErrorIs(t, err, domain.ErrEventIgnored)
}

func TestIngest_UnknownProvider(t *testing.T) {
	env := newBillingEnv(t)
	err := env.svc.Ingest(context.Background(), "braintree", []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestPurgeProcessed_RespectsRetention(t *testing.T) {
	env := newBillingEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, env.svc.ProcessActivation(ctx,
			env.activation(fmt.Sprintf("evt_old_%d", i), env.node.Generate())))
	}

	// Inside the retention window nothing is purged.
	purged, err := env.svc.PurgeProcessed(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, purged)

	env.clk.Advance(91 * 24 * time.Hour)
	purged, err = env.svc.PurgeProcessed(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, purged)
}

func TestProcessActivation_ConcurrentDeliveriesActivateOnce(t *testing.T) {
	env := newBillingEnv(t)
	user := env.node.Generate()
	event := env.activation("evt_rush", user)

	const deliveries = 6
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- env.svc.ProcessActivation(context.Background(), event)
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, duplicates int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrEventAlreadyProcessed),
			errors.Is(err, domain.ErrTransientConflict):
			duplicates++
		default:
			t.Fatalf("unexpected activation error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, deliveries-1, duplicates)

	var grants int64
	env.db.Table("allowances").Where("user_id = ?", user).Count(&grants)
	assert.EqualValues(t, 1, grants)

	var events int64
	env.db.Table("webhook_events").
		Where("provider = ? AND provider_event_id = ? AND processed_at IS NOT NULL", "stripe", "evt_rush").
		Count(&events)
	assert.EqualValues(t, 1, events)
}

// phantomEventRepo simulates losing the insert race against a transaction
// that has not committed yet: the insert conflicts but no row is visible.
type phantomEventRepo struct{}

func (phantomEventRepo) InsertEvent(context.Context, *gorm.DB, *domain.WebhookEvent) (bool, error) {
	return false, nil
}

func (phantomEventRepo) FindEvent(context.Context, *gorm.DB, string, string) (*domain.WebhookEvent, error) {
	return nil, nil
}

func (phantomEventRepo) MarkProcessed(context.Context, *gorm.DB, string, string, time.Time) error {
	return nil
}

func (phantomEventRepo) PurgeProcessedBefore(context.Context, *gorm.DB, time.Time) (int64, error) {
	return 0, nil
}

func TestProcessActivation_UnresolvedConflictIsRetryable(t *testing.T) {
	env := newBillingEnv(t)
	plans, err := config.NewPlanCatalogHolder()
	require.NoError(t, err)

	svc := NewService(Params{
		DB:             env.db,
		Log:            zap.NewNop(),
		GenID:          env.node,
		Clock:          env.clk,
		Cfg:            config.Config{CommissionRate: 0.10},
		Plans:          plans,
		Repo:           phantomEventRepo{},
		Allowance:      env.allowance,
		CommissionRepo: commissionrepo.Provide(),
		CouponRepo:     couponrepo.Provide(),
	})

	err = svc.ProcessActivation(context.Background(), env.activation("evt_phantom", env.node.Generate()))
	require.ErrorIs(t, err, domain.ErrTransientConflict)
	assert.NotErrorIs(t, err, domain.ErrEventAlreadyProcessed)
}
