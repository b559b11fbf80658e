package gate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/gatekit/pkg/clock"
	"github.com/pitchside/gatekit/pkg/entitlement"
	"github.com/pitchside/gatekit/pkg/environment"
	"github.com/pitchside/gatekit/pkg/gate"
	"github.com/pitchside/gatekit/pkg/kvstore"
	"github.com/pitchside/gatekit/pkg/quota"
	"github.com/pitchside/gatekit/pkg/tier"
)

type fixture struct {
	gate  *gate.Gate
	ent   *entitlement.Service
	clock *clock.Fixed
	ctx   context.Context
}

func setupGate(t *testing.T, opts ...gate.Option) fixture {
	t.Helper()

	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	clk := &clock.Fixed{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	ent := entitlement.NewService(store, clk)
	tracker := quota.NewTracker(store, clk)

	return fixture{
		gate:  gate.New(ent, tracker, opts...),
		ent:   ent,
		clock: clk,
		ctx:   ctx,
	}
}

func (f fixture) load(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ent.Load(f.ctx))
}

func TestGate_LoadingBeforeInitialLoad(t *testing.T) {
	t.Parallel()

	f := setupGate(t)

	decision := f.gate.Query(f.ctx, gate.TierOnly(tier.Premium))
	assert.Equal(t, gate.StateLoading, decision.State)
	assert.False(t, decision.Allowed())

	decision = f.gate.Use(f.ctx, gate.QuotaLimited(tier.Premium, "daily_picks", 3))
	assert.Equal(t, gate.StateLoading, decision.State)
}

func TestGate_TierOnly(t *testing.T) {
	t.Parallel()

	f := setupGate(t)
	f.load(t)

	// Free user against a premium-only feature: straight denial.
	decision := f.gate.Query(f.ctx, gate.TierOnly(tier.Premium))
	assert.Equal(t, gate.StateDenied, decision.State)
	assert.Equal(t, gate.ReasonTierInsufficient, decision.Reason)

	require.NoError(t, f.ent.ApplyTierChange(f.ctx, tier.Premium, nil))
	decision = f.gate.Query(f.ctx, gate.TierOnly(tier.Premium))
	assert.Equal(t, gate.StateAllowed, decision.State)
	assert.True(t, decision.Allowed())

	// Premium does not reach exclusive.
	decision = f.gate.Query(f.ctx, gate.TierOnly(tier.Exclusive))
	assert.Equal(t, gate.StateDenied, decision.State)
}

func TestGate_QuotaScenario_DailyPicks(t *testing.T) {
	t.Parallel()

	f := setupGate(t)
	f.load(t)

	req := gate.QuotaLimited(tier.Premium, "daily_picks", 3)

	// Free user: three free uses reporting 2, 1, 0 remaining, then denial.
	for want := 2; want >= 0; want-- {
		decision := f.gate.Use(f.ctx, req)
		assert.Equal(t, gate.StateAllowedWithQuota, decision.State)
		assert.Equal(t, want, decision.Remaining)
	}

	decision := f.gate.Use(f.ctx, req)
	assert.Equal(t, gate.StateDenied, decision.State)
	assert.Equal(t, gate.ReasonQuotaExhausted, decision.Reason)

	// Next day the budget is back.
	f.clock.AdvanceDays(1)
	decision = f.gate.Use(f.ctx, req)
	assert.Equal(t, gate.StateAllowedWithQuota, decision.State)
	assert.Equal(t, 2, decision.Remaining)
}

func TestGate_QueryDoesNotConsume(t *testing.T) {
	t.Parallel()

	f := setupGate(t)
	f.load(t)

	req := gate.QuotaLimited(tier.Premium, "daily_picks", 3)

	for range 10 {
		decision := f.gate.Query(f.ctx, req)
		assert.Equal(t, gate.StateAllowedWithQuota, decision.State)
		assert.Equal(t, 3, decision.Remaining)
	}
}

func TestGate_SufficientTierSkipsQuota(t *testing.T) {
	t.Parallel()

	f := setupGate(t)
	f.load(t)

	require.NoError(t, f.ent.ApplyTierChange(f.ctx, tier.Premium, nil))
	req := gate.QuotaLimited(tier.Premium, "daily_picks", 3)

	// Premium users never draw down the free budget.
	for range 10 {
		decision := f.gate.Use(f.ctx, req)
		assert.Equal(t, gate.StateAllowed, decision.State)
	}

	decision := f.gate.Query(f.ctx, req)
	assert.Equal(t, gate.StateAllowed, decision.State)
}

func TestGate_ExpiredTierFallsBackToQuota(t *testing.T) {
	t.Parallel()

	f := setupGate(t)
	f.load(t)

	expiry := f.clock.Now().Add(24 * time.Hour)
	require.NoError(t, f.ent.ApplyTierChange(f.ctx, tier.Premium, &expiry))

	req := gate.QuotaLimited(tier.Premium, "daily_picks", 3)
	assert.Equal(t, gate.StateAllowed, f.gate.Use(f.ctx, req).State)

	// Two days later the entitlement lapsed: the same query re-derives
	// a quota decision from current state.
	f.clock.AdvanceDays(2)
	decision := f.gate.Use(f.ctx, req)
	assert.Equal(t, gate.StateAllowedWithQuota, decision.State)
	assert.Equal(t, 2, decision.Remaining)
}

func TestGate_TestAccessOverride(t *testing.T) {
	t.Parallel()

	t.Run("development build", func(t *testing.T) {
		t.Parallel()

		f := setupGate(t, gate.WithEnvironment(environment.Development))
		f.load(t)

		f.gate.GrantTestAccess(true)

		decision := f.gate.Query(f.ctx, gate.TierOnly(tier.Exclusive))
		assert.Equal(t, gate.StateAllowed, decision.State)

		// The override never consumes quota or touches persisted state.
		req := gate.QuotaLimited(tier.Premium, "daily_picks", 3)
		for range 5 {
			assert.Equal(t, gate.StateAllowed, f.gate.Use(f.ctx, req).State)
		}

		f.gate.GrantTestAccess(false)
		decision = f.gate.Query(f.ctx, req)
		assert.Equal(t, gate.StateAllowedWithQuota, decision.State)
		assert.Equal(t, 3, decision.Remaining)
	})

	t.Run("ignored in production", func(t *testing.T) {
		t.Parallel()

		f := setupGate(t)
		f.load(t)

		f.gate.GrantTestAccess(true)

		decision := f.gate.Query(f.ctx, gate.TierOnly(tier.Exclusive))
		assert.Equal(t, gate.StateDenied, decision.State)
	})
}

func TestRequirement_QuotaLimited(t *testing.T) {
	t.Parallel()

	assert.False(t, gate.TierOnly(tier.Premium).QuotaLimited())
	assert.True(t, gate.QuotaLimited(tier.Premium, "daily_picks", 3).QuotaLimited())
	assert.False(t, gate.Requirement{Tier: tier.Premium, DailyLimit: 3}.QuotaLimited(),
		"a quota requirement needs a feature id")
}
