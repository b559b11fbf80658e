package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/pitchside/gatekit/pkg/entitlement"
	"github.com/pitchside/gatekit/pkg/environment"
	"github.com/pitchside/gatekit/pkg/logger"
	"github.com/pitchside/gatekit/pkg/quota"
	"github.com/pitchside/gatekit/pkg/tier"
)

// Gate is the single decision point gated screens consult. Every query
// re-derives its answer from the entitlement state and quota counters;
// nothing is cached here, so a decision can never go stale.
type Gate struct {
	ent   *entitlement.Service
	quota *quota.Tracker
	env   environment.Environment
	log   *slog.Logger

	// testAccess forces Allowed in non-production builds without touching
	// persisted state.
	testAccess atomic.Bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) {
		if log != nil {
			g.log = log
		}
	}
}

// WithEnvironment sets the build environment. Defaults to production,
// which keeps the test override inert.
func WithEnvironment(env environment.Environment) Option {
	return func(g *Gate) {
		g.env = env
	}
}

// New creates a Gate over the entitlement state and quota tracker.
// Panics on nil dependencies to fail fast during initialization.
func New(ent *entitlement.Service, tracker *quota.Tracker, opts ...Option) *Gate {
	if ent == nil {
		panic("gate: entitlement.Service is required")
	}
	if tracker == nil {
		panic("gate: quota.Tracker is required")
	}

	g := &Gate{
		ent:   ent,
		quota: tracker,
		env:   environment.Production,
		log:   slog.Default().With(logger.Component("gate")),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// GrantTestAccess toggles the development override. Ignored in production.
func (g *Gate) GrantTestAccess(enabled bool) {
	if g.env.IsProduction() {
		g.log.Warn("test access override ignored in production")
		return
	}
	g.testAccess.Store(enabled)
}

// Query derives the decision for a requirement without consuming quota.
// Renders call this on every pass; the answer tracks the current
// entitlement and counters.
func (g *Gate) Query(ctx context.Context, req Requirement) Decision {
	if _, loaded := g.ent.Get(); !loaded {
		return Decision{State: StateLoading}
	}

	if g.testAccess.Load() {
		return Decision{State: StateAllowed}
	}

	if tier.Meets(g.ent.EffectiveTier(), req.Tier) {
		return Decision{State: StateAllowed}
	}

	if !req.QuotaLimited() {
		return Decision{State: StateDenied, Reason: ReasonTierInsufficient}
	}

	remaining := g.quota.Remaining(ctx, req.FeatureID, req.DailyLimit)
	if remaining > 0 {
		return Decision{State: StateAllowedWithQuota, Remaining: remaining}
	}

	return Decision{State: StateDenied, Reason: ReasonQuotaExhausted}
}

// Use derives the decision for an actual feature use, consuming one quota
// unit on the free-quota path. The returned Remaining reflects the count
// after this consumption.
func (g *Gate) Use(ctx context.Context, req Requirement) Decision {
	if _, loaded := g.ent.Get(); !loaded {
		return Decision{State: StateLoading}
	}

	if g.testAccess.Load() {
		return Decision{State: StateAllowed}
	}

	if tier.Meets(g.ent.EffectiveTier(), req.Tier) {
		return Decision{State: StateAllowed}
	}

	if !req.QuotaLimited() {
		return Decision{State: StateDenied, Reason: ReasonTierInsufficient}
	}

	if err := g.quota.TryConsume(ctx, req.FeatureID, req.DailyLimit); err != nil {
		if !errors.Is(err, quota.ErrQuotaExceeded) {
			g.log.WarnContext(ctx, "quota consume failed",
				logger.FeatureID(req.FeatureID),
				logger.Error(err))
		}
		return Decision{State: StateDenied, Reason: ReasonQuotaExhausted}
	}

	remaining := g.quota.Remaining(ctx, req.FeatureID, req.DailyLimit)
	g.log.DebugContext(ctx, "free quota use granted",
		logger.FeatureID(req.FeatureID),
		logger.Remaining(remaining))

	return Decision{State: StateAllowedWithQuota, Remaining: remaining}
}
