package gate

import "github.com/pitchside/gatekit/pkg/tier"

// State is the outcome class of a gate query.
type State string

const (
	// StateLoading means the initial entitlement load has not completed;
	// render a placeholder, not a paywall.
	StateLoading State = "loading"
	// StateAllowed means the tier satisfies the requirement outright.
	StateAllowed State = "allowed"
	// StateAllowedWithQuota means access came out of the free daily budget.
	StateAllowedWithQuota State = "allowed_with_quota"
	// StateDenied routes to a paywall or upsell presentation.
	StateDenied State = "denied"
)

// DenyReason tells the paywall what to pitch.
type DenyReason string

const (
	ReasonTierInsufficient DenyReason = "tier_insufficient"
	ReasonQuotaExhausted   DenyReason = "quota_exhausted"
)

// Decision is what a gated screen renders from. Denials are first-class
// outcomes here, not errors.
type Decision struct {
	State State
	// Remaining is the free-quota count left, set for StateAllowedWithQuota.
	Remaining int
	// Reason is set for StateDenied.
	Reason DenyReason
}

// Allowed reports whether the feature may render its children.
func (d Decision) Allowed() bool {
	return d.State == StateAllowed || d.State == StateAllowedWithQuota
}

// Requirement describes what a feature demands: a tier, optionally softened
// by a free daily quota. The two shapes replace branch-by-name gating logic
// with one value consumed by a single query path.
type Requirement struct {
	Tier      tier.Tier
	FeatureID string
	// DailyLimit > 0 marks the requirement as quota-limited.
	DailyLimit int
}

// TierOnly requires a tier with no free-quota fallback.
func TierOnly(required tier.Tier) Requirement {
	return Requirement{Tier: required}
}

// QuotaLimited requires a tier but grants dailyLimit free uses per day of
// the named feature to users below it.
func QuotaLimited(required tier.Tier, featureID string, dailyLimit int) Requirement {
	return Requirement{Tier: required, FeatureID: featureID, DailyLimit: dailyLimit}
}

// QuotaLimited reports whether the requirement carries a free daily quota.
func (r Requirement) QuotaLimited() bool {
	return r.DailyLimit > 0 && r.FeatureID != ""
}
