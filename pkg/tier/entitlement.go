package tier

import "time"

// DiscountType classifies a pending purchase discount.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlatAmount DiscountType = "flat_amount"
)

// Discount is purchase-flow metadata recorded by a promo redemption.
// The gating engine never processes payment; it only carries this forward.
type Discount struct {
	Code  string       `json:"code"`
	Type  DiscountType `json:"type"`
	Value float64      `json:"value"`
	// AppliedAt records when the discount was granted.
	AppliedAt time.Time `json:"applied_at"`
}

// Entitlement is what a user is currently allowed to access: a tier plus its
// optional expiry, and any discount waiting for a purchase flow to consume.
type Entitlement struct {
	Tier Tier `json:"tier"`
	// ExpiresAt is nil for entitlements that do not lapse (free, paid-up).
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	PendingDiscount *Discount  `json:"pending_discount,omitempty"`
}

// DefaultEntitlement is the record created on first launch.
func DefaultEntitlement() Entitlement {
	return Entitlement{Tier: Free}
}

// IsExpired reports whether the stored tier has lapsed at now.
func (e Entitlement) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Effective returns the tier queries must honor at now. Expiry downgrades
// lazily: the stored tier stays in place and is overridden at read time,
// so no background job is needed.
func (e Entitlement) Effective(now time.Time) Tier {
	if !e.Tier.Valid() || e.IsExpired(now) {
		return Free
	}
	return e.Tier
}
