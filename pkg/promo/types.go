package promo

import (
	"strings"
	"time"

	"github.com/pitchside/gatekit/pkg/tier"
)

// DiscountType classifies what a promo code grants on redemption.
type DiscountType string

const (
	// DiscountPercentage records a percentage discount for a purchase flow.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFlatAmount records a flat discount for a purchase flow.
	DiscountFlatAmount DiscountType = "flat_amount"
	// DiscountTrialDays upgrades the entitlement to premium for N days.
	DiscountTrialDays DiscountType = "trial_days"
)

// Unlimited indicates a code with no global use cap.
const Unlimited = -1

// Code is a catalog entry. The catalog is owned by a remote source of truth
// and cached read-only on device; only use counts gain a local overlay.
type Code struct {
	Code          string       `json:"code" yaml:"code"`
	DiscountType  DiscountType `json:"discount_type" yaml:"discount_type"`
	DiscountValue float64      `json:"discount_value" yaml:"discount_value"`
	// MaxUses caps global redemptions; Unlimited (-1) disables the cap.
	MaxUses   int        `json:"max_uses" yaml:"max_uses"`
	UsesCount int        `json:"uses_count" yaml:"uses_count"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// wireCode mirrors Code for catalog decoding. A catalog entry that omits
// max_uses is uncapped, so absence maps to Unlimited rather than zero.
type wireCode struct {
	Code          string       `json:"code" yaml:"code"`
	DiscountType  DiscountType `json:"discount_type" yaml:"discount_type"`
	DiscountValue float64      `json:"discount_value" yaml:"discount_value"`
	MaxUses       *int         `json:"max_uses" yaml:"max_uses"`
	UsesCount     int          `json:"uses_count" yaml:"uses_count"`
	ExpiresAt     *time.Time   `json:"expires_at" yaml:"expires_at"`
}

func (w wireCode) toCode() Code {
	maxUses := Unlimited
	if w.MaxUses != nil {
		maxUses = *w.MaxUses
	}
	return Code{
		Code:          w.Code,
		DiscountType:  w.DiscountType,
		DiscountValue: w.DiscountValue,
		MaxUses:       maxUses,
		UsesCount:     w.UsesCount,
		ExpiresAt:     w.ExpiresAt,
	}
}

// IsExpired reports whether the code accepts no new redemptions at now.
func (c Code) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// IsExhausted reports whether uses redemptions spend the global cap.
func (c Code) IsExhausted(uses int) bool {
	return c.MaxUses != Unlimited && uses >= c.MaxUses
}

// EffectKind distinguishes what a successful redemption changed.
type EffectKind string

const (
	// EffectTierUpgrade means the entitlement tier was upgraded.
	EffectTierUpgrade EffectKind = "tier_upgrade"
	// EffectDiscount means discount metadata was recorded for purchase.
	EffectDiscount EffectKind = "discount"
)

// Effect describes what a successful redemption did.
type Effect struct {
	Code      string         `json:"code"`
	Kind      EffectKind     `json:"kind"`
	TrialDays int            `json:"trial_days,omitempty"`
	Discount  *tier.Discount `json:"discount,omitempty"`
}

// Canonical normalizes user-entered codes: case-insensitive, padding ignored.
func Canonical(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
