package logger

import "log/slog"

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// FeatureID records the gated feature identifier under the key "feature_id".
func FeatureID(id string) slog.Attr {
	return slog.String("feature_id", id)
}

// PromoCode records a canonicalized promo code under the key "promo_code".
func PromoCode(code string) slog.Attr {
	return slog.String("promo_code", code)
}

// Tier records a subscription tier under the key "tier".
func Tier(t any) slog.Attr {
	return slog.Any("tier", t)
}

// Remaining records a remaining quota count under the key "remaining".
func Remaining(n int) slog.Attr {
	return slog.Int("remaining", n)
}
