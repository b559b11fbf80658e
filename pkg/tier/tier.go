package tier

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is a named subscription level with a total order.
type Tier string

const (
	Free      Tier = "free"
	Premium   Tier = "premium"
	Exclusive Tier = "exclusive"
)

// ErrUnknownTier indicates a tier value outside the known set.
var ErrUnknownTier = errors.New("tier: unknown tier")

// ranks defines the total order free < premium < exclusive.
var ranks = map[Tier]int{
	Free:      0,
	Premium:   1,
	Exclusive: 2,
}

// Rank returns the position of t in the tier order.
// Unknown values rank below free so a corrupt stored tier never grants access.
func (t Tier) Rank() int {
	rank, ok := ranks[t]
	if !ok {
		return -1
	}
	return rank
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := ranks[t]
	return ok
}

// Label returns the display name for t, e.g. "Premium".
func (t Tier) Label() string {
	if !t.Valid() {
		return Free.Label()
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// Meets reports whether current satisfies a required tier.
func Meets(current, required Tier) bool {
	return current.Rank() >= required.Rank()
}

// Parse canonicalizes a stored or user-supplied tier string.
func Parse(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return Free, errors.Join(ErrUnknownTier, fmt.Errorf("tier %q", s))
	}
	return t, nil
}
