package entitlement

import "errors"

var (
	// ErrNotLoaded indicates Load has not completed yet; callers should
	// surface a loading state rather than a default decision.
	ErrNotLoaded = errors.New("entitlement: state not loaded")

	// ErrFailedToPersist indicates a mutation could not be written through.
	ErrFailedToPersist = errors.New("entitlement: failed to persist record")

	// ErrInvalidTrialDays indicates a non-positive trial grant.
	ErrInvalidTrialDays = errors.New("entitlement: trial days must be positive")
)
