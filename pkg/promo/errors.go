package promo

import "errors"

var (
	// ErrCodeNotFound indicates the code is not in the catalog.
	ErrCodeNotFound = errors.New("promo: code not found")

	// ErrCodeExpired indicates the code is past its expiry instant.
	ErrCodeExpired = errors.New("promo: code expired")

	// ErrCodeExhausted indicates the code's global use cap is spent.
	ErrCodeExhausted = errors.New("promo: code exhausted globally")

	// ErrCodeAlreadyRedeemed indicates this user already redeemed the code.
	// A (code, user) pair redeems at most once so one user cannot drain a
	// shared-cap code alone.
	ErrCodeAlreadyRedeemed = errors.New("promo: code already redeemed by user")

	// ErrRedemptionFailed indicates a redemption could not be completed and
	// any partial writes were rolled back. Retryable.
	ErrRedemptionFailed = errors.New("promo: redemption failed")

	// ErrUnknownDiscountType indicates a catalog entry with an
	// unrecognized discount type.
	ErrUnknownDiscountType = errors.New("promo: unknown discount type")

	// ErrFailedToLoadCatalog indicates no catalog could be loaded from the
	// source or the persisted snapshot.
	ErrFailedToLoadCatalog = errors.New("promo: failed to load catalog")

	// ErrRefreshFailed indicates a remote catalog refresh did not complete.
	// Never surfaced to users; validation degrades to the cached catalog.
	ErrRefreshFailed = errors.New("promo: catalog refresh failed")
)
