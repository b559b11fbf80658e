package promo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pitchside/gatekit/pkg/clock"
	"github.com/pitchside/gatekit/pkg/kvstore"
	"github.com/pitchside/gatekit/pkg/logger"
	"github.com/pitchside/gatekit/pkg/tier"
)

// Storage keys. Use counts and redemptions live per-code so independent
// codes never contend on a shared record.
const (
	snapshotKey   = "promo:catalog"
	usesKeyPrefix = "promo:uses:"
	redemptionFmt = "promo:redeemed:%s:%s"
)

// EntitlementSink receives the effect of a successful redemption.
// *entitlement.Service satisfies it.
type EntitlementSink interface {
	GrantTrial(ctx context.Context, days int) error
	SetPendingDiscount(ctx context.Context, d tier.Discount) error
}

// RedemptionRecord is the persisted join between a code and a user.
type RedemptionRecord struct {
	Code      string    `json:"code"`
	UserID    uuid.UUID `json:"user_id"`
	AppliedAt time.Time `json:"applied_at"`
	Effect    Effect    `json:"effect"`
}

// snapshot is the locally persisted catalog cache.
type snapshot struct {
	RefreshedAt time.Time       `json:"refreshed_at"`
	Codes       map[string]Code `json:"codes"`
}

// Registry validates and redeems promo codes against a cached catalog.
// Validation is cache-only and kicks a best-effort background refresh when
// the cache is stale; redemption is serialized and applies its three writes
// (use count, redemption record, entitlement effect) as a unit, rolling the
// use count back if a later step fails.
type Registry struct {
	store kvstore.Store
	clock clock.Clock
	ent   EntitlementSink
	log   *slog.Logger

	remote         Source
	staleAfter     time.Duration
	refreshTimeout time.Duration
	refreshing     atomic.Bool

	mu          sync.RWMutex
	catalog     map[string]Code
	refreshedAt time.Time

	// redeemMu serializes redemptions so concurrent attempts on the same
	// code observe each other's writes.
	redeemMu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithRemoteSource sets the optional remote catalog source used for
// background refreshes.
func WithRemoteSource(src Source) Option {
	return func(r *Registry) {
		r.remote = src
	}
}

// WithStaleAfter sets how old the cached catalog may grow before a
// validation kicks a background refresh.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

// WithRefreshTimeout bounds a background refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.refreshTimeout = d
		}
	}
}

// NewRegistry creates a Registry, loading the catalog from src. If src fails
// the persisted snapshot is used, so a device that cached a catalog once
// keeps validating codes offline.
// Panics on nil required dependencies to fail fast during initialization.
func NewRegistry(ctx context.Context, src Source, store kvstore.Store, ent EntitlementSink, clk clock.Clock, opts ...Option) (*Registry, error) {
	if src == nil {
		panic("promo: Source is required")
	}
	if store == nil {
		panic("promo: kvstore.Store is required")
	}
	if ent == nil {
		panic("promo: EntitlementSink is required")
	}
	if clk == nil {
		panic("promo: clock.Clock is required")
	}

	r := &Registry{
		store:          store,
		clock:          clk,
		ent:            ent,
		log:            slog.Default().With(logger.Component("promo")),
		staleAfter:     time.Hour,
		refreshTimeout: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(r)
	}

	catalog, err := src.Load(ctx)
	if err != nil {
		snap, snapErr := r.loadSnapshot(ctx)
		if snapErr != nil {
			return nil, errors.Join(ErrFailedToLoadCatalog, err, snapErr)
		}
		r.log.WarnContext(ctx, "catalog source failed, using persisted snapshot",
			logger.Error(err),
			slog.Time("refreshed_at", snap.RefreshedAt))
		r.catalog = snap.Codes
		r.refreshedAt = snap.RefreshedAt
		return r, nil
	}

	r.catalog = catalog
	r.refreshedAt = clk.Now()
	return r, nil
}

// Validate checks a code against the cached catalog without mutating state.
// The returned Code carries the effective use count: the larger of the
// catalog's count and redemptions recorded locally.
func (r *Registry) Validate(ctx context.Context, rawCode string) (Code, error) {
	code := Canonical(rawCode)

	r.mu.RLock()
	entry, exists := r.catalog[code]
	r.mu.RUnlock()

	r.maybeRefreshAsync()

	if !exists {
		return Code{}, ErrCodeNotFound
	}

	if entry.IsExpired(r.clock.Now()) {
		return Code{}, ErrCodeExpired
	}

	entry.UsesCount = r.effectiveUses(ctx, entry)
	if entry.IsExhausted(entry.UsesCount) {
		return Code{}, ErrCodeExhausted
	}

	return entry, nil
}

// Redeem applies a code for a user: increments the use count, records the
// (code, user) redemption, and applies the effect to the entitlement. The
// three writes land as a unit; if a later step fails, earlier writes are
// rolled back so a use is never consumed without a granted benefit.
func (r *Registry) Redeem(ctx context.Context, rawCode string, userID uuid.UUID) (Effect, error) {
	r.redeemMu.Lock()
	defer r.redeemMu.Unlock()

	code := Canonical(rawCode)
	now := r.clock.Now()

	r.mu.RLock()
	entry, exists := r.catalog[code]
	r.mu.RUnlock()

	if !exists {
		return Effect{}, ErrCodeNotFound
	}
	if entry.IsExpired(now) {
		return Effect{}, ErrCodeExpired
	}

	effect, err := buildEffect(entry, now)
	if err != nil {
		return Effect{}, err
	}

	redemptionKey := fmt.Sprintf(redemptionFmt, code, userID)
	if _, err := r.store.Get(ctx, redemptionKey); err == nil {
		return Effect{}, ErrCodeAlreadyRedeemed
	} else if !errors.Is(err, kvstore.ErrKeyNotFound) {
		// Without the redemption history we cannot prove single use,
		// so refuse rather than risk a duplicate redemption.
		return Effect{}, errors.Join(ErrRedemptionFailed, err)
	}

	uses := r.effectiveUses(ctx, entry)
	if entry.IsExhausted(uses) {
		return Effect{}, ErrCodeExhausted
	}

	// (a) burn one global use.
	if err := r.writeUses(ctx, code, uses+1); err != nil {
		return Effect{}, errors.Join(ErrRedemptionFailed, err)
	}

	// (b) record the (code, user) redemption.
	record := RedemptionRecord{Code: code, UserID: userID, AppliedAt: now, Effect: effect}
	raw, err := json.Marshal(record)
	if err == nil {
		err = r.store.Set(ctx, redemptionKey, raw)
	}
	if err != nil {
		r.rollbackUses(ctx, code, uses)
		return Effect{}, errors.Join(ErrRedemptionFailed, err)
	}

	// (c) apply the effect to the entitlement.
	if err := r.applyEffect(ctx, effect); err != nil {
		if removeErr := r.store.Remove(ctx, redemptionKey); removeErr != nil {
			r.log.ErrorContext(ctx, "failed to roll back redemption record",
				logger.PromoCode(code),
				logger.Error(removeErr))
		}
		r.rollbackUses(ctx, code, uses)
		return Effect{}, errors.Join(ErrRedemptionFailed, err)
	}

	r.log.InfoContext(ctx, "promo code redeemed",
		logger.PromoCode(code),
		logger.UserID(userID),
		logger.Event(string(effect.Kind)))

	return effect, nil
}

// Refresh replaces the cached catalog from the remote source (falling back
// to nothing if none is configured) and persists the snapshot. The local
// use-count overlay lives in separate keys and survives the swap.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.remote == nil {
		return nil
	}

	catalog, err := r.remote.Load(ctx)
	if err != nil {
		return errors.Join(ErrRefreshFailed, err)
	}

	now := r.clock.Now()

	r.mu.Lock()
	r.catalog = catalog
	r.refreshedAt = now
	r.mu.Unlock()

	if err := r.persistSnapshot(ctx, snapshot{RefreshedAt: now, Codes: catalog}); err != nil {
		r.log.WarnContext(ctx, "failed to persist catalog snapshot", logger.Error(err))
	}

	r.log.DebugContext(ctx, "promo catalog refreshed", slog.Int("codes", len(catalog)))
	return nil
}

// RefreshedAt reports when the cached catalog was last replaced.
func (r *Registry) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}

// Catalog returns a copy of the cached catalog.
func (r *Registry) Catalog() map[string]Code {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.catalog)
}

// maybeRefreshAsync kicks a single background refresh when the cache is
// stale. Failures are logged, never surfaced: a timed-out refresh must not
// read as "code invalid".
func (r *Registry) maybeRefreshAsync() {
	if r.remote == nil {
		return
	}

	r.mu.RLock()
	stale := r.clock.Now().Sub(r.refreshedAt) >= r.staleAfter
	r.mu.RUnlock()

	if !stale || !r.refreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer r.refreshing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), r.refreshTimeout)
		defer cancel()

		if err := r.Refresh(ctx); err != nil {
			r.log.WarnContext(ctx, "background catalog refresh failed", logger.Error(err))
		}
	}()
}

// effectiveUses merges the catalog's use count with redemptions recorded
// locally since the catalog was fetched.
func (r *Registry) effectiveUses(ctx context.Context, entry Code) int {
	raw, err := r.store.Get(ctx, usesKeyPrefix+entry.Code)
	if err != nil {
		return entry.UsesCount
	}

	var local int
	if err := json.Unmarshal(raw, &local); err != nil {
		return entry.UsesCount
	}

	return max(entry.UsesCount, local)
}

func (r *Registry) writeUses(ctx context.Context, code string, uses int) error {
	raw, err := json.Marshal(uses)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, usesKeyPrefix+code, raw)
}

// rollbackUses restores the pre-redemption use count after a failed step.
func (r *Registry) rollbackUses(ctx context.Context, code string, uses int) {
	if err := r.writeUses(ctx, code, uses); err != nil {
		r.log.ErrorContext(ctx, "failed to roll back use count",
			logger.PromoCode(code),
			logger.Error(err))
	}
}

func (r *Registry) applyEffect(ctx context.Context, effect Effect) error {
	switch effect.Kind {
	case EffectTierUpgrade:
		return r.ent.GrantTrial(ctx, effect.TrialDays)
	case EffectDiscount:
		return r.ent.SetPendingDiscount(ctx, *effect.Discount)
	default:
		return ErrUnknownDiscountType
	}
}

func buildEffect(entry Code, now time.Time) (Effect, error) {
	switch entry.DiscountType {
	case DiscountTrialDays:
		return Effect{
			Code:      entry.Code,
			Kind:      EffectTierUpgrade,
			TrialDays: int(entry.DiscountValue),
		}, nil
	case DiscountPercentage, DiscountFlatAmount:
		discountType := tier.DiscountPercentage
		if entry.DiscountType == DiscountFlatAmount {
			discountType = tier.DiscountFlatAmount
		}
		return Effect{
			Code: entry.Code,
			Kind: EffectDiscount,
			Discount: &tier.Discount{
				Code:      entry.Code,
				Type:      discountType,
				Value:     entry.DiscountValue,
				AppliedAt: now,
			},
		}, nil
	default:
		return Effect{}, errors.Join(ErrUnknownDiscountType,
			fmt.Errorf("discount type %q", entry.DiscountType))
	}
}

func (r *Registry) loadSnapshot(ctx context.Context) (snapshot, error) {
	raw, err := r.store.Get(ctx, snapshotKey)
	if err != nil {
		return snapshot{}, err
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func (r *Registry) persistSnapshot(ctx context.Context, snap snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, snapshotKey, raw)
}
