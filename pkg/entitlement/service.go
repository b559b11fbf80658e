package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pitchside/gatekit/pkg/clock"
	"github.com/pitchside/gatekit/pkg/kvstore"
	"github.com/pitchside/gatekit/pkg/logger"
	"github.com/pitchside/gatekit/pkg/tier"
)

// storageKey holds the single entitlement record. The engine runs per user
// per device, so the record needs no user discriminator in its key.
const storageKey = "entitlement:record"

// Service owns the entitlement record: the current tier, its expiry, and any
// pending purchase discount. It loads once at startup and answers subsequent
// reads synchronously from an in-memory cache; every mutation persists first
// and updates the cache before returning.
type Service struct {
	store kvstore.Store
	clock clock.Clock
	log   *slog.Logger

	mu     sync.RWMutex
	record tier.Entitlement
	loaded bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates an entitlement Service.
// Panics on nil store or clock to fail fast during initialization.
func NewService(store kvstore.Store, clk clock.Clock, opts ...Option) *Service {
	if store == nil {
		panic("entitlement: kvstore.Store is required")
	}
	if clk == nil {
		panic("entitlement: clock.Clock is required")
	}

	s := &Service{
		store: store,
		clock: clk,
		log:   slog.Default().With(logger.Component("entitlement")),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Load reads the persisted record into the cache. Until Load returns, Get
// reports not-loaded and the gate surfaces a loading state.
//
// A missing record means first launch: the free default is written through.
// A storage failure degrades to the free default in memory only, so reads
// fail open instead of blocking the user on broken storage.
func (s *Service) Load(ctx context.Context) error {
	raw, err := s.store.Get(ctx, storageKey)

	switch {
	case err == nil:
		var record tier.Entitlement
		if jsonErr := json.Unmarshal(raw, &record); jsonErr != nil {
			s.log.WarnContext(ctx, "corrupt entitlement record, resetting to free",
				logger.Error(jsonErr))
			record = tier.DefaultEntitlement()
		}
		s.setLoaded(record)
		return nil

	case errors.Is(err, kvstore.ErrKeyNotFound):
		record := tier.DefaultEntitlement()
		s.setLoaded(record)
		// First launch: persist the default so later loads are a plain read.
		if saveErr := s.persist(ctx, record); saveErr != nil {
			s.log.WarnContext(ctx, "failed to persist initial entitlement record",
				logger.Error(saveErr))
		}
		return nil

	default:
		s.setLoaded(tier.DefaultEntitlement())
		s.log.ErrorContext(ctx, "entitlement load failed, degrading to free defaults",
			logger.Error(err))
		return errors.Join(kvstore.ErrStorageUnavailable, err)
	}
}

// Get returns the cached record and whether Load has completed.
func (s *Service) Get() (tier.Entitlement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record, s.loaded
}

// EffectiveTier returns the tier queries must honor right now,
// applying lazy expiry downgrade. Reports free until loaded.
func (s *Service) EffectiveTier() tier.Tier {
	record, loaded := s.Get()
	if !loaded {
		return tier.Free
	}
	return record.Effective(s.clock.Now())
}

// TierLabel returns the display name of the effective tier, e.g. "Premium".
func (s *Service) TierLabel() string {
	return s.EffectiveTier().Label()
}

// ApplyTierChange sets a new tier and expiry, persisting before the cache
// update so a crash never leaves the cache ahead of storage.
func (s *Service) ApplyTierChange(ctx context.Context, newTier tier.Tier, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.record
	record.Tier = newTier
	record.ExpiresAt = expiresAt

	if err := s.persist(ctx, record); err != nil {
		return err
	}

	s.record = record
	s.loaded = true
	s.log.InfoContext(ctx, "tier changed",
		slog.String("tier", string(newTier)),
		slog.Any("expires_at", expiresAt))
	return nil
}

// GrantTrial upgrades to premium for the given number of days. If an existing
// entitlement already extends further, the later expiry wins: a trial grant
// never shortens what the user has.
func (s *Service) GrantTrial(ctx context.Context, days int) error {
	if days <= 0 {
		return ErrInvalidTrialDays
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	trialEnd := now.AddDate(0, 0, days)

	record := s.record
	expiry := &trialEnd
	if tier.Meets(record.Effective(now), tier.Premium) {
		switch {
		case record.ExpiresAt == nil:
			// A never-lapsing paid entitlement already outlasts any trial.
			expiry = nil
		case record.ExpiresAt.After(trialEnd):
			expiry = record.ExpiresAt
		}
	} else {
		// Never downgrade an active higher tier; only lift free to premium.
		record.Tier = tier.Premium
	}
	record.ExpiresAt = expiry

	if err := s.persist(ctx, record); err != nil {
		return err
	}

	s.record = record
	s.loaded = true
	s.log.InfoContext(ctx, "trial granted",
		slog.Int("days", days),
		slog.Any("expires_at", expiry))
	return nil
}

// SetPendingDiscount records discount metadata for a purchase flow to read.
func (s *Service) SetPendingDiscount(ctx context.Context, d tier.Discount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.record
	record.PendingDiscount = &d

	if err := s.persist(ctx, record); err != nil {
		return err
	}

	s.record = record
	s.loaded = true
	return nil
}

// Restore replaces the whole record. Used by promo rollback paths.
func (s *Service) Restore(ctx context.Context, record tier.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(ctx, record); err != nil {
		return err
	}

	s.record = record
	s.loaded = true
	return nil
}

// Reset clears the record back to the free default on logout.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Remove(ctx, storageKey); err != nil {
		return errors.Join(ErrFailedToPersist, err)
	}

	s.record = tier.DefaultEntitlement()
	s.loaded = true
	s.log.InfoContext(ctx, "entitlement reset")
	return nil
}

func (s *Service) setLoaded(record tier.Entitlement) {
	s.mu.Lock()
	s.record = record
	s.loaded = true
	s.mu.Unlock()
}

// persist writes the record through to storage.
func (s *Service) persist(ctx context.Context, record tier.Entitlement) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Join(ErrFailedToPersist, err)
	}
	if err := s.store.Set(ctx, storageKey, raw); err != nil {
		return errors.Join(ErrFailedToPersist, err)
	}
	return nil
}
