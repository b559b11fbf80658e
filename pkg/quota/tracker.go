package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitchside/gatekit/pkg/clock"
	"github.com/pitchside/gatekit/pkg/kvstore"
	"github.com/pitchside/gatekit/pkg/logger"
)

// record is the persisted per-feature, per-day usage counter.
type record struct {
	FeatureID string `json:"feature_id"`
	Day       string `json:"day"`
	UsedCount int    `json:"used_count"`
}

// Tracker counts free daily uses per feature. Reads fail open (storage
// trouble reports a full quota); consumes fail closed (a failed write
// refuses the use). "Today" is derived from the clock at call time, so
// counters silently reset at the local midnight with no reset job.
type Tracker struct {
	store kvstore.Store
	clock clock.Clock
	log   *slog.Logger

	// mu guards locks; each feature gets its own mutex so consumes for the
	// same feature serialize while independent features proceed in parallel.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// NewTracker creates a daily quota Tracker.
// Panics on nil store or clock to fail fast during initialization.
func NewTracker(store kvstore.Store, clk clock.Clock, opts ...Option) *Tracker {
	if store == nil {
		panic("quota: kvstore.Store is required")
	}
	if clk == nil {
		panic("quota: clock.Clock is required")
	}

	t := &Tracker{
		store: store,
		clock: clk,
		log:   slog.Default().With(logger.Component("quota")),
		locks: make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Used returns today's consumed count for a feature.
// Storage failures and corrupt records read as zero usage.
func (t *Tracker) Used(ctx context.Context, featureID string) int {
	used, _ := t.read(ctx, featureID, t.todayKey(featureID))
	return used
}

// Remaining returns how many free uses of a feature are left today.
// Read-only and always succeeds; on storage failure it assumes the full
// quota is available rather than blocking the user.
func (t *Tracker) Remaining(ctx context.Context, featureID string, limit int) int {
	if limit <= 0 {
		return 0
	}
	return max(0, limit-t.Used(ctx, featureID))
}

// TryConsume spends one free use of a feature if today's count is below
// limit. The read-increment-write sequence is serialized per feature, so a
// burst of simultaneous calls yields exactly limit successes. Returns nil
// when the use was consumed and persisted; ErrQuotaExceeded otherwise.
func (t *Tracker) TryConsume(ctx context.Context, featureID string, limit int) error {
	if limit <= 0 {
		return errors.Join(ErrQuotaExceeded, ErrInvalidLimit)
	}

	lock := t.featureLock(featureID)
	lock.Lock()
	defer lock.Unlock()

	now := t.clock.Now()
	day := clock.DayKey(now)
	key := storageKey(featureID, day)

	// Re-read under the lock: a queued call must observe the previous
	// call's increment, not stale state.
	used, readErr := t.read(ctx, featureID, key)
	if errors.Is(readErr, kvstore.ErrKeyNotFound) {
		readErr = nil
	}
	if used >= limit {
		return ErrQuotaExceeded
	}

	raw, err := json.Marshal(record{
		FeatureID: featureID,
		Day:       day,
		UsedCount: used + 1,
	})
	if err != nil {
		return errors.Join(ErrQuotaExceeded, err)
	}

	if err := t.store.Set(ctx, key, raw); err != nil {
		// Under-grant rather than over-grant: with both the read and the
		// write failing we cannot bound the count, so refuse the use.
		t.log.WarnContext(ctx, "quota write failed, refusing use",
			logger.FeatureID(featureID),
			logger.Error(errors.Join(readErr, err)))
		return errors.Join(ErrQuotaExceeded, kvstore.ErrStorageUnavailable, err)
	}

	t.log.DebugContext(ctx, "quota consumed",
		logger.FeatureID(featureID),
		logger.Remaining(limit-used-1))

	// Yesterday's record is unreachable from now on; drop it so per-feature
	// storage stays bounded without a cleanup job.
	t.pruneStale(ctx, featureID, now)

	return nil
}

// read returns today's used count for a feature, treating missing, corrupt,
// stale-day, and unreadable records as zero.
func (t *Tracker) read(ctx context.Context, featureID, key string) (int, error) {
	raw, err := t.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrKeyNotFound) {
			t.log.WarnContext(ctx, "quota read failed, assuming zero usage",
				logger.FeatureID(featureID),
				logger.Error(err))
		}
		return 0, err
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.log.WarnContext(ctx, "corrupt quota record, assuming zero usage",
			logger.FeatureID(featureID),
			logger.Error(err))
		return 0, nil
	}

	if rec.UsedCount < 0 {
		return 0, nil
	}
	return rec.UsedCount, nil
}

// pruneStale removes the previous day's record for a feature, best effort.
func (t *Tracker) pruneStale(ctx context.Context, featureID string, now time.Time) {
	yesterday := clock.DayKey(now.AddDate(0, 0, -1))
	if err := t.store.Remove(ctx, storageKey(featureID, yesterday)); err != nil {
		t.log.DebugContext(ctx, "stale quota record prune failed",
			logger.FeatureID(featureID),
			logger.Error(err))
	}
}

func (t *Tracker) todayKey(featureID string) string {
	return storageKey(featureID, clock.DayKey(t.clock.Now()))
}

func (t *Tracker) featureLock(featureID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, exists := t.locks[featureID]
	if !exists {
		lock = &sync.Mutex{}
		t.locks[featureID] = lock
	}
	return lock
}

func storageKey(featureID, day string) string {
	return fmt.Sprintf("quota:%s:%s", featureID, day)
}
