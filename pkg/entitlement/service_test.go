package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/gatekit/pkg/clock"
	"github.com/pitchside/gatekit/pkg/entitlement"
	"github.com/pitchside/gatekit/pkg/kvstore"
	"github.com/pitchside/gatekit/pkg/tier"
)

// failingStore wraps a Store and fails selected operations.
type failingStore struct {
	kvstore.Store
	failGet bool
	failSet bool
}

var errStorageDown = errors.New("storage down")

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet {
		return nil, errors.Join(kvstore.ErrStorageUnavailable, errStorageDown)
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errors.Join(kvstore.ErrStorageUnavailable, errStorageDown)
	}
	return f.Store.Set(ctx, key, value)
}

func setupService(t *testing.T) (*entitlement.Service, *kvstore.MemoryStore, *clock.Fixed) {
	t.Helper()

	store := kvstore.NewMemoryStore()
	clk := &clock.Fixed{Instant: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return entitlement.NewService(store, clk), store, clk
}

func TestService_LoadFirstLaunch(t *testing.T) {
	t.Parallel()

	svc, store, _ := setupService(t)
	ctx := context.Background()

	_, loaded := svc.Get()
	assert.False(t, loaded, "state must not read as loaded before Load")

	require.NoError(t, svc.Load(ctx))

	record, loaded := svc.Get()
	assert.True(t, loaded)
	assert.Equal(t, tier.Free, record.Tier)

	// First launch writes the default record through.
	assert.Equal(t, 1, store.Len())
}

func TestService_LoadExistingRecord(t *testing.T) {
	t.Parallel()

	svc, store, clk := setupService(t)
	ctx := context.Background()

	expiry := clk.Now().AddDate(0, 1, 0)
	require.NoError(t, svc.Load(ctx))
	require.NoError(t, svc.ApplyTierChange(ctx, tier.Premium, &expiry))

	// A fresh service over the same store sees the persisted record.
	reloaded := entitlement.NewService(store, clk)
	require.NoError(t, reloaded.Load(ctx))

	record, loaded := reloaded.Get()
	require.True(t, loaded)
	assert.Equal(t, tier.Premium, record.Tier)
	require.NotNil(t, record.ExpiresAt)
	assert.True(t, record.ExpiresAt.Equal(expiry))
}

func TestService_LoadCorruptRecord(t *testing.T) {
	t.Parallel()

	store := kvstore.NewMemoryStore()
	clk := &clock.Fixed{Instant: time.Now()}
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "entitlement:record", []byte("{not json")))

	svc := entitlement.NewService(store, clk)
	require.NoError(t, svc.Load(ctx))

	record, loaded := svc.Get()
	assert.True(t, loaded)
	assert.Equal(t, tier.Free, record.Tier)
}

func TestService_LoadStorageFailure_FailsOpen(t *testing.T) {
	t.Parallel()

	store := &failingStore{Store: kvstore.NewMemoryStore(), failGet: true}
	svc := entitlement.NewService(store, &clock.Fixed{Instant: time.Now()})

	err := svc.Load(context.Background())
	assert.ErrorIs(t, err, kvstore.ErrStorageUnavailable)

	// Reads degrade to free defaults instead of blocking the user.
	record, loaded := svc.Get()
	assert.True(t, loaded)
	assert.Equal(t, tier.Free, record.Tier)
}

func TestService_EffectiveTier_LazyDowngrade(t *testing.T) {
	t.Parallel()

	svc, _, clk := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Load(ctx))

	expiry := clk.Now().Add(48 * time.Hour)
	require.NoError(t, svc.ApplyTierChange(ctx, tier.Premium, &expiry))
	assert.Equal(t, tier.Premium, svc.EffectiveTier())
	assert.Equal(t, "Premium", svc.TierLabel())

	clk.AdvanceDays(3)
	assert.Equal(t, tier.Free, svc.EffectiveTier())
	assert.Equal(t, "Free", svc.TierLabel())

	// The stored record still carries premium; only reads downgrade.
	record, _ := svc.Get()
	assert.Equal(t, tier.Premium, record.Tier)
}

func TestService_GrantTrial(t *testing.T) {
	t.Parallel()

	t.Run("free user gets premium trial", func(t *testing.T) {
		t.Parallel()

		svc, _, clk := setupService(t)
		ctx := context.Background()
		require.NoError(t, svc.Load(ctx))

		require.NoError(t, svc.GrantTrial(ctx, 7))

		record, _ := svc.Get()
		assert.Equal(t, tier.Premium, record.Tier)
		require.NotNil(t, record.ExpiresAt)
		assert.True(t, record.ExpiresAt.Equal(clk.Now().AddDate(0, 0, 7)))
	})

	t.Run("never shortens a later expiry", func(t *testing.T) {
		t.Parallel()

		svc, _, clk := setupService(t)
		ctx := context.Background()
		require.NoError(t, svc.Load(ctx))

		existing := clk.Now().AddDate(0, 0, 30)
		require.NoError(t, svc.ApplyTierChange(ctx, tier.Premium, &existing))

		require.NoError(t, svc.GrantTrial(ctx, 7))

		record, _ := svc.Get()
		require.NotNil(t, record.ExpiresAt)
		assert.True(t, record.ExpiresAt.Equal(existing), "trial must not shorten the existing entitlement")
	})

	t.Run("extends a shorter expiry", func(t *testing.T) {
		t.Parallel()

		svc, _, clk := setupService(t)
		ctx := context.Background()
		require.NoError(t, svc.Load(ctx))

		existing := clk.Now().AddDate(0, 0, 2)
		require.NoError(t, svc.ApplyTierChange(ctx, tier.Premium, &existing))

		require.NoError(t, svc.GrantTrial(ctx, 7))

		record, _ := svc.Get()
		require.NotNil(t, record.ExpiresAt)
		assert.True(t, record.ExpiresAt.Equal(clk.Now().AddDate(0, 0, 7)))
	})

	t.Run("expired premium is treated as free", func(t *testing.T) {
		t.Parallel()

		svc, _, clk := setupService(t)
		ctx := context.Background()
		require.NoError(t, svc.Load(ctx))

		stale := clk.Now().AddDate(0, 0, -10)
		require.NoError(t, svc.ApplyTierChange(ctx, tier.Premium, &stale))

		require.NoError(t, svc.GrantTrial(ctx, 7))

		record, _ := svc.Get()
		require.NotNil(t, record.ExpiresAt)
		assert.True(t, record.ExpiresAt.Equal(clk.Now().AddDate(0, 0, 7)),
			"stale expiry must not win over a fresh trial")
	})

	t.Run("keeps a never-lapsing entitlement unbounded", func(t *testing.T) {
		t.Parallel()

		svc, _, clk := setupService(t)
		ctx := context.Background()
		require.NoError(t, svc.Load(ctx))

		require.NoError(t, svc.ApplyTierChange(ctx, tier.Premium, nil))

		require.NoError(t, svc.GrantTrial(ctx, 7))

		record, _ := svc.Get()
		assert.Nil(t, record.ExpiresAt, "trial must not put an expiry on a never-lapsing entitlement")

		clk.AdvanceDays(8)
		assert.Equal(t, tier.Premium, svc.EffectiveTier())
	})

	t.Run("does not downgrade active exclusive", func(t *testing.T) {
		t.Parallel()

		svc, _, clk := setupService(t)
		ctx := context.Background()
		require.NoError(t, svc.Load(ctx))

		existing := clk.Now().AddDate(0, 1, 0)
		require.NoError(t, svc.ApplyTierChange(ctx, tier.Exclusive, &existing))

		require.NoError(t, svc.GrantTrial(ctx, 7))

		record, _ := svc.Get()
		assert.Equal(t, tier.Exclusive, record.Tier)
	})

	t.Run("rejects non-positive days", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := setupService(t)
		assert.ErrorIs(t, svc.GrantTrial(context.Background(), 0), entitlement.ErrInvalidTrialDays)
		assert.ErrorIs(t, svc.GrantTrial(context.Background(), -3), entitlement.ErrInvalidTrialDays)
	})
}

func TestService_MutationPersistFailure(t *testing.T) {
	t.Parallel()

	store := &failingStore{Store: kvstore.NewMemoryStore()}
	clk := &clock.Fixed{Instant: time.Now()}
	svc := entitlement.NewService(store, clk)
	ctx := context.Background()
	require.NoError(t, svc.Load(ctx))

	store.failSet = true

	err := svc.ApplyTierChange(ctx, tier.Premium, nil)
	assert.ErrorIs(t, err, entitlement.ErrFailedToPersist)

	// The cache must not move ahead of storage.
	record, _ := svc.Get()
	assert.Equal(t, tier.Free, record.Tier)
}

func TestService_SetPendingDiscount(t *testing.T) {
	t.Parallel()

	svc, store, clk := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Load(ctx))

	discount := tier.Discount{
		Code:      "SAVE20",
		Type:      tier.DiscountPercentage,
		Value:     20,
		AppliedAt: clk.Now(),
	}
	require.NoError(t, svc.SetPendingDiscount(ctx, discount))

	record, _ := svc.Get()
	require.NotNil(t, record.PendingDiscount)
	assert.Equal(t, "SAVE20", record.PendingDiscount.Code)

	// Discount survives a reload.
	reloaded := entitlement.NewService(store, clk)
	require.NoError(t, reloaded.Load(ctx))
	record, _ = reloaded.Get()
	require.NotNil(t, record.PendingDiscount)
	assert.Equal(t, tier.DiscountPercentage, record.PendingDiscount.Type)
}

func TestService_Reset(t *testing.T) {
	t.Parallel()

	svc, store, clk := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Load(ctx))

	expiry := clk.Now().AddDate(0, 1, 0)
	require.NoError(t, svc.ApplyTierChange(ctx, tier.Exclusive, &expiry))

	require.NoError(t, svc.Reset(ctx))

	record, loaded := svc.Get()
	assert.True(t, loaded)
	assert.Equal(t, tier.Free, record.Tier)
	assert.Nil(t, record.ExpiresAt)
	assert.Equal(t, 0, store.Len())
}

func TestService_Restore(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupService(t)
	ctx := context.Background()
	require.NoError(t, svc.Load(ctx))

	snapshot, _ := svc.Get()
	require.NoError(t, svc.GrantTrial(ctx, 7))

	require.NoError(t, svc.Restore(ctx, snapshot))

	record, _ := svc.Get()
	assert.Equal(t, tier.Free, record.Tier)
	assert.Nil(t, record.ExpiresAt)
}
