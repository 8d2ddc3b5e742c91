package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

func createTestLifecycle(id string, openedAt int64) *domain.Lifecycle {
	return &domain.Lifecycle{
		LifecycleID:  id,
		Exchange:     "bitget",
		Symbol:       "BTC/USDT:USDT",
		PositionSide: domain.PositionLong,
		Status:       domain.LifecycleOpen,
		OpenedAt:     openedAt,
		Fills: []domain.ConstituentFill{
			{FillID: "f1", OrderID: "o1", ExecutedAt: openedAt, Side: domain.SideBuy, Price: 100, Quantity: 2, Role: domain.RoleOpen, NetAfter: 2},
		},
		NetQuantity:   2,
		AvgEntryPrice: 100,
	}
}

func TestLifecycleStore_UpsertRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLifecycleStore(pool)

	lc := createTestLifecycle("lc-001", 1000)
	lc.PeakLeverage = ptr(4.2)
	lc.EquityAtEntry = ptr(5000.0)
	require.NoError(t, store.Upsert(ctx, lc))

	got, err := store.GetByID(ctx, "lc-001")
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleOpen, got.Status)
	require.Len(t, got.Fills, 1)
	assert.Equal(t, "f1", got.Fills[0].FillID)
	assert.Equal(t, domain.RoleOpen, got.Fills[0].Role)
	require.NotNil(t, got.PeakLeverage)
	assert.InDelta(t, 4.2, *got.PeakLeverage, 1e-9)
	assert.Nil(t, got.ClosedAt)
}

func TestLifecycleStore_UpsertReplacesOnRefold(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLifecycleStore(pool)

	lc := createTestLifecycle("lc-001", 1000)
	require.NoError(t, store.Upsert(ctx, lc))

	lc.Status = domain.LifecycleClosed
	lc.ClosedAt = ptr(int64(5000))
	lc.NetQuantity = 0
	lc.RealizedPnL = -30
	lc.Fills = append(lc.Fills, domain.ConstituentFill{
		FillID: "f2", OrderID: "o2", ExecutedAt: 5000, Side: domain.SideSell, Price: 85, Quantity: 2, Role: domain.RoleClose, NetAfter: 0,
	})
	require.NoError(t, store.Upsert(ctx, lc))

	got, err := store.GetByID(ctx, "lc-001")
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleClosed, got.Status)
	require.NotNil(t, got.ClosedAt)
	assert.Equal(t, int64(5000), *got.ClosedAt)
	assert.Len(t, got.Fills, 2)
	assert.InDelta(t, -30, got.RealizedPnL, 1e-9)
}

func TestLifecycleStore_GetClosedInRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLifecycleStore(pool)

	for _, tc := range []struct {
		id       string
		closedAt int64
	}{
		{"lc-a", 1000},
		{"lc-b", 2000},
		{"lc-c", 3000},
	} {
		lc := createTestLifecycle(tc.id, tc.closedAt-100)
		lc.Status = domain.LifecycleClosed
		lc.ClosedAt = ptr(tc.closedAt)
		require.NoError(t, store.Upsert(ctx, lc))
	}
	require.NoError(t, store.Upsert(ctx, createTestLifecycle("lc-open", 1500)))

	got, err := store.GetClosedInRange(ctx, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "lc-a", got[0].LifecycleID)
	assert.Equal(t, "lc-b", got[1].LifecycleID)
}

func TestLifecycleStore_GetOpen(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLifecycleStore(pool)

	closed := createTestLifecycle("lc-closed", 1000)
	closed.Status = domain.LifecycleClosed
	closed.ClosedAt = ptr(int64(2000))
	require.NoError(t, store.Upsert(ctx, closed))
	require.NoError(t, store.Upsert(ctx, createTestLifecycle("lc-open", 3000)))

	got, err := store.GetOpen(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lc-open", got[0].LifecycleID)
}

func TestLifecycleStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLifecycleStore(pool)
	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
