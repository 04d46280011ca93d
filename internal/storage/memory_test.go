package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"craftedge.io/chatsync/internal/core/domain"
)

func TestMemoryLedger_OrderIndependentConvergence(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	v7 := domain.Version{Seq: 7, At: at}
	v8 := domain.Version{Seq: 8, At: at.Add(time.Minute)}

	// Whichever order the two versions arrive in, only v8 ends up applied
	// last.
	a := NewMemoryLedger()
	ok, _ := a.Apply(ctx, "deal:x", v7, domain.SourceBatch)
	assert.True(t, ok)
	ok, _ = a.Apply(ctx, "deal:x", v8, domain.SourceWebhook)
	assert.True(t, ok)

	b := NewMemoryLedger()
	ok, _ = b.Apply(ctx, "deal:x", v8, domain.SourceWebhook)
	assert.True(t, ok)
	ok, _ = b.Apply(ctx, "deal:x", v7, domain.SourceBatch)
	assert.False(t, ok)
}

func TestMemoryDeals_GateTransitionReportedOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDealsStorage()
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	applied, err := store.UpsertDeal(ctx, &domain.Deal{
		ExternalID:         "deal_1",
		CustomerExternalID: "cust_1",
		OwnerUserID:        42,
		LastMessageID:      3,
		LastMessageAt:      at,
	}, domain.Version{Seq: 3, At: at}, domain.SourceBatch)
	require.NoError(t, err)
	assert.True(t, applied)

	_, became, err := store.MarkCustomerSynced(ctx, "deal_1")
	require.NoError(t, err)
	assert.False(t, became)

	deal, became, err := store.MarkMessageSynced(ctx, "deal_1", 3, at, 1)
	require.NoError(t, err)
	assert.True(t, became)
	assert.True(t, deal.Visible())
	assert.Equal(t, 1, deal.TotalMessages)

	_, became, err = store.MarkCustomerSynced(ctx, "deal_1")
	require.NoError(t, err)
	assert.False(t, became)
}

func TestMemoryDeals_OwnerPreservedOnOwnerlessUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDealsStorage()
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	_, err := store.UpsertDeal(ctx, &domain.Deal{
		ExternalID:         "deal_1",
		CustomerExternalID: "cust_1",
		OwnerUserID:        42,
		LastMessageID:      1,
		LastMessageAt:      at,
	}, domain.Version{Seq: 1, At: at}, domain.SourceWebhook)
	require.NoError(t, err)

	// Batch records may not know the owner; the known owner must survive.
	_, err = store.UpsertDeal(ctx, &domain.Deal{
		ExternalID:         "deal_1",
		CustomerExternalID: "cust_1",
		LastMessageID:      2,
		LastMessageAt:      at.Add(time.Minute),
	}, domain.Version{Seq: 2, At: at.Add(time.Minute)}, domain.SourceBatch)
	require.NoError(t, err)

	deal, err := store.GetDealByExternalID(ctx, "deal_1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), deal.OwnerUserID)
	assert.Equal(t, int64(2), deal.LastMessageID)
}

func TestMemoryDeals_CountFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDealsStorage()
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	_, err := store.UpsertDeal(ctx, &domain.Deal{
		ExternalID:         "deal_1",
		CustomerExternalID: "cust_1",
		LastMessageID:      1,
		LastMessageAt:      at,
	}, domain.Version{Seq: 1, At: at}, domain.SourceBatch)
	require.NoError(t, err)

	require.NoError(t, store.AdjustMessageCount(ctx, "deal_1", -5))

	deal, err := store.GetDealByExternalID(ctx, "deal_1")
	require.NoError(t, err)
	assert.Equal(t, 0, deal.TotalMessages)
}

func TestMemoryLock_Exclusivity(t *testing.T) {
	ctx := context.Background()
	locks := NewMemoryLockStore()

	ok, err := locks.Acquire(ctx, "global", "a", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = locks.Acquire(ctx, "global", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Expired locks are free for the taking.
	time.Sleep(60 * time.Millisecond)
	ok, err = locks.Acquire(ctx, "global", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// The previous holder lost the lock and cannot renew it.
	ok, err = locks.Renew(ctx, "global", "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCursors_ActivePerScope(t *testing.T) {
	ctx := context.Background()
	cursors := NewMemoryCursorStore()

	require.NoError(t, cursors.Create(ctx, &domain.SyncCursor{
		Scope: "global", TaskID: "t1", Status: domain.SyncRunning,
	}))

	active, err := cursors.GetActive(ctx, "global")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "t1", active.TaskID)

	active.Status = domain.SyncFailed
	require.NoError(t, cursors.Update(ctx, active))

	active, err = cursors.GetActive(ctx, "global")
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = cursors.GetByTaskID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSyncJobNotFound)
}
