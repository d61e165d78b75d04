package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/lotmarket/pkg/events"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/items"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
)

func seedItem(t *testing.T, s *Store, status lifecycle.Status) *items.Item {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	item := &items.Item{
		ID:            uuid.New(),
		Name:          "Cardboard bales",
		StartingPrice: 100,
		EndTime:       now.Add(time.Hour),
		SellerID:      uuid.New(),
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.CreateItem(ctx, tx, item))
	require.NoError(t, tx.Commit(ctx))
	return item
}

func newBid(itemID uuid.UUID, amount int64, at time.Time) *bids.Bid {
	return &bids.Bid{
		ID:        uuid.New(),
		ItemID:    itemID,
		UserID:    uuid.New(),
		Amount:    amount,
		Status:    bids.BidStatusActive,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestStore_RollbackUndoesEverything(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	item := seedItem(t, s, lifecycle.StatusOpen)

	first := newBid(item.ID, 150, time.Now())
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SaveBid(ctx, tx, first))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = s.GetItemByIDForUpdate(ctx, tx, item.ID)
	require.NoError(t, err)

	demoted, err := s.DemoteActiveBids(ctx, tx, item.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	require.Len(t, demoted, 1)
	require.NoError(t, s.SaveBid(ctx, tx, newBid(item.ID, 200, time.Now())))
	ev, err := events.NewOutboxEvent("bid.placed", map[string]any{"amount": 200}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.SaveEvent(ctx, tx, ev))
	require.NoError(t, s.UpdateStatus(ctx, tx, item.ID, lifecycle.StatusSold, time.Now()))

	require.NoError(t, tx.Rollback(ctx))

	all, err := s.ListBidsByItemID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, bids.BidStatusActive, all[0].Status)
	assert.Empty(t, s.Events())

	got, err := s.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusOpen, got.Status)

	// the row lock was released by the rollback
	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	lockCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = s.GetItemByIDForUpdate(lockCtx, tx, item.ID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
}

func TestStore_RowLockBlocksSecondTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	item := seedItem(t, s, lifecycle.StatusOpen)

	holder, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = s.GetItemByIDForUpdate(ctx, holder, item.ID)
	require.NoError(t, err)

	waiter, err := s.BeginTx(ctx)
	require.NoError(t, err)
	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = s.GetItemByIDForUpdate(shortCtx, waiter, item.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		_, _ = s.GetItemByIDForUpdate(ctx, waiter, item.ID)
	}()

	select {
	case <-acquired:
		t.Fatal("second transaction acquired a held row lock")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, holder.Commit(ctx))
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("row lock was not handed over after commit")
	}
	require.NoError(t, waiter.Rollback(ctx))
}

func TestStore_ClosedTransaction(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	item := seedItem(t, s, lifecycle.StatusOpen)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.Error(t, s.SaveBid(ctx, tx, newBid(item.ID, 500, time.Now())))
	assert.Error(t, tx.Commit(ctx))
	assert.Error(t, tx.Rollback(ctx))
}

func TestStore_BidQueries(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	item := seedItem(t, s, lifecycle.StatusOpen)
	base := time.Now()

	low := newBid(item.ID, 120, base)
	high := newBid(item.ID, 300, base.Add(time.Second))
	mid := newBid(item.ID, 200, base.Add(2*time.Second))
	mid.UserID = low.UserID

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	for _, b := range []*bids.Bid{low, high, mid} {
		require.NoError(t, s.SaveBid(ctx, tx, b))
	}

	highest, err := s.GetHighestBid(ctx, tx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, high.ID, highest.ID)

	require.NoError(t, s.SettleBids(ctx, tx, item.ID, high.ID, base))
	require.NoError(t, tx.Commit(ctx))

	byItem, err := s.ListBidsByItemID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, byItem, 3)
	assert.Equal(t, []int64{300, 200, 120}, []int64{byItem[0].Amount, byItem[1].Amount, byItem[2].Amount})
	assert.Equal(t, bids.BidStatusWinning, byItem[0].Status)
	assert.Equal(t, bids.BidStatusOutbid, byItem[1].Status)
	assert.Equal(t, bids.BidStatusOutbid, byItem[2].Status)

	byUser, err := s.ListBidsByUserID(ctx, low.UserID)
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, mid.ID, byUser[0].ID)

	winning, err := s.GetWinningBid(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, high.ID, winning.ID)

	_, err = s.GetWinningBid(ctx, uuid.New())
	assert.ErrorIs(t, err, bids.ErrBidNotFound)
}

func TestStore_ListItems(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	open := seedItem(t, s, lifecycle.StatusOpen)
	pending := seedItem(t, s, lifecycle.StatusPendingApproval)
	_ = seedItem(t, s, lifecycle.StatusRejected)

	got, err := s.ListItems(ctx, items.ListFilter{OpenAsOf: time.Now()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)

	got, err = s.ListItems(ctx, items.ListFilter{OpenAsOf: time.Now(), SellerID: pending.SellerID})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListItems(ctx, items.ListFilter{OpenAsOf: time.Now().Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ListItems(ctx, items.ListFilter{All: true, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListItems(ctx, items.ListFilter{All: true, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_StagedWritesAreInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	item := seedItem(t, s, lifecycle.StatusOpen)

	leader := newBid(item.ID, 150, time.Now())
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SaveBid(ctx, tx, leader))
	require.NoError(t, tx.Commit(ctx))

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = s.GetItemByIDForUpdate(ctx, tx, item.ID)
	require.NoError(t, err)
	demoted, err := s.DemoteActiveBids(ctx, tx, item.ID, uuid.New(), time.Now())
	require.NoError(t, err)
	require.Len(t, demoted, 1)
	next := newBid(item.ID, 200, time.Now())
	require.NoError(t, s.SaveBid(ctx, tx, next))
	ev, err := events.NewOutboxEvent("bid.placed", map[string]any{"amount": 200}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.SaveEvent(ctx, tx, ev))

	// the transaction reads its own writes
	highest, err := s.GetHighestBid(ctx, tx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, next.ID, highest.ID)
	count, err := s.CountBidsByItemID(ctx, tx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// everyone else still sees the old leader
	outside, err := s.ListBidsByItemID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, outside, 1)
	assert.Equal(t, leader.ID, outside[0].ID)
	assert.Equal(t, bids.BidStatusActive, outside[0].Status)
	assert.Empty(t, s.Events())

	require.NoError(t, tx.Commit(ctx))

	after, err := s.ListBidsByItemID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, next.ID, after[0].ID)
	assert.Equal(t, bids.BidStatusActive, after[0].Status)
	assert.Equal(t, bids.BidStatusOutbid, after[1].Status)
	assert.Len(t, s.Events(), 1)
}

func TestStore_PendingEventsSeeCommittedRowsOnly(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	writer, err := s.BeginTx(ctx)
	require.NoError(t, err)
	ev, err := events.NewOutboxEvent("item.created", map[string]any{"name": "bales"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.SaveEvent(ctx, writer, ev))

	relay, err := s.BeginTx(ctx)
	require.NoError(t, err)
	pending, err := s.GetPendingEvents(ctx, relay, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.NoError(t, relay.Rollback(ctx))

	require.NoError(t, writer.Commit(ctx))

	relay, err = s.BeginTx(ctx)
	require.NoError(t, err)
	pending, err = s.GetPendingEvents(ctx, relay, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, s.UpdateEventStatus(ctx, relay, ev.ID, events.OutboxStatusPublished))
	assert.Equal(t, events.OutboxStatusPending, s.Events()[0].Status)
	require.NoError(t, relay.Commit(ctx))

	got := s.Events()
	require.Len(t, got, 1)
	assert.Equal(t, events.OutboxStatusPublished, got[0].Status)
	assert.NotNil(t, got[0].ProcessedAt)
}

func TestStore_RowLocksArePruned(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for i := 0; i < 5; i++ {
		item := seedItem(t, s, lifecycle.StatusPendingApproval)
		tx, err := s.BeginTx(ctx)
		require.NoError(t, err)
		_, err = s.GetItemByIDForUpdate(ctx, tx, item.ID)
		require.NoError(t, err)
		require.NoError(t, s.DeleteItem(ctx, tx, item.ID))
		require.NoError(t, tx.Commit(ctx))
	}
	assert.Zero(t, s.rowLockCount())

	// a waiter that gives up drops its reference too
	item := seedItem(t, s, lifecycle.StatusOpen)
	holder, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = s.GetItemByIDForUpdate(ctx, holder, item.ID)
	require.NoError(t, err)

	waiter, err := s.BeginTx(ctx)
	require.NoError(t, err)
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.GetItemByIDForUpdate(shortCtx, waiter, item.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.rowLockCount())

	require.NoError(t, holder.Rollback(ctx))
	require.NoError(t, waiter.Rollback(ctx))
	assert.Zero(t, s.rowLockCount())
}
