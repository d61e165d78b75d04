//go:build integration

package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgdb "github.com/floroz/lotmarket/pkg/database"
	"github.com/floroz/lotmarket/pkg/testhelpers"
	"github.com/floroz/lotmarket/services/auction-service/internal/adapters/database"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/items"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
	"github.com/floroz/lotmarket/services/auction-service/migrations"
)

func TestPostgresRepositories(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, migrations.FS)
	defer testDB.Close()

	ctx := context.Background()
	txManager := pkgdb.NewPostgresTransactionManager(testDB.Pool, time.Second)
	itemRepo := database.NewPostgresItemRepository(testDB.Pool)
	bidRepo := database.NewPostgresBidRepository(testDB.Pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	seller := uuid.New()

	insert := func(t *testing.T, status lifecycle.Status, endTime time.Time, sellerID uuid.UUID, age time.Duration) *items.Item {
		t.Helper()
		item := &items.Item{
			ID:            uuid.New(),
			Name:          "Lot " + string(status),
			StartingPrice: 100,
			EndTime:       endTime,
			SellerID:      sellerID,
			Status:        status,
			CreatedAt:     now.Add(-age),
			UpdatedAt:     now.Add(-age),
		}
		tx, err := txManager.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, itemRepo.CreateItem(ctx, tx, item))
		require.NoError(t, tx.Commit(ctx))
		return item
	}

	saveBid := func(t *testing.T, itemID uuid.UUID, amount int64, at time.Time) *bids.Bid {
		t.Helper()
		bid := &bids.Bid{
			ID:        uuid.New(),
			ItemID:    itemID,
			UserID:    uuid.New(),
			Amount:    amount,
			Status:    bids.BidStatusActive,
			CreatedAt: at,
			UpdatedAt: at,
		}
		tx, err := txManager.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, bidRepo.SaveBid(ctx, tx, bid))
		require.NoError(t, tx.Commit(ctx))
		return bid
	}

	t.Run("ListItems applies visibility", func(t *testing.T) {
		testDB.Truncate(t, "bids", "items")
		open := insert(t, lifecycle.StatusOpen, now.Add(time.Hour), uuid.New(), time.Minute)
		insert(t, lifecycle.StatusOpen, now.Add(-time.Minute), uuid.New(), 2*time.Minute)
		own := insert(t, lifecycle.StatusPendingApproval, now.Add(time.Hour), seller, 3*time.Minute)
		insert(t, lifecycle.StatusRejected, now.Add(time.Hour), uuid.New(), 4*time.Minute)

		public, err := itemRepo.ListItems(ctx, items.ListFilter{OpenAsOf: now, Limit: 10})
		require.NoError(t, err)
		require.Len(t, public, 1)
		assert.Equal(t, open.ID, public[0].ID)

		creator, err := itemRepo.ListItems(ctx, items.ListFilter{OpenAsOf: now, SellerID: seller, Limit: 10})
		require.NoError(t, err)
		require.Len(t, creator, 2)
		assert.Equal(t, open.ID, creator[0].ID, "newest first")
		assert.Equal(t, own.ID, creator[1].ID)

		all, err := itemRepo.ListItems(ctx, items.ListFilter{All: true, OpenAsOf: now, Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("GetItemByID not found", func(t *testing.T) {
		_, err := itemRepo.GetItemByID(ctx, uuid.New())
		assert.ErrorIs(t, err, items.ErrItemNotFound)
	})

	t.Run("highest bid and settlement", func(t *testing.T) {
		testDB.Truncate(t, "bids", "items")
		item := insert(t, lifecycle.StatusOpen, now.Add(time.Hour), seller, 0)
		first := saveBid(t, item.ID, 200, now)
		tied := saveBid(t, item.ID, 200, now.Add(time.Second))
		low := saveBid(t, item.ID, 150, now.Add(2*time.Second))

		tx, err := txManager.BeginTx(ctx)
		require.NoError(t, err)
		highest, err := bidRepo.GetHighestBid(ctx, tx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, highest.ID, "earliest bid wins a tie")

		demoted, err := bidRepo.DemoteActiveBids(ctx, tx, item.ID, tied.UserID, now)
		require.NoError(t, err)
		assert.Len(t, demoted, 2)

		require.NoError(t, bidRepo.SettleBids(ctx, tx, item.ID, first.ID, now))
		require.NoError(t, itemRepo.UpdateStatus(ctx, tx, item.ID, lifecycle.StatusSold, now))
		require.NoError(t, tx.Commit(ctx))

		winning, err := bidRepo.GetWinningBid(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, winning.ID)
		assert.Equal(t, bids.BidStatusWinning, winning.Status)

		list, err := bidRepo.ListBidsByItemID(ctx, item.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, low.ID, list[2].ID)
		assert.Equal(t, bids.BidStatusOutbid, list[2].Status)
		assert.Equal(t, bids.BidStatusOutbid, list[1].Status)

		stored, err := itemRepo.GetItemByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, lifecycle.StatusSold, stored.Status)
	})

	t.Run("delete and cancel", func(t *testing.T) {
		testDB.Truncate(t, "bids", "items")
		bare := insert(t, lifecycle.StatusPendingApproval, now.Add(time.Hour), seller, 0)
		withBids := insert(t, lifecycle.StatusOpen, now.Add(time.Hour), seller, 0)
		bid := saveBid(t, withBids.ID, 300, now)

		tx, err := txManager.BeginTx(ctx)
		require.NoError(t, err)
		count, err := itemRepo.CountBidsByItemID(ctx, tx, bare.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
		require.NoError(t, itemRepo.DeleteItem(ctx, tx, bare.ID))

		count, err = itemRepo.CountBidsByItemID(ctx, tx, withBids.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		require.NoError(t, itemRepo.CancelBidsByItemID(ctx, tx, withBids.ID, now))
		require.NoError(t, tx.Commit(ctx))

		_, err = itemRepo.GetItemByID(ctx, bare.ID)
		assert.ErrorIs(t, err, items.ErrItemNotFound)

		list, err := bidRepo.ListBidsByUserID(ctx, bid.UserID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, bids.BidStatusCancelled, list[0].Status)

		_, err = bidRepo.GetWinningBid(ctx, withBids.ID)
		assert.ErrorIs(t, err, bids.ErrBidNotFound)
	})
}
