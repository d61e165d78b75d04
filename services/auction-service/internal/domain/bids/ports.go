package bids

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/lotmarket/pkg/events"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/items"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
)

// BidRepository defines the interface for bid persistence
type BidRepository interface {
	// SaveBid saves a bid within a transaction
	SaveBid(ctx context.Context, tx pgx.Tx, bid *Bid) error

	// GetHighestBid returns the highest non-cancelled bid of the item, earliest first on equal amounts.
	// It returns nil, nil when the item has no such bid.
	GetHighestBid(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*Bid, error)

	// DemoteActiveBids marks every active bid of the item not placed by exceptUserID as outbid
	// and returns the demoted bids
	DemoteActiveBids(ctx context.Context, tx pgx.Tx, itemID, exceptUserID uuid.UUID, at time.Time) ([]*Bid, error)

	// SettleBids marks winnerID as winning and every other active bid of the item as outbid
	SettleBids(ctx context.Context, tx pgx.Tx, itemID, winnerID uuid.UUID, at time.Time) error

	// ListBidsByItemID returns the item's bids, highest amount first
	ListBidsByItemID(ctx context.Context, itemID uuid.UUID) ([]*Bid, error)

	// ListBidsByUserID returns the user's bids, newest first
	ListBidsByUserID(ctx context.Context, userID uuid.UUID) ([]*Bid, error)

	// GetWinningBid returns the highest active or winning bid of the item
	GetWinningBid(ctx context.Context, itemID uuid.UUID) (*Bid, error)
}

// ItemRepository is the part of item persistence the ledger needs
type ItemRepository interface {
	// GetItemByID retrieves an item by its ID
	GetItemByID(ctx context.Context, itemID uuid.UUID) (*items.Item, error)

	// GetItemByIDForUpdate retrieves an item by its ID and locks it for update
	// This prevents race conditions when multiple users bid on the same item
	// Must be called within a transaction
	GetItemByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*items.Item, error)

	// UpdateStatus sets the stored status of an item within a transaction
	UpdateStatus(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, status lifecycle.Status, at time.Time) error
}

// OutboxRepository stores events in the caller's transaction
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}

// Locker serializes work on one item across goroutines or replicas.
// Lock blocks until the item is held, ctx ends or the implementation gives up,
// in which case it returns an error wrapping ErrLockNotAcquired.
type Locker interface {
	Lock(ctx context.Context, itemID uuid.UUID) (unlock func(), err error)
}
