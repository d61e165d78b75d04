package items

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/lotmarket/pkg/events"
)

// ListFilter selects items for a listing.
// With All unset an item matches when it is open for bidding at OpenAsOf
// or, when SellerID is set, when it belongs to that seller.
type ListFilter struct {
	All      bool
	OpenAsOf time.Time
	SellerID uuid.UUID
	Limit    int
	Offset   int
}

// Repository defines the interface for item persistence
type Repository interface {
	// CreateItem inserts a new item within a transaction
	CreateItem(ctx context.Context, tx pgx.Tx, item *Item) error

	// GetItemByID retrieves an item by its ID
	GetItemByID(ctx context.Context, itemID uuid.UUID) (*Item, error)

	// GetItemByIDForUpdate retrieves an item by its ID and locks it until tx ends
	GetItemByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*Item, error)

	// UpdateItem persists name, description, starting price, end time, status and updated_at
	UpdateItem(ctx context.Context, tx pgx.Tx, item *Item) error

	// DeleteItem physically removes an item that never received a bid
	DeleteItem(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) error

	// ListItems returns matching items, newest first
	ListItems(ctx context.Context, filter ListFilter) ([]*Item, error)

	// CountBidsByItemID returns the number of bids for a specific item
	CountBidsByItemID(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (int64, error)

	// CancelBidsByItemID marks every bid of the item as cancelled
	CancelBidsByItemID(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, at time.Time) error
}

// OutboxRepository stores events in the caller's transaction
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
