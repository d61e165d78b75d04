package bids

import (
	"time"

	"github.com/google/uuid"
)

// BidStatus is the standing of a bid within its item's auction
type BidStatus string

const (
	BidStatusActive    BidStatus = "active"
	BidStatusOutbid    BidStatus = "outbid"
	BidStatusWinning   BidStatus = "winning"
	BidStatusCancelled BidStatus = "cancelled"
)

// Bid represents an auction bid. Amount is in cents.
type Bid struct {
	ID        uuid.UUID `db:"id"`
	ItemID    uuid.UUID `db:"item_id"`
	UserID    uuid.UUID `db:"user_id"`
	Amount    int64     `db:"amount"`
	Status    BidStatus `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Outbox event types
const (
	EventTypeBidPlaced  = "bid.placed"
	EventTypeBidOutbid  = "bid.outbid"
	EventTypeItemSold   = "item.sold"
	EventTypeItemClosed = "item.closed"
)
