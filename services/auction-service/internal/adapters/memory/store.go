// Package memory is a concurrency-safe in-memory entity store used for local runs and tests.
// It implements the same repository ports as the Postgres adapter.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/lotmarket/pkg/database"
	"github.com/floroz/lotmarket/pkg/events"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/items"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
)

var (
	_ items.Repository            = (*Store)(nil)
	_ bids.BidRepository          = (*Store)(nil)
	_ bids.ItemRepository         = (*Store)(nil)
	_ events.OutboxRepository     = (*Store)(nil)
	_ database.TransactionManager = (*Store)(nil)
)

// Store holds items, bids and outbox events
type Store struct {
	mu       sync.RWMutex
	items    map[uuid.UUID]items.Item
	bids     map[uuid.UUID]bids.Bid
	itemBids map[uuid.UUID][]uuid.UUID // key: itemID -> bid ids in admission order
	userBids map[uuid.UUID][]uuid.UUID // key: userID -> bid ids in admission order
	outbox   []events.OutboxEvent

	lockMu   sync.Mutex
	rowLocks map[uuid.UUID]*rowLock
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		items:    make(map[uuid.UUID]items.Item),
		bids:     make(map[uuid.UUID]bids.Bid),
		itemBids: make(map[uuid.UUID][]uuid.UUID),
		userBids: make(map[uuid.UUID][]uuid.UUID),
		rowLocks: make(map[uuid.UUID]*rowLock),
	}
}

// CreateItem inserts a new item
func (s *Store) CreateItem(ctx context.Context, tx pgx.Tx, item *items.Item) error {
	mt, err := s.asTx(tx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, exists := s.itemIn(mt, item.ID); exists {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	staged := *item
	mt.items[item.ID] = &staged
	return nil
}

// GetItemByID retrieves a committed item by its ID
func (s *Store) GetItemByID(ctx context.Context, itemID uuid.UUID) (*items.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok {
		return nil, items.ErrItemNotFound
	}
	return &item, nil
}

// GetItemByIDForUpdate retrieves an item and holds its row lock until tx ends
func (s *Store) GetItemByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*items.Item, error) {
	mt, err := s.asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := s.lockRow(ctx, mt, itemID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.itemIn(mt, itemID)
	if !ok {
		return nil, items.ErrItemNotFound
	}
	return &item, nil
}

// UpdateItem persists an item's editable fields and status
func (s *Store) UpdateItem(ctx context.Context, tx pgx.Tx, item *items.Item) error {
	mt, err := s.asTx(tx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	next, ok := s.itemIn(mt, item.ID)
	if !ok {
		return items.ErrItemNotFound
	}
	next.Name = item.Name
	next.Description = item.Description
	next.StartingPrice = item.StartingPrice
	next.EndTime = item.EndTime
	next.Status = item.Status
	next.UpdatedAt = item.UpdatedAt
	mt.items[item.ID] = &next
	return nil
}

// UpdateStatus sets the stored status of an item
func (s *Store) UpdateStatus(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, status lifecycle.Status, at time.Time) error {
	mt, err := s.asTx(tx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	next, ok := s.itemIn(mt, itemID)
	if !ok {
		return items.ErrItemNotFound
	}
	next.Status = status
	next.UpdatedAt = at
	mt.items[itemID] = &next
	return nil
}

// DeleteItem removes an item
func (s *Store) DeleteItem(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) error {
	mt, err := s.asTx(tx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.itemIn(mt, itemID); !ok {
		return items.ErrItemNotFound
	}
	if len(s.bidIDsIn(mt, itemID)) > 0 {
		return fmt.Errorf("item %s has bids", itemID)
	}
	mt.items[itemID] = nil
	return nil
}

// ListItems returns matching committed items, newest first
func (s *Store) ListItems(ctx context.Context, filter items.ListFilter) ([]*items.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*items.Item, 0)
	for _, item := range s.items {
		open := item.Status == lifecycle.StatusOpen && item.EndTime.After(filter.OpenAsOf)
		own := filter.SellerID != uuid.Nil && item.SellerID == filter.SellerID
		if filter.All || open || own {
			item := item
			matched = append(matched, &item)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	if filter.Offset >= len(matched) {
		return []*items.Item{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// CountBidsByItemID returns the number of bids for a specific item
func (s *Store) CountBidsByItemID(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (int64, error) {
	mt, err := s.asTx(tx)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.bidIDsIn(mt, itemID))), nil
}

// CancelBidsByItemID marks every bid of the item as cancelled
func (s *Store) CancelBidsByItemID(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, at time.Time) error {
	mt, err := s.asTx(tx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.bidIDsIn(mt, itemID) {
		b, _ := s.bidIn(mt, id)
		if b.Status != bids.BidStatusCancelled {
			stageBidStatus(mt, b, bids.BidStatusCancelled, at)
		}
	}
	return nil
}

// SaveBid inserts a bid
func (s *Store) SaveBid(ctx context.Context, tx pgx.Tx, bid *bids.Bid) error {
	mt, err := s.asTx(tx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.itemIn(mt, bid.ItemID); !ok {
		return fmt.Errorf("save bid for item %s: %w", bid.ItemID, items.ErrItemNotFound)
	}
	if _, exists := s.bidIn(mt, bid.ID); exists {
		return fmt.Errorf("bid %s already exists", bid.ID)
	}
	mt.bids[bid.ID] = *bid
	mt.inserted = append(mt.inserted, bid.ID)
	return nil
}

// GetHighestBid returns the highest non-cancelled bid of the item, or nil
func (s *Store) GetHighestBid(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*bids.Bid, error) {
	mt, err := s.asTx(tx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return highest(s.bidsIn(mt, itemID), func(b bids.Bid) bool { return b.Status != bids.BidStatusCancelled }), nil
}

// DemoteActiveBids marks the active bids of every other user as outbid
func (s *Store) DemoteActiveBids(ctx context.Context, tx pgx.Tx, itemID, exceptUserID uuid.UUID, at time.Time) ([]*bids.Bid, error) {
	mt, err := s.asTx(tx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	demoted := make([]*bids.Bid, 0)
	for _, b := range s.bidsIn(mt, itemID) {
		if b.Status != bids.BidStatusActive || b.UserID == exceptUserID {
			continue
		}
		updated := stageBidStatus(mt, b, bids.BidStatusOutbid, at)
		demoted = append(demoted, &updated)
	}
	return demoted, nil
}

// SettleBids marks the winner and demotes every other active bid
func (s *Store) SettleBids(ctx context.Context, tx pgx.Tx, itemID, winnerID uuid.UUID, at time.Time) error {
	mt, err := s.asTx(tx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	winner, ok := s.bidIn(mt, winnerID)
	if !ok || winner.ItemID != itemID {
		return bids.ErrBidNotFound
	}
	for _, b := range s.bidsIn(mt, itemID) {
		switch {
		case b.ID == winnerID:
			stageBidStatus(mt, b, bids.BidStatusWinning, at)
		case b.Status == bids.BidStatusActive:
			stageBidStatus(mt, b, bids.BidStatusOutbid, at)
		}
	}
	return nil
}

// ListBidsByItemID returns the item's committed bids, highest amount first
func (s *Store) ListBidsByItemID(ctx context.Context, itemID uuid.UUID) ([]*bids.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.collect(s.itemBids[itemID])
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Amount != result[j].Amount {
			return result[i].Amount > result[j].Amount
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ListBidsByUserID returns the user's committed bids, newest first
func (s *Store) ListBidsByUserID(ctx context.Context, userID uuid.UUID) ([]*bids.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.collect(s.userBids[userID])
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// GetWinningBid returns the highest active or winning bid of the item
func (s *Store) GetWinningBid(ctx context.Context, itemID uuid.UUID) (*bids.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var committed []bids.Bid
	for _, id := range s.itemBids[itemID] {
		committed = append(committed, s.bids[id])
	}
	winning := highest(committed, func(b bids.Bid) bool {
		return b.Status == bids.BidStatusActive || b.Status == bids.BidStatusWinning
	})
	if winning == nil {
		return nil, bids.ErrBidNotFound
	}
	return winning, nil
}

// SaveEvent stages an outbox event
func (s *Store) SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error {
	mt, err := s.asTx(tx)
	if err != nil {
		return err
	}
	mt.outbox = append(mt.outbox, *event)
	return nil
}

// GetPendingEvents returns up to limit committed pending events, oldest first
func (s *Store) GetPendingEvents(ctx context.Context, tx pgx.Tx, limit int) ([]*events.OutboxEvent, error) {
	mt, err := s.asTx(tx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*events.OutboxEvent, 0)
	for _, e := range s.outbox {
		if e.Status != events.OutboxStatusPending {
			continue
		}
		if _, touched := mt.updates[e.ID]; touched {
			continue
		}
		e := e
		result = append(result, &e)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// UpdateEventStatus updates the status of an event
func (s *Store) UpdateEventStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status events.OutboxStatus) error {
	mt, err := s.asTx(tx)
	if err != nil {
		return err
	}

	var processedAt *time.Time
	if status == events.OutboxStatusPublished || status == events.OutboxStatusFailed {
		now := time.Now()
		processedAt = &now
	}

	for i := range mt.outbox {
		if mt.outbox[i].ID == id {
			mt.outbox[i].Status = status
			mt.outbox[i].ProcessedAt = processedAt
			return nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.outbox {
		if e.ID == id {
			mt.updates[id] = eventUpdate{status: status, processedAt: processedAt}
			return nil
		}
	}
	return fmt.Errorf("event not found")
}

// Events returns a snapshot of the committed outbox, oldest first
func (s *Store) Events() []events.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.OutboxEvent(nil), s.outbox...)
}

// itemIn is the item as tx sees it. Must be called with mu held.
func (s *Store) itemIn(tx *memTx, id uuid.UUID) (items.Item, bool) {
	if staged, ok := tx.items[id]; ok {
		if staged == nil {
			return items.Item{}, false
		}
		return *staged, true
	}
	item, ok := s.items[id]
	return item, ok
}

// bidIn is the bid as tx sees it. Must be called with mu held.
func (s *Store) bidIn(tx *memTx, id uuid.UUID) (bids.Bid, bool) {
	if staged, ok := tx.bids[id]; ok {
		return staged, true
	}
	b, ok := s.bids[id]
	return b, ok
}

// bidIDsIn lists the item's bid ids in admission order as tx sees them. Must be called with mu held.
func (s *Store) bidIDsIn(tx *memTx, itemID uuid.UUID) []uuid.UUID {
	ids := append([]uuid.UUID(nil), s.itemBids[itemID]...)
	for _, id := range tx.inserted {
		if tx.bids[id].ItemID == itemID {
			ids = append(ids, id)
		}
	}
	return ids
}

// bidsIn must be called with mu held
func (s *Store) bidsIn(tx *memTx, itemID uuid.UUID) []bids.Bid {
	ids := s.bidIDsIn(tx, itemID)
	result := make([]bids.Bid, 0, len(ids))
	for _, id := range ids {
		b, _ := s.bidIn(tx, id)
		result = append(result, b)
	}
	return result
}

func stageBidStatus(tx *memTx, b bids.Bid, status bids.BidStatus, at time.Time) bids.Bid {
	b.Status = status
	b.UpdatedAt = at
	tx.bids[b.ID] = b
	return b
}

func highest(candidates []bids.Bid, keep func(bids.Bid) bool) *bids.Bid {
	var best *bids.Bid
	for _, b := range candidates {
		if !keep(b) {
			continue
		}
		if best == nil || b.Amount > best.Amount || (b.Amount == best.Amount && b.CreatedAt.Before(best.CreatedAt)) {
			b := b
			best = &b
		}
	}
	return best
}

// collect must be called with mu held
func (s *Store) collect(ids []uuid.UUID) []*bids.Bid {
	result := make([]*bids.Bid, 0, len(ids))
	for _, id := range ids {
		b := s.bids[id]
		result = append(result, &b)
	}
	return result
}
