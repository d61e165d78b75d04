package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/lotmarket/pkg/events"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/items"
)

var errForeignTx = errors.New("memory store: transaction was not started by this store")

type eventUpdate struct {
	status      events.OutboxStatus
	processedAt *time.Time
}

// memTx is the store's transaction. Writes are staged on the transaction and
// applied together on Commit; other readers only ever see committed state.
// Item rows locked for update stay locked until Commit or Rollback.
// Only Commit and Rollback are implemented, the embedded pgx.Tx is nil.
type memTx struct {
	pgx.Tx
	store *Store

	items    map[uuid.UUID]*items.Item // nil marks a deleted row
	bids     map[uuid.UUID]bids.Bid
	inserted []uuid.UUID // bids created by this transaction, in admission order
	outbox   []events.OutboxEvent
	updates  map[uuid.UUID]eventUpdate

	held []uuid.UUID
	done bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.apply(t)
	t.store.releaseRows(t)
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.releaseRows(t)
	return nil
}

func (t *memTx) holds(id uuid.UUID) bool {
	for _, h := range t.held {
		if h == id {
			return true
		}
	}
	return false
}

func (s *Store) asTx(tx pgx.Tx) (*memTx, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt.store != s {
		return nil, errForeignTx
	}
	if mt.done {
		return nil, pgx.ErrTxClosed
	}
	return mt, nil
}

// BeginTx starts a transaction
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{
		store:   s,
		items:   make(map[uuid.UUID]*items.Item),
		bids:    make(map[uuid.UUID]bids.Bid),
		updates: make(map[uuid.UUID]eventUpdate),
	}, nil
}

// apply publishes every staged write of tx under one critical section
func (s *Store) apply(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, item := range tx.items {
		if item == nil {
			delete(s.items, id)
			continue
		}
		s.items[id] = *item
	}
	for _, id := range tx.inserted {
		b := tx.bids[id]
		s.itemBids[b.ItemID] = append(s.itemBids[b.ItemID], id)
		s.userBids[b.UserID] = append(s.userBids[b.UserID], id)
	}
	for id, b := range tx.bids {
		s.bids[id] = b
	}
	for i := range s.outbox {
		if u, ok := tx.updates[s.outbox[i].ID]; ok {
			s.outbox[i].Status = u.status
			s.outbox[i].ProcessedAt = u.processedAt
		}
	}
	s.outbox = append(s.outbox, tx.outbox...)
}

type rowLock struct {
	ch   chan struct{}
	refs int
}

// lockRow blocks until tx holds the row lock of id or ctx ends
func (s *Store) lockRow(ctx context.Context, tx *memTx, id uuid.UUID) error {
	if tx.holds(id) {
		return nil
	}

	s.lockMu.Lock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		s.rowLocks[id] = l
	}
	l.refs++
	s.lockMu.Unlock()

	select {
	case l.ch <- struct{}{}:
		tx.held = append(tx.held, id)
		return nil
	case <-ctx.Done():
		s.lockMu.Lock()
		s.unref(id, l)
		s.lockMu.Unlock()
		return ctx.Err()
	}
}

func (s *Store) releaseRows(tx *memTx) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	for _, id := range tx.held {
		l := s.rowLocks[id]
		<-l.ch
		s.unref(id, l)
	}
	tx.held = nil
}

// unref must be called with lockMu held
func (s *Store) unref(id uuid.UUID, l *rowLock) {
	l.refs--
	if l.refs == 0 {
		delete(s.rowLocks, id)
	}
}

// rowLockCount reports how many rows currently have a lock entry
func (s *Store) rowLockCount() int {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	return len(s.rowLocks)
}
