package bids

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/lotmarket/pkg/database"
	"github.com/floroz/lotmarket/pkg/events"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/failure"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/identity"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/items"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/policy"
)

type PlaceBidCommand struct {
	ItemID uuid.UUID
	Amount int64
}

// CloseResult is the outcome of closing an auction. Winner is nil when nobody bid.
type CloseResult struct {
	Item   *items.Item
	Winner *Bid
}

// Ledger errors
var (
	ErrInvalidBidAmount   = fmt.Errorf("%w: bid amount must be positive", failure.ErrValidation)
	ErrItemNotOpen        = fmt.Errorf("%w: item is not open for bidding", failure.ErrConflict)
	ErrAuctionEnded       = fmt.Errorf("%w: auction has ended", failure.ErrConflict)
	ErrSellerCannotBid    = fmt.Errorf("%w: seller cannot bid on their own item", failure.ErrForbidden)
	ErrBelowStartingPrice = fmt.Errorf("%w: bid amount is below the starting price", failure.ErrConflict)
	ErrBidTooLow          = fmt.Errorf("%w: bid amount must be higher than current highest bid", failure.ErrConflict)
	ErrAuctionNotEnded    = fmt.Errorf("%w: auction has not ended yet", failure.ErrValidation)
	ErrAuctionNotClosed   = fmt.Errorf("%w: auction is not closed", failure.ErrValidation)
	ErrBidNotFound        = fmt.Errorf("%w: bid not found", failure.ErrNotFound)
	ErrNoWinningBid       = fmt.Errorf("%w: item has no winning bid", failure.ErrNotFound)

	// ErrLockNotAcquired is returned by a Locker that gave up waiting
	ErrLockNotAcquired = errors.New("item lock not acquired")
)

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLocker serializes admissions per item through l in addition to the row lock
func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithRetryPolicy bounds how often a write that lost a race is re-run
func WithRetryPolicy(p database.RetryPolicy) Option {
	return func(s *Service) {
		s.retry = p
	}
}

// Service is the bid ledger: admission, queries and closing
type Service struct {
	txManager  database.TransactionManager
	bidRepo    BidRepository
	itemRepo   ItemRepository
	outboxRepo OutboxRepository
	locker     Locker
	retry      database.RetryPolicy
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new bid ledger
func NewService(
	txManager database.TransactionManager,
	bidRepo BidRepository,
	itemRepo ItemRepository,
	outboxRepo OutboxRepository,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		txManager:  txManager,
		bidRepo:    bidRepo,
		itemRepo:   itemRepo,
		outboxRepo: outboxRepo,
		retry:      database.DefaultRetryPolicy,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid admits a bid if it beats the current leader.
// The item row stays locked from the validity checks until the bid and its
// outbox events are committed, so two admissions on one item never interleave.
func (s *Service) PlaceBid(ctx context.Context, actor identity.Actor, cmd PlaceBidCommand) (*Bid, error) {
	if cmd.Amount <= 0 {
		return nil, ErrInvalidBidAmount
	}
	if err := policy.Authorize(actor, policy.ActionPlaceBid, policy.Resource{}); err != nil {
		return nil, err
	}

	var bid *Bid
	err := s.withRetry(ctx, "place_bid", cmd.ItemID, func(ctx context.Context) error {
		var err error
		bid, err = s.placeBid(ctx, actor.ID, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func (s *Service) placeBid(ctx context.Context, bidderID uuid.UUID, cmd PlaceBidCommand) (*Bid, error) {
	unlock, err := s.lock(ctx, cmd.ItemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // Rollback if commit is not called
	}()

	item, err := s.itemRepo.GetItemByIDForUpdate(ctx, tx, cmd.ItemID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if item.Status != lifecycle.StatusOpen {
		return nil, fmt.Errorf("%w (status %s)", ErrItemNotOpen, item.Status)
	}
	if !now.Before(item.EndTime) {
		return nil, ErrAuctionEnded
	}
	if item.IsOwnedBy(bidderID) {
		return nil, ErrSellerCannotBid
	}
	if cmd.Amount < item.StartingPrice {
		return nil, ErrBelowStartingPrice
	}

	highest, err := s.bidRepo.GetHighestBid(ctx, tx, cmd.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load highest bid: %w", err)
	}
	if highest != nil && cmd.Amount <= highest.Amount {
		return nil, ErrBidTooLow
	}

	demoted, err := s.bidRepo.DemoteActiveBids(ctx, tx, cmd.ItemID, bidderID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to demote active bids: %w", err)
	}

	bid := &Bid{
		ID:        uuid.New(),
		ItemID:    cmd.ItemID,
		UserID:    bidderID,
		Amount:    cmd.Amount,
		Status:    BidStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.bidRepo.SaveBid(ctx, tx, bid); err != nil {
		return nil, fmt.Errorf("failed to save bid: %w", err)
	}

	if err := s.saveEvent(ctx, tx, EventTypeBidPlaced, map[string]any{
		"bid_id":     bid.ID.String(),
		"item_id":    bid.ItemID.String(),
		"user_id":    bid.UserID.String(),
		"amount":     bid.Amount,
		"created_at": bid.CreatedAt.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return nil, err
	}
	for _, prev := range demoted {
		if err := s.saveEvent(ctx, tx, EventTypeBidOutbid, map[string]any{
			"bid_id":         prev.ID.String(),
			"item_id":        prev.ItemID.String(),
			"user_id":        prev.UserID.String(),
			"amount":         prev.Amount,
			"outbid_by":      bid.ID.String(),
			"leading_amount": bid.Amount,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Bid placed",
		"bid_id", bid.ID,
		"item_id", bid.ItemID,
		"user_id", bid.UserID,
		"amount", bid.Amount,
		"outbid", len(demoted),
	)
	return bid, nil
}

// CloseAuction settles an item whose bidding window has elapsed.
// The leading bid, if any, becomes winning and the item is SOLD; otherwise the item is CLOSED.
func (s *Service) CloseAuction(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*CloseResult, error) {
	var result *CloseResult
	err := s.withRetry(ctx, "close_auction", itemID, func(ctx context.Context) error {
		var err error
		result, err = s.closeAuction(ctx, actor, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) closeAuction(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*CloseResult, error) {
	unlock, err := s.lock(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	item, err := s.itemRepo.GetItemByIDForUpdate(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := policy.Authorize(actor, policy.ActionCloseAuction, item.Resource(now)); err != nil {
		return nil, err
	}

	closed, err := lifecycle.Next(item.Status, lifecycle.EventExpire)
	if err != nil {
		return nil, err
	}
	if now.Before(item.EndTime) {
		return nil, ErrAuctionNotEnded
	}

	leader, err := s.bidRepo.GetHighestBid(ctx, tx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load highest bid: %w", err)
	}

	result := &CloseResult{}
	if leader == nil {
		if err := s.itemRepo.UpdateStatus(ctx, tx, itemID, closed, now); err != nil {
			return nil, fmt.Errorf("failed to close item: %w", err)
		}
		item.Status = closed
		if err := s.saveEvent(ctx, tx, EventTypeItemClosed, map[string]any{
			"item_id":   item.ID.String(),
			"seller_id": item.SellerID.String(),
		}); err != nil {
			return nil, err
		}
	} else {
		sold, err := lifecycle.Next(closed, lifecycle.EventSell)
		if err != nil {
			return nil, err
		}
		if err := s.bidRepo.SettleBids(ctx, tx, itemID, leader.ID, now); err != nil {
			return nil, fmt.Errorf("failed to settle bids: %w", err)
		}
		if err := s.itemRepo.UpdateStatus(ctx, tx, itemID, sold, now); err != nil {
			return nil, fmt.Errorf("failed to mark item sold: %w", err)
		}
		item.Status = sold
		leader.Status = BidStatusWinning
		leader.UpdatedAt = now
		result.Winner = leader
		if err := s.saveEvent(ctx, tx, EventTypeItemSold, map[string]any{
			"item_id":       item.ID.String(),
			"seller_id":     item.SellerID.String(),
			"winning_bid":   leader.ID.String(),
			"winner_id":     leader.UserID.String(),
			"winning_price": leader.Amount,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	item.UpdatedAt = now
	result.Item = item
	s.logger.Info("Auction closed", "item_id", itemID, "status", item.Status, "sold", leader != nil)
	return result, nil
}

// ListItemBids returns every bid of an item, highest first
func (s *Service) ListItemBids(ctx context.Context, itemID uuid.UUID) ([]*Bid, error) {
	if _, err := s.itemRepo.GetItemByID(ctx, itemID); err != nil {
		return nil, err
	}
	result, err := s.bidRepo.ListBidsByItemID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return result, nil
}

// ListUserBids returns a user's bids, newest first. Only the user and admins may read them.
func (s *Service) ListUserBids(ctx context.Context, actor identity.Actor, userID uuid.UUID) ([]*Bid, error) {
	if err := policy.Authorize(actor, policy.ActionViewUserBids, policy.Resource{OwnerID: userID}); err != nil {
		return nil, err
	}
	result, err := s.bidRepo.ListBidsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return result, nil
}

// GetWinningBid returns the highest standing bid of a closed or sold item
func (s *Service) GetWinningBid(ctx context.Context, itemID uuid.UUID) (*Bid, error) {
	item, err := s.itemRepo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	switch status := item.EffectiveStatus(s.now()); status {
	case lifecycle.StatusClosed, lifecycle.StatusSold:
	default:
		return nil, fmt.Errorf("%w (status %s)", ErrAuctionNotClosed, status)
	}

	bid, err := s.bidRepo.GetWinningBid(ctx, itemID)
	if errors.Is(err, ErrBidNotFound) {
		return nil, ErrNoWinningBid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get winning bid: %w", err)
	}
	return bid, nil
}

func (s *Service) lock(ctx context.Context, itemID uuid.UUID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Lock(ctx, itemID)
}

func (s *Service) isRetryable(err error) bool {
	return database.IsRetryable(err) || errors.Is(err, ErrLockNotAcquired)
}

// withRetry re-runs fn after transient conflicts and reports an exhausted budget as a concurrency failure
func (s *Service) withRetry(ctx context.Context, op string, itemID uuid.UUID, fn func(ctx context.Context) error) error {
	err := database.Retry(ctx, s.retry, s.isRetryable, fn)
	if err != nil && s.isRetryable(err) {
		s.logger.Warn("Gave up after concurrent modification", "op", op, "item_id", itemID, "error", err)
		return fmt.Errorf("%w: %v", failure.ErrConcurrency, err)
	}
	return err
}

func (s *Service) saveEvent(ctx context.Context, tx pgx.Tx, eventType string, fields map[string]any) error {
	event, err := events.NewOutboxEvent(eventType, fields, s.now())
	if err != nil {
		return err
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}
