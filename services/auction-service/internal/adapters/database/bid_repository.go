package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
)

var _ bids.BidRepository = (*PostgresBidRepository)(nil)

const bidColumns = `id, item_id, user_id, amount, status, created_at, updated_at`

// PostgresBidRepository implements bids.BidRepository using pgx
type PostgresBidRepository struct {
	pool *pgxpool.Pool // Keep pool for read-only operations
}

// NewPostgresBidRepository creates a new PostgreSQL bid repository
func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

// SaveBid saves a bid within a transaction
func (r *PostgresBidRepository) SaveBid(ctx context.Context, tx pgx.Tx, bid *bids.Bid) error {
	query := `
		INSERT INTO bids (` + bidColumns + `)
		VALUES ($1, $2, $3, $4, $5::bid_status, $6, $7)
	`
	_, err := tx.Exec(ctx, query,
		bid.ID,
		bid.ItemID,
		bid.UserID,
		bid.Amount,
		string(bid.Status),
		bid.CreatedAt,
		bid.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// GetHighestBid returns the highest non-cancelled bid, or nil when there is none
func (r *PostgresBidRepository) GetHighestBid(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*bids.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE item_id = $1 AND status <> 'cancelled'
		ORDER BY amount DESC, created_at ASC
		LIMIT 1
	`
	rows, err := tx.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query highest bid: %w", err)
	}
	bid, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[bids.Bid])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan highest bid: %w", err)
	}
	return bid, nil
}

// DemoteActiveBids marks the active bids of every other user as outbid
func (r *PostgresBidRepository) DemoteActiveBids(ctx context.Context, tx pgx.Tx, itemID, exceptUserID uuid.UUID, at time.Time) ([]*bids.Bid, error) {
	query := `
		UPDATE bids
		SET status = 'outbid', updated_at = $3
		WHERE item_id = $1 AND status = 'active' AND user_id <> $2
		RETURNING ` + bidColumns
	rows, err := tx.Query(ctx, query, itemID, exceptUserID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to demote bids: %w", err)
	}
	demoted, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[bids.Bid])
	if err != nil {
		return nil, fmt.Errorf("failed to scan demoted bids: %w", err)
	}
	return demoted, nil
}

// SettleBids marks winnerID as winning and every other active bid as outbid
func (r *PostgresBidRepository) SettleBids(ctx context.Context, tx pgx.Tx, itemID, winnerID uuid.UUID, at time.Time) error {
	query := `
		UPDATE bids
		SET status = CASE WHEN id = $2 THEN 'winning'::bid_status ELSE 'outbid'::bid_status END,
		    updated_at = $3
		WHERE item_id = $1 AND (id = $2 OR status = 'active')
	`
	result, err := tx.Exec(ctx, query, itemID, winnerID, at)
	if err != nil {
		return fmt.Errorf("failed to settle bids: %w", err)
	}
	if result.RowsAffected() == 0 {
		return bids.ErrBidNotFound
	}
	return nil
}

// ListBidsByItemID returns the item's bids, highest amount first
func (r *PostgresBidRepository) ListBidsByItemID(ctx context.Context, itemID uuid.UUID) ([]*bids.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE item_id = $1
		ORDER BY amount DESC, created_at ASC
	`
	return r.list(ctx, query, itemID)
}

// ListBidsByUserID returns the user's bids, newest first
func (r *PostgresBidRepository) ListBidsByUserID(ctx context.Context, userID uuid.UUID) ([]*bids.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID)
}

// GetWinningBid returns the highest active or winning bid
func (r *PostgresBidRepository) GetWinningBid(ctx context.Context, itemID uuid.UUID) (*bids.Bid, error) {
	query := `
		SELECT ` + bidColumns + `
		FROM bids
		WHERE item_id = $1 AND status IN ('active', 'winning')
		ORDER BY amount DESC, created_at ASC
		LIMIT 1
	`
	rows, err := r.pool.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query winning bid: %w", err)
	}
	bid, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[bids.Bid])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, bids.ErrBidNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan winning bid: %w", err)
	}
	return bid, nil
}

func (r *PostgresBidRepository) list(ctx context.Context, query string, arg uuid.UUID) ([]*bids.Bid, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	result, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[bids.Bid])
	if err != nil {
		return nil, fmt.Errorf("failed to scan bids: %w", err)
	}
	return result, nil
}
