package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgdb "github.com/floroz/lotmarket/pkg/database"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/items"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
)

var (
	_ items.Repository    = (*PostgresItemRepository)(nil)
	_ bids.ItemRepository = (*PostgresItemRepository)(nil)
)

const itemColumns = `id, name, description, starting_price, end_time, seller_id, status, created_at, updated_at`

// PostgresItemRepository implements items.Repository and bids.ItemRepository using pgx
type PostgresItemRepository struct {
	pool *pgxpool.Pool // Keep pool for non-transactional reads
}

// NewPostgresItemRepository creates a new PostgreSQL item repository
func NewPostgresItemRepository(pool *pgxpool.Pool) *PostgresItemRepository {
	return &PostgresItemRepository{pool: pool}
}

// CreateItem inserts a new item within a transaction
func (r *PostgresItemRepository) CreateItem(ctx context.Context, tx pgx.Tx, item *items.Item) error {
	query := `
		INSERT INTO items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7::item_status, $8, $9)
	`
	_, err := tx.Exec(ctx, query,
		item.ID,
		item.Name,
		item.Description,
		item.StartingPrice,
		item.EndTime,
		item.SellerID,
		string(item.Status),
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// GetItemByID retrieves an item by its ID (non-transactional read)
func (r *PostgresItemRepository) GetItemByID(ctx context.Context, itemID uuid.UUID) (*items.Item, error) {
	return r.getItemByID(ctx, r.pool, itemID, false)
}

// GetItemByIDForUpdate retrieves an item by its ID and locks it for update (transactional)
// This prevents race conditions when multiple users bid on the same item
func (r *PostgresItemRepository) GetItemByIDForUpdate(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (*items.Item, error) {
	return r.getItemByID(ctx, tx, itemID, true)
}

// getItemByID is the internal implementation that works with any DBTX
func (r *PostgresItemRepository) getItemByID(ctx context.Context, db pkgdb.DBTX, itemID uuid.UUID, forUpdate bool) (*items.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var item items.Item
	err := db.QueryRow(ctx, query, itemID).Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.StartingPrice,
		&item.EndTime,
		&item.SellerID,
		&item.Status,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, items.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

// UpdateItem persists an item's editable fields and status
func (r *PostgresItemRepository) UpdateItem(ctx context.Context, tx pgx.Tx, item *items.Item) error {
	query := `
		UPDATE items
		SET name = $1, description = $2, starting_price = $3, end_time = $4,
		    status = $5::item_status, updated_at = $6
		WHERE id = $7
	`
	result, err := tx.Exec(ctx, query,
		item.Name,
		item.Description,
		item.StartingPrice,
		item.EndTime,
		string(item.Status),
		item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return items.ErrItemNotFound
	}
	return nil
}

// UpdateStatus sets the stored status of an item within a transaction
func (r *PostgresItemRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, status lifecycle.Status, at time.Time) error {
	query := `
		UPDATE items
		SET status = $1::item_status, updated_at = $2
		WHERE id = $3
	`
	result, err := tx.Exec(ctx, query, string(status), at, itemID)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return items.ErrItemNotFound
	}
	return nil
}

// DeleteItem physically removes an item
func (r *PostgresItemRepository) DeleteItem(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) error {
	result, err := tx.Exec(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return items.ErrItemNotFound
	}
	return nil
}

// ListItems returns matching items, newest first
func (r *PostgresItemRepository) ListItems(ctx context.Context, filter items.ListFilter) ([]*items.Item, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM items
		WHERE $1::boolean
		   OR (status = 'OPEN' AND end_time > $2)
		   OR seller_id = $3
		ORDER BY created_at DESC, id
		LIMIT $4 OFFSET $5
	`
	// LIMIT NULL means no limit
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	rows, err := r.pool.Query(ctx, query, filter.All, filter.OpenAsOf, filter.SellerID, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}

	result, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[items.Item])
	if err != nil {
		return nil, fmt.Errorf("failed to scan items: %w", err)
	}
	return result, nil
}

// CountBidsByItemID returns the number of bids for a specific item
func (r *PostgresItemRepository) CountBidsByItemID(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (int64, error) {
	var count int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE item_id = $1`, itemID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bids: %w", err)
	}
	return count, nil
}

// CancelBidsByItemID marks every bid of the item as cancelled
func (r *PostgresItemRepository) CancelBidsByItemID(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, at time.Time) error {
	query := `
		UPDATE bids
		SET status = 'cancelled', updated_at = $2
		WHERE item_id = $1 AND status <> 'cancelled'
	`
	if _, err := tx.Exec(ctx, query, itemID, at); err != nil {
		return fmt.Errorf("failed to cancel bids: %w", err)
	}
	return nil
}
