package items

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/floroz/lotmarket/pkg/database"
	"github.com/floroz/lotmarket/pkg/events"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/failure"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/identity"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/policy"
)

// Service errors
var (
	ErrItemNotFound         = fmt.Errorf("%w: item not found", failure.ErrNotFound)
	ErrNameRequired         = fmt.Errorf("%w: name is required", failure.ErrValidation)
	ErrInvalidStartingPrice = fmt.Errorf("%w: starting price must not be negative", failure.ErrValidation)
	ErrInvalidEndTime       = fmt.Errorf("%w: end time must be in the future", failure.ErrValidation)
	ErrInvalidStatus        = fmt.Errorf("%w: unknown item status", failure.ErrValidation)
	ErrStartingPriceLocked  = fmt.Errorf("%w: starting price cannot change once the item has bids", failure.ErrConflict)
	ErrInvalidPagination    = fmt.Errorf("%w: limit and offset must not be negative", failure.ErrValidation)
	ErrNothingToUpdate      = fmt.Errorf("%w: no fields to update", failure.ErrValidation)
)

// Outbox event types
const (
	EventTypeItemCreated   = "item.created"
	EventTypeItemUpdated   = "item.updated"
	EventTypeItemApproved  = "item.approved"
	EventTypeItemRejected  = "item.rejected"
	EventTypeItemCancelled = "item.cancelled"
	EventTypeItemDeleted   = "item.deleted"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// CreateItemCommand represents the command to create a new item.
// Status is honoured only for admins; empty means OPEN.
type CreateItemCommand struct {
	Name          string
	Description   string
	StartingPrice int64
	EndTime       time.Time
	Status        lifecycle.Status
}

// UpdateItemCommand is a partial update; nil fields are left untouched
type UpdateItemCommand struct {
	ItemID        uuid.UUID
	Name          *string
	Description   *string
	StartingPrice *int64
	EndTime       *time.Time
}

// ListItemsQuery represents pagination parameters for listing items
type ListItemsQuery struct {
	Limit  int
	Offset int
}

// DeleteResult tells whether the item was removed or, having bids, cancelled
type DeleteResult struct {
	Item      *Item
	Cancelled bool
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service implements the item lifecycle
type Service struct {
	txManager  database.TransactionManager
	repo       Repository
	outboxRepo OutboxRepository
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new item service
func NewService(
	txManager database.TransactionManager,
	repo Repository,
	outboxRepo OutboxRepository,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		txManager:  txManager,
		repo:       repo,
		outboxRepo: outboxRepo,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateItem creates a new auction item owned by the actor
func (s *Service) CreateItem(ctx context.Context, actor identity.Actor, cmd CreateItemCommand) (*Item, error) {
	if err := policy.Authorize(actor, policy.ActionCreateItem, policy.Resource{}); err != nil {
		return nil, err
	}

	now := s.now()
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if cmd.StartingPrice < 0 {
		return nil, ErrInvalidStartingPrice
	}
	if !cmd.EndTime.After(now) {
		return nil, ErrInvalidEndTime
	}

	status := lifecycle.StatusPendingApproval
	if actor.IsAdmin() {
		status = lifecycle.StatusOpen
		if cmd.Status != "" {
			if !cmd.Status.IsValid() {
				return nil, ErrInvalidStatus
			}
			status = cmd.Status
		}
	}

	item := &Item{
		ID:            uuid.New(),
		Name:          name,
		Description:   cmd.Description,
		StartingPrice: cmd.StartingPrice,
		EndTime:       cmd.EndTime,
		SellerID:      actor.ID,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.CreateItem(ctx, tx, item); err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		return s.saveEvent(ctx, tx, EventTypeItemCreated, item, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Item created", "item_id", item.ID, "seller_id", item.SellerID, "status", item.Status)
	return item.AsOf(now), nil
}

// GetItem retrieves an item with its effective status.
// Items the actor may not see are reported as not found.
func (s *Service) GetItem(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*Item, error) {
	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !policy.Allowed(actor, policy.ActionViewItem, item.Resource(now)) {
		return nil, ErrItemNotFound
	}
	return item.AsOf(now), nil
}

// ListItems returns the items visible to the actor, newest first
func (s *Service) ListItems(ctx context.Context, actor identity.Actor, query ListItemsQuery) ([]*Item, error) {
	if query.Limit < 0 || query.Offset < 0 {
		return nil, ErrInvalidPagination
	}
	limit := query.Limit
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	now := s.now()
	filter := ListFilter{
		OpenAsOf: now,
		Limit:    limit,
		Offset:   query.Offset,
	}
	switch {
	case actor.IsAdmin():
		filter.All = true
	case !actor.IsAnonymous() && actor.Role == identity.RoleCreator:
		filter.SellerID = actor.ID
	}

	found, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	result := make([]*Item, 0, len(found))
	for _, item := range found {
		result = append(result, item.AsOf(now))
	}
	return result, nil
}

// UpdateItem applies a partial update to an item's editable fields
func (s *Service) UpdateItem(ctx context.Context, actor identity.Actor, cmd UpdateItemCommand) (*Item, error) {
	now := s.now()
	if err := validateUpdate(cmd, now); err != nil {
		return nil, err
	}

	var updated *Item
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		item, err := s.repo.GetItemByIDForUpdate(ctx, tx, cmd.ItemID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(actor, policy.ActionUpdateItem, item.Resource(now)); err != nil {
			return err
		}

		if cmd.StartingPrice != nil && *cmd.StartingPrice != item.StartingPrice {
			count, err := s.repo.CountBidsByItemID(ctx, tx, item.ID)
			if err != nil {
				return fmt.Errorf("failed to check bids: %w", err)
			}
			if count > 0 {
				return ErrStartingPriceLocked
			}
			item.StartingPrice = *cmd.StartingPrice
		}
		if cmd.Name != nil {
			item.Name = strings.TrimSpace(*cmd.Name)
		}
		if cmd.Description != nil {
			item.Description = *cmd.Description
		}
		if cmd.EndTime != nil {
			item.EndTime = *cmd.EndTime
		}
		item.UpdatedAt = now

		if err := s.repo.UpdateItem(ctx, tx, item); err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}
		updated = item
		return s.saveEvent(ctx, tx, EventTypeItemUpdated, item, nil)
	})
	if err != nil {
		return nil, err
	}

	return updated.AsOf(now), nil
}

func validateUpdate(cmd UpdateItemCommand, now time.Time) error {
	if cmd.Name == nil && cmd.Description == nil && cmd.StartingPrice == nil && cmd.EndTime == nil {
		return ErrNothingToUpdate
	}
	if cmd.Name != nil && strings.TrimSpace(*cmd.Name) == "" {
		return ErrNameRequired
	}
	if cmd.StartingPrice != nil && *cmd.StartingPrice < 0 {
		return ErrInvalidStartingPrice
	}
	if cmd.EndTime != nil && !cmd.EndTime.After(now) {
		return ErrInvalidEndTime
	}
	return nil
}

// ApproveItem moves a pending item to OPEN
func (s *Service) ApproveItem(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*Item, error) {
	return s.review(ctx, actor, itemID, policy.ActionApproveItem, lifecycle.EventApprove, EventTypeItemApproved)
}

// RejectItem moves a pending item to REJECTED
func (s *Service) RejectItem(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*Item, error) {
	return s.review(ctx, actor, itemID, policy.ActionRejectItem, lifecycle.EventReject, EventTypeItemRejected)
}

func (s *Service) review(
	ctx context.Context,
	actor identity.Actor,
	itemID uuid.UUID,
	action policy.Action,
	ev lifecycle.Event,
	eventType string,
) (*Item, error) {
	if err := policy.Authorize(actor, action, policy.Resource{}); err != nil {
		return nil, err
	}

	now := s.now()
	var reviewed *Item
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		item, err := s.repo.GetItemByIDForUpdate(ctx, tx, itemID)
		if err != nil {
			return err
		}

		next, err := lifecycle.Next(item.Status, ev)
		if err != nil {
			return err
		}
		item.Status = next
		item.UpdatedAt = now

		if err := s.repo.UpdateItem(ctx, tx, item); err != nil {
			return fmt.Errorf("failed to update item status: %w", err)
		}
		reviewed = item
		return s.saveEvent(ctx, tx, eventType, item, map[string]any{"reviewer_id": actor.ID.String()})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Item reviewed", "item_id", itemID, "status", reviewed.Status, "reviewer_id", actor.ID)
	return reviewed.AsOf(now), nil
}

// DeleteItem removes an item, or cancels it together with its bids when it has any
func (s *Service) DeleteItem(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*DeleteResult, error) {
	now := s.now()
	var result *DeleteResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		item, err := s.repo.GetItemByIDForUpdate(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if err := policy.Authorize(actor, policy.ActionDeleteItem, item.Resource(now)); err != nil {
			return err
		}

		count, err := s.repo.CountBidsByItemID(ctx, tx, itemID)
		if err != nil {
			return fmt.Errorf("failed to check bids: %w", err)
		}

		if count == 0 {
			if err := s.repo.DeleteItem(ctx, tx, itemID); err != nil {
				return fmt.Errorf("failed to delete item: %w", err)
			}
			result = &DeleteResult{Item: item.AsOf(now)}
			return s.saveEvent(ctx, tx, EventTypeItemDeleted, item, nil)
		}

		next, err := lifecycle.Next(item.EffectiveStatus(now), lifecycle.EventCancel)
		if err != nil {
			return err
		}
		item.Status = next
		item.UpdatedAt = now
		if err := s.repo.UpdateItem(ctx, tx, item); err != nil {
			return fmt.Errorf("failed to cancel item: %w", err)
		}
		if err := s.repo.CancelBidsByItemID(ctx, tx, itemID, now); err != nil {
			return fmt.Errorf("failed to cancel bids: %w", err)
		}
		result = &DeleteResult{Item: item.AsOf(now), Cancelled: true}
		return s.saveEvent(ctx, tx, EventTypeItemCancelled, item, map[string]any{"bid_count": count})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Item deleted", "item_id", itemID, "cancelled", result.Cancelled, "actor_id", actor.ID)
	return result, nil
}

func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // Rollback if commit is not called
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) saveEvent(ctx context.Context, tx pgx.Tx, eventType string, item *Item, extra map[string]any) error {
	fields := map[string]any{
		"item_id":   item.ID.String(),
		"seller_id": item.SellerID.String(),
		"status":    item.Status.String(),
	}
	for k, v := range extra {
		fields[k] = v
	}

	event, err := events.NewOutboxEvent(eventType, fields, s.now())
	if err != nil {
		return err
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}
