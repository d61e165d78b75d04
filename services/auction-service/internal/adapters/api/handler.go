package api

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/identity"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/items"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/lifecycle"
)

// ItemService is the catalog as seen by the API
type ItemService interface {
	CreateItem(ctx context.Context, actor identity.Actor, cmd items.CreateItemCommand) (*items.Item, error)
	GetItem(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*items.Item, error)
	ListItems(ctx context.Context, actor identity.Actor, query items.ListItemsQuery) ([]*items.Item, error)
	UpdateItem(ctx context.Context, actor identity.Actor, cmd items.UpdateItemCommand) (*items.Item, error)
	ApproveItem(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*items.Item, error)
	RejectItem(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*items.Item, error)
	DeleteItem(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*items.DeleteResult, error)
}

// BidService is the bid ledger as seen by the API
type BidService interface {
	PlaceBid(ctx context.Context, actor identity.Actor, cmd bids.PlaceBidCommand) (*bids.Bid, error)
	CloseAuction(ctx context.Context, actor identity.Actor, itemID uuid.UUID) (*bids.CloseResult, error)
	ListItemBids(ctx context.Context, itemID uuid.UUID) ([]*bids.Bid, error)
	ListUserBids(ctx context.Context, actor identity.Actor, userID uuid.UUID) ([]*bids.Bid, error)
	GetWinningBid(ctx context.Context, itemID uuid.UUID) (*bids.Bid, error)
}

var (
	_ ItemService = (*items.Service)(nil)
	_ BidService  = (*bids.Service)(nil)
)

// AuctionHandler implements lots.v1.AuctionService.
// Every method resolves the actor, parses the request and delegates to a domain service.
type AuctionHandler struct {
	itemService ItemService
	bidService  BidService
}

func NewAuctionHandler(itemService ItemService, bidService BidService) *AuctionHandler {
	return &AuctionHandler{
		itemService: itemService,
		bidService:  bidService,
	}
}

// CreateItem creates a new auction item owned by the caller
func (h *AuctionHandler) CreateItem(
	ctx context.Context,
	req *connect.Request[CreateItemRequest],
) (*connect.Response[CreateItemResponse], error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	endTime, err := time.Parse(time.RFC3339, req.Msg.EndTime)
	if err != nil {
		return nil, invalidArgument(errInvalidEndTime)
	}

	item, err := h.itemService.CreateItem(ctx, actor, items.CreateItemCommand{
		Name:          req.Msg.Name,
		Description:   req.Msg.Description,
		StartingPrice: req.Msg.StartingPrice,
		EndTime:       endTime,
		Status:        lifecycle.Status(req.Msg.Status),
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&CreateItemResponse{Item: mapItem(item)}), nil
}

// GetItem retrieves an item by ID
func (h *AuctionHandler) GetItem(
	ctx context.Context,
	req *connect.Request[GetItemRequest],
) (*connect.Response[GetItemResponse], error) {
	actor, itemID, err := h.target(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	item, err := h.itemService.GetItem(ctx, actor, itemID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&GetItemResponse{Item: mapItem(item)}), nil
}

// ListItems returns a page of the items visible to the caller
func (h *AuctionHandler) ListItems(
	ctx context.Context,
	req *connect.Request[ListItemsRequest],
) (*connect.Response[ListItemsResponse], error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	list, err := h.itemService.ListItems(ctx, actor, items.ListItemsQuery{
		Limit:  int(req.Msg.Limit),
		Offset: int(req.Msg.Offset),
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ListItemsResponse{Items: mapItems(list)}), nil
}

// UpdateItem updates an item's editable fields
func (h *AuctionHandler) UpdateItem(
	ctx context.Context,
	req *connect.Request[UpdateItemRequest],
) (*connect.Response[UpdateItemResponse], error) {
	actor, itemID, err := h.target(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	cmd := items.UpdateItemCommand{
		ItemID:        itemID,
		Name:          req.Msg.Name,
		Description:   req.Msg.Description,
		StartingPrice: req.Msg.StartingPrice,
	}
	if req.Msg.EndTime != nil {
		endTime, err := time.Parse(time.RFC3339, *req.Msg.EndTime)
		if err != nil {
			return nil, invalidArgument(errInvalidEndTime)
		}
		cmd.EndTime = &endTime
	}

	item, err := h.itemService.UpdateItem(ctx, actor, cmd)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&UpdateItemResponse{Item: mapItem(item)}), nil
}

// ApproveItem opens a pending item for bidding
func (h *AuctionHandler) ApproveItem(
	ctx context.Context,
	req *connect.Request[ApproveItemRequest],
) (*connect.Response[ApproveItemResponse], error) {
	actor, itemID, err := h.target(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	item, err := h.itemService.ApproveItem(ctx, actor, itemID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ApproveItemResponse{Item: mapItem(item)}), nil
}

// RejectItem rejects a pending item
func (h *AuctionHandler) RejectItem(
	ctx context.Context,
	req *connect.Request[RejectItemRequest],
) (*connect.Response[RejectItemResponse], error) {
	actor, itemID, err := h.target(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	item, err := h.itemService.RejectItem(ctx, actor, itemID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&RejectItemResponse{Item: mapItem(item)}), nil
}

// DeleteItem removes an item, or cancels it when it already has bids
func (h *AuctionHandler) DeleteItem(
	ctx context.Context,
	req *connect.Request[DeleteItemRequest],
) (*connect.Response[DeleteItemResponse], error) {
	actor, itemID, err := h.target(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	result, err := h.itemService.DeleteItem(ctx, actor, itemID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&DeleteItemResponse{
		Item:      mapItem(result.Item),
		Cancelled: result.Cancelled,
	}), nil
}

// CloseAuction settles an item whose bidding window has elapsed
func (h *AuctionHandler) CloseAuction(
	ctx context.Context,
	req *connect.Request[CloseAuctionRequest],
) (*connect.Response[CloseAuctionResponse], error) {
	actor, itemID, err := h.target(ctx, req.Msg.ID)
	if err != nil {
		return nil, err
	}

	result, err := h.bidService.CloseAuction(ctx, actor, itemID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&CloseAuctionResponse{
		Item:   mapItem(result.Item),
		Winner: mapBid(result.Winner),
	}), nil
}

// PlaceBid submits a bid on an open item
func (h *AuctionHandler) PlaceBid(
	ctx context.Context,
	req *connect.Request[PlaceBidRequest],
) (*connect.Response[PlaceBidResponse], error) {
	actor, itemID, err := h.target(ctx, req.Msg.ItemID)
	if err != nil {
		return nil, err
	}

	bid, err := h.bidService.PlaceBid(ctx, actor, bids.PlaceBidCommand{
		ItemID: itemID,
		Amount: req.Msg.Amount,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&PlaceBidResponse{Bid: mapBid(bid)}), nil
}

// ListItemBids returns every bid of an item, highest first
func (h *AuctionHandler) ListItemBids(
	ctx context.Context,
	req *connect.Request[ListItemBidsRequest],
) (*connect.Response[ListItemBidsResponse], error) {
	itemID, err := uuid.Parse(req.Msg.ItemID)
	if err != nil {
		return nil, invalidArgument(errInvalidID)
	}

	list, err := h.bidService.ListItemBids(ctx, itemID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ListItemBidsResponse{Bids: mapBids(list)}), nil
}

// ListUserBids returns a user's bids, the caller's own by default
func (h *AuctionHandler) ListUserBids(
	ctx context.Context,
	req *connect.Request[ListUserBidsRequest],
) (*connect.Response[ListUserBidsResponse], error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}

	userID := actor.ID
	if req.Msg.UserID != "" {
		userID, err = uuid.Parse(req.Msg.UserID)
		if err != nil {
			return nil, invalidArgument(errInvalidID)
		}
	}

	list, err := h.bidService.ListUserBids(ctx, actor, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ListUserBidsResponse{Bids: mapBids(list)}), nil
}

// GetWinningBid returns the winning bid of a closed item
func (h *AuctionHandler) GetWinningBid(
	ctx context.Context,
	req *connect.Request[GetWinningBidRequest],
) (*connect.Response[GetWinningBidResponse], error) {
	itemID, err := uuid.Parse(req.Msg.ItemID)
	if err != nil {
		return nil, invalidArgument(errInvalidID)
	}

	bid, err := h.bidService.GetWinningBid(ctx, itemID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&GetWinningBidResponse{Bid: mapBid(bid)}), nil
}

// target resolves the actor and parses the id of the item the request acts on
func (h *AuctionHandler) target(ctx context.Context, rawID string) (identity.Actor, uuid.UUID, error) {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return identity.Actor{}, uuid.Nil, toConnectError(err)
	}
	itemID, err := uuid.Parse(rawID)
	if err != nil {
		return identity.Actor{}, uuid.Nil, invalidArgument(errInvalidID)
	}
	return actor, itemID, nil
}
