package api

import (
	"time"

	"github.com/floroz/lotmarket/services/auction-service/internal/domain/bids"
	"github.com/floroz/lotmarket/services/auction-service/internal/domain/items"
)

// Item is the wire form of an item. Status is the effective status.
type Item struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	StartingPrice int64  `json:"starting_price"`
	EndTime       string `json:"end_time"`
	SellerID      string `json:"seller_id"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type Bid struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	UserID    string `json:"user_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type CreateItemRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	StartingPrice int64  `json:"starting_price"`
	EndTime       string `json:"end_time"`
	// Status is honoured for admins only
	Status string `json:"status,omitempty"`
}

type CreateItemResponse struct {
	Item *Item `json:"item"`
}

type GetItemRequest struct {
	ID string `json:"id"`
}

type GetItemResponse struct {
	Item *Item `json:"item"`
}

type ListItemsRequest struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
}

type ListItemsResponse struct {
	Items []*Item `json:"items"`
}

// UpdateItemRequest is a partial update; absent fields are left untouched
type UpdateItemRequest struct {
	ID            string  `json:"id"`
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	StartingPrice *int64  `json:"starting_price,omitempty"`
	EndTime       *string `json:"end_time,omitempty"`
}

type UpdateItemResponse struct {
	Item *Item `json:"item"`
}

type ApproveItemRequest struct {
	ID string `json:"id"`
}

type ApproveItemResponse struct {
	Item *Item `json:"item"`
}

type RejectItemRequest struct {
	ID string `json:"id"`
}

type RejectItemResponse struct {
	Item *Item `json:"item"`
}

type DeleteItemRequest struct {
	ID string `json:"id"`
}

// DeleteItemResponse carries the item as it was removed, or as cancelled when it had bids
type DeleteItemResponse struct {
	Item      *Item `json:"item"`
	Cancelled bool  `json:"cancelled"`
}

type CloseAuctionRequest struct {
	ID string `json:"id"`
}

type CloseAuctionResponse struct {
	Item   *Item `json:"item"`
	Winner *Bid  `json:"winner,omitempty"`
}

type PlaceBidRequest struct {
	ItemID string `json:"item_id"`
	Amount int64  `json:"amount"`
}

type PlaceBidResponse struct {
	Bid *Bid `json:"bid"`
}

type ListItemBidsRequest struct {
	ItemID string `json:"item_id"`
}

type ListItemBidsResponse struct {
	Bids []*Bid `json:"bids"`
}

// ListUserBidsRequest lists the caller's own bids when UserID is empty
type ListUserBidsRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type ListUserBidsResponse struct {
	Bids []*Bid `json:"bids"`
}

type GetWinningBidRequest struct {
	ItemID string `json:"item_id"`
}

type GetWinningBidResponse struct {
	Bid *Bid `json:"bid"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// mapItem converts a domain Item to its wire form
func mapItem(item *items.Item) *Item {
	if item == nil {
		return nil
	}
	return &Item{
		ID:            item.ID.String(),
		Name:          item.Name,
		Description:   item.Description,
		StartingPrice: item.StartingPrice,
		EndTime:       formatTime(item.EndTime),
		SellerID:      item.SellerID.String(),
		Status:        item.Status.String(),
		CreatedAt:     formatTime(item.CreatedAt),
		UpdatedAt:     formatTime(item.UpdatedAt),
	}
}

func mapItems(list []*items.Item) []*Item {
	out := make([]*Item, len(list))
	for i, item := range list {
		out[i] = mapItem(item)
	}
	return out
}

func mapBid(bid *bids.Bid) *Bid {
	if bid == nil {
		return nil
	}
	return &Bid{
		ID:        bid.ID.String(),
		ItemID:    bid.ItemID.String(),
		UserID:    bid.UserID.String(),
		Amount:    bid.Amount,
		Status:    string(bid.Status),
		CreatedAt: formatTime(bid.CreatedAt),
		UpdatedAt: formatTime(bid.UpdatedAt),
	}
}

func mapBids(list []*bids.Bid) []*Bid {
	out := make([]*Bid, len(list))
	for i, bid := range list {
		out[i] = mapBid(bid)
	}
	return out
}
