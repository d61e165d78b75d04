package api

import (
	"net/http"

	"connectrpc.com/connect"
)

// AuctionServiceName is the fully-qualified name of the RPC service
const AuctionServiceName = "lots.v1.AuctionService"

// Procedure paths, one per RPC
const (
	CreateItemProcedure    = "/" + AuctionServiceName + "/CreateItem"
	GetItemProcedure       = "/" + AuctionServiceName + "/GetItem"
	ListItemsProcedure     = "/" + AuctionServiceName + "/ListItems"
	UpdateItemProcedure    = "/" + AuctionServiceName + "/UpdateItem"
	ApproveItemProcedure   = "/" + AuctionServiceName + "/ApproveItem"
	RejectItemProcedure    = "/" + AuctionServiceName + "/RejectItem"
	DeleteItemProcedure    = "/" + AuctionServiceName + "/DeleteItem"
	CloseAuctionProcedure  = "/" + AuctionServiceName + "/CloseAuction"
	PlaceBidProcedure      = "/" + AuctionServiceName + "/PlaceBid"
	ListItemBidsProcedure  = "/" + AuctionServiceName + "/ListItemBids"
	ListUserBidsProcedure  = "/" + AuctionServiceName + "/ListUserBids"
	GetWinningBidProcedure = "/" + AuctionServiceName + "/GetWinningBid"
)

// NewAuctionServiceHandler builds an HTTP handler for every procedure of h.
// It returns the path to mount the handler on.
func NewAuctionServiceHandler(h *AuctionHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateItemProcedure, connect.NewUnaryHandler(CreateItemProcedure, h.CreateItem, opts...))
	mux.Handle(GetItemProcedure, connect.NewUnaryHandler(GetItemProcedure, h.GetItem, opts...))
	mux.Handle(ListItemsProcedure, connect.NewUnaryHandler(ListItemsProcedure, h.ListItems, opts...))
	mux.Handle(UpdateItemProcedure, connect.NewUnaryHandler(UpdateItemProcedure, h.UpdateItem, opts...))
	mux.Handle(ApproveItemProcedure, connect.NewUnaryHandler(ApproveItemProcedure, h.ApproveItem, opts...))
	mux.Handle(RejectItemProcedure, connect.NewUnaryHandler(RejectItemProcedure, h.RejectItem, opts...))
	mux.Handle(DeleteItemProcedure, connect.NewUnaryHandler(DeleteItemProcedure, h.DeleteItem, opts...))
	mux.Handle(CloseAuctionProcedure, connect.NewUnaryHandler(CloseAuctionProcedure, h.CloseAuction, opts...))
	mux.Handle(PlaceBidProcedure, connect.NewUnaryHandler(PlaceBidProcedure, h.PlaceBid, opts...))
	mux.Handle(ListItemBidsProcedure, connect.NewUnaryHandler(ListItemBidsProcedure, h.ListItemBids, opts...))
	mux.Handle(ListUserBidsProcedure, connect.NewUnaryHandler(ListUserBidsProcedure, h.ListUserBids, opts...))
	mux.Handle(GetWinningBidProcedure, connect.NewUnaryHandler(GetWinningBidProcedure, h.GetWinningBid, opts...))

	return "/" + AuctionServiceName + "/", mux
}
