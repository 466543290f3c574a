package handler

//go:generate mockgen -destination=mock_bidding_handler.go -package=handler bidding-live/services/bidding/handler BiddingServiceInterface

import (
	"context"
	"errors"
	"net/http"

	bidding "bidding-live/internal/biddingService"
	"bidding-live/internal/biddingerrors"
	model "bidding-live/internal/models"
	"bidding-live/services/bidding/helpers"
	"bidding-live/utils"

	"github.com/gin-gonic/gin"
)

type BiddingServiceInterface interface {
	CreateAuction(ctx context.Context, cmd bidding.CreateAuctionCommand) (model.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ActivateAuction(ctx context.Context, auctionID string, actor model.Identity) (model.Auction, error)
	CancelAuction(ctx context.Context, auctionID string, actor model.Identity) (model.Auction, error)
	PlaceBid(ctx context.Context, cmd bidding.PlaceBidCommand) (model.Bid, error)
	AcceptBid(ctx context.Context, cmd bidding.AcceptBidCommand) (model.Sale, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetActiveBids(ctx context.Context, buyerID string) ([]model.ActiveBid, error)
	GetBidsByBuyer(ctx context.Context, buyerID string) ([]model.Bid, error)
	GetSellerAuctions(ctx context.Context, seller model.Identity) ([]model.SellerAuction, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	seller, ok := helpers.MustIdentity(c, "CreateAuctionHandler")
	if !ok {
		return
	}
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), bidding.CreateAuctionCommand{
		Seller:        seller,
		Title:         req.Title,
		StartingPrice: req.StartingPrice,
		BidIncrement:  req.BidIncrement,
		EndTime:       req.EndTime,
		Activate:      req.Activate,
	})
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"seller_id": seller.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewAuctionResponse(auction), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": auction.AuctionID,
		"seller_id":  seller.UserID,
		"status":     auction.Status,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(auction), "auction retrieved successfully")
}

// ActivateAuctionHandler handles POST /auctions/:auction_id/activate
func (h *BiddingHandler) ActivateAuctionHandler(c *gin.Context) {
	h.transition(c, "ActivateAuctionHandler", "auction activated successfully", h.service.ActivateAuction)
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *BiddingHandler) CancelAuctionHandler(c *gin.Context) {
	h.transition(c, "CancelAuctionHandler", "auction cancelled successfully", h.service.CancelAuction)
}

func (h *BiddingHandler) transition(c *gin.Context, handlerName, message string,
	apply func(context.Context, string, model.Identity) (model.Auction, error)) {
	actor, ok := helpers.MustIdentity(c, handlerName)
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")

	auction, err := apply(c.Request.Context(), auctionID, actor)
	if err != nil {
		helpers.RespondError(c, handlerName, err, map[string]any{"auction_id": auctionID, "user_id": actor.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(auction), message)
	helpers.LogSuccess(handlerName, message, map[string]any{"auction_id": auctionID, "user_id": actor.UserID})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	buyer, ok := helpers.MustIdentity(c, "PlaceBidHandler")
	if !ok {
		return
	}
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}
	auctionID := c.Param("auction_id")

	bid, err := h.service.PlaceBid(c.Request.Context(), bidding.PlaceBidCommand{
		AuctionID: auctionID,
		Buyer:     buyer,
		Amount:    req.Amount,
	})
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"buyer_id":   buyer.UserID,
			"amount":     req.Amount.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewBidResponse(bid), "bid recorded successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"buyer_id":   bid.BuyerID,
		"amount":     bid.Amount.String(),
	})
}

// AcceptBidHandler handles POST /auctions/:auction_id/accept/:bid_id
func (h *BiddingHandler) AcceptBidHandler(c *gin.Context) {
	actor, ok := helpers.MustIdentity(c, "AcceptBidHandler")
	if !ok {
		return
	}
	auctionID, bidID := c.Param("auction_id"), c.Param("bid_id")

	sale, err := h.service.AcceptBid(c.Request.Context(), bidding.AcceptBidCommand{
		AuctionID: auctionID,
		BidID:     bidID,
		Actor:     actor,
	})
	if err != nil {
		helpers.RespondError(c, "AcceptBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"bid_id":     bidID,
			"user_id":    actor.UserID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewSaleResponse(sale), "bid accepted successfully")
	helpers.LogSuccess("AcceptBidHandler", "bid accepted successfully", map[string]any{
		"auction_id": auctionID,
		"sale_id":    sale.SaleID,
		"amount":     sale.Amount.String(),
	})
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(c.Request.Context(), auctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		helpers.RespondError(c, "GetBidsByAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.NewBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponse(bid), "winning bid retrieved successfully")
}

// GetMyActiveBidsHandler handles GET /me/bids/active
func (h *BiddingHandler) GetMyActiveBidsHandler(c *gin.Context) {
	buyer, ok := helpers.MustIdentity(c, "GetMyActiveBidsHandler")
	if !ok {
		return
	}

	active, err := h.service.GetActiveBids(c.Request.Context(), buyer.UserID)
	if err != nil {
		helpers.RespondError(c, "GetMyActiveBidsHandler", err, map[string]any{"buyer_id": buyer.UserID})
		return
	}

	resp := make([]helpers.ActiveBidResponse, 0, len(active))
	for _, a := range active {
		resp = append(resp, helpers.NewActiveBidResponse(a))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "active bids retrieved successfully")
	helpers.LogSuccess("GetMyActiveBidsHandler", "active bids retrieved successfully", map[string]any{
		"buyer_id": buyer.UserID,
		"count":    len(resp),
	})
}

// GetMyBidsHandler handles GET /me/bids
func (h *BiddingHandler) GetMyBidsHandler(c *gin.Context) {
	buyer, ok := helpers.MustIdentity(c, "GetMyBidsHandler")
	if !ok {
		return
	}

	bids, err := h.service.GetBidsByBuyer(c.Request.Context(), buyer.UserID)
	if err != nil {
		helpers.RespondError(c, "GetMyBidsHandler", err, map[string]any{"buyer_id": buyer.UserID})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.NewBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetMyBidsHandler", "bids retrieved successfully", map[string]any{
		"buyer_id": buyer.UserID,
		"count":    len(resp),
	})
}

// GetMyAuctionsHandler handles GET /me/auctions
func (h *BiddingHandler) GetMyAuctionsHandler(c *gin.Context) {
	seller, ok := helpers.MustIdentity(c, "GetMyAuctionsHandler")
	if !ok {
		return
	}

	auctions, err := h.service.GetSellerAuctions(c.Request.Context(), seller)
	if err != nil {
		helpers.RespondError(c, "GetMyAuctionsHandler", err, map[string]any{"seller_id": seller.UserID})
		return
	}

	resp := make([]helpers.SellerAuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		resp = append(resp, helpers.NewSellerAuctionResponse(a))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "auctions retrieved successfully")
	helpers.LogSuccess("GetMyAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"seller_id": seller.UserID,
		"count":     len(resp),
	})
}
