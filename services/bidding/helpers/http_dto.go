package helpers

import (
	"time"

	model "bidding-live/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs. Amounts travel as decimal strings ("1100.00"); plain JSON numbers
// are accepted on input.

type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type CreateAuctionRequest struct {
	Title         string          `json:"title" binding:"required"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	BidIncrement  decimal.Decimal `json:"bid_increment"`
	EndTime       time.Time       `json:"end_time" binding:"required"`
	Activate      bool            `json:"activate"`
}

type BidResponse struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	BuyerID   string          `json:"buyer_id"`
	BuyerName string          `json:"buyer_name"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt string          `json:"created_at"`
}

type AuctionResponse struct {
	AuctionID     string          `json:"auction_id"`
	SellerID      string          `json:"seller_id"`
	SellerName    string          `json:"seller_name"`
	Title         string          `json:"title"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	BidIncrement  decimal.Decimal `json:"bid_increment"`
	MinimumBid    decimal.Decimal `json:"minimum_bid"`
	Status        string          `json:"status"`
	EndTime       string          `json:"end_time"`
	WinnerID      *string         `json:"winner_id"`
}

type SaleResponse struct {
	SaleID      string          `json:"sale_id"`
	AuctionID   string          `json:"auction_id"`
	BidID       string          `json:"bid_id"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	Amount      decimal.Decimal `json:"amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	CreatedAt   string          `json:"created_at"`
}

type ActiveBidResponse struct {
	BidResponse
	Title        string          `json:"title"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	EndTime      string          `json:"end_time"`
	IsLeading    bool            `json:"is_leading"`
}

type SellerAuctionResponse struct {
	AuctionResponse
	BidCount   int           `json:"bid_count"`
	HighestBid *BidResponse  `json:"highest_bid"`
	Bids       []BidResponse `json:"bids"`
}

func NewBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:     b.BidID,
		AuctionID: b.AuctionID,
		BuyerID:   b.BuyerID,
		BuyerName: b.BuyerName,
		Amount:    b.Amount,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func NewAuctionResponse(a model.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:     a.AuctionID,
		SellerID:      a.SellerID,
		SellerName:    a.SellerName,
		Title:         a.Title,
		StartingPrice: a.StartingPrice,
		CurrentPrice:  a.CurrentPrice,
		BidIncrement:  a.BidIncrement,
		MinimumBid:    a.MinimumBid(),
		Status:        string(a.Status),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		WinnerID:      a.WinnerID,
	}
}

func NewSaleResponse(s model.Sale) SaleResponse {
	return SaleResponse{
		SaleID:      s.SaleID,
		AuctionID:   s.AuctionID,
		BidID:       s.BidID,
		BuyerID:     s.BuyerID,
		SellerID:    s.SellerID,
		Amount:      s.Amount,
		PlatformFee: s.PlatformFee,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func NewActiveBidResponse(a model.ActiveBid) ActiveBidResponse {
	return ActiveBidResponse{
		BidResponse:  NewBidResponse(a.Bid),
		Title:        a.Title,
		CurrentPrice: a.CurrentPrice,
		EndTime:      a.EndTime.UTC().Format(time.RFC3339),
		IsLeading:    a.IsLeading,
	}
}

func NewSellerAuctionResponse(a model.SellerAuction) SellerAuctionResponse {
	resp := SellerAuctionResponse{
		AuctionResponse: NewAuctionResponse(a.Auction),
		BidCount:        len(a.Bids),
		Bids:            make([]BidResponse, 0, len(a.Bids)),
	}
	for _, b := range a.Bids {
		resp.Bids = append(resp.Bids, NewBidResponse(b))
	}
	if a.HighestBid != nil {
		highest := NewBidResponse(*a.HighestBid)
		resp.HighestBid = &highest
	}
	return resp
}
