package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the privilege level an authenticated user acts with
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// Identity is what a credential resolves to
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// HasRole reports whether the identity holds any of the given roles
func (i Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// AuctionStatus is the lifecycle state of an auction.
// Transitions only move forward: draft -> active -> completed | cancelled.
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "draft"
	StatusActive    AuctionStatus = "active"
	StatusCompleted AuctionStatus = "completed"
	StatusCancelled AuctionStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses
func (s AuctionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition can leave s
func (s AuctionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether moving from s to next is allowed
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusActive
	case StatusActive:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

// Auction represents a single item listed for sale
type Auction struct {
	AuctionID     string          `json:"auction_id"`
	SellerID      string          `json:"seller_id"`
	SellerName    string          `json:"seller_name"`
	Title         string          `json:"title"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	BidIncrement  decimal.Decimal `json:"bid_increment"`
	Status        AuctionStatus   `json:"status"`
	EndTime       time.Time       `json:"end_time"`
	WinnerID      *string         `json:"winner_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MinimumBid is the lowest amount the next bid may offer
func (a Auction) MinimumBid() decimal.Decimal {
	return a.CurrentPrice.Add(a.BidIncrement)
}

// Bid represents an accepted offer on an auction. Bids are never mutated.
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	BuyerID   string          `json:"buyer_id"`
	BuyerName string          `json:"buyer_name"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// Sale records the accepted bid that completed an auction
type Sale struct {
	SaleID      string          `json:"sale_id"`
	AuctionID   string          `json:"auction_id"`
	BidID       string          `json:"bid_id"`
	BuyerID     string          `json:"buyer_id"`
	BuyerName   string          `json:"buyer_name"`
	SellerID    string          `json:"seller_id"`
	SellerName  string          `json:"seller_name"`
	Amount      decimal.Decimal `json:"amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	CreatedAt   time.Time       `json:"created_at"`
}

var platformFeeRate = decimal.RequireFromString("0.05")

// PlatformFeeFor returns the marketplace cut for a sale of the given amount
func PlatformFeeFor(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(platformFeeRate).Round(2)
}

// SellerAuction is one of a seller's running auctions with its bids, highest first
type SellerAuction struct {
	Auction
	Bids       []Bid `json:"bids"`
	HighestBid *Bid  `json:"highest_bid"`
}

// ActiveBid is a buyer's bid on a still running auction
type ActiveBid struct {
	Bid
	Title        string          `json:"title"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	EndTime      time.Time       `json:"end_time"`
	IsLeading    bool            `json:"is_leading"`
}
