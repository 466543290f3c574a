// Package events defines the messages pushed to auction watchers and users.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type tags an envelope so clients can dispatch on it
type Type string

const (
	TypeConnected          Type = "connected"
	TypePong               Type = "pong"
	TypeNewBid             Type = "new_bid"
	TypeProductSold        Type = "product_sold"
	TypeAuctionEnded       Type = "auction_ended"
	TypeSellerNotification Type = "seller_notification"
	TypeBuyerNotification  Type = "buyer_notification"
)

// Envelope is the frame written to a connection
type Envelope struct {
	Type      Type      `json:"type"`
	AuctionID string    `json:"auction_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBid is broadcast to watchers when a bid is admitted
type NewBid struct {
	AuctionID string          `json:"auction_id"`
	BidID     string          `json:"bid_id"`
	Amount    decimal.Decimal `json:"amount"`
	BuyerID   string          `json:"buyer_id"`
	BuyerName string          `json:"buyer_name"`
}

// ProductSold is broadcast to watchers when the seller accepts a bid
type ProductSold struct {
	AuctionID  string          `json:"auction_id"`
	Amount     decimal.Decimal `json:"amount"`
	WinnerName string          `json:"winner_name"`
	SellerName string          `json:"seller_name"`
}

// Winner describes who won an auction that ended on its deadline
type Winner struct {
	BuyerID   string          `json:"buyer_id"`
	BuyerName string          `json:"buyer_name"`
	Amount    decimal.Decimal `json:"amount"`
}

// AuctionEnded is broadcast when an auction closes without seller acceptance.
// Winner is nil when nobody bid.
type AuctionEnded struct {
	AuctionID string  `json:"auction_id"`
	Winner    *Winner `json:"winner"`
}

// SellerNotification is addressed to the seller of an auction
type SellerNotification struct {
	Message   string          `json:"message"`
	AuctionID string          `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
	BuyerName string          `json:"buyer_name"`
}

// BuyerNotification is addressed to a winning buyer
type BuyerNotification struct {
	Message       string          `json:"message"`
	AuctionID     string          `json:"auction_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
}

// Connected acknowledges a freshly opened stream
type Connected struct {
	Message       string `json:"message"`
	UserID        string `json:"user_id,omitempty"`
	ActiveViewers *int   `json:"active_viewers,omitempty"`
}

// New wraps a payload in an envelope stamped with now
func New(t Type, auctionID string, data any, now time.Time) Envelope {
	return Envelope{Type: t, AuctionID: auctionID, Data: data, Timestamp: now.UTC()}
}
