package bidding

import (
	"context"
	"sync"
	"time"

	"bidding-live/internal/events"
	model "bidding-live/internal/models"

	"github.com/shopspring/decimal"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return baseTime }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	seller = model.Identity{UserID: "seller1", Name: "Sam Seller", Role: model.RoleSeller}
	buyer  = model.Identity{UserID: "buyer1", Name: "Bea Buyer", Role: model.RoleBuyer}
	buyer2 = model.Identity{UserID: "buyer2", Name: "Bo Buyer", Role: model.RoleBuyer}
	admin  = model.Identity{UserID: "admin1", Name: "Ada Admin", Role: model.RoleAdmin}
)

func newAuction(auctionID string, price, increment string) model.Auction {
	return model.Auction{
		AuctionID:     auctionID,
		SellerID:      seller.UserID,
		SellerName:    seller.Name,
		Title:         "Vintage camera",
		StartingPrice: d(price),
		CurrentPrice:  d(price),
		BidIncrement:  d(increment),
		Status:        model.StatusActive,
		EndTime:       baseTime.Add(time.Hour),
		CreatedAt:     baseTime.Add(-time.Hour),
		UpdatedAt:     baseTime.Add(-time.Hour),
	}
}

type sent struct {
	broadcast bool
	key       string
	env       events.Envelope
}

// recorder is a Notifier that keeps every event in emission order
type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) BroadcastToAuction(auctionID string, env events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{broadcast: true, key: auctionID, env: env})
}

func (r *recorder) SendToUser(userID string, env events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{key: userID, env: env})
}

func (r *recorder) ofType(t events.Type) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, s := range r.sent {
		if s.env.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// salesSink is a handoff.Publisher that remembers published sales
type salesSink struct {
	mu    sync.Mutex
	sales []model.Sale
	err   error
}

func (s *salesSink) PublishSale(_ context.Context, sale model.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, sale)
	return s.err
}

func (s *salesSink) published() []model.Sale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Sale(nil), s.sales...)
}
