package repository

//go:generate mockgen -destination=mock_repository.go -package=repository bidding-live/internal/repository AuctionDB

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bidding-live/internal/biddingerrors"
	model "bidding-live/internal/models"

	"github.com/shopspring/decimal"
)

// AuctionDB defines the auction registry and bid ledger storage used by the bidding core
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	// ExpiredAuctions lists active auctions whose end time is not after now
	ExpiredAuctions(ctx context.Context, now time.Time) ([]model.Auction, error)
	// AuctionsBySeller lists a seller's auctions, newest first
	AuctionsBySeller(ctx context.Context, sellerID string) ([]model.Auction, error)

	// CommitBid appends bid to the ledger and raises the auction price to bid.Amount in one
	// step, provided the auction is still active at expectedPrice. Otherwise it returns
	// ErrStaleAuction and changes nothing.
	CommitBid(ctx context.Context, bid model.Bid, expectedPrice decimal.Decimal) error
	GetBid(ctx context.Context, auctionID, bidID string) (model.Bid, error)
	HighestBid(ctx context.Context, auctionID string) (model.Bid, error)
	// BidsFor returns the auction's bids, newest first
	BidsFor(ctx context.Context, auctionID string) ([]model.Bid, error)
	BidsByBuyer(ctx context.Context, buyerID string) ([]model.Bid, error)

	// UpdateStatus moves the auction from one status to another, failing with ErrStaleAuction
	// when the stored status is not from.
	UpdateStatus(ctx context.Context, auctionID string, from, to model.AuctionStatus) error
	// CompleteSale marks an active auction completed with the sale's buyer as winner and
	// stores the sale.
	CompleteSale(ctx context.Context, sale model.Sale) error
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu        sync.RWMutex
	auctions  map[string]model.Auction // key: auctionID
	bids      map[string][]model.Bid   // key: auctionID -> bids in acceptance order
	buyerBids map[string][]model.Bid   // key: buyerID -> bids in acceptance order
	sales     map[string]model.Sale    // key: auctionID
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:  make(map[string]model.Auction),
		bids:      make(map[string][]model.Bid),
		buyerBids: make(map[string][]model.Bid),
		sales:     make(map[string]model.Sale),
	}
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if auction.AuctionID == "" {
		return fmt.Errorf("create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns the auction with the given ID
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// ExpiredAuctions returns active auctions that are past their end time, oldest deadline first
func (r *MemoryRepo) ExpiredAuctions(_ context.Context, now time.Time) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []model.Auction
	for _, a := range r.auctions {
		if a.Status == model.StatusActive && !now.Before(a.EndTime) {
			expired = append(expired, a)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].EndTime.Before(expired[j].EndTime) })
	return expired, nil
}

// AuctionsBySeller returns the seller's auctions, most recently created first
func (r *MemoryRepo) AuctionsBySeller(_ context.Context, sellerID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Auction
	for _, a := range r.auctions {
		if a.SellerID == sellerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].AuctionID < out[j].AuctionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CommitBid records a bid and updates the auction price if nothing changed since it was read
func (r *MemoryRepo) CommitBid(_ context.Context, bid model.Bid, expectedPrice decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[bid.AuctionID]
	if !ok {
		return fmt.Errorf("commit bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if auction.Status != model.StatusActive || !auction.CurrentPrice.Equal(expectedPrice) {
		return fmt.Errorf("commit bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrStaleAuction)
	}

	auction.CurrentPrice = bid.Amount
	auction.UpdatedAt = bid.CreatedAt
	r.auctions[bid.AuctionID] = auction
	r.bids[bid.AuctionID] = append(r.bids[bid.AuctionID], bid)
	r.buyerBids[bid.BuyerID] = append(r.buyerBids[bid.BuyerID], bid)
	return nil
}

// GetBid returns a bid placed on the given auction
func (r *MemoryRepo) GetBid(_ context.Context, auctionID, bidID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.bids[auctionID] {
		if b.BidID == bidID {
			return b, nil
		}
	}
	return model.Bid{}, fmt.Errorf("get bid %s for auction %s: %w", bidID, auctionID, biddingerrors.ErrBidNotFound)
}

// HighestBid returns the highest bid for an auction, the earliest one on ties
func (r *MemoryRepo) HighestBid(_ context.Context, auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.bids[auctionID]
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	highest := bids[0]
	for _, b := range bids[1:] {
		if b.Amount.GreaterThan(highest.Amount) || (b.Amount.Equal(highest.Amount) && b.CreatedAt.Before(highest.CreatedAt)) {
			highest = b
		}
	}
	return highest, nil
}

// BidsFor returns all bids for an auction, newest first
func (r *MemoryRepo) BidsFor(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return newestFirst(r.bids[auctionID]), nil
}

// BidsByBuyer returns all bids a buyer has placed, newest first
func (r *MemoryRepo) BidsByBuyer(_ context.Context, buyerID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return newestFirst(r.buyerBids[buyerID]), nil
}

// UpdateStatus performs a conditional status transition
func (r *MemoryRepo) UpdateStatus(_ context.Context, auctionID string, from, to model.AuctionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return fmt.Errorf("update status of auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if auction.Status != from {
		return fmt.Errorf("update status of auction %s: %w", auctionID, biddingerrors.ErrStaleAuction)
	}

	auction.Status = to
	auction.UpdatedAt = time.Now().UTC()
	r.auctions[auctionID] = auction
	return nil
}

// CompleteSale closes an active auction with a winner and records the sale
func (r *MemoryRepo) CompleteSale(_ context.Context, sale model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[sale.AuctionID]
	if !ok {
		return fmt.Errorf("complete sale for auction %s: %w", sale.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if auction.Status != model.StatusActive {
		return fmt.Errorf("complete sale for auction %s: %w", sale.AuctionID, biddingerrors.ErrStaleAuction)
	}

	winner := sale.BuyerID
	auction.Status = model.StatusCompleted
	auction.WinnerID = &winner
	auction.UpdatedAt = sale.CreatedAt
	r.auctions[sale.AuctionID] = auction
	r.sales[sale.AuctionID] = sale
	return nil
}

// Sale returns the sale recorded for an auction. This method is intended for tests only.
func (r *MemoryRepo) Sale(auctionID string) (model.Sale, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sales[auctionID]
	return s, ok
}

// AddAuction adds an auction to the repository, replacing any existing one. This method is
// intended for tests and seeding only.
func (r *MemoryRepo) AddAuction(auction model.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[auction.AuctionID] = auction
}

func newestFirst(bids []model.Bid) []model.Bid {
	out := make([]model.Bid, len(bids))
	for i, b := range bids {
		out[len(bids)-1-i] = b
	}
	return out
}
