package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"bidding-live/internal/biddingerrors"
	model "bidding-live/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Helper to create a new active Auction
func newAuction(auctionID string, price string) model.Auction {
	return model.Auction{
		AuctionID:     auctionID,
		SellerID:      "seller1",
		SellerName:    "Seller",
		Title:         fmt.Sprintf("Auction %s", auctionID),
		StartingPrice: decimal.RequireFromString(price),
		CurrentPrice:  decimal.RequireFromString(price),
		BidIncrement:  decimal.NewFromInt(1),
		Status:        model.StatusActive,
		EndTime:       t0.Add(time.Hour),
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
}

// Helper to create a new Bid
func newBid(bidID, auctionID, buyerID string, amount string, createdAt time.Time) model.Bid {
	return model.Bid{
		BidID:     bidID,
		AuctionID: auctionID,
		BuyerID:   buyerID,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: createdAt,
	}
}

func TestMemoryRepo_CreateAuction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewMemoryRepo()

	require.NoError(t, repo.CreateAuction(ctx, newAuction("a1", "10")))
	require.ErrorIs(t, repo.CreateAuction(ctx, newAuction("a1", "10")), biddingerrors.ErrAuctionExists)
	require.ErrorIs(t, repo.CreateAuction(ctx, newAuction("", "10")), biddingerrors.ErrInvalidAuction)

	got, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "Auction a1", got.Title)

	_, err = repo.GetAuction(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)
}

// Test CommitBid
func TestMemoryRepo_CommitBid(t *testing.T) {
	t.Parallel()

	closed := newAuction("closed", "10")
	closed.Status = model.StatusCompleted

	tests := []struct {
		name          string
		bid           model.Bid
		expectedPrice string
		wantError     error
	}{
		{name: "valid_bid", bid: newBid("b1", "a1", "u1", "11", t0), expectedPrice: "10"},
		{name: "auction_not_found", bid: newBid("b2", "missing", "u1", "11", t0), expectedPrice: "10", wantError: biddingerrors.ErrAuctionNotFound},
		{name: "stale_price", bid: newBid("b3", "a1", "u1", "11", t0), expectedPrice: "9", wantError: biddingerrors.ErrStaleAuction},
		{name: "not_active", bid: newBid("b4", "closed", "u1", "11", t0), expectedPrice: "10", wantError: biddingerrors.ErrStaleAuction},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			repo := NewMemoryRepo()
			repo.AddAuction(newAuction("a1", "10"))
			repo.AddAuction(closed)

			err := repo.CommitBid(ctx, tc.bid, decimal.RequireFromString(tc.expectedPrice))
			if tc.wantError != nil {
				require.ErrorIs(t, err, tc.wantError)
				if a, getErr := repo.GetAuction(ctx, tc.bid.AuctionID); getErr == nil {
					require.False(t, a.CurrentPrice.Equal(tc.bid.Amount), "failed commit must not move the price")
				}
				return
			}

			require.NoError(t, err)
			a, err := repo.GetAuction(ctx, tc.bid.AuctionID)
			require.NoError(t, err)
			require.True(t, a.CurrentPrice.Equal(tc.bid.Amount))

			bids, err := repo.BidsFor(ctx, tc.bid.AuctionID)
			require.NoError(t, err)
			require.Equal(t, []model.Bid{tc.bid}, bids)

			byBuyer, err := repo.BidsByBuyer(ctx, tc.bid.BuyerID)
			require.NoError(t, err)
			require.Equal(t, []model.Bid{tc.bid}, byBuyer)
		})
	}

	// only one of many commits against the same price wins
	t.Run("concurrent_commits_same_price", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()

		repo := NewMemoryRepo()
		repo.AddAuction(newAuction("a1", "10"))

		var wg sync.WaitGroup
		var mu sync.Mutex
		won := 0
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				b := newBid(fmt.Sprintf("bid-%d", i), "a1", fmt.Sprintf("user-%d", i), fmt.Sprintf("%d", 11+i), t0)
				if repo.CommitBid(ctx, b, decimal.NewFromInt(10)) == nil {
					mu.Lock()
					won++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		require.Equal(t, 1, won)
		bids, err := repo.BidsFor(ctx, "a1")
		require.NoError(t, err)
		require.Len(t, bids, 1)
	})
}

// Test BidsFor
func TestMemoryRepo_BidsFor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	repo.AddAuction(newAuction("a1", "10"))
	repo.AddAuction(newAuction("a2", "10"))

	b1 := newBid("b1", "a1", "u1", "11", t0)
	b2 := newBid("b2", "a1", "u2", "12", t0.Add(time.Second))
	b3 := newBid("b3", "a1", "u1", "13", t0.Add(2*time.Second))
	require.NoError(t, repo.CommitBid(ctx, b1, decimal.NewFromInt(10)))
	require.NoError(t, repo.CommitBid(ctx, b2, decimal.NewFromInt(11)))
	require.NoError(t, repo.CommitBid(ctx, b3, decimal.NewFromInt(12)))

	tests := []struct {
		name      string
		auctionID string
		want      []model.Bid
		wantError error
	}{
		{name: "newest_first", auctionID: "a1", want: []model.Bid{b3, b2, b1}},
		{name: "no_bids", auctionID: "a2", want: []model.Bid{}},
		{name: "unknown_auction", auctionID: "nope", wantError: biddingerrors.ErrAuctionNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			bids, err := repo.BidsFor(ctx, tc.auctionID)
			if tc.wantError != nil {
				require.ErrorIs(t, err, tc.wantError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, bids)
		})
	}

	t.Run("by_buyer", func(t *testing.T) {
		bids, err := repo.BidsByBuyer(ctx, "u1")
		require.NoError(t, err)
		require.Equal(t, []model.Bid{b3, b1}, bids)

		none, err := repo.BidsByBuyer(ctx, "nobody")
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("get_bid", func(t *testing.T) {
		got, err := repo.GetBid(ctx, "a1", "b2")
		require.NoError(t, err)
		require.Equal(t, b2, got)

		_, err = repo.GetBid(ctx, "a2", "b2")
		require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
	})
}

// Test HighestBid
func TestMemoryRepo_HighestBid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	repo.AddAuction(newAuction("a1", "10"))
	repo.AddAuction(newAuction("empty", "10"))

	require.NoError(t, repo.CommitBid(ctx, newBid("b1", "a1", "u1", "11", t0), decimal.NewFromInt(10)))
	require.NoError(t, repo.CommitBid(ctx, newBid("b2", "a1", "u2", "25.50", t0.Add(time.Second)), decimal.NewFromInt(11)))

	highest, err := repo.HighestBid(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "b2", highest.BidID)

	_, err = repo.HighestBid(ctx, "empty")
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)
}

func TestMemoryRepo_StatusTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	draft := newAuction("a1", "10")
	draft.Status = model.StatusDraft
	repo.AddAuction(draft)

	require.ErrorIs(t, repo.UpdateStatus(ctx, "a1", model.StatusActive, model.StatusCancelled), biddingerrors.ErrStaleAuction)
	require.NoError(t, repo.UpdateStatus(ctx, "a1", model.StatusDraft, model.StatusActive))
	require.ErrorIs(t, repo.UpdateStatus(ctx, "missing", model.StatusDraft, model.StatusActive), biddingerrors.ErrAuctionNotFound)

	bid := newBid("b1", "a1", "u1", "40", t0)
	require.NoError(t, repo.CommitBid(ctx, bid, decimal.NewFromInt(10)))

	sale := model.Sale{SaleID: "s1", AuctionID: "a1", BidID: "b1", BuyerID: "u1", SellerID: "seller1", Amount: bid.Amount, CreatedAt: t0}
	require.NoError(t, repo.CompleteSale(ctx, sale))
	require.ErrorIs(t, repo.CompleteSale(ctx, sale), biddingerrors.ErrStaleAuction)

	a, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, a.Status)
	require.Equal(t, "u1", *a.WinnerID)

	stored, ok := repo.Sale("a1")
	require.True(t, ok)
	require.Equal(t, sale, stored)

	require.ErrorIs(t, repo.CommitBid(ctx, newBid("b2", "a1", "u2", "50", t0), decimal.NewFromInt(40)), biddingerrors.ErrStaleAuction)
}

func TestMemoryRepo_ExpiredAuctions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	early := newAuction("early", "10")
	early.EndTime = t0.Add(-time.Hour)
	onTime := newAuction("on-time", "10")
	onTime.EndTime = t0
	later := newAuction("later", "10")
	later.EndTime = t0.Add(time.Minute)
	done := newAuction("done", "10")
	done.EndTime = t0.Add(-2 * time.Hour)
	done.Status = model.StatusCancelled
	for _, a := range []model.Auction{later, onTime, done, early} {
		repo.AddAuction(a)
	}

	expired, err := repo.ExpiredAuctions(ctx, t0)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	require.Equal(t, "early", expired[0].AuctionID)
	require.Equal(t, "on-time", expired[1].AuctionID)
}

func TestMemoryRepo_AuctionsBySeller(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	repo := NewMemoryRepo()
	first := newAuction("first", "10")
	second := newAuction("second", "10")
	second.CreatedAt = t0.Add(time.Minute)
	other := newAuction("other", "10")
	other.SellerID = "seller2"
	for _, a := range []model.Auction{first, other, second} {
		repo.AddAuction(a)
	}

	got, err := repo.AuctionsBySeller(ctx, "seller1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "second", got[0].AuctionID)
	require.Equal(t, "first", got[1].AuctionID)

	none, err := repo.AuctionsBySeller(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, none)
}
