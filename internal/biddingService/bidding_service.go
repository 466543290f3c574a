package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bidding-live/internal/biddingerrors"
	"bidding-live/internal/events"
	"bidding-live/internal/fanout"
	"bidding-live/internal/handoff"
	"bidding-live/internal/models"
	"bidding-live/internal/repository"
	"bidding-live/utils"

	"github.com/shopspring/decimal"
)

// maxCommitAttempts bounds how often a bid is re-validated after another writer changed the
// auction between our read and our conditional write
const maxCommitAttempts = 3

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo     repository.AuctionDB
	notifier fanout.Notifier
	handoff  handoff.Publisher
	locks    *auctionLocks
	now      func() time.Time
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// WithHandoff sets where completed sales are sent
func WithHandoff(p handoff.Publisher) Option {
	return func(s *BiddingService) { s.handoff = p }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, notifier fanout.Notifier, opts ...Option) *BiddingService {
	if notifier == nil {
		notifier = discard{}
	}
	s := &BiddingService{
		repo:     repo,
		notifier: notifier,
		handoff:  handoff.LogPublisher{},
		locks:    newAuctionLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBidCommand is a buyer's offer on an auction
type PlaceBidCommand struct {
	AuctionID string
	Buyer     models.Identity
	Amount    decimal.Decimal
}

// CreateAuctionCommand lists a new item
type CreateAuctionCommand struct {
	Seller        models.Identity
	Title         string
	StartingPrice decimal.Decimal
	BidIncrement  decimal.Decimal
	EndTime       time.Time
	Activate      bool
}

// PlaceBid validates and admits a bid. Validation and commit happen under the auction's lock
// so a concurrent bid always sees the price this one set.
func (s *BiddingService) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (models.Bid, error) {
	if err := validatePlaceBid(cmd); err != nil {
		return models.Bid{}, err
	}

	unlock := s.locks.lock(cmd.AuctionID)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		auction, err := s.repo.GetAuction(ctx, cmd.AuctionID)
		if err != nil {
			return models.Bid{}, fmt.Errorf("service: %w", biddingerrors.Storage("place bid: load auction "+cmd.AuctionID, err))
		}

		now := s.now()
		if err := checkAdmission(auction, cmd.Buyer.UserID, cmd.Amount, now); err != nil {
			return models.Bid{}, fmt.Errorf("service: auction %s: %w", cmd.AuctionID, err)
		}

		bid := models.Bid{
			BidID:     utils.GenerateID(),
			AuctionID: cmd.AuctionID,
			BuyerID:   cmd.Buyer.UserID,
			BuyerName: cmd.Buyer.Name,
			Amount:    cmd.Amount,
			CreatedAt: now,
		}

		err = s.repo.CommitBid(ctx, bid, auction.CurrentPrice)
		if err == nil {
			s.emitNewBid(auction, bid)
			return bid, nil
		}
		if !errors.Is(err, biddingerrors.ErrStaleAuction) {
			return models.Bid{}, fmt.Errorf("service: failed to record bid for auction %s by buyer %s: %w",
				cmd.AuctionID, cmd.Buyer.UserID, biddingerrors.Storage("commit bid", err))
		}
		lastErr = err
	}

	return models.Bid{}, fmt.Errorf("service: giving up on bid for auction %s after %d attempts: %w",
		cmd.AuctionID, maxCommitAttempts, lastErr)
}

// validatePlaceBid checks input validity before any auction state is read
func validatePlaceBid(cmd PlaceBidCommand) error {
	if cmd.AuctionID == "" || cmd.Buyer.UserID == "" {
		return fmt.Errorf("service: %w - missing auctionID or buyerID", biddingerrors.ErrInvalidBid)
	}
	if !cmd.Buyer.HasRole(models.RoleBuyer, models.RoleAdmin) {
		return fmt.Errorf("service: %w - %s cannot bid", biddingerrors.ErrRoleNotAllowed, cmd.Buyer.Role)
	}
	if !cmd.Amount.IsPositive() {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	if !wholeCents(cmd.Amount) {
		return fmt.Errorf("service: %w - amount has more than two decimal places", biddingerrors.ErrInvalidBid)
	}
	return nil
}

// wholeCents reports whether d fits the two-decimal money columns without rounding
func wholeCents(d decimal.Decimal) bool {
	return d.Exponent() >= -2 || d.Equal(d.Round(2))
}

// checkAdmission applies the auction rules in order; the first violated rule wins
func checkAdmission(auction models.Auction, buyerID string, amount decimal.Decimal, now time.Time) error {
	if auction.Status != models.StatusActive {
		return biddingerrors.ErrAuctionNotActive
	}
	if !now.Before(auction.EndTime) {
		return biddingerrors.ErrAuctionEnded
	}
	if buyerID == auction.SellerID {
		return biddingerrors.ErrSelfBidForbidden
	}
	if minimum := auction.MinimumBid(); amount.LessThan(minimum) {
		return &biddingerrors.BidTooLowError{Minimum: minimum}
	}
	return nil
}

func (s *BiddingService) emitNewBid(auction models.Auction, bid models.Bid) {
	s.notifier.SendToUser(auction.SellerID, events.New(events.TypeSellerNotification, auction.AuctionID, events.SellerNotification{
		Message:   fmt.Sprintf("New bid of %s on %s", bid.Amount.StringFixed(2), auctionLabel(auction)),
		AuctionID: auction.AuctionID,
		Amount:    bid.Amount,
		BuyerName: bid.BuyerName,
	}, bid.CreatedAt))

	s.notifier.BroadcastToAuction(auction.AuctionID, events.New(events.TypeNewBid, auction.AuctionID, events.NewBid{
		AuctionID: auction.AuctionID,
		BidID:     bid.BidID,
		Amount:    bid.Amount,
		BuyerID:   bid.BuyerID,
		BuyerName: bid.BuyerName,
	}, bid.CreatedAt))
}

// CreateAuction lists a new auction for the acting seller
func (s *BiddingService) CreateAuction(ctx context.Context, cmd CreateAuctionCommand) (models.Auction, error) {
	if !cmd.Seller.HasRole(models.RoleSeller, models.RoleAdmin) {
		return models.Auction{}, fmt.Errorf("service: %w - %s cannot list auctions", biddingerrors.ErrRoleNotAllowed, cmd.Seller.Role)
	}
	now := s.now()
	switch {
	case strings.TrimSpace(cmd.Title) == "":
		return models.Auction{}, fmt.Errorf("service: %w - empty title", biddingerrors.ErrInvalidAuction)
	case cmd.StartingPrice.IsNegative():
		return models.Auction{}, fmt.Errorf("service: %w - negative starting price", biddingerrors.ErrInvalidAuction)
	case !cmd.BidIncrement.IsPositive():
		return models.Auction{}, fmt.Errorf("service: %w - bid increment must be positive", biddingerrors.ErrInvalidAuction)
	case !wholeCents(cmd.StartingPrice) || !wholeCents(cmd.BidIncrement):
		return models.Auction{}, fmt.Errorf("service: %w - prices have more than two decimal places", biddingerrors.ErrInvalidAuction)
	case !cmd.EndTime.After(now):
		return models.Auction{}, fmt.Errorf("service: %w - end time must be in the future", biddingerrors.ErrInvalidAuction)
	}

	status := models.StatusDraft
	if cmd.Activate {
		status = models.StatusActive
	}
	auction := models.Auction{
		AuctionID:     utils.GenerateID(),
		SellerID:      cmd.Seller.UserID,
		SellerName:    cmd.Seller.Name,
		Title:         strings.TrimSpace(cmd.Title),
		StartingPrice: cmd.StartingPrice,
		CurrentPrice:  cmd.StartingPrice,
		BidIncrement:  cmd.BidIncrement,
		Status:        status,
		EndTime:       cmd.EndTime.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateAuction(ctx, auction); err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", biddingerrors.Storage("create auction", err))
	}
	return auction, nil
}

// GetAuction returns a single auction
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", biddingerrors.Storage("get auction "+auctionID, err))
	}
	return auction, nil
}

// GetBidsForAuction returns all bids for an auction, newest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.BidsFor(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, biddingerrors.Storage("bids for", err))
	}
	return bids, nil
}

// GetWinningBid returns the current leader of an auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	winning, err := s.repo.HighestBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, biddingerrors.Storage("highest bid", err))
	}
	return winning, nil
}

// GetActiveBids returns the buyer's latest bid on every auction that is still running,
// flagging the ones the buyer currently leads
func (s *BiddingService) GetActiveBids(ctx context.Context, buyerID string) ([]models.ActiveBid, error) {
	if buyerID == "" {
		return nil, fmt.Errorf("service: %w - empty buyer ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.BidsByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for buyer %s: %w", buyerID, biddingerrors.Storage("bids by buyer", err))
	}

	now := s.now()
	seen := make(map[string]bool)
	active := []models.ActiveBid{}
	for _, b := range bids {
		if seen[b.AuctionID] {
			continue
		}
		seen[b.AuctionID] = true

		auction, err := s.repo.GetAuction(ctx, b.AuctionID)
		if err != nil {
			return nil, fmt.Errorf("service: %w", biddingerrors.Storage("get auction "+b.AuctionID, err))
		}
		if auction.Status != models.StatusActive || !now.Before(auction.EndTime) {
			continue
		}

		highest, err := s.repo.HighestBid(ctx, b.AuctionID)
		if err != nil {
			return nil, fmt.Errorf("service: %w", biddingerrors.Storage("highest bid for "+b.AuctionID, err))
		}
		active = append(active, models.ActiveBid{
			Bid:          b,
			Title:        auction.Title,
			CurrentPrice: auction.CurrentPrice,
			EndTime:      auction.EndTime,
			IsLeading:    highest.BuyerID == buyerID,
		})
	}
	return active, nil
}

// GetBidsByBuyer returns every bid the buyer has placed, newest first
func (s *BiddingService) GetBidsByBuyer(ctx context.Context, buyerID string) ([]models.Bid, error) {
	if buyerID == "" {
		return nil, fmt.Errorf("service: %w - empty buyer ID", biddingerrors.ErrInvalidBid)
	}
	bids, err := s.repo.BidsByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for buyer %s: %w", buyerID, biddingerrors.Storage("bids by buyer", err))
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	return bids, nil
}

// GetSellerAuctions lists the seller's running auctions with their bids so the seller can pick
// one to accept
func (s *BiddingService) GetSellerAuctions(ctx context.Context, seller models.Identity) ([]models.SellerAuction, error) {
	if !seller.HasRole(models.RoleSeller, models.RoleAdmin) {
		return nil, fmt.Errorf("service: %w - %s has no auctions", biddingerrors.ErrRoleNotAllowed, seller.Role)
	}

	auctions, err := s.repo.AuctionsBySeller(ctx, seller.UserID)
	if err != nil {
		return nil, fmt.Errorf("service: %w", biddingerrors.Storage("auctions by seller "+seller.UserID, err))
	}

	out := []models.SellerAuction{}
	for _, a := range auctions {
		if a.Status != models.StatusActive {
			continue
		}
		// admitted amounts only rise, so newest first is also highest first
		bids, err := s.repo.BidsFor(ctx, a.AuctionID)
		if err != nil {
			return nil, fmt.Errorf("service: %w", biddingerrors.Storage("bids for "+a.AuctionID, err))
		}
		entry := models.SellerAuction{Auction: a, Bids: bids}
		if entry.Bids == nil {
			entry.Bids = []models.Bid{}
		}
		if len(bids) > 0 {
			highest := bids[0]
			entry.HighestBid = &highest
		}
		out = append(out, entry)
	}
	return out, nil
}

func auctionLabel(a models.Auction) string {
	if a.Title != "" {
		return a.Title
	}
	return "auction " + a.AuctionID
}

// discard drops every event
type discard struct{}

func (discard) BroadcastToAuction(string, events.Envelope) {}
func (discard) SendToUser(string, events.Envelope)         {}
