package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidding-live/internal/biddingerrors"
	"bidding-live/internal/events"
	"bidding-live/internal/models"
	"bidding-live/utils"
)

const handoffTimeout = 10 * time.Second

// AcceptBidCommand is a seller closing an auction on a chosen bid
type AcceptBidCommand struct {
	AuctionID string
	BidID     string
	Actor     models.Identity
}

// AcceptBid completes an auction with the given bid as the winner. It holds the same lock as
// PlaceBid, so a bid is either admitted before the sale or rejected after it.
func (s *BiddingService) AcceptBid(ctx context.Context, cmd AcceptBidCommand) (models.Sale, error) {
	if cmd.AuctionID == "" || cmd.BidID == "" {
		return models.Sale{}, fmt.Errorf("service: %w - missing auctionID or bidID", biddingerrors.ErrInvalidBid)
	}

	sale, err := s.acceptBid(ctx, cmd)
	if err != nil {
		return models.Sale{}, err
	}
	s.handOff(ctx, sale)
	return sale, nil
}

func (s *BiddingService) acceptBid(ctx context.Context, cmd AcceptBidCommand) (models.Sale, error) {
	unlock := s.locks.lock(cmd.AuctionID)
	defer unlock()

	auction, err := s.repo.GetAuction(ctx, cmd.AuctionID)
	if err != nil {
		return models.Sale{}, fmt.Errorf("service: %w", biddingerrors.Storage("accept bid: load auction "+cmd.AuctionID, err))
	}
	if !canManage(cmd.Actor, auction) {
		return models.Sale{}, fmt.Errorf("service: auction %s: %w", cmd.AuctionID, biddingerrors.ErrNotAuctionOwner)
	}
	if auction.Status != models.StatusActive {
		return models.Sale{}, fmt.Errorf("service: auction %s is %s: %w", cmd.AuctionID, auction.Status, biddingerrors.ErrAuctionNotActive)
	}

	bid, err := s.repo.GetBid(ctx, cmd.AuctionID, cmd.BidID)
	if err != nil {
		return models.Sale{}, fmt.Errorf("service: %w", biddingerrors.Storage("accept bid", err))
	}

	sale := newSale(auction, bid, s.now())
	if err := s.repo.CompleteSale(ctx, sale); err != nil {
		return models.Sale{}, fmt.Errorf("service: failed to complete sale for auction %s: %w", cmd.AuctionID, biddingerrors.Storage("complete sale", err))
	}

	s.notifier.SendToUser(bid.BuyerID, buyerNotification(auction, sale,
		fmt.Sprintf("Congratulations! Your bid of %s on %s was accepted", sale.Amount.StringFixed(2), auctionLabel(auction))))
	s.notifier.BroadcastToAuction(auction.AuctionID, events.New(events.TypeProductSold, auction.AuctionID, events.ProductSold{
		AuctionID:  auction.AuctionID,
		Amount:     sale.Amount,
		WinnerName: bid.BuyerName,
		SellerName: auction.SellerName,
	}, sale.CreatedAt))

	utils.Info("service: bid accepted", map[string]any{
		"auction_id": auction.AuctionID,
		"bid_id":     bid.BidID,
		"buyer_id":   bid.BuyerID,
		"amount":     sale.Amount.String(),
	})
	return sale, nil
}

// ActivateAuction opens a draft auction for bidding
func (s *BiddingService) ActivateAuction(ctx context.Context, auctionID string, actor models.Identity) (models.Auction, error) {
	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", biddingerrors.Storage("activate: load auction "+auctionID, err))
	}
	if !canManage(actor, auction) {
		return models.Auction{}, fmt.Errorf("service: auction %s: %w", auctionID, biddingerrors.ErrNotAuctionOwner)
	}
	if !auction.Status.CanTransitionTo(models.StatusActive) {
		return models.Auction{}, fmt.Errorf("service: auction %s is %s: %w", auctionID, auction.Status, biddingerrors.ErrInvalidTransition)
	}
	if !s.now().Before(auction.EndTime) {
		return models.Auction{}, fmt.Errorf("service: auction %s: %w", auctionID, biddingerrors.ErrAuctionEnded)
	}

	if err := s.repo.UpdateStatus(ctx, auctionID, models.StatusDraft, models.StatusActive); err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", biddingerrors.Storage("activate auction "+auctionID, err))
	}
	auction.Status = models.StatusActive
	return auction, nil
}

// CancelAuction withdraws an active auction that nobody has bid on yet
func (s *BiddingService) CancelAuction(ctx context.Context, auctionID string, actor models.Identity) (models.Auction, error) {
	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", biddingerrors.Storage("cancel: load auction "+auctionID, err))
	}
	if !canManage(actor, auction) {
		return models.Auction{}, fmt.Errorf("service: auction %s: %w", auctionID, biddingerrors.ErrNotAuctionOwner)
	}
	if !auction.Status.CanTransitionTo(models.StatusCancelled) {
		return models.Auction{}, fmt.Errorf("service: auction %s is %s: %w", auctionID, auction.Status, biddingerrors.ErrInvalidTransition)
	}

	_, err = s.repo.HighestBid(ctx, auctionID)
	switch {
	case err == nil:
		return models.Auction{}, fmt.Errorf("service: auction %s: %w", auctionID, biddingerrors.ErrAuctionHasBids)
	case !errors.Is(err, biddingerrors.ErrNoBids):
		return models.Auction{}, fmt.Errorf("service: %w", biddingerrors.Storage("cancel: highest bid", err))
	}

	if err := s.repo.UpdateStatus(ctx, auctionID, models.StatusActive, models.StatusCancelled); err != nil {
		return models.Auction{}, fmt.Errorf("service: %w", biddingerrors.Storage("cancel auction "+auctionID, err))
	}
	auction.Status = models.StatusCancelled

	s.notifier.BroadcastToAuction(auctionID, events.New(events.TypeAuctionEnded, auctionID,
		events.AuctionEnded{AuctionID: auctionID}, s.now()))
	return auction, nil
}

// ExpireAuctions closes every active auction whose end time has passed. Auctions with bids
// are sold to the highest bidder, the rest are cancelled. It returns how many auctions were
// closed; failures on individual auctions are joined and do not stop the sweep.
func (s *BiddingService) ExpireAuctions(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpiredAuctions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service: %w", biddingerrors.Storage("expired auctions", err))
	}

	closed := 0
	var errs []error
	for _, a := range expired {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		sale, ok, err := s.expire(ctx, a.AuctionID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		closed++
		if sale != nil {
			s.handOff(ctx, *sale)
		}
	}
	return closed, errors.Join(errs...)
}

// expire closes one auction. ok is false when the auction no longer needs closing, for
// instance because a seller accepted a bid after the sweep listed it.
func (s *BiddingService) expire(ctx context.Context, auctionID string) (sale *models.Sale, ok bool, err error) {
	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, false, fmt.Errorf("service: %w", biddingerrors.Storage("expire: load auction "+auctionID, err))
	}
	now := s.now()
	if auction.Status != models.StatusActive || now.Before(auction.EndTime) {
		return nil, false, nil
	}

	highest, err := s.repo.HighestBid(ctx, auctionID)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		if err := s.repo.UpdateStatus(ctx, auctionID, models.StatusActive, models.StatusCancelled); err != nil {
			if errors.Is(err, biddingerrors.ErrStaleAuction) {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("service: %w", biddingerrors.Storage("expire: cancel auction "+auctionID, err))
		}
		s.notifier.BroadcastToAuction(auctionID, events.New(events.TypeAuctionEnded, auctionID,
			events.AuctionEnded{AuctionID: auctionID}, now))
		utils.Info("sweeper: auction expired without bids", map[string]any{"auction_id": auctionID})
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("service: %w", biddingerrors.Storage("expire: highest bid", err))
	}

	sold := newSale(auction, highest, now)
	if err := s.repo.CompleteSale(ctx, sold); err != nil {
		if errors.Is(err, biddingerrors.ErrStaleAuction) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("service: %w", biddingerrors.Storage("expire: complete sale "+auctionID, err))
	}

	s.notifier.BroadcastToAuction(auctionID, events.New(events.TypeAuctionEnded, auctionID, events.AuctionEnded{
		AuctionID: auctionID,
		Winner: &events.Winner{
			BuyerID:   highest.BuyerID,
			BuyerName: highest.BuyerName,
			Amount:    highest.Amount,
		},
	}, now))
	s.notifier.SendToUser(highest.BuyerID, buyerNotification(auction, sold,
		fmt.Sprintf("You won %s with a bid of %s", auctionLabel(auction), sold.Amount.StringFixed(2))))
	s.notifier.SendToUser(auction.SellerID, events.New(events.TypeSellerNotification, auctionID, events.SellerNotification{
		Message:   fmt.Sprintf("%s sold for %s", auctionLabel(auction), sold.Amount.StringFixed(2)),
		AuctionID: auctionID,
		Amount:    sold.Amount,
		BuyerName: highest.BuyerName,
	}, now))

	utils.Info("sweeper: auction expired with winner", map[string]any{
		"auction_id": auctionID,
		"buyer_id":   highest.BuyerID,
		"amount":     sold.Amount.String(),
	})
	return &sold, true, nil
}

// RunSweeper calls ExpireAuctions every interval until ctx is done
func (s *BiddingService) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweeper: interval must be positive, got %s", interval)
	}
	utils.Info("sweeper: started", map[string]any{"interval": interval.String()})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.Info("sweeper: stopped", nil)
			return nil
		case <-ticker.C:
			closed, err := s.ExpireAuctions(ctx)
			if err != nil && ctx.Err() == nil {
				utils.Error("sweeper: sweep failed", map[string]any{"error": err.Error(), "closed": closed})
				continue
			}
			if closed > 0 {
				utils.Debug("sweeper: sweep done", map[string]any{"closed": closed})
			}
		}
	}
}

// handOff passes a committed sale on. The sale already happened, so failures are only logged.
func (s *BiddingService) handOff(ctx context.Context, sale models.Sale) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handoffTimeout)
	defer cancel()

	if err := s.handoff.PublishSale(ctx, sale); err != nil {
		utils.Error("service: failed to hand off sale", map[string]any{
			"sale_id":    sale.SaleID,
			"auction_id": sale.AuctionID,
			"error":      err.Error(),
		})
	}
}

func canManage(actor models.Identity, auction models.Auction) bool {
	if actor.Role == models.RoleAdmin {
		return true
	}
	return actor.Role == models.RoleSeller && actor.UserID == auction.SellerID
}

func newSale(auction models.Auction, bid models.Bid, now time.Time) models.Sale {
	return models.Sale{
		SaleID:      utils.GenerateID(),
		AuctionID:   auction.AuctionID,
		BidID:       bid.BidID,
		BuyerID:     bid.BuyerID,
		BuyerName:   bid.BuyerName,
		SellerID:    auction.SellerID,
		SellerName:  auction.SellerName,
		Amount:      bid.Amount,
		PlatformFee: models.PlatformFeeFor(bid.Amount),
		CreatedAt:   now,
	}
}

func buyerNotification(auction models.Auction, sale models.Sale, message string) events.Envelope {
	return events.New(events.TypeBuyerNotification, auction.AuctionID, events.BuyerNotification{
		Message:       message,
		AuctionID:     auction.AuctionID,
		Amount:        sale.Amount,
		TransactionID: sale.SaleID,
	}, sale.CreatedAt)
}
