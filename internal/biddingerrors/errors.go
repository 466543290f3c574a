package biddingerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Every specific error below unwraps to exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrForbidden        = errors.New("forbidden")
	ErrValidationFailed = errors.New("validation failed")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrStorage          = errors.New("storage error")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Repository-level errors
var (
	ErrAuctionNotFound = newKind(ErrNotFound, "auction not found")
	ErrBidNotFound     = newKind(ErrNotFound, "bid not found")
	ErrNoBids          = newKind(ErrNotFound, "no bids found for auction")
	ErrAuctionExists   = newKind(ErrInvalidState, "auction already exists")
	ErrStaleAuction    = newKind(ErrInvalidState, "auction changed concurrently")
)

// business logic errors
var (
	ErrAuctionNotActive  = newKind(ErrInvalidState, "auction is not active")
	ErrAuctionEnded      = newKind(ErrInvalidState, "auction has ended")
	ErrInvalidTransition = newKind(ErrInvalidState, "invalid auction status transition")
	ErrAuctionHasBids    = newKind(ErrInvalidState, "auction already has bids")
	ErrSelfBidForbidden  = newKind(ErrForbidden, "sellers cannot bid on their own auction")
	ErrNotAuctionOwner   = newKind(ErrForbidden, "not authorized to manage this auction")
	ErrRoleNotAllowed    = newKind(ErrForbidden, "role not allowed for this operation")
	ErrInvalidBid        = newKind(ErrValidationFailed, "invalid bid")
	ErrInvalidAuction    = newKind(ErrValidationFailed, "invalid auction")
	ErrBidTooLow         = newKind(ErrValidationFailed, "bid amount too low")
	ErrMissingIdentity   = newKind(ErrUnauthenticated, "missing or invalid credentials")
)

// BidTooLowError is returned when an offer is under the auction's minimum
type BidTooLowError struct {
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: minimum bid is %s", ErrBidTooLow, e.Minimum.StringFixed(2))
}

func (e *BidTooLowError) Is(target error) bool { return target == ErrBidTooLow }
func (e *BidTooLowError) Unwrap() error        { return ErrValidationFailed }

// MinimumBid extracts the computed minimum from a BidTooLowError anywhere in the chain
func MinimumBid(err error) (decimal.Decimal, bool) {
	var low *BidTooLowError
	if errors.As(err, &low) {
		return low.Minimum, true
	}
	return decimal.Zero, false
}

var kinds = []error{ErrNotFound, ErrInvalidState, ErrForbidden, ErrValidationFailed, ErrUnauthenticated, ErrStorage}

// Kind returns the kind sentinel err belongs to, or nil for unclassified errors
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Storage wraps a persistence failure so callers can tell it from domain errors.
// Errors that already carry a kind are only annotated with op.
func Storage(op string, err error) error {
	if Kind(err) != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
