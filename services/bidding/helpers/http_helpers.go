package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bidding-live/internal/biddingerrors"
	model "bidding-live/internal/models"
	"bidding-live/utils"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// TokenParser resolves a bearer token to the identity it was issued for
type TokenParser interface {
	ParseToken(token string) (model.Identity, error)
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, biddingerrors.ErrAuctionNotActive):
		return http.StatusConflict, "auction is not active"
	case errors.Is(err, biddingerrors.ErrAuctionEnded):
		return http.StatusConflict, "auction has ended"
	case errors.Is(err, biddingerrors.ErrInvalidState):
		return http.StatusConflict, "auction state does not allow this operation"
	case errors.Is(err, biddingerrors.ErrSelfBidForbidden):
		return http.StatusForbidden, "sellers cannot bid on their own auction"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "not allowed"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrValidationFailed):
		return http.StatusBadRequest, "invalid auction details"
	case errors.Is(err, biddingerrors.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError writes the mapped error. A rejected low bid also reports the minimum the
// caller has to offer.
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	var details gin.H
	if minimum, ok := biddingerrors.MinimumBid(err); ok {
		details = gin.H{"minimum_bid": minimum.StringFixed(2)}
	}
	utils.JSONErrorDetails(c, status, fmt.Errorf("%s: %w", message, err), message, details)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}

// BearerToken returns the token from the Authorization header or, for websocket clients
// that cannot set headers, the token query parameter
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}

// SetIdentity stores the authenticated caller on the request context
func SetIdentity(c *gin.Context, id model.Identity) {
	c.Set(identityKey, id)
}

// IdentityFrom returns the authenticated caller, if any
func IdentityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}

// MustIdentity returns the caller or answers 401 and reports false
func MustIdentity(c *gin.Context, handlerName string) (model.Identity, bool) {
	id, ok := IdentityFrom(c)
	if !ok {
		RespondError(c, handlerName, biddingerrors.ErrMissingIdentity, nil)
		return model.Identity{}, false
	}
	return id, true
}
