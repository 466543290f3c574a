package handler

import (
	"net/http"
	"time"

	"bidding-live/internal/events"
	model "bidding-live/internal/models"
	"bidding-live/internal/subscriptions"
	"bidding-live/internal/wsclient"
	"bidding-live/services/bidding/helpers"
	"bidding-live/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// StreamHandler upgrades push connections and registers them with the directory
type StreamHandler struct {
	service  BiddingServiceInterface
	dir      *subscriptions.Directory
	tokens   helpers.TokenParser
	opts     wsclient.Options
	upgrader websocket.Upgrader
}

func NewStreamHandler(service BiddingServiceInterface, dir *subscriptions.Directory, tokens helpers.TokenParser, opts wsclient.Options) *StreamHandler {
	return &StreamHandler{
		service: service,
		dir:     dir,
		tokens:  tokens,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browsers connect from the storefront origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// WatchAuctionHandler handles GET /ws/auctions/:auction_id. A token is optional; when present
// and the caller has no /ws stream open, the connection also receives the caller's direct
// notifications. An open /ws stream keeps them.
func (h *StreamHandler) WatchAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var viewer *model.Identity
	if token := helpers.BearerToken(c); token != "" {
		id, err := h.tokens.ParseToken(token)
		if err != nil {
			helpers.RespondError(c, "WatchAuctionHandler", err, map[string]any{"auction_id": auctionID})
			return
		}
		viewer = &id
	}

	if _, err := h.service.GetAuction(c.Request.Context(), auctionID); err != nil {
		helpers.RespondError(c, "WatchAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	client, ok := h.upgrade(c, "WatchAuctionHandler")
	if !ok {
		return
	}

	// the ack is queued before the subscription so it is always the first frame
	viewers := h.dir.WatcherCount(auctionID) + 1
	_ = client.Send(events.New(events.TypeConnected, auctionID, events.Connected{
		Message:       "watching auction " + auctionID,
		ActiveViewers: &viewers,
	}, time.Now()))
	h.dir.Subscribe(client, subscriptions.AuctionTopic(auctionID))
	fields := map[string]any{"conn_id": client.ID(), "auction_id": auctionID}
	if viewer != nil {
		fields["user_id"] = viewer.UserID
		fields["direct"] = h.dir.BindUserIfFree(client, viewer.UserID)
	}

	h.serve(client, fields)
}

// UserStreamHandler handles GET /ws. The caller must present a valid token.
func (h *StreamHandler) UserStreamHandler(c *gin.Context) {
	id, err := h.tokens.ParseToken(helpers.BearerToken(c))
	if err != nil {
		helpers.RespondError(c, "UserStreamHandler", err, nil)
		return
	}

	client, ok := h.upgrade(c, "UserStreamHandler")
	if !ok {
		return
	}

	_ = client.Send(events.New(events.TypeConnected, "", events.Connected{
		Message: "connected as " + id.UserID,
		UserID:  id.UserID,
	}, time.Now()))
	h.dir.Subscribe(client, subscriptions.UserTopic(id.UserID))

	h.serve(client, map[string]any{"conn_id": client.ID(), "user_id": id.UserID})
}

func (h *StreamHandler) upgrade(c *gin.Context, handlerName string) (*wsclient.Client, bool) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote an HTTP error
		utils.Warn(handlerName+": websocket upgrade failed", map[string]any{"error": err.Error()})
		return nil, false
	}
	return wsclient.New(ws, h.opts), true
}

// serve blocks until the connection ends, then drops every subscription it held
func (h *StreamHandler) serve(client *wsclient.Client, fields map[string]any) {
	utils.Info("stream: connection opened", fields)
	err := client.Serve()
	h.dir.Unsubscribe(client)

	if err != nil {
		fields["error"] = err.Error()
	}
	utils.Info("stream: connection closed", fields)
}
