// Package fanout delivers events to auction watchers and to individual users.
//
// Delivery is at-most-once and best effort: nothing is queued for offline recipients and a
// connection that fails to accept an event is unsubscribed and closed. Failures never reach the
// caller.
package fanout

import (
	"bidding-live/internal/events"
	"bidding-live/internal/subscriptions"
	"bidding-live/utils"
)

// Notifier is what the bidding core emits events through
type Notifier interface {
	BroadcastToAuction(auctionID string, env events.Envelope)
	SendToUser(userID string, env events.Envelope)
}

// Fanout delivers to connections registered in a local directory
type Fanout struct {
	dir *subscriptions.Directory
}

// New creates a fan-out over dir
func New(dir *subscriptions.Directory) *Fanout {
	return &Fanout{dir: dir}
}

// BroadcastToAuction sends env to every watcher of the auction
func (f *Fanout) BroadcastToAuction(auctionID string, env events.Envelope) {
	f.Broadcast(auctionID, env)
}

// Broadcast sends env to every watcher of the auction and returns how many accepted it
func (f *Fanout) Broadcast(auctionID string, env events.Envelope) int {
	delivered := 0
	for _, c := range f.dir.WatchersOf(auctionID) {
		if f.deliver(c, env) {
			delivered++
		}
	}
	utils.Debug("fanout: broadcast", map[string]any{
		"auction_id": auctionID,
		"type":       env.Type,
		"delivered":  delivered,
	})
	return delivered
}

// SendToUser sends env to the connection bound to userID, if the user is online
func (f *Fanout) SendToUser(userID string, env events.Envelope) {
	f.Deliver(userID, env)
}

// Deliver is SendToUser reporting whether the user's connection accepted env
func (f *Fanout) Deliver(userID string, env events.Envelope) bool {
	c, ok := f.dir.ConnectionOf(userID)
	if !ok {
		return false
	}
	return f.deliver(c, env)
}

func (f *Fanout) deliver(c subscriptions.Conn, env events.Envelope) bool {
	if err := c.Send(env); err != nil {
		utils.Warn("fanout: dropping connection after failed delivery", map[string]any{
			"conn_id": c.ID(),
			"type":    env.Type,
			"error":   err.Error(),
		})
		f.dir.Unsubscribe(c)
		c.Close()
		return false
	}
	return true
}
