package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bidding-live/internal/events"
	"bidding-live/utils"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	targetAuction = "auction"
	targetUser    = "user"

	publishTimeout = 2 * time.Second
)

// routed is the relay wire format
type routed struct {
	Target   string          `json:"target"`
	Key      string          `json:"key"`
	Envelope json.RawMessage `json:"envelope"`
}

// wireEnvelope keeps the payload as raw JSON so it is forwarded untouched
type wireEnvelope struct {
	Type      events.Type     `json:"type"`
	AuctionID string          `json:"auction_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// RedisRelay lets several server instances share one event stream. Events are published to a
// Redis channel and every instance, this one included, delivers what it receives to its own
// local connections.
//
// Instances commit bids under the database row lock but publish after commit, so two bids on
// one auction can reach Redis in the opposite order. Admitted amounts strictly increase along
// the ledger, so bid events whose amount does not exceed the last one forwarded for the same
// auction and recipient are stale and dropped. Every instance reads the channel in the same
// order and therefore drops the same frames.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   Notifier

	mu     sync.Mutex
	latest map[string]map[string]decimal.Decimal // key: auctionID, then target/key
}

// NewRedisRelay creates a relay that delivers received events through local
func NewRedisRelay(rdb *redis.Client, channel string, local Notifier) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		local:   local,
		latest:  make(map[string]map[string]decimal.Decimal),
	}
}

// BroadcastToAuction publishes an auction broadcast
func (r *RedisRelay) BroadcastToAuction(auctionID string, env events.Envelope) {
	if err := r.publish(targetAuction, auctionID, env); err != nil {
		utils.Warn("relay: publish failed, delivering locally", map[string]any{"auction_id": auctionID, "error": err.Error()})
		r.deliver(targetAuction, auctionID, env)
	}
}

// SendToUser publishes a direct message
func (r *RedisRelay) SendToUser(userID string, env events.Envelope) {
	if err := r.publish(targetUser, userID, env); err != nil {
		utils.Warn("relay: publish failed, delivering locally", map[string]any{"user_id": userID, "error": err.Error()})
		r.deliver(targetUser, userID, env)
	}
}

func (r *RedisRelay) publish(target, key string, env events.Envelope) error {
	payload, err := encodeRouted(target, key, env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.rdb.Publish(ctx, r.channel, payload).Err()
}

// Run subscribes to the channel and forwards messages until ctx is done
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay: subscribe to %s: %w", r.channel, err)
	}
	utils.Info("relay: subscribed", map[string]any{"channel": r.channel})

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.forward(msg.Payload); err != nil {
				utils.Warn("relay: dropping malformed message", map[string]any{"error": err.Error()})
			}
		}
	}
}

func (r *RedisRelay) forward(payload string) error {
	target, key, env, err := decodeRouted(payload)
	if err != nil {
		return err
	}
	if target != targetAuction && target != targetUser {
		return fmt.Errorf("unknown target %q", target)
	}
	r.deliver(target, key, env)
	return nil
}

// deliver hands env to the local notifier unless it is an out-of-order bid event. The lock is
// held across the hand-off so forwarded and fallback deliveries cannot interleave.
func (r *RedisRelay) deliver(target, key string, env events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.admit(target+"/"+key, env) {
		utils.Debug("relay: dropping out-of-order bid event", map[string]any{
			"auction_id": env.AuctionID,
			"type":       env.Type,
			"target":     target,
		})
		return
	}
	switch target {
	case targetAuction:
		r.local.BroadcastToAuction(key, env)
	case targetUser:
		r.local.SendToUser(key, env)
	}
}

// admit records the amount of a bid event and reports whether it is newer than the last one
// seen on route. Terminal auction events forget the auction.
func (r *RedisRelay) admit(route string, env events.Envelope) bool {
	switch env.Type {
	case events.TypeProductSold, events.TypeAuctionEnded:
		delete(r.latest, env.AuctionID)
		return true
	case events.TypeNewBid, events.TypeSellerNotification:
	default:
		return true
	}

	amount, ok := bidAmount(env)
	if !ok || env.AuctionID == "" {
		return true
	}
	routes := r.latest[env.AuctionID]
	if routes == nil {
		routes = make(map[string]decimal.Decimal)
		r.latest[env.AuctionID] = routes
	}
	if last, seen := routes[route]; seen && !amount.GreaterThan(last) {
		return false
	}
	routes[route] = amount
	return true
}

// bidAmount reads the amount of a bid event whether it was built locally or decoded off the wire
func bidAmount(env events.Envelope) (decimal.Decimal, bool) {
	switch data := env.Data.(type) {
	case events.NewBid:
		return data.Amount, true
	case events.SellerNotification:
		return data.Amount, true
	case json.RawMessage:
		var payload struct {
			Amount *decimal.Decimal `json:"amount"`
		}
		if err := json.Unmarshal(data, &payload); err != nil || payload.Amount == nil {
			return decimal.Decimal{}, false
		}
		return *payload.Amount, true
	}
	return decimal.Decimal{}, false
}

func encodeRouted(target, key string, env events.Envelope) ([]byte, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return json.Marshal(routed{Target: target, Key: key, Envelope: raw})
}

func decodeRouted(payload string) (string, string, events.Envelope, error) {
	var msg routed
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return "", "", events.Envelope{}, fmt.Errorf("decode routed message: %w", err)
	}
	var w wireEnvelope
	if err := json.Unmarshal(msg.Envelope, &w); err != nil {
		return "", "", events.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	env := events.Envelope{Type: w.Type, AuctionID: w.AuctionID, Timestamp: w.Timestamp}
	if len(w.Data) > 0 {
		env.Data = w.Data
	}
	return msg.Target, msg.Key, env, nil
}
