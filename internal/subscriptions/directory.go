// Package subscriptions tracks which live connections watch which auction and which
// connection speaks for which user.
package subscriptions

import (
	"sync"

	"bidding-live/internal/events"
)

// Conn is a live push connection
type Conn interface {
	// ID is unique per connection for the lifetime of the process
	ID() int64
	// Send queues an envelope for delivery without blocking on network I/O. An error means
	// the connection can no longer receive and should be dropped.
	Send(env events.Envelope) error
	// Close tears the connection down. It must be safe to call more than once.
	Close()
}

type topicKind uint8

const (
	auctionTopic topicKind = iota + 1
	userTopic
)

// Topic is either an auction watch topic or a user's direct-address topic
type Topic struct {
	kind topicKind
	key  string
}

// AuctionTopic subscribes a connection to every event of one auction
func AuctionTopic(auctionID string) Topic { return Topic{kind: auctionTopic, key: auctionID} }

// UserTopic binds a connection to a user identity
func UserTopic(userID string) Topic { return Topic{kind: userTopic, key: userID} }

type binding struct {
	conn     Conn
	auctions map[string]struct{}
	userID   string
}

// Directory is safe for concurrent use. Its lock is independent of any auction lock.
type Directory struct {
	mu       sync.RWMutex
	conns    map[int64]*binding
	watchers map[string]map[int64]Conn // key: auctionID
	users    map[string]Conn           // key: userID
}

// NewDirectory creates an empty directory
func NewDirectory() *Directory {
	return &Directory{
		conns:    make(map[int64]*binding),
		watchers: make(map[string]map[int64]Conn),
		users:    make(map[string]Conn),
	}
}

// Subscribe adds a binding for c. Binding a user replaces both the connection's previous user
// and the user's previous connection.
func (d *Directory) Subscribe(c Conn, t Topic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribe(c, t)
}

// BindUserIfFree binds c to userID unless another connection already holds that user
func (d *Directory) BindUserIfFree(c Conn, userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.users[userID]; ok && prev.ID() != c.ID() {
		return false
	}
	d.subscribe(c, UserTopic(userID))
	return true
}

func (d *Directory) subscribe(c Conn, t Topic) {
	b := d.conns[c.ID()]
	if b == nil {
		b = &binding{conn: c, auctions: make(map[string]struct{})}
		d.conns[c.ID()] = b
	}

	switch t.kind {
	case auctionTopic:
		b.auctions[t.key] = struct{}{}
		w := d.watchers[t.key]
		if w == nil {
			w = make(map[int64]Conn)
			d.watchers[t.key] = w
		}
		w[c.ID()] = c
	case userTopic:
		if b.userID != "" && b.userID != t.key {
			d.releaseUser(b.userID, c.ID())
		}
		if prev, ok := d.users[t.key]; ok && prev.ID() != c.ID() {
			if pb := d.conns[prev.ID()]; pb != nil {
				pb.userID = ""
				d.reclaim(pb)
			}
		}
		b.userID = t.key
		d.users[t.key] = c
	}
}

// Unsubscribe drops every binding of c. Unknown connections are ignored.
func (d *Directory) Unsubscribe(c Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := c.ID()
	b := d.conns[id]
	if b == nil {
		return
	}
	for auctionID := range b.auctions {
		if w := d.watchers[auctionID]; w != nil {
			delete(w, id)
			if len(w) == 0 {
				delete(d.watchers, auctionID)
			}
		}
	}
	if b.userID != "" {
		d.releaseUser(b.userID, id)
	}
	delete(d.conns, id)
}

// WatchersOf returns a snapshot of the connections watching an auction
func (d *Directory) WatchersOf(auctionID string) []Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()

	w := d.watchers[auctionID]
	out := make([]Conn, 0, len(w))
	for _, c := range w {
		out = append(out, c)
	}
	return out
}

// WatcherCount returns how many connections watch an auction
func (d *Directory) WatcherCount(auctionID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.watchers[auctionID])
}

// ConnectionOf returns the connection bound to a user, if any
func (d *Directory) ConnectionOf(userID string) (Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.users[userID]
	return c, ok
}

// Topics returns the number of auctions with at least one watcher
func (d *Directory) Topics() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.watchers)
}

// releaseUser removes the user binding if it still points at connection id
func (d *Directory) releaseUser(userID string, id int64) {
	if cur, ok := d.users[userID]; ok && cur.ID() == id {
		delete(d.users, userID)
	}
}

// reclaim forgets a connection that no longer holds any binding
func (d *Directory) reclaim(b *binding) {
	if b.userID == "" && len(b.auctions) == 0 {
		delete(d.conns, b.conn.ID())
	}
}
