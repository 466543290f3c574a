package subscriptions

import (
	"fmt"
	"sync"
	"testing"

	"bidding-live/internal/events"

	"github.com/peterldowns/testy/check"
)

type fakeConn struct{ id int64 }

func (c *fakeConn) ID() int64                    { return c.id }
func (c *fakeConn) Send(_ events.Envelope) error { return nil }
func (c *fakeConn) Close()                       {}

func TestDirectory_WatchersOf(t *testing.T) {
	d := NewDirectory()
	c1, c2, c3 := &fakeConn{id: 1}, &fakeConn{id: 2}, &fakeConn{id: 3}

	d.Subscribe(c1, AuctionTopic("a1"))
	d.Subscribe(c2, AuctionTopic("a1"))
	d.Subscribe(c3, AuctionTopic("a2"))
	d.Subscribe(c1, AuctionTopic("a1"))

	check.Equal(t, 2, len(d.WatchersOf("a1")))
	check.Equal(t, 2, d.WatcherCount("a1"))
	check.Equal(t, 1, d.WatcherCount("a2"))
	check.Equal(t, 0, len(d.WatchersOf("nobody-watching")))
	check.Equal(t, 2, d.Topics())
}

func TestDirectory_UnsubscribeIsIdempotent(t *testing.T) {
	d := NewDirectory()
	c1, c2 := &fakeConn{id: 1}, &fakeConn{id: 2}

	d.Subscribe(c1, AuctionTopic("a1"))
	d.Subscribe(c1, UserTopic("u1"))
	d.Subscribe(c2, AuctionTopic("a1"))

	d.Unsubscribe(c1)
	d.Unsubscribe(c1)
	d.Unsubscribe(&fakeConn{id: 99})

	check.Equal(t, 1, d.WatcherCount("a1"))
	_, ok := d.ConnectionOf("u1")
	check.False(t, ok)

	d.Unsubscribe(c2)
	check.Equal(t, 0, d.Topics())
	check.Equal(t, 0, len(d.conns))
}

func TestDirectory_BindUserIfFree(t *testing.T) {
	d := NewDirectory()
	stream, watch := &fakeConn{id: 1}, &fakeConn{id: 2}

	d.Subscribe(stream, UserTopic("u1"))
	d.Subscribe(watch, AuctionTopic("a1"))

	check.False(t, d.BindUserIfFree(watch, "u1"))
	got, ok := d.ConnectionOf("u1")
	check.True(t, ok)
	check.Equal(t, int64(1), got.ID())

	check.True(t, d.BindUserIfFree(stream, "u1"))

	d.Unsubscribe(stream)
	check.True(t, d.BindUserIfFree(watch, "u1"))
	got, ok = d.ConnectionOf("u1")
	check.True(t, ok)
	check.Equal(t, int64(2), got.ID())
	check.Equal(t, 1, d.WatcherCount("a1"))
}

func TestDirectory_UserBinding(t *testing.T) {
	d := NewDirectory()
	first, second := &fakeConn{id: 1}, &fakeConn{id: 2}

	d.Subscribe(first, UserTopic("u1"))
	got, ok := d.ConnectionOf("u1")
	check.True(t, ok)
	check.Equal(t, int64(1), got.ID())

	// the newest connection of a user wins
	d.Subscribe(second, UserTopic("u1"))
	got, ok = d.ConnectionOf("u1")
	check.True(t, ok)
	check.Equal(t, int64(2), got.ID())

	// dropping the replaced connection leaves the new binding alone
	d.Unsubscribe(first)
	got, ok = d.ConnectionOf("u1")
	check.True(t, ok)
	check.Equal(t, int64(2), got.ID())

	// rebinding a connection to another user releases the old identity
	d.Subscribe(second, UserTopic("u2"))
	_, ok = d.ConnectionOf("u1")
	check.False(t, ok)
	got, ok = d.ConnectionOf("u2")
	check.True(t, ok)
	check.Equal(t, int64(2), got.ID())

	d.Unsubscribe(second)
	_, ok = d.ConnectionOf("u2")
	check.False(t, ok)
	check.Equal(t, 0, len(d.conns))
}

func TestDirectory_ConcurrentChurn(t *testing.T) {
	d := NewDirectory()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &fakeConn{id: int64(i)}
			auctionID := fmt.Sprintf("a%d", i%4)
			for j := 0; j < 50; j++ {
				d.Subscribe(c, AuctionTopic(auctionID))
				d.Subscribe(c, UserTopic(fmt.Sprintf("u%d", i)))
				_ = d.WatchersOf(auctionID)
				d.Unsubscribe(c)
			}
		}(i)
	}
	wg.Wait()

	check.Equal(t, 0, d.Topics())
	check.Equal(t, 0, len(d.conns))
	check.Equal(t, 0, len(d.users))
}
