package bidding

import "sync"

// auctionLocks hands out one mutex per auction. Entries are dropped once nobody holds or
// waits for them.
type auctionLocks struct {
	mu    sync.Mutex
	locks map[string]*auctionLock
}

type auctionLock struct {
	sync.Mutex
	refs int
}

func newAuctionLocks() *auctionLocks {
	return &auctionLocks{locks: make(map[string]*auctionLock)}
}

// lock blocks until the auction's mutex is held and returns its release func
func (l *auctionLocks) lock(auctionID string) (unlock func()) {
	l.mu.Lock()
	al := l.locks[auctionID]
	if al == nil {
		al = &auctionLock{}
		l.locks[auctionID] = al
	}
	al.refs++
	l.mu.Unlock()

	al.Lock()
	return func() {
		al.Unlock()
		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.locks, auctionID)
		}
		l.mu.Unlock()
	}
}

func (l *auctionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
