package perftests

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bidding "bidding-live/internal/biddingService"
	"bidding-live/internal/biddingerrors"
	"bidding-live/internal/events"
	"bidding-live/internal/fanout"
	"bidding-live/internal/repository"
	"bidding-live/internal/subscriptions"
)

// LoadScenario defines configurable benchmark parameters
type LoadScenario struct {
	Name            string
	NumAuctions     int
	WatchersPer     int
	ReadRatio       int
	MaxBidIncrement int
	Burst           bool // if true, no delay between ops
}

// OperationMetrics collects latencies safely
type OperationMetrics struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(d time.Duration) {
	om.mu.Lock()
	om.latencies = append(om.latencies, d)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (min, max, avg, p95, p99 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()
	if len(om.latencies) == 0 {
		return
	}
	latencies := append([]time.Duration(nil), om.latencies...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	min = latencies[0]
	max = latencies[len(latencies)-1]

	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	avg = total / time.Duration(len(latencies))
	p95 = latencies[int(0.95*float64(len(latencies)))]
	p99 = latencies[int(0.99*float64(len(latencies)))]
	return
}

// sinkConn accepts every event and only counts it
type sinkConn struct {
	id       int64
	received atomic.Int64
}

func (c *sinkConn) ID() int64 { return c.id }

func (c *sinkConn) Send(events.Envelope) error {
	c.received.Add(1)
	return nil
}

func (c *sinkConn) Close() {}

// setupService creates a bidding service on the memory store with watchers on every auction
func setupService(s LoadScenario) (*bidding.BiddingService, []*sinkConn) {
	repo := repository.NewMemoryRepo()
	dir := subscriptions.NewDirectory()
	svc := bidding.NewBiddingService(repo, fanout.New(dir))

	var conns []*sinkConn
	for i := 0; i < s.NumAuctions; i++ {
		auctionID := fmt.Sprintf("auction_%d", i)
		repo.AddAuction(benchAuction(auctionID, 100))
		for w := 0; w < s.WatchersPer; w++ {
			c := &sinkConn{id: int64(len(conns) + 1)}
			conns = append(conns, c)
			dir.Subscribe(c, subscriptions.AuctionTopic(auctionID))
		}
	}
	return svc, conns
}

// Benchmark_Load_BiddingSystem runs multiple scenarios
func Benchmark_Load_BiddingSystem(b *testing.B) {
	scenarios := []LoadScenario{
		{"Low-Contention-WriteHeavy", 200, 1, 0, 50, false},
		{"High-Contention-WriteHeavy", 10, 5, 0, 20, false},
		{"Mixed-Workload", 50, 3, 7, 30, false},
		{"ReadHeavy", 50, 1, 9, 20, false},
		{"Edge-Case-SingleAuction", 1, 50, 5, 10, false},
		{"Peak-Burst", 50, 10, 0, 20, true},
	}

	for _, s := range scenarios {
		b.Run(s.Name, func(b *testing.B) {
			runParallelScenario(b, s)
		})
	}
}

func runParallelScenario(b *testing.B, s LoadScenario) {
	b.ReportAllocs()

	svc, conns := setupService(s)

	var totalOps, successfulBids, rejectedBids, failedBids, totalReads int64
	auctionSuccess := make([]int64, s.NumAuctions)
	metrics := &OperationMetrics{}

	start := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		ctx := context.Background()

		for pb.Next() {
			auctionIndex := rnd.Intn(s.NumAuctions)
			auctionID := fmt.Sprintf("auction_%d", auctionIndex)

			opStart := time.Now()
			if rnd.Intn(10) < s.ReadRatio {
				_, _ = svc.GetAuction(ctx, auctionID)
				atomic.AddInt64(&totalReads, 1)
			} else {
				current, err := svc.GetAuction(ctx, auctionID)
				if err != nil {
					b.Errorf("auction lookup failed: %v", err)
					return
				}
				amount := current.MinimumBid().IntPart() + int64(rnd.Intn(s.MaxBidIncrement))
				_, err = placeBid(svc, auctionID, fmt.Sprintf("user_%d", rnd.Int()), amount)
				switch {
				case err == nil:
					atomic.AddInt64(&successfulBids, 1)
					atomic.AddInt64(&auctionSuccess[auctionIndex], 1)
				case errors.Is(err, biddingerrors.ErrBidTooLow):
					// outbid between the read and the write
					atomic.AddInt64(&rejectedBids, 1)
				default:
					b.Logf("bid error: %v", err)
					atomic.AddInt64(&failedBids, 1)
				}
			}

			metrics.Record(time.Since(opStart))
			atomic.AddInt64(&totalOps, 1)

			if !s.Burst {
				time.Sleep(time.Millisecond)
			}
		}
	})

	elapsed := time.Since(start)
	throughput := float64(totalOps) / elapsed.Seconds()
	min, max, avg, p95, p99 := metrics.Stats()

	var delivered int64
	for _, c := range conns {
		delivered += c.received.Load()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	b.Logf(
		"Scenario: %s | Auctions: %d | Total Ops: %d | Admitted: %d | Outbid: %d | Failed: %d | Reads: %d | Events delivered: %d | Elapsed: %s | Throughput: %.2f ops/sec | Latency(us) min: %.2f avg: %.2f max: %.2f p95: %.2f p99: %.2f | Memory Alloc: %.2f MB",
		s.Name, s.NumAuctions, totalOps, successfulBids, rejectedBids, failedBids, totalReads, delivered, elapsed,
		throughput,
		float64(min.Microseconds()), float64(avg.Microseconds()), float64(max.Microseconds()),
		float64(p95.Microseconds()), float64(p99.Microseconds()),
		float64(mem.Alloc)/1024/1024,
	)

	if failedBids > 0 {
		b.Errorf("%d bids failed with unexpected errors", failedBids)
	}
}
