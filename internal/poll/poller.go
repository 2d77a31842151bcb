// Package poll provides the timer-driven badge refresher a lecturer's
// course screen runs while mounted. It substitutes for a push channel:
// each tick re-reads the recent scan count and the screen renders the
// difference as a notification badge.
package poll

import (
	"context"
	"log"
	"sync"
	"time"

	"cheqr/internal/clock"
)

// CountFunc fetches the current recent-scan count for the watched course.
type CountFunc func(ctx context.Context) (int, error)

// Poller re-fetches a scan count on a fixed interval. Ticks closer
// together than the throttle floor are skipped, which guards against
// overlapping ticks when the caller re-creates timers. Errors during a
// tick are swallowed and retried next tick; the count is best-effort
// freshness, not correctness-critical.
type Poller struct {
	interval time.Duration
	floor    time.Duration
	clk      clock.Clock
	count    CountFunc

	mu        sync.Mutex
	lastCheck time.Time
	badge     int
	onUpdate  func(int)
}

// New creates a poller. interval is the tick period, floor the minimum
// spacing between two fetches. onUpdate, when non-nil, is invoked with
// the fresh count after each successful fetch.
func New(interval, floor time.Duration, clk clock.Clock, count CountFunc, onUpdate func(int)) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if floor < 0 {
		floor = 0
	}
	return &Poller{interval: interval, floor: floor, clk: clk, count: count, onUpdate: onUpdate}
}

// Run loops until ctx is cancelled. No state outlives the loop.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick performs one poll cycle. It reports false when the tick was
// skipped by the throttle floor, true when a fetch was attempted.
func (p *Poller) Tick(ctx context.Context) bool {
	now := p.clk.Now()

	p.mu.Lock()
	if !p.lastCheck.IsZero() && now.Sub(p.lastCheck) < p.floor {
		p.mu.Unlock()
		return false
	}
	p.lastCheck = now
	p.mu.Unlock()

	n, err := p.count(ctx)
	if err != nil {
		log.Printf("poll: count fetch failed, retrying next tick: %v", err)
		return true
	}

	p.mu.Lock()
	p.badge = n
	cb := p.onUpdate
	p.mu.Unlock()
	if cb != nil {
		cb(n)
	}
	return true
}

// Badge returns the last successfully fetched count.
func (p *Poller) Badge() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.badge
}
