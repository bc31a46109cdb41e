package signal

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxTrackedPairs = 4096

// pingLimiter allows one ping per sender and target every interval.
type pingLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

func newPingLimiter(interval time.Duration) *pingLimiter {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &pingLimiter{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

func (p *pingLimiter) Allow(from, to string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	key := from + "|" + to
	lim, ok := p.limiters[key]
	if !ok {
		if len(p.limiters) >= maxTrackedPairs {
			p.pruneLocked(now)
		}
		lim = rate.NewLimiter(rate.Every(p.interval), 1)
		p.limiters[key] = lim
	}
	return lim.AllowN(now, 1)
}

// pruneLocked forgets pairs whose bucket has refilled.
func (p *pingLimiter) pruneLocked(now time.Time) {
	for key, lim := range p.limiters {
		if lim.TokensAt(now) >= 1 {
			delete(p.limiters, key)
		}
	}
}
