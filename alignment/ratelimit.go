package alignment

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// workspaceLimiter rate-limits calls to the LM endpoint per workspace (§5
// "the LM endpoint is rate-limited per workspace (default: 10/min, 60 s
// window) via a sliding token map"), mirroring webhook's per-source
// sourceLimiter but keyed by workspace instead of source address.
type workspaceLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// newWorkspaceLimiter builds a limiter for maxPerWindow requests per
// window (§6 "rate-limit window (60 s) and max (10)"). The configured
// window/max are expressed as a token bucket refilling at
// maxPerWindow/window and bursting up to maxPerWindow, which approximates
// the spec's sliding window closely enough for a soft guard against
// upstream cost, not a hard compliance boundary.
func newWorkspaceLimiter(maxPerWindow int, window time.Duration) *workspaceLimiter {
	return &workspaceLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(maxPerWindow) / window.Seconds()),
		burst:    maxPerWindow,
	}
}

func (l *workspaceLimiter) allow(workspaceID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[workspaceID]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[workspaceID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
