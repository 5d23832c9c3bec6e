package webhook

import (
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// sourceLimiter rate-limits the webhook endpoint by source address (§5
// "the webhook endpoint is rate-limited by source address"). Requests
// whose signature verifies are exempted by the caller before Allow is
// ever consulted.
type sourceLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func rateLimit(perSecond float64) rate.Limit { return rate.Limit(perSecond) }

func newSourceLimiter(perSecond rate.Limit, burst int) *sourceLimiter {
	return &sourceLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     perSecond,
		burst:    burst,
	}
}

func (l *sourceLimiter) allow(addr string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[addr]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[addr] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// sourceAddr strips the port from RemoteAddr, falling back to the raw
// value if it isn't host:port (e.g. behind a unix socket in tests).
func sourceAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
