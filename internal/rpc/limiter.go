package rpc

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Idle limiters are dropped after limiterTTL; a returning client starts
// with a full bucket.
const (
	limiterTTL     = 10 * time.Minute
	limiterCleanup = time.Minute
)

// ipLimiter implements per-client-IP rate limiting.
type ipLimiter struct {
	mu       sync.Mutex
	limiters *gocache.Cache
	rate     rate.Limit
	burst    int
}

func newIPLimiter(requestsPerSecond float64, burst int) *ipLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &ipLimiter{
		limiters: gocache.New(limiterTTL, limiterCleanup),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// allow reports whether a request from host may proceed.
func (l *ipLimiter) allow(host string) bool {
	return l.get(host).Allow()
}

func (l *ipLimiter) get(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.limiters.Get(host); ok {
		lim := v.(*rate.Limiter)
		// Touch so active clients are not evicted.
		l.limiters.SetDefault(host, lim)
		return lim
	}
	lim := rate.NewLimiter(l.rate, l.burst)
	l.limiters.SetDefault(host, lim)
	return lim
}
