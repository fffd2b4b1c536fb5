package rpc

import (
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter caps request rates per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

// NewRateLimiter allows perMinute requests with the given burst for each
// client address.
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perMinute / 60.0),
		burst:    burst,
		visitors: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the client identified by remoteAddr may proceed.
func (l *RateLimiter) Allow(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	l.mu.Lock()
	limiter, ok := l.visitors[host]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.visitors[host] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
