/*
Package limiter provides per-IP request rate limiting using token buckets.

A background goroutine periodically removes limiters whose buckets are full
again, so idle IPs do not accumulate.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"parley/internal/pkg/errs"
	"parley/internal/pkg/logx"
	"parley/internal/pkg/resp"
)

// IPRateLimiter maps client IP addresses to token-bucket limiters.
type IPRateLimiter struct {
	mu     sync.RWMutex
	limits map[string]*rate.Limiter

	// r is the sustained rate in events per second.
	r rate.Limit

	// b is the burst capacity.
	b int
}

// NewIPRateLimiter builds a limiter with rate r and burst b and starts the
// cleanup goroutine.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	l := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
	}

	go l.cleanupLoop()

	return l
}

// GetLimiter returns the limiter for ip, creating it on first sight.
func (l *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limits[ip]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		limiter, exists = l.limits[ip]
		if !exists {
			limiter = rate.NewLimiter(l.r, l.b)
			l.limits[ip] = limiter
		}
		l.mu.Unlock()
	}

	return limiter
}

// cleanupLoop removes limiters whose buckets have refilled completely.
func (l *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		removed := 0
		for ip, limiter := range l.limits {
			if limiter.TokensAt(time.Now()) >= float64(limiter.Burst()) {
				delete(l.limits, ip)
				removed++
			}
		}
		remaining := len(l.limits)
		l.mu.Unlock()

		logx.Info("rate limiter cleanup", "removed", removed, "remaining", remaining)
	}
}

// ClientIP extracts the host part of an HTTP remote address.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}

// Middleware rejects requests exceeding the caller's rate budget with a 429.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.GetLimiter(ClientIP(r)).Allow() {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
