package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter hands out one token bucket per client IP. Idle buckets are
// dropped after the cleanup interval so the map stays bounded.
type ipLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientBucket
	rps      rate.Limit
	burst    int
	maxIdle  time.Duration
	lastSeen func() time.Time
}

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	l := &ipLimiter{
		clients:  make(map[string]*clientBucket),
		rps:      rate.Limit(rps),
		burst:    burst,
		maxIdle:  3 * time.Minute,
		lastSeen: time.Now,
	}
	return l
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.lastSeen()
	b, ok := l.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = b
	}
	b.seen = now

	for addr, bucket := range l.clients {
		if now.Sub(bucket.seen) > l.maxIdle {
			delete(l.clients, addr)
		}
	}
	return b.limiter.Allow()
}

// clientIP picks the address to rate limit on. Proxy headers are only
// honored when the deployment says the proxy is trusted.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := r.Header.Get("X-Real-IP"); ip != "" {
			return ip
		}
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if i := strings.IndexByte(fwd, ','); i > 0 {
				return strings.TrimSpace(fwd[:i])
			}
			return strings.TrimSpace(fwd)
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// withRateLimit rejects clients that exceed the per-IP budget with a
// 429.
func withRateLimit(rps float64, burst int, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	limiter := newIPLimiter(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !limiter.allow(ip) {
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
