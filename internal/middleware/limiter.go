package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"duka-be/internal/auth"
	"duka-be/internal/utils"

	"golang.org/x/time/rate"
)

// Rate Limit Tiers
const (
	// Payment initiation (Strict)
	limitStrict = rate.Limit(2)
	burstStrict = 5

	// General (Default)
	limitGeneral = rate.Limit(10)
	burstGeneral = 20

	// Admin dashboards
	limitAdmin = rate.Limit(20)
	burstAdmin = 40

	// Internal / trusted services
	limitInternal = rate.Limit(100)
	burstInternal = 200
)

const (
	CallbackPath = "/payments/mpesa/callback"
	InitiatePath = "/payments/initiate"
)

// visitor holds the rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// getVisitor retrieves or creates a rate limiter for the given bucket key.
func (l *RateLimiter) getVisitor(key string, r rate.Limit, b int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(r, b)
		l.visitors[key] = &visitor{limiter, l.now()}
		return limiter
	}

	v.lastSeen = l.now()
	return v.limiter
}

// Cleanup drops buckets idle for longer than idle, every interval, until ctx
// is done.
func (l *RateLimiter) Cleanup(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evictIdle(idle)
		}
	}
}

func (l *RateLimiter) evictIdle(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if l.now().Sub(v.lastSeen) > idle {
			delete(l.visitors, key)
		}
	}
}

// RateLimitMiddleware checks if the request is allowed by the rate limiter.
// It must run after AuthMiddleware so buckets are keyed per caller.
func (l *RateLimiter) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, burst, tier := resolveRateTier(r)
		if tier == "exempt" {
			next.ServeHTTP(w, r)
			return
		}

		// separate quotas per tier for the same caller, e.g. "user:1:strict"
		key := fmt.Sprintf("%s:%s", identity(r), tier)

		if !l.getVisitor(key, limit, burst).Allow() {
			w.Header().Set("Retry-After", "1")
			utils.WriteJSONError(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func identity(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		if p.System {
			return "system"
		}
		return "user:" + p.UserID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}

// resolveRateTier determines which rate limit policy applies to the request.
func resolveRateTier(r *http.Request) (rate.Limit, int, string) {
	// The gateway does not retry a rejected callback, so it is never dropped.
	if r.URL.Path == CallbackPath {
		return rate.Inf, 0, "exempt"
	}

	p, _ := auth.PrincipalFrom(r.Context())
	if p.System {
		return limitInternal, burstInternal, "internal"
	}

	if r.URL.Path == InitiatePath {
		return limitStrict, burstStrict, "strict"
	}

	// tiers come from the verified principal, never from client headers
	if p.IsAdmin() {
		return limitAdmin, burstAdmin, "admin"
	}

	return limitGeneral, burstGeneral, "general"
}
