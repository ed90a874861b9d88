package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/httputil"
	"github.com/medora/medora/pkg/observability"
)

// Rate limit scopes used in keys and metric labels
const (
	scopeAccount = "account"
	scopeIP      = "ip"
)

// RateLimiter is a fixed-window request limiter backed by Redis, so every
// instance shares the same counters
type RateLimiter struct {
	redis   *redis.Client
	limit   int
	window  time.Duration
	prefix  string
	metrics *observability.Metrics

	trustProxy bool
}

// NewRateLimiter creates a limiter allowing limit requests per window
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, metrics *observability.Metrics) *RateLimiter {
	return &RateLimiter{
		redis:   client,
		limit:   limit,
		window:  window,
		prefix:  "medora:ratelimit",
		metrics: metrics,
	}
}

// TrustProxyHeaders makes anonymous callers keyed by the forwarding headers
// set by a reverse proxy. Enable it only when the proxy overwrites or
// appends to them; otherwise clients pick their own bucket.
func (rl *RateLimiter) TrustProxyHeaders(trust bool) *RateLimiter {
	rl.trustProxy = trust
	return rl
}

// Allow counts one request for key and reports whether it is within the
// limit, the requests left and the time until the window resets
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, rl.limit, 0, fmt.Errorf("redis error: %w", err)
	}

	// the first request of a window starts its expiry
	reset := ttl.Val()
	if reset <= 0 {
		if err := rl.redis.PExpire(ctx, redisKey, rl.window).Err(); err != nil {
			return true, rl.limit, 0, fmt.Errorf("redis error: %w", err)
		}
		reset = rl.window
	}

	count := int(incr.Val())
	remaining := rl.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.limit, remaining, reset, nil
}

// Middleware limits authenticated callers per account and anonymous callers
// per client IP. Redis failures let the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		scope, key := scopeIP, scopeIP+":"+clientIP(r, rl.trustProxy)
		if authCtx, ok := auth.FromContext(ctx); ok {
			scope, key = scopeAccount, scopeAccount+":"+authCtx.AccountID.String()
		}

		allowed, remaining, reset, err := rl.Allow(ctx, key)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

		if !allowed {
			if rl.metrics != nil {
				rl.metrics.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
			}
			seconds := int((reset + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP returns the connection address without its port. Behind a
// trusted proxy it prefers the last X-Forwarded-For hop, the one the proxy
// appended, then X-Real-IP.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			hops := strings.Split(forwarded, ",")
			if last := strings.TrimSpace(hops[len(hops)-1]); last != "" {
				return last
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
