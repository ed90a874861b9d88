package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medora/medora/pkg/auth"
	"github.com/medora/medora/pkg/observability"
)

func newTestLimiter(t *testing.T, limit int) (*RateLimiter, *miniredis.Miniredis, *observability.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewRateLimiter(client, limit, time.Minute, metrics), mr, metrics
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, mr, _ := newTestLimiter(t, 2)
	ctx := context.Background()

	ok, remaining, reset, err := rl.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, time.Minute, reset)

	ok, remaining, _, err = rl.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)

	ok, _, _, err = rl.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	// other keys have their own window
	ok, _, _, err = rl.Allow(ctx, "ip:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, _, _, err = rl.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, _, metrics := newTestLimiter(t, 1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.RemoteAddr = "10.0.0.1:4567"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimitRejectionsTotal.WithLabelValues("ip")))

	// an authenticated caller from the same address is counted separately
	id := auth.Identity{AccountID: uuid.New(), ProviderID: uuid.New(), Kind: auth.KindCompany}
	authed := req.WithContext(auth.WithContext(req.Context(), auth.NewContext(id, nil)))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, authed)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	rl, mr, _ := newTestLimiter(t, 1)
	mr.Close()

	reached := false
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, reached)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(req, false))
	assert.Equal(t, "192.0.2.1", clientIP(req, true))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "192.0.2.1", clientIP(req, false))
	assert.Equal(t, "198.51.100.7", clientIP(req, true))

	// the client wrote the first hop, the proxy appended the last
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "192.0.2.1", clientIP(req, false))
	assert.Equal(t, "10.0.0.1", clientIP(req, true))
}

func TestRateLimiter_IgnoresForwardedHeadersByDefault(t *testing.T) {
	rl, _, _ := newTestLimiter(t, 1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
		req.RemoteAddr = "192.0.2.9:5555"
		req.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	// a fresh header value does not buy a fresh bucket
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.3"))
}

func TestRateLimiter_TrustedProxyKeysByForwardedHop(t *testing.T) {
	rl, _, _ := newTestLimiter(t, 1)
	h := rl.TrustProxyHeaders(true).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.2:443"
		req.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusOK, send("203.0.113.2"))
	// a spoofed leading hop does not change the proxy-appended one
	assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1, 203.0.113.2"))
}
