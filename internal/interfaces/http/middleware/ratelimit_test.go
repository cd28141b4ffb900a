package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medkb-qa-api/internal/infrastructure/persistence/redis"
)

type fakeLimiter struct {
	mu        sync.Mutex
	keys      []string
	allow     bool
	err       error
	remaining int
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

func (l *fakeLimiter) Remaining(_ context.Context, _ string, _ int, _ time.Duration) (int, error) {
	return l.remaining, nil
}

func newRateLimitRouter(cfg RateLimitConfig, limiter RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(cfg, limiter))
	r.POST("/v1/qa/ask", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doLimitedRequest(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/qa/ask", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitUsesClientScopedKey(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	r := newRateLimitRouter(RateLimitConfig{Enabled: true, RequestsPerSecond: 20}, limiter)

	w := doLimitedRequest(r, "203.0.113.7:4242")
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, limiter.keys, 1)
	// 限流键与存储层共用同一构造，按 IP 与路径维度
	assert.Equal(t, redis.BuildRateLimitKey("203.0.113.7", "/v1/qa/ask"), limiter.keys[0])
}

func TestRateLimitRejectsWhenExhausted(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	r := newRateLimitRouter(RateLimitConfig{Enabled: true, RequestsPerSecond: 20}, limiter)

	w := doLimitedRequest(r, "203.0.113.7:4242")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "20", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	r := newRateLimitRouter(RateLimitConfig{Enabled: true, RequestsPerSecond: 20}, limiter)

	w := doLimitedRequest(r, "203.0.113.7:4242")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitDisabledSkipsLimiter(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	r := newRateLimitRouter(RateLimitConfig{Enabled: false}, limiter)

	w := doLimitedRequest(r, "203.0.113.7:4242")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, limiter.keys)
}
