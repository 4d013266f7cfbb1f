package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_blocksOverLimitPerIP(t *testing.T) {
	rl := NewRateLimiter(15*time.Minute, 3)
	defer rl.Stop()

	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do("10.0.0.1:1234"))
	}
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:5555"), "port does not matter")
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1234"), "other clients are unaffected")
	assert.Equal(t, 2, rl.Len())
}

func TestRateLimiter_retryAfterHeader(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	defer rl.Stop()

	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	h.ServeHTTP(httptest.NewRecorder(), req)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRateLimiter_cleanupDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 10)
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.cleanup(time.Now())
	assert.Equal(t, 1, rl.Len())

	rl.cleanup(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, rl.Len())
}
