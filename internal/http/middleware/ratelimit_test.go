package middleware

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/instalist/instalist-server/internal/auth"
)

func TestKeyByDeviceOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if got := KeyByDeviceOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("anonymous key = %q", got)
	}
	c.Set(ctxKeyDeviceID, uint64(12))
	c.Set(ctxKeyGroupID, uint64(1))
	if got := KeyByDeviceOrIP()(c); got != "device:12" {
		t.Fatalf("device key = %q", got)
	}
}

func TestRateLimiter_BurstAndReuse(t *testing.T) {
	rl := NewRateLimiter(2, 0, nil)
	if rl.burst != 1 {
		t.Fatalf("burst = %d, want 1", rl.burst)
	}
	a := rl.limiterFor("k")
	if rl.limiterFor("k") != a {
		t.Fatalf("bucket not reused")
	}
	if rl.limiterFor("other") == a {
		t.Fatalf("keys share a bucket")
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.limiterFor("old")
	now = now.Add(rl.idleTTL / 2)
	rl.limiterFor("fresh")
	if rl.size() != 2 {
		t.Fatalf("size = %d", rl.size())
	}

	now = now.Add(rl.idleTTL/2 + time.Second)
	rl.limiterFor("fresh")
	if rl.size() != 1 {
		t.Fatalf("idle bucket not swept, size = %d", rl.size())
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	v := stubVerifier{tokens: map[string]auth.Principal{
		"a": {DeviceID: 1, GroupID: 1},
		"b": {DeviceID: 2, GroupID: 1},
	}}
	rl := NewRateLimiter(0.0001, 1, KeyByDeviceOrIP())
	seen := func(context.Context, uint64, uint64, string, time.Time) (bool, error) { return true, nil }
	r := newEngine(RequestID(), BearerAuth(v), IdempotencyValidator(IdempotencyOptions{}, seen), rl.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	devA := map[string]string{"Authorization": "Bearer a"}
	if w := do(t, r, http.MethodGet, "/", devA); w.Code != http.StatusOK {
		t.Fatalf("first = %d", w.Code)
	}
	w := do(t, r, http.MethodGet, "/", devA)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second = %d", w.Code)
	}
	if body := decodeEnvelope(t, w); body["code"] != "rate_limited" || body["request_id"] == "" {
		t.Fatalf("body = %v", body)
	}

	if w := do(t, r, http.MethodGet, "/", map[string]string{"Authorization": "Bearer b"}); w.Code != http.StatusOK {
		t.Fatalf("other device limited: %d", w.Code)
	}
	// A known Idempotency-Key does not buy extra requests.
	replay := map[string]string{"Authorization": "Bearer a", HeaderIdempotencyKey: "k-1"}
	if w := do(t, r, http.MethodPost, "/", replay); w.Code != http.StatusTooManyRequests {
		t.Fatalf("replay not limited: %d", w.Code)
	}
}
