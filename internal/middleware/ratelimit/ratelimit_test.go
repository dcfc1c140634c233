package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newLimiter(t *testing.T, perMinute int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
	rl := New(Config{MaxRequestsPerMinute: perMinute, Now: clock.Now})
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestAllow_RefillsOverTime(t *testing.T) {
	rl, clock := newLimiter(t, 2)

	assert.True(t, rl.allow("org:a"))
	assert.True(t, rl.allow("org:a"))
	assert.False(t, rl.allow("org:a"))

	clock.Advance(29 * time.Second)
	assert.False(t, rl.allow("org:a"))

	clock.Advance(time.Second)
	assert.True(t, rl.allow("org:a"))
	assert.False(t, rl.allow("org:a"))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	rl, _ := newLimiter(t, 1)

	assert.True(t, rl.allow("org:a"))
	assert.False(t, rl.allow("org:a"))
	assert.True(t, rl.allow("org:b"))
}

func TestEvictIdle(t *testing.T) {
	rl, clock := newLimiter(t, 5)

	rl.allow("org:a")
	clock.Advance(5 * time.Minute)
	rl.allow("org:b")
	clock.Advance(6 * time.Minute)

	assert.Equal(t, 1, rl.evictIdle())
	rl.mu.RLock()
	_, kept := rl.buckets["org:b"]
	rl.mu.RUnlock()
	assert.True(t, kept)
}

func TestMiddleware_KeysByOrganization(t *testing.T) {
	rl, _ := newLimiter(t, 1)
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	do := func(org, user string) int {
		req := httptest.NewRequest("GET", "/", nil)
		if org != "" {
			req.Header.Set("X-Organization-ID", org)
		}
		if user != "" {
			req.Header.Set("X-User-ID", user)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, do("org1", "u1"))
	assert.Equal(t, fiber.StatusTooManyRequests, do("org1", "u2"))
	assert.Equal(t, fiber.StatusOK, do("", "u1"))
	assert.Equal(t, fiber.StatusOK, do("org2", ""))
}

func TestStop_Idempotent(t *testing.T) {
	rl := New(Config{})
	rl.Stop()
	rl.Stop()
}
