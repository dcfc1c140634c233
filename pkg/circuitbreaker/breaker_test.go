package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errUpstream = errors.New("upstream 503")

func fail(ctx context.Context) error    { return errUpstream }
func succeed(ctx context.Context) error { return nil }

func newTestBreaker(c *clock, transitions *[]string) *CircuitBreaker {
	return NewCircuitBreaker("llm", Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		Now:              c.Now,
		OnStateChange: func(name string, from, to State) {
			*transitions = append(*transitions, from.String()+"->"+to.String())
		},
	})
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	c := &clock{now: time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := newTestBreaker(c, &transitions)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), fail), errUpstream)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	c := &clock{now: time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := newTestBreaker(c, &transitions)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}

	c.Advance(31 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenLimitsTrialCalls(t *testing.T) {
	c := &clock{now: time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("llm", Config{FailureThreshold: 1, SuccessThreshold: 1, MaxRequests: 1, Timeout: time.Second, Now: c.Now})

	_ = cb.Execute(context.Background(), fail)
	c.Advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, cb.Execute(context.Background(), succeed), ErrTooManyRequests)
	close(release)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	c := &clock{now: time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := newTestBreaker(c, &transitions)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	c.Advance(31 * time.Second)

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->open"}, transitions)
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	c := &clock{now: time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := newTestBreaker(c, &transitions)

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), fail)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().ConsecutiveFailures)
	assert.Equal(t, uint32(3), cb.Counts().TotalFailures)
}

func TestBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	c := &clock{now: time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := newTestBreaker(c, &transitions)

	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return context.Canceled
		})
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Counts().TotalFailures)
}

func TestBreaker_PanicCountsAsFailure(t *testing.T) {
	cb := NewCircuitBreaker("panicky", Config{FailureThreshold: 1})

	assert.Panics(t, func() {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, StateOpen, cb.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
