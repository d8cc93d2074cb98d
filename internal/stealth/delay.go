package stealth

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// DelayProfile names a jitter range applied to direct storefront calls.
type DelayProfile string

const (
	ProfileOff        DelayProfile = "off"
	ProfileCautious   DelayProfile = "cautious"
	ProfileNormal     DelayProfile = "normal"
	ProfileAggressive DelayProfile = "aggressive"
)

// Jitter sleeps a random duration in [Min, Max) before each request.
type Jitter struct {
	Min time.Duration
	Max time.Duration
}

// NewJitter returns the jitter for a profile, or nil for ProfileOff.
func NewJitter(profile DelayProfile) *Jitter {
	switch profile {
	case ProfileOff:
		return nil
	case ProfileCautious:
		return &Jitter{Min: 2 * time.Second, Max: 5 * time.Second}
	case ProfileAggressive:
		return &Jitter{Min: 200 * time.Millisecond, Max: 800 * time.Millisecond}
	default:
		return &Jitter{Min: 500 * time.Millisecond, Max: 2 * time.Second}
	}
}

// Wait sleeps for a random duration within the configured range.
func (j *Jitter) Wait(ctx context.Context) error {
	return sleepCtx(ctx, j.next())
}

func (j *Jitter) next() time.Duration {
	if j.Min >= j.Max {
		return j.Min
	}
	return j.Min + time.Duration(rand.Int64N(int64(j.Max-j.Min)))
}

// Throttle enforces the fixed pause between consecutive remote fetches of a batch.
// The first Wait returns at once; every later Wait sleeps the full Interval.
type Throttle struct {
	Interval time.Duration

	mu     sync.Mutex
	primed bool
	sleep  func(context.Context, time.Duration) error
}

// NewThrottle creates a throttle with the given interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{Interval: interval, sleep: sleepCtx}
}

// Wait blocks until the next fetch may start.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.primed {
		t.primed = true
		return ctx.Err()
	}
	sleep := t.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, t.Interval)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
