package application

import (
	"context"
	"sync"
	"time"
)

// Breakdown is a day/hour/minute/second split of the time remaining until a
// countdown target. Processing marks a target that has already passed.
type Breakdown struct {
	Days       int
	Hours      int
	Minutes    int
	Seconds    int
	Processing bool
}

// BreakdownUntil computes the remaining-time split at the given instant.
func BreakdownUntil(target, now time.Time) Breakdown {
	remaining := target.Sub(now)
	if remaining < 0 {
		return Breakdown{Processing: true}
	}

	return Breakdown{
		Days:    int(remaining / (24 * time.Hour)),
		Hours:   int(remaining % (24 * time.Hour) / time.Hour),
		Minutes: int(remaining % time.Hour / time.Minute),
		Seconds: int(remaining % time.Minute / time.Second),
	}
}

// CountdownStatus is the current countdown target, the amount maturing at it,
// and the latest per-second breakdown.
type CountdownStatus struct {
	Target    time.Time
	Amount    float64
	Remaining Breakdown
}

// Countdown is the owned, cancellable freeze-maturity timer. Start replaces
// any running tick loop, so the countdown can never keep ticking against a
// stale target. The breakdown is recomputed every second.
type Countdown struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	target  time.Time
	amount  float64
	current Breakdown
	running bool
}

// NewCountdown creates a stopped countdown.
func NewCountdown() *Countdown {
	return &Countdown{}
}

// Start points the countdown at a new target, cancelling the previous tick
// loop first. ctx bounds the new loop's lifetime.
func (c *Countdown) Start(ctx context.Context, target time.Time, amount float64) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	tickCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.target = target
	c.amount = amount
	c.current = BreakdownUntil(target, time.Now())
	c.running = true
	c.mu.Unlock()

	go c.tick(tickCtx, target)
}

// Stop halts the tick loop. Stopping a stopped countdown has no effect.
func (c *Countdown) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.running = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Target returns the active target time, or false when no countdown runs.
func (c *Countdown) Target() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.running
}

// Snapshot returns the current countdown status; ok is false when no
// countdown is running.
func (c *Countdown) Snapshot() (CountdownStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return CountdownStatus{}, false
	}
	return CountdownStatus{Target: c.target, Amount: c.amount, Remaining: c.current}, true
}

func (c *Countdown) tick(ctx context.Context, target time.Time) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			remaining := BreakdownUntil(target, now)
			c.mu.Lock()
			// Only publish if this loop still owns the countdown.
			if c.running && c.target.Equal(target) {
				c.current = remaining
			}
			c.mu.Unlock()
		}
	}
}
