package player

import (
	"sync"
	"time"
)

// ThrottleGate rate-limits follow-the-audio scroll commands. A trigger
// inside the throttle window is not dropped: it is delayed and fires
// exactly once when the window elapses. A newer trigger replaces a
// pending one, so only the latest index fires.
type ThrottleGate struct {
	window time.Duration
	fire   func(index int)
	now    func() time.Time

	mu       sync.Mutex
	lastFire time.Time
	pending  *time.Timer
	stopped  bool
}

type GateOption func(*ThrottleGate)

// WithGateClock substitutes the wall clock, for tests.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *ThrottleGate) {
		g.now = now
	}
}

func NewThrottleGate(window time.Duration, fire func(index int), opts ...GateOption) *ThrottleGate {
	g := &ThrottleGate{
		window: window,
		fire:   fire,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Trigger requests a fire for the given index. Negative indexes are
// ignored; there is nothing to scroll to.
func (g *ThrottleGate) Trigger(index int) {
	if index < 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}

	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}

	elapsed := g.now().Sub(g.lastFire)
	if elapsed >= g.window {
		g.lastFire = g.now()
		go g.fire(index)
		return
	}

	g.pending = time.AfterFunc(g.window-elapsed, func() {
		g.mu.Lock()
		if g.stopped {
			g.mu.Unlock()
			return
		}
		g.pending = nil
		g.lastFire = g.now()
		g.mu.Unlock()
		g.fire(index)
	})
}

// Stop cancels any pending fire.
func (g *ThrottleGate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
}
