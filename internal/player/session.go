package player

import (
	"context"
	"sync"
	"time"
)

// DefaultTickInterval matches the refresh rate clients render at.
const DefaultTickInterval = 80 * time.Millisecond

// Session tracks the playback state of one chapter. Clients report
// (position, playing) pairs; between reports the position is
// extrapolated against the wall clock while playing.
type Session struct {
	now func() time.Time

	mu       sync.Mutex
	position float64
	playing  bool
	reported time.Time
}

type SessionOption func(*Session)

// WithClock substitutes the wall clock, for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

func NewSession(opts ...SessionOption) *Session {
	s := &Session{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report records a client position update. Negative positions clamp
// to zero.
func (s *Session) Report(position float64, playing bool) {
	if position < 0 {
		position = 0
	}
	s.mu.Lock()
	s.position = position
	s.playing = playing
	s.reported = s.now()
	s.mu.Unlock()
}

// Position returns the current playback position, extrapolated from
// the last report while playing.
func (s *Session) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing || s.reported.IsZero() {
		return s.position
	}
	return s.position + s.now().Sub(s.reported).Seconds()
}

func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Tick calls emit with the extrapolated position at the given
// interval until the context is cancelled.
func (s *Session) Tick(ctx context.Context, interval time.Duration, emit func(position float64)) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit(s.Position())
		}
	}
}
