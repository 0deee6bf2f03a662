package engine

import (
	"time"

	"focus-walker/internal/clock"
)

// DefaultFrameInterval is the tick cadence used when none is configured
const DefaultFrameInterval = 50 * time.Millisecond

// Scheduler arms one-shot frame callbacks. The returned cancel func must
// prevent fn from running if it has not fired yet.
type Scheduler interface {
	RequestFrame(fn func(now time.Time)) (cancel func())
}

// TimerScheduler fires frames on a fixed interval using runtime timers
type TimerScheduler struct {
	interval time.Duration
	clock    clock.Clock
}

// NewTimerScheduler creates a scheduler that fires each frame after interval
func NewTimerScheduler(interval time.Duration, c clock.Clock) *TimerScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &TimerScheduler{interval: interval, clock: c}
}

func (s *TimerScheduler) RequestFrame(fn func(now time.Time)) func() {
	t := time.AfterFunc(s.interval, func() {
		fn(s.clock.Now())
	})
	return func() {
		t.Stop()
	}
}
