package testutil

import (
	"sort"
	"sync"
	"time"
)

// FakeScheduler runs frame callbacks only when the test steps time forward
type FakeScheduler struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	pending map[int]func(time.Time)
}

func NewFakeScheduler(start time.Time) *FakeScheduler {
	return &FakeScheduler{
		now:     start,
		pending: make(map[int]func(time.Time)),
	}
}

func (f *FakeScheduler) RequestFrame(fn func(now time.Time)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.pending[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.pending, id)
	}
}

// Pending returns the number of armed callbacks
func (f *FakeScheduler) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Now returns the scheduler's current time
func (f *FakeScheduler) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Step advances time by d and fires every callback armed before the step.
// It returns the number of callbacks fired.
func (f *FakeScheduler) Step(d time.Duration) int {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	ids := make([]int, 0, len(f.pending))
	for id := range f.pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]func(time.Time), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.pending[id])
		delete(f.pending, id)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(now)
	}
	return len(fns)
}

// Advance steps repeatedly until total has elapsed
func (f *FakeScheduler) Advance(total, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		f.Step(step)
	}
}

// FakeClock is a settable clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
