package testutil

import (
	"strconv"
	"sync"
	"time"
)

// Epoch is the start time of clocks built by FixedClock and TickingClock.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a manual efm.Clock. Every call to Now advances it by step, so
// with a non-zero step successive timestamps are strictly increasing.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// FixedClock returns a clock that stays at Epoch.
func FixedClock() *StubClock {
	return &StubClock{now: Epoch}
}

// TickingClock returns a clock starting at Epoch that moves by step per call.
func TickingClock(step time.Duration) *StubClock {
	return &StubClock{now: Epoch, step: step}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// StubIDGenerator hands out "tmp-1", "tmp-2", ... so temp names are predictable.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return "tmp-" + strconv.Itoa(g.next)
}
