package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests step time explicitly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAllowExactlyCapWithinWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(5, time.Minute, WithNowFunc(clock.Now))

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("alice"), "request %d should pass", i)
		clock.Advance(time.Second)
	}
	assert.False(t, l.Allow("alice"), "cap reached")
	assert.False(t, l.Allow("alice"), "still blocked")
}

func TestBlockedUntilOldestAgesOut(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(3, time.Minute, WithNowFunc(clock.Now))

	assert.True(t, l.Allow("bob")) // t=0
	clock.Advance(10 * time.Second)
	assert.True(t, l.Allow("bob")) // t=10
	clock.Advance(10 * time.Second)
	assert.True(t, l.Allow("bob")) // t=20
	assert.False(t, l.Allow("bob"))

	// At t=59 the oldest (t=0) is still inside the trailing minute.
	clock.Advance(39 * time.Second)
	assert.False(t, l.Allow("bob"))

	// At t=61 the t=0 entry has aged out.
	clock.Advance(2 * time.Second)
	assert.True(t, l.Allow("bob"))
	assert.False(t, l.Allow("bob"), "window is full again")
}

func TestWindowBoundaryInclusive(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(1, time.Minute, WithNowFunc(clock.Now))

	assert.True(t, l.Allow("hana")) // t=0
	clock.Advance(time.Minute)
	// t=60: the t=0 entry sits exactly on the window edge and still counts.
	assert.False(t, l.Allow("hana"))
	assert.Equal(t, 0, l.Remaining("hana"))
	clock.Advance(time.Nanosecond)
	assert.True(t, l.Allow("hana"))
}

func TestDeniedRequestsNotRecorded(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(2, time.Minute, WithNowFunc(clock.Now))

	assert.True(t, l.Allow("carol"))
	assert.True(t, l.Allow("carol"))
	for i := 0; i < 50; i++ {
		assert.False(t, l.Allow("carol"))
		clock.Advance(time.Second)
	}
	// 50 denied attempts later, only the two original timestamps count.
	clock.Advance(15 * time.Second) // past t=65
	assert.True(t, l.Allow("carol"))
}

func TestIdentitiesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(1, time.Minute, WithNowFunc(clock.Now))

	assert.True(t, l.Allow("dave"))
	assert.False(t, l.Allow("dave"))
	assert.True(t, l.Allow("erin"), "other identity unaffected")
}

func TestRemaining(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(3, time.Minute, WithNowFunc(clock.Now))

	assert.Equal(t, 3, l.Remaining("frank"))
	l.Allow("frank")
	assert.Equal(t, 2, l.Remaining("frank"))
	l.Allow("frank")
	l.Allow("frank")
	assert.Equal(t, 0, l.Remaining("frank"))
	l.Allow("frank") // denied, not recorded
	assert.Equal(t, 0, l.Remaining("frank"))
}

func TestDefaults(t *testing.T) {
	l := NewLimiter(0, 0)
	assert.Equal(t, DefaultCap, l.cap)
	assert.Equal(t, DefaultWindow, l.window)
}

func TestConcurrentAllow(t *testing.T) {
	l := NewLimiter(100, time.Minute)
	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("grace")
		}()
	}
	wg.Wait()
	close(allowed)

	n := 0
	for ok := range allowed {
		if ok {
			n++
		}
	}
	assert.Equal(t, 100, n, "exactly cap requests admitted")
}
