package conversation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}
func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestAppendAndMessages(t *testing.T) {
	s := NewStore(0, 0)
	s.AppendUser("C1:100.1", "who is in final round?")
	s.AppendAssistant("C1:100.1", "Two candidates are in final round.")

	msgs := s.Messages("C1:100.1")
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Empty(t, s.Messages("C1:999.9"), "other thread untouched")
}

func TestAppendToolResult(t *testing.T) {
	s := NewStore(0, 0)
	s.AppendUser("k", "list open jobs")
	s.AppendToolResult("k", `{"total":1,"results":[{"id":"j1"}]}`)
	s.AppendAssistant("k", "One job is open.")

	msgs := s.Messages("k")
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, `"j1"`)
}

func TestFIFOEvictionPreservesOrder(t *testing.T) {
	s := NewStore(time.Hour, 5)
	for i := 0; i < 8; i++ {
		s.AppendUser("k", fmt.Sprintf("m%d", i))
	}
	msgs := s.Messages("k")
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf("m%d", i+3), m.Content)
	}
}

func TestTTLExpiryIsLazy(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(time.Hour, 50, WithNowFunc(clock.Now))

	s.AppendUser("k", "hello")
	clock.Advance(59 * time.Minute)
	assert.Len(t, s.Messages("k"), 1, "still inside TTL")

	clock.Advance(2 * time.Minute)
	assert.Empty(t, s.Messages("k"), "expired thread reads as empty")
	assert.Equal(t, 0, s.Len("k"))
}

func TestAppendRefreshesTTL(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(time.Hour, 50, WithNowFunc(clock.Now))

	s.AppendUser("k", "first")
	clock.Advance(50 * time.Minute)
	s.AppendUser("k", "second")
	clock.Advance(50 * time.Minute)

	// 100 minutes after the first message, but only 50 after the last.
	assert.Len(t, s.Messages("k"), 2)
}

func TestAppendAfterExpiryStartsFresh(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(time.Hour, 50, WithNowFunc(clock.Now))

	s.AppendUser("k", "old context")
	clock.Advance(2 * time.Hour)
	s.AppendUser("k", "new question")

	msgs := s.Messages("k")
	require.Len(t, msgs, 1)
	assert.Equal(t, "new question", msgs[0].Content)
}

func TestClear(t *testing.T) {
	s := NewStore(0, 0)
	s.AppendUser("k", "a")
	s.AppendAssistant("k", "b")
	s.Clear("k")
	assert.Empty(t, s.Messages("k"))
	s.Clear("k") // clearing an absent thread is a no-op
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := NewStore(0, 0)
	s.AppendUser("k", "original")
	msgs := s.Messages("k")
	msgs[0].Content = "tampered"
	assert.Equal(t, "original", s.Messages("k")[0].Content)
}
