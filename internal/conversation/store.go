// Package conversation keeps per-thread message history in process memory.
// History is bounded two ways: a message cap with FIFO eviction from the
// front, and a thread TTL enforced lazily on access. Restart clears
// everything; that is deliberate.
package conversation

import (
	"sync"
	"time"
)

// Defaults applied by NewStore when zero values are passed.
const (
	DefaultTTL         = time.Hour
	DefaultMaxMessages = 50
)

// Message roles as seen by the LLM provider.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a thread's history. Content carries either
// plain text or a serialized tool-result payload.
type Message struct {
	Role    string
	Content string
}

type thread struct {
	messages []Message
	touched  time.Time
}

// Store is a keyed, TTL-bound, size-bound message history.
type Store struct {
	mu          sync.Mutex
	threads     map[string]*thread
	ttl         time.Duration
	maxMessages int
	nowFn       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) { s.nowFn = fn }
}

// NewStore creates a conversation store. Non-positive ttl or maxMessages
// fall back to the defaults.
func NewStore(ttl time.Duration, maxMessages int, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	s := &Store{
		threads:     make(map[string]*thread),
		ttl:         ttl,
		maxMessages: maxMessages,
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Messages returns a copy of the thread's history in insertion order.
// An expired thread reads as empty and is dropped.
func (s *Store) Messages(key string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	th := s.live(key)
	if th == nil {
		return nil
	}
	out := make([]Message, len(th.messages))
	copy(out, th.messages)
	return out
}

// Append adds a message to the thread, evicting the oldest entries when
// the cap is exceeded. Appending to an expired thread starts it fresh.
func (s *Store) Append(key string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	th := s.live(key)
	if th == nil {
		th = &thread{}
		s.threads[key] = th
	}
	th.messages = append(th.messages, msg)
	if n := len(th.messages) - s.maxMessages; n > 0 {
		th.messages = th.messages[n:]
	}
	th.touched = now
}

// AppendUser records a user message.
func (s *Store) AppendUser(key, content string) {
	s.Append(key, Message{Role: RoleUser, Content: content})
}

// AppendToolResult records a serialized tool-result payload on the user
// side of the transcript, so follow-up turns replay the data the model
// acted on rather than only its prose summary.
func (s *Store) AppendToolResult(key, content string) {
	s.Append(key, Message{Role: RoleUser, Content: content})
}

// AppendAssistant records an assistant message.
func (s *Store) AppendAssistant(key, content string) {
	s.Append(key, Message{Role: RoleAssistant, Content: content})
}

// Clear drops a thread's history entirely.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, key)
}

// Len returns the number of live messages in a thread.
func (s *Store) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	th := s.live(key)
	if th == nil {
		return 0
	}
	return len(th.messages)
}

// live returns the thread for key, dropping it first if the TTL elapsed.
// Callers must hold s.mu.
func (s *Store) live(key string) *thread {
	th, ok := s.threads[key]
	if !ok {
		return nil
	}
	if s.nowFn().Sub(th.touched) > s.ttl {
		delete(s.threads, key)
		return nil
	}
	return th
}
