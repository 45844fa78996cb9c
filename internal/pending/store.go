// Package pending holds mutating requests that were proposed by the agent
// and are waiting for an explicit acknowledgement from the person who
// asked for them. Entries live in process memory only and expire after a
// short TTL; a restart discards everything, which fails safe because no
// unconfirmed action can then execute.
package pending

import (
	"sync"
	"time"
)

// DefaultTTL is how long an action waits for acknowledgement.
const DefaultTTL = 5 * time.Minute

// Action kinds. Each maps to exactly one ATS mutation.
const (
	KindAddNote             = "add_note"
	KindMoveStage           = "move_stage"
	KindCreateCandidate     = "create_candidate"
	KindScheduleInterview   = "schedule_interview"
	KindCancelInterview     = "cancel_interview"
	KindRescheduleInterview = "reschedule_interview"
	KindCreateOffer         = "create_offer"
	KindRejectApplication   = "reject_application"
	KindArchiveCandidate    = "archive_candidate"
	KindApplyToJob          = "apply_to_job"
)

// Kinds lists every valid action kind.
var Kinds = []string{
	KindAddNote, KindMoveStage, KindCreateCandidate, KindScheduleInterview,
	KindCancelInterview, KindRescheduleInterview, KindCreateOffer,
	KindRejectApplication, KindArchiveCandidate, KindApplyToJob,
}

// ValidKind reports whether kind names a known action.
func ValidKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Action is a registered, not-yet-executed mutating request. Once stored
// it is immutable; a new proposal at the same coordinate replaces it
// wholesale.
type Action struct {
	Coordinate string // channel + message timestamp of the proposal reply
	Kind       string
	Payload    map[string]any
	Owner      string // identity whose acknowledgement is required
	CreatedAt  time.Time
}

// ConsumeResult describes the outcome of an atomic consume attempt.
type ConsumeResult int

const (
	// Consumed: the action existed, the actor owned it, and it has been
	// removed. The caller now holds the only reference and may execute.
	Consumed ConsumeResult = iota
	// NotFound: no live action at the coordinate (never existed, already
	// consumed, or expired).
	NotFound
	// NotOwner: a live action exists but belongs to someone else. It
	// remains stored and consumable by its owner.
	NotOwner
)

// Store is a keyed, TTL-bound table of actions awaiting confirmation.
type Store struct {
	mu      sync.Mutex
	actions map[string]Action
	ttl     time.Duration
	nowFn   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) { s.nowFn = fn }
}

// NewStore creates a pending-action store. Non-positive ttl falls back to
// DefaultTTL.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		actions: make(map[string]Action),
		ttl:     ttl,
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put registers an action at its coordinate. An existing action at the
// same coordinate is replaced; last writer wins.
func (s *Store) Put(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.nowFn()
	}
	s.actions[a.Coordinate] = a
}

// Get returns the live action at a coordinate. Expired entries read as
// absent and are swept.
func (s *Store) Get(coordinate string) (Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	a, ok := s.actions[coordinate]
	return a, ok
}

// Remove deletes the action at a coordinate, if any.
func (s *Store) Remove(coordinate string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actions, coordinate)
}

// Consume atomically checks that a live action at the coordinate belongs
// to actor and removes it. Validity check and removal happen in one
// critical section, so two concurrent acknowledgements of the same action
// yield exactly one Consumed.
func (s *Store) Consume(coordinate, actor string) (Action, ConsumeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()

	a, ok := s.actions[coordinate]
	if !ok {
		return Action{}, NotFound
	}
	if a.Owner != actor {
		return Action{}, NotOwner
	}
	delete(s.actions, coordinate)
	return a, Consumed
}

// List returns all live actions. Expired entries are swept first.
func (s *Store) List() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()

	out := make([]Action, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a)
	}
	return out
}

// sweep drops every expired entry. Callers must hold s.mu. Sweeping on
// every read keeps the table honest without a background goroutine.
func (s *Store) sweep() {
	cutoff := s.nowFn().Add(-s.ttl)
	for coord, a := range s.actions {
		if !a.CreatedAt.After(cutoff) {
			delete(s.actions, coord)
		}
	}
}
