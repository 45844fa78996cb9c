package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, Event{
		Kind:      KindAccessDenied,
		Actor:     "U123",
		Operation: "create_offer",
		Detail:    "required full_write, had read_only",
	})
	s.Record(ctx, Event{
		Kind:       KindConfirmation,
		Outcome:    OutcomeExecuted,
		Actor:      "U123",
		Coordinate: "C1:100.1",
		Operation:  "move_stage",
	})

	events, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.CreatedAt.IsZero())
	}
}

func TestRecentFiltersByKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, Event{Kind: KindAccessDenied, Actor: "U1"})
	s.Record(ctx, Event{Kind: KindInjectionFlagged, Actor: "U2"})
	s.Record(ctx, Event{Kind: KindInjectionFlagged, Actor: "U3"})

	events, err := s.Recent(ctx, KindInjectionFlagged, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, KindInjectionFlagged, ev.Kind)
	}
}

func TestRecentLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Record(ctx, Event{Kind: KindRateLimited, Actor: "U1"})
	}
	events, err := s.Recent(ctx, "", 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
