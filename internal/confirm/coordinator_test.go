package confirm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/warden/internal/pending"
	"github.com/dativo-io/warden/internal/sanitize"
)

type fakeExecutor struct {
	mu       sync.Mutex
	calls    int32
	err      error
	executed []pending.Action
}

func (f *fakeExecutor) Execute(_ context.Context, a pending.Action) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.executed = append(f.executed, a)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "Done: " + a.Kind, nil
}

type fakeReplier struct {
	mu      sync.Mutex
	replies []string
}

func (f *fakeReplier) Reply(_ context.Context, _, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeReplier) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.replies)
	return f.replies[len(f.replies)-1]
}

func newCoordinator(exec *fakeExecutor, rep *fakeReplier) (*Coordinator, *pending.Store) {
	store := pending.NewStore(0)
	c := NewCoordinator(store, exec, rep, sanitize.MustNew(), nil)
	return c, store
}

func proposal(owner string) pending.Action {
	return pending.Action{
		Coordinate: "C1:100.1",
		Kind:       pending.KindMoveStage,
		Payload:    map[string]any{"applicationId": "app_1", "stageId": "stage_2"},
		Owner:      owner,
	}
}

func TestPositiveAckFromOwnerExecutes(t *testing.T) {
	exec := &fakeExecutor{}
	rep := &fakeReplier{}
	c, store := newCoordinator(exec, rep)
	store.Put(proposal("alice"))

	err := c.HandleAck(context.Background(), AckEvent{
		Signal: Positive, Actor: "alice", Coordinate: "C1:100.1", Channel: "C1", ThreadTS: "100.1",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, exec.calls)
	assert.Equal(t, "Done: move_stage", rep.last(t))

	_, ok := store.Get("C1:100.1")
	assert.False(t, ok, "action consumed")
}

func TestPositiveAckFromNonOwnerIsSilent(t *testing.T) {
	exec := &fakeExecutor{}
	rep := &fakeReplier{}
	c, store := newCoordinator(exec, rep)
	store.Put(proposal("alice"))

	err := c.HandleAck(context.Background(), AckEvent{
		Signal: Positive, Actor: "mallory", Coordinate: "C1:100.1", Channel: "C1", ThreadTS: "100.1",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, exec.calls, "nothing executed")
	assert.Empty(t, rep.replies, "nothing surfaced to the mismatched actor")

	// Still live for the real owner.
	_, ok := store.Get("C1:100.1")
	assert.True(t, ok)
}

func TestNegativeAckFromOwnerCancels(t *testing.T) {
	exec := &fakeExecutor{}
	rep := &fakeReplier{}
	c, store := newCoordinator(exec, rep)
	store.Put(proposal("alice"))

	err := c.HandleAck(context.Background(), AckEvent{
		Signal: Negative, Actor: "alice", Coordinate: "C1:100.1", Channel: "C1", ThreadTS: "100.1",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, exec.calls)
	assert.Contains(t, rep.last(t), "Cancelled")

	_, ok := store.Get("C1:100.1")
	assert.False(t, ok, "negative ack removes the action")
}

func TestAckOnUnknownCoordinateIsSilent(t *testing.T) {
	exec := &fakeExecutor{}
	rep := &fakeReplier{}
	c, _ := newCoordinator(exec, rep)

	err := c.HandleAck(context.Background(), AckEvent{
		Signal: Positive, Actor: "alice", Coordinate: "C1:999.9", Channel: "C1", ThreadTS: "999.9",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, exec.calls)
	assert.Empty(t, rep.replies)
}

func TestExecuteFailureIsScrubbedBeforeReply(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("ats call failed: api_key=topsecret123 rejected")}
	rep := &fakeReplier{}
	c, store := newCoordinator(exec, rep)
	store.Put(proposal("alice"))

	err := c.HandleAck(context.Background(), AckEvent{
		Signal: Positive, Actor: "alice", Coordinate: "C1:100.1", Channel: "C1", ThreadTS: "100.1",
	})
	require.NoError(t, err, "execution failure is reported, not propagated")
	reply := rep.last(t)
	assert.Contains(t, reply, "failed")
	assert.NotContains(t, reply, "topsecret123")
}

func TestDuplicateAcksExecuteOnce(t *testing.T) {
	exec := &fakeExecutor{}
	rep := &fakeReplier{}
	c, store := newCoordinator(exec, rep)
	store.Put(proposal("alice"))

	ev := AckEvent{Signal: Positive, Actor: "alice", Coordinate: "C1:100.1", Channel: "C1", ThreadTS: "100.1"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.HandleAck(context.Background(), ev)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, exec.calls, "concurrent duplicate acks must not double-execute")
}
