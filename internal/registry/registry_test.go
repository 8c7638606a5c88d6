package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/remotepilot/daemon/internal/events"
	"github.com/remotepilot/daemon/internal/task"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	r := New(16)
	id := r.Create("open notepad")

	snap, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, task.StateIdle, snap.Status)
	require.Equal(t, "open notepad", snap.Goal)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := New(16)
	_, err := r.Get("no-such-id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_SetStateBroadcasts(t *testing.T) {
	r := New(16)
	id := r.Create("goal")

	ch, unsub := r.Subscribe(id)
	defer unsub()

	r.SetState(id, task.StatePlanning)

	select {
	case e := <-ch:
		require.Equal(t, events.EventState, e.Type)
		payload, ok := e.Data.(events.StatePayload)
		require.True(t, ok)
		require.Equal(t, "PLANNING", payload.Status)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for state event")
	}

	snap, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, task.StatePlanning, snap.Status)
}

func TestRegistry_LogAppendsBeforeBroadcast(t *testing.T) {
	r := New(16)
	id := r.Create("goal")

	ch, unsub := r.Subscribe(id)
	defer unsub()

	r.Log(id, "planner", "generated 3 steps", task.SeverityInfo)

	select {
	case e := <-ch:
		require.Equal(t, events.EventLog, e.Type)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for log event")
	}

	snap, err := r.Get(id)
	require.NoError(t, err)
	require.Len(t, snap.Logs, 1)
	require.Equal(t, "generated 3 steps", snap.Logs[0].Message)
}

func TestRegistry_SubscriberDroppedOnBacklogOverflow(t *testing.T) {
	r := New(2)
	id := r.Create("goal")

	ch, _ := r.Subscribe(id)

	// Overflow the backlog without ever draining the channel.
	for i := 0; i < 10; i++ {
		r.Log(id, "planner", "spam", task.SeverityInfo)
	}

	// The channel must have been closed and removed: draining it yields
	// at most `backlog` buffered events, then a closed read.
	drained := 0
	for range ch {
		drained++
	}
	require.LessOrEqual(t, drained, 2)

	// The task itself is unaffected: further operations still work.
	r.SetState(id, task.StateDone)
	snap, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, task.StateDone, snap.Status)
}

func TestRegistry_MultipleSubscribersIndependentOrder(t *testing.T) {
	r := New(16)
	id := r.Create("goal")

	ch1, unsub1 := r.Subscribe(id)
	defer unsub1()
	ch2, unsub2 := r.Subscribe(id)
	defer unsub2()

	r.SetState(id, task.StatePlanning)
	r.Log(id, "planner", "hi", task.SeverityInfo)

	e1a := <-ch1
	e1b := <-ch1
	e2a := <-ch2
	e2b := <-ch2

	require.Equal(t, events.EventState, e1a.Type)
	require.Equal(t, events.EventLog, e1b.Type)
	require.Equal(t, events.EventState, e2a.Type)
	require.Equal(t, events.EventLog, e2b.Type)
}
