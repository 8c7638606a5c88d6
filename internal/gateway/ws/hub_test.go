package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/remotepilot/daemon/internal/events"
)

func TestHub_BroadcastsStateAndLogFrames(t *testing.T) {
	bus := events.NewBus(16)
	hub := NewHub(bus)
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the server a moment to register the client before publishing.
	time.Sleep(50 * time.Millisecond)

	bus.Publish(events.NewStateEvent("task-1", "PLANNING"))
	bus.Publish(events.NewLogEvent("task-1", "planner", "generated 3 steps", events.SeverityInfo))

	_, data1, err := conn.Read(ctx)
	require.NoError(t, err)
	var f1 Frame
	require.NoError(t, json.Unmarshal(data1, &f1))
	require.Equal(t, "state", f1.Type)
	require.Equal(t, "task-1", f1.TaskID)

	_, data2, err := conn.Read(ctx)
	require.NoError(t, err)
	var f2 Frame
	require.NoError(t, json.Unmarshal(data2, &f2))
	require.Equal(t, "log", f2.Type)
}

func TestHub_SlowClientDoesNotBlockOthers(t *testing.T) {
	bus := events.NewBus(16)
	hub := NewHub(bus)
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	wsURL := "ws" + srv.URL[len("http"):]

	slow, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer slow.Close(websocket.StatusNormalClosure, "")

	fast, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer fast.Close(websocket.StatusNormalClosure, "")

	time.Sleep(50 * time.Millisecond)

	// Flood past the slow client's send buffer without ever reading from it.
	for i := 0; i < 512; i++ {
		bus.Publish(events.NewStateEvent("task-1", "ACT"))
	}

	// The fast client, which does read, must still receive frames.
	_, _, err = fast.Read(ctx)
	require.NoError(t, err)
}
