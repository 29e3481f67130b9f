package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursecheck/pkg/contracts/domain"
	"coursecheck/pkg/contracts/events"
)

// dialTestClient upgrades a real connection against the hub and returns the
// client side.
func dialTestClient(t *testing.T, hub *Hub) *gorilla.Conn {
	t.Helper()

	upgrader := gorilla.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ServeWS(hub, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcastEvent(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	conn := dialTestClient(t, hub)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	hub.BroadcastEvent(events.TypeRunStarted, "run-1", events.RunStarted{TotalRows: 10, Source: "x.csv"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var env events.Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, events.TypeRunStarted, env.Type)
	assert.Equal(t, "run-1", env.RunID)
	assert.False(t, env.Timestamp.IsZero())

	data, _ := json.Marshal(env.Data)
	var started events.RunStarted
	require.NoError(t, json.Unmarshal(data, &started))
	assert.Equal(t, 10, started.TotalRows)
	assert.Equal(t, "x.csv", started.Source)
}

func TestHubClientDisconnect(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	conn := dialTestClient(t, hub)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHubStopIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	hub.Stop()
	hub.Stop()

	// Broadcasts after Stop must not block.
	done := make(chan struct{})
	go func() {
		hub.BroadcastEvent(events.TypeRunFailed, "run-1", events.RunFailed{Reason: "late"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("BroadcastEvent blocked after Stop")
	}
}

func TestHubUnregisterAfterStop(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	hub.Stop()

	// A read pump finishing after shutdown must not hang on unregister.
	done := make(chan struct{})
	go func() {
		hub.Unregister(&Client{send: make(chan []byte, 1)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Unregister blocked after Stop")
	}
}

func TestHubStats(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	conn := dialTestClient(t, hub)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	hub.BroadcastEvent(events.TypeRunStarted, "run-1", events.RunStarted{TotalRows: 1, Source: "x.csv"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	connections, messages := hub.Stats()
	assert.Equal(t, int64(1), connections)
	assert.Equal(t, int64(1), messages)
}

func TestProgressBroadcasterEvents(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	conn := dialTestClient(t, hub)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	b := NewProgressBroadcaster(hub, "catalog.xlsx")

	read := func() events.Envelope {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		var env events.Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		return env
	}

	b.Started("run-1", 2)
	assert.Equal(t, events.TypeRunStarted, read().Type)

	b.RowCompleted("run-1", domain.RowResult{
		Row:   domain.Row{Index: 0},
		Phase: domain.RowPhasePendingURL,
	})
	env := read()
	assert.Equal(t, events.TypeRowCompleted, env.Type)

	b.RowAmended("run-1", 0, nil)
	assert.Equal(t, events.TypeRowAmended, read().Type)

	b.Finished(&domain.ValidationResult{
		RunID:      "run-1",
		Status:     domain.RunStatusFinished,
		StartedAt:  time.Now().Add(-time.Second),
		FinishedAt: time.Now(),
	})
	assert.Equal(t, events.TypeRunFinished, read().Type)

	// The cancel event carries the planned total from the start event.
	b.Cancelled(&domain.ValidationResult{
		RunID:  "run-1",
		Status: domain.RunStatusCancelled,
		Rows:   []domain.RowResult{{Row: domain.Row{Index: 0}}},
	})
	env = read()
	assert.Equal(t, events.TypeRunCancelled, env.Type)

	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var cancelled events.RunCancelled
	require.NoError(t, json.Unmarshal(data, &cancelled))
	assert.Equal(t, 1, cancelled.RowsProcessed)
	assert.Equal(t, 2, cancelled.TotalRows)
}
