package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bingo-data/beamscope/internal/engine"
)

func waitForClients(t *testing.T, hub *ProgressHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetConnectedCount() != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.GetConnectedCount(); got != want {
		t.Fatalf("expected %d connected clients, got %d", want, got)
	}
}

func dialHub(t *testing.T, hub *ProgressHub) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn, srv
}

func TestProgressHubBroadcast(t *testing.T) {
	hub := NewProgressHub()
	events := make(chan engine.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, events)

	conn, _ := dialHub(t, hub)
	defer conn.Close()

	waitForClients(t, hub, 1)

	events <- engine.Event{
		Kind:    engine.EventProgress,
		TaskID:  7,
		Surface: engine.SurfaceCut,
		Percent: 50,
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got engine.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}

	if got.Kind != engine.EventProgress {
		t.Errorf("expected progress event, got %q", got.Kind)
	}
	if got.Surface != engine.SurfaceCut {
		t.Errorf("expected cut surface, got %q", got.Surface)
	}
	if got.TaskID != 7 {
		t.Errorf("expected task id 7, got %d", got.TaskID)
	}
	if got.Percent != 50 {
		t.Errorf("expected percent 50, got %g", got.Percent)
	}
}

func TestProgressHubBroadcastToAll(t *testing.T) {
	hub := NewProgressHub()
	events := make(chan engine.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, events)

	first, _ := dialHub(t, hub)
	defer first.Close()
	second, _ := dialHub(t, hub)
	defer second.Close()

	waitForClients(t, hub, 2)

	events <- engine.Event{Kind: engine.EventResult, TaskID: 3, Surface: engine.SurfaceGrid, Percent: 100}

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got engine.Event
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read event: %v", err)
		}
		if got.Kind != engine.EventResult || got.TaskID != 3 {
			t.Errorf("unexpected event: %+v", got)
		}
	}
}

func TestProgressHubClientDisconnect(t *testing.T) {
	hub := NewProgressHub()
	events := make(chan engine.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, events)

	conn, _ := dialHub(t, hub)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestProgressHubStopsWhenStreamCloses(t *testing.T) {
	hub := NewProgressHub()
	events := make(chan engine.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx, events)

	conn, _ := dialHub(t, hub)
	defer conn.Close()
	waitForClients(t, hub, 1)

	close(events)
	waitForClients(t, hub, 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the client connection to close with the hub")
	}
}

func TestProgressHubRejectsPlainHTTP(t *testing.T) {
	hub := NewProgressHub()

	req := httptest.NewRequest(http.MethodGet, "/ws/progress", nil)
	rr := httptest.NewRecorder()
	hub.HandleWebSocket(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a plain HTTP request, got %d", rr.Code)
	}
}
