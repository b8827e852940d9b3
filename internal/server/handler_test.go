package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

func readMessage(t *testing.T, conn *websocket.Conn) models.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg models.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(hub.Clients()) != n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(hub.Clients()); got != n {
		t.Fatalf("clients = %d, want %d", got, n)
	}
}

func TestHub_SnapshotOnConnectAndTick(t *testing.T) {
	env := newTestEnv(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.srv.URL), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	msg := readMessage(t, conn)
	if msg.Type != models.MessageTypeSnapshot {
		t.Fatalf("first message type = %v, want snapshot", msg.Type)
	}
	var snap models.Snapshot
	if err := msg.UnmarshalPayload(&snap); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if snap.Tick != 0 || snap.Reading.VPD != 0.98 {
		t.Errorf("initial snapshot = tick %d vpd %v", snap.Tick, snap.Reading.VPD)
	}

	waitForClients(t, env.hub, 1)
	env.controller.Tick()

	msg = readMessage(t, conn)
	if err := msg.UnmarshalPayload(&snap); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if msg.Type != models.MessageTypeSnapshot || snap.Tick != 1 {
		t.Errorf("after tick: type %v tick %d, want snapshot tick 1", msg.Type, snap.Tick)
	}
	if len(snap.History) != 2 {
		t.Errorf("history = %d entries, want 2", len(snap.History))
	}

	// operator actions are pushed too
	env.controller.SetStage(models.StageFlowering)
	msg = readMessage(t, conn)
	if err := msg.UnmarshalPayload(&snap); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if snap.Stage != models.StageFlowering {
		t.Errorf("stage = %v, want Flowering", snap.Stage)
	}
}

func TestHub_RepliesErrorToClientMessages(t *testing.T) {
	env := newTestEnv(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.srv.URL), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	readMessage(t, conn) // initial snapshot
	waitForClients(t, env.hub, 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"set_stage"}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != models.MessageTypeError {
		t.Fatalf("reply type = %v, want error", msg.Type)
	}
	var payload models.ErrorMessage
	if err := msg.UnmarshalPayload(&payload); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if payload.Code != "read_only" {
		t.Errorf("code = %q, want read_only", payload.Code)
	}

	// the connection stays usable
	waitForClients(t, env.hub, 1)
	env.controller.Tick()
	if msg := readMessage(t, conn); msg.Type != models.MessageTypeSnapshot {
		t.Errorf("after error frame: type %v, want snapshot", msg.Type)
	}
}

func TestHub_AdvisoryBroadcast(t *testing.T) {
	env := newTestEnv(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.srv.URL), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)
	waitForClients(t, env.hub, 1)

	env.hub.BroadcastAdvisory(models.AdvisoryReport{ID: "abc", Status: models.AdvisorySettled, Text: "No response"})

	msg := readMessage(t, conn)
	if msg.Type != models.MessageTypeAdvisory {
		t.Fatalf("type = %v, want advisory", msg.Type)
	}
	var report models.AdvisoryReport
	if err := msg.UnmarshalPayload(&report); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if report.ID != "abc" || report.Text != "No response" {
		t.Errorf("report = %+v", report)
	}
}

func TestHub_OriginAllowlist(t *testing.T) {
	env := newTestEnv(t, nil)
	env.hub.allowedOrigins = []string{"http://dashboard.local"}

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(env.srv.URL), header)
	if err == nil {
		t.Fatal("Dial should fail for a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}

	header.Set("Origin", "http://dashboard.local")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.srv.URL), header)
	if err != nil {
		t.Fatalf("Dial from allowed origin: %v", err)
	}
	conn.Close()
}

func TestHub_CheckOrigin(t *testing.T) {
	hub := NewHub(func() models.Snapshot { return models.Snapshot{} }, zerolog.Nop(), "http://allowed.local")

	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "localhost:8081", true},
		{"same host", "http://localhost:8081", "localhost:8081", true},
		{"allowlisted", "http://allowed.local", "localhost:8081", true},
		{"foreign", "http://evil.example", "localhost:8081", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodGet, "http://"+tt.host+"/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := hub.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(func() models.Snapshot { return models.Snapshot{} }, zerolog.Nop())

	slow := &Client{RemoteAddr: "slow", send: make(chan []byte, 1)}
	fast := &Client{RemoteAddr: "fast", send: make(chan []byte, sendBufferSize)}
	hub.clients[slow] = struct{}{}
	hub.clients[fast] = struct{}{}

	hub.Observe(models.Snapshot{Tick: 1})
	hub.Observe(models.Snapshot{Tick: 2})

	if got := len(hub.Clients()); got != 1 {
		t.Fatalf("clients = %d, want 1 after dropping the slow one", got)
	}
	if _, ok := hub.clients[fast]; !ok {
		t.Error("fast client should remain")
	}
	if len(fast.send) != 2 {
		t.Errorf("fast client queued %d messages, want 2", len(fast.send))
	}
	// slow client's channel is closed after its one buffered message
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("slow client's send channel should be closed")
	}
}

func TestHub_CloseDisconnects(t *testing.T) {
	env := newTestEnv(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.srv.URL), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)
	waitForClients(t, env.hub, 1)

	env.hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}
	if len(env.hub.Clients()) != 0 {
		t.Errorf("clients = %d after Close, want 0", len(env.hub.Clients()))
	}
}
