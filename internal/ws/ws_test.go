package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/tablesmith/tablesmith/internal/schema"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := runHub(t)
	client := &Client{hub: hub, send: make(chan []byte, 256)}

	hub.register <- client
	time.Sleep(50 * time.Millisecond)
	if got := hub.ClientCount(); got != 1 {
		t.Errorf("after register: ClientCount() = %d, want 1", got)
	}

	hub.unregister <- client
	time.Sleep(50 * time.Millisecond)
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("after unregister: ClientCount() = %d, want 0", got)
	}
}

func TestHubBroadcast_DropsSlowClient(t *testing.T) {
	hub := runHub(t)
	slow := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- slow
	time.Sleep(50 * time.Millisecond)

	slow.send <- []byte("filler")
	hub.Broadcast([]byte("overflow"))
	time.Sleep(50 * time.Millisecond)

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("slow client should be dropped, ClientCount() = %d, want 0", got)
	}
	if msg := <-slow.send; string(msg) != "filler" {
		t.Errorf("queued message = %q, want filler", msg)
	}
	if _, ok := <-slow.send; ok {
		t.Error("slow client's queue should be closed")
	}
}

func TestBroadcastDoesNotBlockWithoutRun(t *testing.T) {
	hub := NewHub(slog.Default())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast([]byte("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked with a full queue")
	}
}

func TestObserverBroadcastsPending(t *testing.T) {
	hub := runHub(t)
	client := &Client{hub: hub, send: make(chan []byte, 256)}
	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	hub.Observer("s1").PendingChanged("users", []schema.Event{
		schema.AddColumn{Column: "email", Type: schema.Text},
	})

	msg := receive(t, client)
	if msg.Type != MsgPendingChanged {
		t.Fatalf("type = %q, want %q", msg.Type, MsgPendingChanged)
	}
	var p PendingPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload error: %v", err)
	}
	if p.Session != "s1" || p.Table != "users" || len(p.Events) != 1 || p.Events[0].Kind != schema.KindAddColumn {
		t.Errorf("payload = %+v", p)
	}
}

func TestBroadcastCommittedAndError(t *testing.T) {
	hub := runHub(t)
	client := &Client{hub: hub, send: make(chan []byte, 256)}
	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	hub.BroadcastCommitted("s1", "users", []string{`ALTER TABLE "users" ADD COLUMN "email" TEXT`})
	hub.BroadcastError("something went wrong")
	hub.BroadcastSessionClosed("s1")

	if msg := receive(t, client); msg.Type != MsgCommitted {
		t.Errorf("type = %q, want %q", msg.Type, MsgCommitted)
	}
	msg := receive(t, client)
	var p map[string]string
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload error: %v", err)
	}
	if msg.Type != MsgError || p["message"] != "something went wrong" {
		t.Errorf("error message = %+v", msg)
	}
	if msg := receive(t, client); msg.Type != MsgSessionClosed {
		t.Errorf("type = %q, want %q", msg.Type, MsgSessionClosed)
	}
}

func TestNewMessage_NilPayload(t *testing.T) {
	data, err := NewMessage(MsgSync, nil)
	if err != nil {
		t.Fatalf("NewMessage error: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if msg.Type != MsgSync || msg.Payload != nil {
		t.Errorf("msg = %+v", msg)
	}
}

func TestWebSocketFullStateAndSync(t *testing.T) {
	hub := runHub(t)
	hub.SetStateProvider(func() ([]byte, error) {
		return []byte(`{"sessions":[]}`), nil
	})
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() Message {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	}

	if msg := read(); msg.Type != MsgFullState || string(msg.Payload) != `{"sessions":[]}` {
		t.Fatalf("first message = %+v", msg)
	}

	hub.BroadcastPending("s1", "users", nil)
	if msg := read(); msg.Type != MsgPendingChanged {
		t.Errorf("second message = %+v", msg)
	}

	syncMsg, _ := NewMessage(MsgSync, nil)
	if err := conn.Write(ctx, websocket.MessageText, syncMsg); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(); msg.Type != MsgFullState {
		t.Errorf("sync reply = %+v", msg)
	}
}
