package hub

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialFeed(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) (frame, []string) {
	t.Helper()
	var seen []string
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read (waiting for %s, seen %v): %v", typ, seen, err)
		}
		seen = append(seen, f.Type)
		if f.Type == typ {
			return f, seen
		}
	}
}

func TestFeedPushesAttempts(t *testing.T) {
	h, _ := testHub(t)
	h.OpenAll(t.Context())
	srv := httptest.NewServer(h.Handler(nil))
	defer srv.Close()

	conn := dialFeed(t, srv)
	hello, _ := readUntil(t, conn, "targets")
	var ts []TargetStatus
	if err := json.Unmarshal(hello.Data, &ts); err != nil || len(ts) != 3 {
		t.Fatalf("hello = %s", hello.Data)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.Feed().Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := h.SendToAll(t.Context(), "hello"); err != nil {
		t.Fatal(err)
	}
	f, seen := readUntil(t, conn, "broadcast")
	attempts := 0
	for _, s := range seen {
		if s == "attempt" {
			attempts++
		}
	}
	if attempts != 2 {
		t.Fatalf("frames = %v", seen)
	}
	var b Broadcast
	if err := json.Unmarshal(f.Data, &b); err != nil || !b.Success {
		t.Fatalf("broadcast = %s", f.Data)
	}
}

func TestFeedServesMessages(t *testing.T) {
	h, _ := testHub(t)
	srv := httptest.NewServer(h.Handler(nil))
	defer srv.Close()

	conn := dialFeed(t, srv)
	readUntil(t, conn, "targets")

	if err := conn.WriteJSON(Message{Action: "openAITabs", Sites: []string{"beta"}}); err != nil {
		t.Fatal(err)
	}
	f, _ := readUntil(t, conn, "reply")
	var r Reply
	if err := json.Unmarshal(f.Data, &r); err != nil || !r.Success || len(r.Tabs) != 1 {
		t.Fatalf("reply = %s", f.Data)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	f, _ = readUntil(t, conn, "reply")
	if err := json.Unmarshal(f.Data, &r); err != nil || r.Success || !strings.HasPrefix(r.Error, "invalid message") {
		t.Fatalf("reply = %s", f.Data)
	}
}

func TestFeedCloseDisconnects(t *testing.T) {
	h, _ := testHub(t)
	srv := httptest.NewServer(h.Handler(nil))
	defer srv.Close()

	conn := dialFeed(t, srv)
	readUntil(t, conn, "targets")
	deadline := time.Now().Add(2 * time.Second)
	for h.Feed().Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	h.Feed().Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("err = %v", err)
	}
}

func TestFeedKeepsIdleClientAlive(t *testing.T) {
	h, _ := testHub(t)
	h.Feed().readWait = 300 * time.Millisecond
	h.Feed().pingPeriod = 100 * time.Millisecond
	srv := httptest.NewServer(h.Handler(nil))
	defer srv.Close()

	conn := dialFeed(t, srv)
	var pings atomic.Int32
	conn.SetPingHandler(func(data string) error {
		pings.Add(1)
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.Feed().Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Several read waits pass without a single client frame.
	time.Sleep(time.Second)

	if n := h.Feed().Clients(); n != 1 {
		t.Fatalf("clients = %d after idle period", n)
	}
	if n := pings.Load(); n < 3 {
		t.Fatalf("pings = %d", n)
	}
}
