package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/chatcast/hub/internal/sink"
	"github.com/hazyhaar/chatcast/kit"
	"github.com/hazyhaar/chatcast/outcome"
)

const (
	feedWriteWait  = 5 * time.Second
	feedReadWait   = 60 * time.Second
	feedPingPeriod = feedReadWait * 9 / 10
	feedClientBuf  = 64
	feedMaxMessage = 1 << 20
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 16384,
	// The hub listens on loopback by default; browser extensions connect
	// with their own origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Feed pushes attempts, diagnoses and hub events to WebSocket clients.
// Clients may send Messages; each gets a "reply" frame. A client that
// cannot keep up loses frames rather than slowing the hub.
type Feed struct {
	hub    *Hub
	logger *slog.Logger

	// A client that sends neither frames nor pongs for readWait is dropped.
	// Pings every pingPeriod keep a listen-only client alive.
	readWait   time.Duration
	pingPeriod time.Duration

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *feedClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewFeed creates a feed whose client messages are served by h.
func NewFeed(h *Hub, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		hub:        h,
		logger:     logger,
		readWait:   feedReadWait,
		pingPeriod: feedPingPeriod,
		clients:    make(map[*feedClient]struct{}),
	}
}

// Clients is the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Publish sends one framed event to every client.
func (f *Feed) Publish(typ string, data any) {
	msg, err := json.Marshal(sink.Envelope(typ, data))
	if err != nil {
		f.logger.Warn("hub: feed marshal failed", "type", typ, "error", err)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- msg:
		default:
			f.logger.Debug("hub: feed client slow, frame dropped", "type", typ)
		}
	}
}

func (f *Feed) SendAttempt(_ context.Context, a *outcome.Attempt) error {
	f.Publish("attempt", a)
	return nil
}

func (f *Feed) SendDiagnosis(_ context.Context, d *outcome.Diagnosis) error {
	f.Publish("diagnosis", d)
	return nil
}

// Close disconnects every client.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		c.close()
		delete(f.clients, c)
	}
	return nil
}

func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	if _, ok := f.clients[c]; ok {
		delete(f.clients, c)
		c.close()
	}
	f.mu.Unlock()
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("hub: feed upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &feedClient{conn: conn, send: make(chan []byte, feedClientBuf)}
	hello, _ := json.Marshal(sink.Envelope("targets", f.hub.Targets()))
	c.send <- hello
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	ctx := kit.WithTransport(r.Context(), "ws")
	f.logger.Info("hub: feed client connected", "remote", r.RemoteAddr, "request_id", kit.GetRequestID(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.writeLoop(c)
	}()
	f.readLoop(ctx, c)
	f.remove(c)
	<-done
	conn.Close()
	f.logger.Info("hub: feed client disconnected", "remote", r.RemoteAddr)
}

func (f *Feed) writeLoop(c *feedClient) {
	ticker := time.NewTicker(f.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.abandon()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.abandon()
				return
			}
		}
	}
}

// abandon unblocks the reader and drains send until the feed closes it.
func (c *feedClient) abandon() {
	c.conn.Close()
	for range c.send {
	}
}

func (f *Feed) readLoop(ctx context.Context, c *feedClient) {
	c.conn.SetReadLimit(feedMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(f.readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(f.readWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(f.readWait))

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			f.reply(c, Reply{Error: "invalid message: " + err.Error()})
			continue
		}
		if m.Action == "ping" {
			continue
		}
		// Sends take seconds; keep reading meanwhile.
		go func() { f.reply(c, f.hub.Dispatch(ctx, m)) }()
	}
}

func (f *Feed) reply(c *feedClient, r Reply) {
	msg, err := json.Marshal(sink.Envelope("reply", r))
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
