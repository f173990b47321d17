package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/services-client/internal/services"
)

// Stream message types.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgEvent       = "event"
	MsgResponse    = "response"
	MsgError       = "error"
)

// StreamMessage is the envelope for every message on the event stream.
type StreamMessage struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// ChannelsPayload is the payload of subscribe and unsubscribe messages.
type ChannelsPayload struct {
	Channels []string `json:"channels"`
}

// inbound is a client message with its payload left undecoded.
type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Origins are enforced by the CORS middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type streamClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]struct{}
}

// knownChannel reports whether ch is an event channel the daemon emits.
func knownChannel(ch string) bool {
	return ch == services.EventAlert || ch == services.EventSlowControlChanged
}

// parseChannels splits a comma-separated channel list.
func parseChannels(raw string) []string {
	var out []string
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

func firstUnknown(channels []string) (string, bool) {
	for _, ch := range channels {
		if !knownChannel(ch) {
			return ch, true
		}
	}
	return "", false
}

// handleWebSocket upgrades to the event stream. The channels query
// parameter subscribes up front; clients may change their subscriptions
// later with subscribe and unsubscribe messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	initial := parseChannels(r.URL.Query().Get("channels"))
	if ch, bad := firstUnknown(initial); bad {
		writeBadRequest(w, "unknown channel: "+ch)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, clientBuffer),
		channels: make(map[string]struct{}, len(initial)),
	}
	c.setChannels(initial, true)
	s.hub.register(c)

	go c.writeLoop()
	go c.readLoop()
}

func (c *streamClient) readLoop() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	t := c.hub.timing
	c.conn.SetReadLimit(t.readLimit)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(t.readWait)) }
	extend() //nolint:errcheck // Read error surfaces below
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("stream read failed", "error", err)
			}
			return
		}
		// Application messages count as liveness too.
		extend() //nolint:errcheck // Read error surfaces on next read
		c.handle(data)
	}
}

func (c *streamClient) writeLoop() {
	t := c.hub.timing
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind = websocket.TextMessage
			data []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // Closing anyway
				return
			}
			data = msg
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(t.writeWait)) //nolint:errcheck // Write error surfaces below
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

func (c *streamClient) handle(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", MsgError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case MsgSubscribe, MsgUnsubscribe:
		c.updateChannels(msg)
	case MsgPing:
		c.reply(msg.ID, MsgPong, nil)
	default:
		c.reply(msg.ID, MsgError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func (c *streamClient) updateChannels(msg inbound) {
	var p ChannelsPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		c.reply(msg.ID, MsgError, map[string]string{"message": "invalid " + msg.Type + " payload"})
		return
	}

	subscribe := msg.Type == MsgSubscribe
	if subscribe {
		if ch, bad := firstUnknown(p.Channels); bad {
			c.reply(msg.ID, MsgError, map[string]string{"message": "unknown channel: " + ch})
			return
		}
	}
	c.setChannels(p.Channels, subscribe)

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
	}
	c.reply(msg.ID, MsgResponse, map[string][]string{key: p.Channels})
}

func (c *streamClient) setChannels(channels []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if on {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
}

func (c *streamClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// enqueue queues data without blocking and reports whether it was queued.
// A queue closed by a concurrent disconnect counts as not queued.
func (c *streamClient) enqueue(data []byte) (queued bool) {
	defer func() {
		if recover() != nil {
			queued = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *streamClient) reply(id, typ string, payload any) {
	data, err := json.Marshal(StreamMessage{
		Type:      typ,
		ID:        id,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err == nil {
		c.enqueue(data)
	}
}
