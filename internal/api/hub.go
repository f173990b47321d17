package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/services-client/internal/infrastructure/config"
	"github.com/nerrad567/services-client/internal/infrastructure/logging"
)

// clientBuffer is the per-client queue of encoded messages.
const clientBuffer = 256

// Hub fans facade events out to WebSocket clients by channel.
type Hub struct {
	timing streamTiming
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}

	dropped atomic.Uint64
}

// streamTiming holds the keepalive durations derived from config.
type streamTiming struct {
	readLimit int64
	ping      time.Duration
	readWait  time.Duration
	writeWait time.Duration
}

func newStreamTiming(cfg config.WebSocketConfig) streamTiming {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return streamTiming{
		readLimit: int64(cfg.MaxMessageSize),
		ping:      ping,
		readWait:  ping + pong,
		writeWait: pong,
	}
}

// NewHub creates a hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		timing:  newStreamTiming(cfg),
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
}

func (h *Hub) register(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", n)
}

// unregister removes c. Only the call that removes it closes its queue.
func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if present {
		close(c.send)
		h.logger.Debug("stream client disconnected", "clients", n)
	}
}

// Broadcast sends payload to every client subscribed to channel. It has
// the signature services.WithEventSink expects.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(StreamMessage{
		Type:      MsgEvent,
		Channel:   channel,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding stream event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribed(channel) && !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded because a client's queue
// was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
