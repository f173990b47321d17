package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/services-client/internal/infrastructure/mqtt"
)

// DefaultAttemptTimeout is how long one exchange waits for its reply.
const DefaultAttemptTimeout = 500 * time.Millisecond

// Transport is the slice of the bus the client needs.
// Satisfied by *mqtt.Client and *mqtttest.Bus.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Client.
type Options struct {
	// ClientID addresses replies to this process. Required.
	ClientID string

	// Source tags every request. Defaults to ClientID.
	Source string

	// Topics is the topic tree in use.
	Topics mqtt.Topics

	// AttemptTimeout bounds one exchange. Default: DefaultAttemptTimeout.
	AttemptTimeout time.Duration

	// QoS for requests. Default: 1.
	QoS *byte

	Logger Logger
}

// Client performs single request/reply exchanges with the middleman.
// It borrows the transport and never closes it.
//
// All public methods are thread-safe.
type Client struct {
	transport Transport
	opts      Options
	qos       byte

	// pending maps request IDs to the channel awaiting their reply.
	pending   map[string]chan Response
	pendingMu sync.Mutex

	started bool
	startMu sync.Mutex
}

// New creates a client. Call Start before the first exchange, or let
// Exchange start it lazily.
func New(transport Transport, opts Options) *Client {
	if opts.Source == "" {
		opts.Source = opts.ClientID
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	qos := byte(1)
	if opts.QoS != nil {
		qos = *opts.QoS
	}
	return &Client{
		transport: transport,
		opts:      opts,
		qos:       qos,
		pending:   make(map[string]chan Response),
	}
}

// Start subscribes to this client's reply topic. Calling it again after a
// successful Start is a no-op.
func (c *Client) Start() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return nil
	}
	if c.opts.ClientID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidRequest)
	}
	if err := c.transport.Subscribe(c.opts.Topics.ClientReplies(c.opts.ClientID), c.qos, c.handleReply); err != nil {
		return fmt.Errorf("subscribing to replies: %w", err)
	}
	c.started = true
	return nil
}

// Close drops the reply subscription. In-flight exchanges time out.
func (c *Client) Close() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	if !c.transport.IsConnected() {
		return nil
	}
	return c.transport.Unsubscribe(c.opts.Topics.ClientReplies(c.opts.ClientID))
}

// Exchange makes exactly one request/reply attempt. It waits for the
// correlated reply for at most the attempt timeout, cut short by the
// request deadline or ctx.
//
// It returns false when there is no reply: the transport is down, the
// publish failed, or the wait expired. A reply with Success=false is still
// a reply and is returned with true.
func (c *Client) Exchange(ctx context.Context, req Request) (Response, bool) {
	if !c.transport.IsConnected() {
		return Response{}, false
	}
	if err := c.Start(); err != nil {
		c.opts.Logger.Debug("backend start failed", "error", err)
		return Response{}, false
	}

	wait := c.opts.AttemptTimeout
	if !req.Deadline.IsZero() {
		if until := time.Until(req.Deadline); until < wait {
			wait = until
		}
	}
	if wait <= 0 {
		return Response{}, false
	}

	req.RequestID = uuid.NewString()
	req.ReplyTo = c.opts.Topics.Reply(c.opts.ClientID, req.RequestID)
	c.stamp(&req)

	payload, err := req.Encode()
	if err != nil {
		c.opts.Logger.Warn("encoding request failed", "kind", string(req.Kind), "error", err)
		return Response{}, false
	}

	ch := make(chan Response, 1)
	c.pendingMu.Lock()
	c.pending[req.RequestID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.RequestID)
		c.pendingMu.Unlock()
	}()

	if err := c.transport.Publish(c.opts.Topics.Request(string(req.Kind)), payload, c.qos, false); err != nil {
		c.opts.Logger.Debug("request publish failed", "kind", string(req.Kind), "error", err)
		return Response{}, false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, true
	case <-timer.C:
		return Response{}, false
	case <-ctx.Done():
		return Response{}, false
	}
}

// Send publishes a request that expects no reply.
func (c *Client) Send(req Request) error {
	if !c.transport.IsConnected() {
		return ErrNotConnected
	}

	req.RequestID = uuid.NewString()
	req.ReplyTo = ""
	c.stamp(&req)

	payload, err := req.Encode()
	if err != nil {
		return err
	}
	if err := c.transport.Publish(c.opts.Topics.Request(string(req.Kind)), payload, c.qos, false); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// Publish sends an already-encoded request body on the topic for kind.
// Used to replay spooled requests.
func (c *Client) Publish(kind Kind, payload []byte) error {
	if !c.transport.IsConnected() {
		return ErrNotConnected
	}
	if err := c.transport.Publish(c.opts.Topics.Request(string(kind)), payload, c.qos, false); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// Pending returns the number of exchanges awaiting a reply.
func (c *Client) Pending() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

func (c *Client) stamp(req *Request) {
	if req.Source == "" {
		req.Source = c.opts.Source
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}
}

// handleReply routes a reply to the exchange waiting for it. Replies for
// unknown or expired requests are dropped.
func (c *Client) handleReply(topic string, payload []byte) error {
	resp, err := DecodeResponse(payload)
	if err != nil {
		return err
	}
	id := mqtt.LastLevel(topic)
	if resp.RequestID == "" {
		resp.RequestID = id
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	c.pendingMu.Unlock()

	if !ok {
		c.opts.Logger.Debug("dropping unmatched reply", "request_id", id)
		return nil
	}
	select {
	case ch <- resp:
	default:
	}
	return nil
}
