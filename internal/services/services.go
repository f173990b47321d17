package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nerrad567/services-client/internal/alert"
	"github.com/nerrad567/services-client/internal/backend"
	"github.com/nerrad567/services-client/internal/infrastructure/config"
	"github.com/nerrad567/services-client/internal/infrastructure/metrics"
	"github.com/nerrad567/services-client/internal/infrastructure/mqtt"
	"github.com/nerrad567/services-client/internal/outbox"
	"github.com/nerrad567/services-client/internal/retry"
	"github.com/nerrad567/services-client/internal/slowcontrol"
)

// Logger defines the logging interface used by the facade.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Spool stores fire-and-forget requests while the broker is unreachable.
// Satisfied by *outbox.Store.
type Spool interface {
	Enqueue(ctx context.Context, kind string, payload []byte) (int64, error)
	Drain(ctx context.Context, send func(outbox.Message) error) (int, error)
	Len(ctx context.Context) (int, error)
}

// Mirror receives a copy of monitoring data and slow-control changes.
// Satisfied by *influxdb.Client.
type Mirror interface {
	WriteMonitoring(device, jsonData string, ts time.Time) error
	WriteSlowControlChange(service, variable, value string)
}

// Event channels passed to the event sink.
const (
	EventAlert              = "alert"
	EventSlowControlChanged = "slowcontrol.changed"
)

// Services is the facade a process uses to talk to the middleman, expose
// slow-control variables and exchange alerts.
//
// It borrows the transport and never closes or reconnects it. The service
// name given in the configuration tags every outbound envelope and is
// fixed for the life of the Services.
//
// All public methods are thread-safe.
type Services struct {
	cfg       config.ServicesConfig
	clientID  string
	topics    mqtt.Topics
	transport backend.Transport
	backend   *backend.Client
	vars      *slowcontrol.Registry
	alerts    *alert.Hub
	limiter   *rate.Limiter

	logger  Logger
	metrics *metrics.Metrics
	spool   Spool
	mirror  Mirror
	events  func(channel string, payload any)

	initMu      sync.Mutex
	initialized bool

	// alertBus is true once the alert wildcard topic is subscribed.
	alertBus   bool
	alertBusMu sync.Mutex

	drainMu sync.Mutex

	// setReplies remembers answers to remote set requests so a request
	// retried by its sender is not applied twice.
	setReplies replyCache
}

// New creates a facade over transport. vars may be nil, in which case an
// empty registry is created. Call Init before any remote operation.
func New(cfg config.ServicesConfig, transport backend.Transport, vars *slowcontrol.Registry, opts ...Option) *Services {
	if vars == nil {
		vars = slowcontrol.New()
	}
	s := &Services{
		cfg:       cfg,
		clientID:  cfg.Name,
		topics:    mqtt.NewTopics(cfg.TopicPrefix),
		transport: transport,
		vars:      vars,
		alerts:    alert.NewHub(),
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.DefaultTimeoutMS <= 0 {
		s.cfg.DefaultTimeoutMS = 1800
	}
	if cfg.ReadyTimeoutMS <= 0 {
		s.cfg.ReadyTimeoutMS = 10000
	}
	if cfg.AttemptTimeoutMS <= 0 {
		s.cfg.AttemptTimeoutMS = int(backend.DefaultAttemptTimeout / time.Millisecond)
	}
	if cfg.LogRatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.LogRatePerSec), cfg.LogRatePerSec)
	}

	s.backend = backend.New(transport, backend.Options{
		ClientID:       s.clientID,
		Source:         cfg.Name,
		Topics:         s.topics,
		AttemptTimeout: s.cfg.AttemptTimeout(),
		Logger:         s.logger,
	})
	return s
}

// Init starts the reply subscription, begins answering slow-control
// requests, subscribes to alerts if any handler is registered, announces
// the service when configured as new, and replays spooled requests.
//
// Init is idempotent: once it has succeeded, later calls return nil. A
// failed Init (typically a disconnected transport) may be retried.
func (s *Services) Init(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}
	if s.cfg.Name == "" || !mqtt.ValidLevel(s.cfg.Name) {
		return fmt.Errorf("%w: service name %q", ErrInvalidArgument, s.cfg.Name)
	}

	if err := s.backend.Start(); err != nil {
		return fmt.Errorf("starting backend client: %w", err)
	}
	if err := s.transport.Subscribe(s.topics.SlowControl(s.cfg.Name), 1, s.handleSlowControl); err != nil {
		return fmt.Errorf("subscribing to slow-control requests: %w", err)
	}
	s.vars.SetOnChange(s.changed)

	if len(s.alerts.Names()) > 0 {
		if err := s.ensureAlertBus(); err != nil {
			return err
		}
	}

	s.initialized = true

	if s.cfg.NewService {
		s.announce()
	}
	if _, err := s.DrainOutbox(ctx); err != nil {
		s.logger.Warn("outbox drain at init failed", "error", err)
	}

	s.logger.Info("services client initialised",
		"service", s.cfg.Name,
		"client_id", s.clientID,
		"variables", s.vars.Len(),
	)
	return nil
}

// Close withdraws the service's presence and drops its subscriptions.
// The transport stays open.
func (s *Services) Close() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if !s.initialized {
		return nil
	}
	s.initialized = false

	var errs []error
	if s.transport.IsConnected() {
		if s.cfg.NewService {
			errs = append(errs, s.transport.Publish(s.topics.Discovery(s.cfg.Name), nil, 1, true))
		}
		errs = append(errs, s.transport.Unsubscribe(s.topics.SlowControl(s.cfg.Name)))
	}

	s.alertBusMu.Lock()
	if s.alertBus && s.transport.IsConnected() {
		errs = append(errs, s.transport.Unsubscribe(s.topics.AllAlerts()))
	}
	s.alertBus = false
	s.alertBusMu.Unlock()

	errs = append(errs, s.backend.Close())
	return errors.Join(errs...)
}

func (s *Services) isInitialized() bool {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.initialized
}

// DeviceName returns the service name that tags outbound envelopes.
func (s *Services) DeviceName() string {
	return s.cfg.Name
}

// Ready reports whether the middleman answers within timeout. A
// non-positive timeout uses the configured ready timeout (10s by default,
// two discovery broadcast periods plus margin).
func (s *Services) Ready(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.cfg.ReadyTimeout()
	}
	_, err := s.call(ctx, backend.Request{Kind: backend.KindReady, Device: s.cfg.Name}, timeout)
	return err == nil
}

// call drives acknowledged exchanges through the deadline retry loop.
func (s *Services) call(ctx context.Context, req backend.Request, timeout time.Duration) (backend.Response, error) {
	if !s.isInitialized() {
		return backend.Response{}, ErrNotReady
	}
	req.Deadline = time.Now().Add(timeout).UTC()

	var outcome retry.Outcome
	resp, ok := retry.CallForDuration(ctx, timeout,
		func() (backend.Response, bool) { return s.backend.Exchange(ctx, req) },
		retry.WithObserver(func(o retry.Outcome) { outcome = o }),
	)

	kind := string(req.Kind)
	switch {
	case !ok:
		s.metrics.ObserveRequest(kind, metrics.OutcomeTimeout, outcome.Attempts, outcome.Elapsed)
		s.logger.Debug("request timed out",
			"kind", kind,
			"attempts", outcome.Attempts,
			"reason", outcome.Reason.String(),
		)
		if err := ctx.Err(); err != nil {
			return backend.Response{}, fmt.Errorf("%w: %s: %w", ErrTimeout, kind, err)
		}
		return backend.Response{}, fmt.Errorf("%w: %s after %v", ErrTimeout, kind, timeout)
	case !resp.Success:
		s.metrics.ObserveRequest(kind, metrics.OutcomeRejected, outcome.Attempts, outcome.Elapsed)
		return resp, fmt.Errorf("%w: %s: %s", ErrRejected, kind, resp.Error)
	default:
		s.metrics.ObserveRequest(kind, metrics.OutcomeSuccess, outcome.Attempts, outcome.Elapsed)
		return resp, nil
	}
}

// send publishes a fire-and-forget request, spooling it when the
// transport is down and a spool is configured.
func (s *Services) send(ctx context.Context, req backend.Request) error {
	if !s.isInitialized() {
		return ErrNotReady
	}
	kind := string(req.Kind)

	err := s.backend.Send(req)
	if err == nil {
		s.metrics.CountRequest(kind, metrics.OutcomeSent)
		return nil
	}
	if s.spool == nil || errors.Is(err, backend.ErrInvalidRequest) {
		s.metrics.CountRequest(kind, metrics.OutcomeError)
		return fmt.Errorf("sending %s: %w", kind, err)
	}

	req.RequestID = uuid.NewString()
	req.Source = s.cfg.Name
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}
	payload, encErr := req.Encode()
	if encErr != nil {
		return encErr
	}
	if _, spoolErr := s.spool.Enqueue(ctx, kind, payload); spoolErr != nil {
		s.metrics.CountRequest(kind, metrics.OutcomeError)
		return fmt.Errorf("sending %s: %w", kind, errors.Join(err, spoolErr))
	}
	s.metrics.CountRequest(kind, metrics.OutcomeSpooled)
	s.updateOutboxDepth(ctx)
	s.logger.Debug("request spooled", "kind", kind, "cause", err)
	return nil
}

// DrainOutbox replays spooled requests oldest first, stopping at the first
// failure. Wire it to the transport's reconnect callback. It returns the
// number delivered.
func (s *Services) DrainOutbox(ctx context.Context) (int, error) {
	if s.spool == nil || !s.transport.IsConnected() {
		return 0, nil
	}
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	n, err := s.spool.Drain(ctx, func(m outbox.Message) error {
		return s.backend.Publish(backend.Kind(m.Kind), m.Payload)
	})
	s.updateOutboxDepth(ctx)
	if n > 0 {
		s.logger.Info("outbox drained", "delivered", n)
	}
	return n, err
}

// OutboxDepth returns the number of spooled requests; 0 without a spool.
func (s *Services) OutboxDepth(ctx context.Context) int {
	if s.spool == nil {
		return 0
	}
	n, err := s.spool.Len(ctx)
	if err != nil {
		s.logger.Warn("reading outbox depth failed", "error", err)
		return 0
	}
	return n
}

func (s *Services) updateOutboxDepth(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.SetOutboxDepth(s.OutboxDepth(ctx))
	}
}

// announcement is the retained presence record on the discovery topic.
type announcement struct {
	Service   string   `json:"service"`
	ClientID  string   `json:"client_id"`
	Status    string   `json:"status"`
	Variables []string `json:"variables"`
	Timestamp int64    `json:"timestamp"`
}

// announce publishes the retained presence record. Errors are logged.
func (s *Services) announce() {
	data, err := json.Marshal(announcement{
		Service:   s.cfg.Name,
		ClientID:  s.clientID,
		Status:    "online",
		Variables: s.vars.Names(),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	if err := s.transport.Publish(s.topics.Discovery(s.cfg.Name), data, 1, true); err != nil {
		s.logger.Warn("announcing service failed", "error", err)
	}
}

func (s *Services) emit(channel string, payload any) {
	if s.events != nil {
		s.events(channel, payload)
	}
}

// Status is a point-in-time summary for health endpoints.
type Status struct {
	Service     string   `json:"service"`
	ClientID    string   `json:"client_id"`
	Initialized bool     `json:"initialized"`
	Connected   bool     `json:"connected"`
	Variables   int      `json:"variables"`
	Alerts      []string `json:"alerts"`
	Pending     int      `json:"pending"`
	OutboxDepth int      `json:"outbox_depth"`
}

// Status reports the facade's current state.
func (s *Services) Status(ctx context.Context) Status {
	return Status{
		Service:     s.cfg.Name,
		ClientID:    s.clientID,
		Initialized: s.isInitialized(),
		Connected:   s.transport.IsConnected(),
		Variables:   s.vars.Len(),
		Alerts:      s.alerts.Names(),
		Pending:     s.backend.Pending(),
		OutboxDepth: s.OutboxDepth(ctx),
	}
}
