package services

import (
	"time"

	"github.com/nerrad567/services-client/internal/backend"
	"github.com/nerrad567/services-client/internal/infrastructure/metrics"
)

// CallOption adjusts one facade call.
type CallOption func(*callOptions)

type callOptions struct {
	device    string
	timestamp time.Time
	timeout   time.Duration
	version   int
}

// WithDevice addresses the call to another device. Default: the service name.
func WithDevice(device string) CallOption {
	return func(o *callOptions) {
		if device != "" {
			o.device = device
		}
	}
}

// WithTimestamp sets the envelope timestamp. Default: now.
func WithTimestamp(ts time.Time) CallOption {
	return func(o *callOptions) {
		if !ts.IsZero() {
			o.timestamp = ts
		}
	}
}

// WithTimeout overrides the operation timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithVersion selects a stored version. Default: latest.
func WithVersion(v int) CallOption {
	return func(o *callOptions) {
		o.version = v
	}
}

func (s *Services) resolve(opts []CallOption) callOptions {
	o := callOptions{
		device:    s.cfg.Name,
		timestamp: time.Now(),
		timeout:   s.cfg.DefaultTimeout(),
		version:   backend.LatestVersion,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Services at construction.
type Option func(*Services)

// WithLogger sets the logger. Default: no-op.
func WithLogger(logger Logger) Option {
	return func(s *Services) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClientID sets the MQTT client ID replies are addressed to.
// Default: the service name.
func WithClientID(id string) Option {
	return func(s *Services) {
		if id != "" {
			s.clientID = id
		}
	}
}

// WithMetrics records request, alert and slow-control metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Services) {
		s.metrics = m
	}
}

// WithSpool enables store-and-forward for fire-and-forget requests.
func WithSpool(spool Spool) Option {
	return func(s *Services) {
		s.spool = spool
	}
}

// WithMirror copies monitoring data and slow-control changes to a time
// series store.
func WithMirror(mirror Mirror) Option {
	return func(s *Services) {
		s.mirror = mirror
	}
}

// WithEventSink receives alert and slow-control change events, e.g. for a
// WebSocket hub. It is called on the delivering goroutine.
func WithEventSink(sink func(channel string, payload any)) Option {
	return func(s *Services) {
		s.events = sink
	}
}
