package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/services-client/internal/backend"
)

// Log severities understood by the middleman.
const (
	SeverityError   = 0
	SeverityWarning = 1
	SeverityInfo    = 2
	SeverityDebug   = 3
)

// SendLog publishes a log message without waiting for an acknowledgement.
// Messages beyond the configured rate are dropped with ErrRateLimited;
// when the transport is down they are spooled if a spool is configured.
func (s *Services) SendLog(ctx context.Context, message string, severity int, opts ...CallOption) error {
	if message == "" {
		return fmt.Errorf("%w: empty log message", ErrInvalidArgument)
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return ErrRateLimited
	}
	o := s.resolve(opts)
	return s.send(ctx, backend.Request{
		Kind:      backend.KindLog,
		Device:    o.device,
		Timestamp: o.timestamp.UnixMilli(),
		Payload:   message,
		Severity:  backend.Int(severity),
	})
}

// SendAlarm raises an alarm and waits for the middleman to record it.
func (s *Services) SendAlarm(ctx context.Context, message string, level int, opts ...CallOption) error {
	if message == "" {
		return fmt.Errorf("%w: empty alarm message", ErrInvalidArgument)
	}
	o := s.resolve(opts)
	_, err := s.call(ctx, backend.Request{
		Kind:      backend.KindAlarm,
		Device:    o.device,
		Timestamp: o.timestamp.UnixMilli(),
		Payload:   message,
		Level:     backend.Int(level),
	}, o.timeout)
	return err
}

// SendMonitoringData publishes a monitoring JSON object without waiting
// for an acknowledgement, and copies it to the mirror when one is set.
func (s *Services) SendMonitoringData(ctx context.Context, jsonData string, opts ...CallOption) error {
	if !json.Valid([]byte(jsonData)) {
		return fmt.Errorf("%w: monitoring data is not valid JSON", ErrInvalidArgument)
	}
	o := s.resolve(opts)
	if err := s.send(ctx, backend.Request{
		Kind:      backend.KindMonitoring,
		Device:    o.device,
		Timestamp: o.timestamp.UnixMilli(),
		Payload:   jsonData,
	}); err != nil {
		return err
	}

	if s.mirror != nil {
		if err := s.mirror.WriteMonitoring(o.device, jsonData, o.timestamp); err != nil {
			s.logger.Debug("monitoring mirror skipped", "device", o.device, "error", err)
		}
	}
	return nil
}
