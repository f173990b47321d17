package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/services-client/internal/alert"
	"github.com/nerrad567/services-client/internal/infrastructure/mqtt"
)

// AlertMessage is the envelope published on an alert topic.
type AlertMessage struct {
	Source    string `json:"source"`
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// AlertEvent is emitted to the event sink for every inbound alert.
type AlertEvent struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	Payload string `json:"payload"`
}

// AlertSubscribe registers a handler for the named alert. Handlers run on
// the delivering goroutine; keep them short.
func (s *Services) AlertSubscribe(name string, handler alert.Handler) (alert.SubscriptionID, error) {
	if !mqtt.ValidLevel(name) {
		return 0, fmt.Errorf("%w: alert name %q", ErrInvalidArgument, name)
	}
	id, err := s.alerts.Subscribe(name, handler)
	if err != nil {
		return 0, err
	}
	if s.isInitialized() {
		if err := s.ensureAlertBus(); err != nil {
			_ = s.alerts.Unsubscribe(name, id)
			return 0, err
		}
	}
	return id, nil
}

// AlertUnsubscribe removes a handler registered with AlertSubscribe.
func (s *Services) AlertUnsubscribe(name string, id alert.SubscriptionID) error {
	return s.alerts.Unsubscribe(name, id)
}

// AlertSend publishes an alert to every subscriber on the bus, this
// process included.
func (s *Services) AlertSend(ctx context.Context, name, payload string) error {
	if !mqtt.ValidLevel(name) {
		return fmt.Errorf("%w: alert name %q", ErrInvalidArgument, name)
	}
	if !s.isInitialized() {
		return ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(AlertMessage{
		Source:    s.cfg.Name,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}
	if err := s.transport.Publish(s.topics.Alert(name), data, 1, false); err != nil {
		return fmt.Errorf("sending alert %s: %w", name, err)
	}
	return nil
}

// ensureAlertBus subscribes the alert wildcard once.
func (s *Services) ensureAlertBus() error {
	s.alertBusMu.Lock()
	defer s.alertBusMu.Unlock()
	if s.alertBus {
		return nil
	}
	if err := s.transport.Subscribe(s.topics.AllAlerts(), 1, s.handleAlert); err != nil {
		return fmt.Errorf("subscribing to alerts: %w", err)
	}
	s.alertBus = true
	return nil
}

// handleAlert fans an inbound alert out to local handlers.
func (s *Services) handleAlert(topic string, payload []byte) error {
	name := mqtt.LastLevel(topic)

	var msg AlertMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding alert %s: %w", name, err)
	}

	s.metrics.AlertPublished(name)
	s.emit(EventAlert, AlertEvent{Name: name, Source: msg.Source, Payload: msg.Payload})

	n, err := s.alerts.Publish(name, msg.Payload)
	if err != nil {
		s.logger.Warn("alert handler failed", "alert", name, "handlers", n, "error", err)
	}
	return nil
}
