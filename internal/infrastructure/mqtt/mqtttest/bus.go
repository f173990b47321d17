// Package mqtttest provides an in-memory message bus with the same
// publish/subscribe surface as mqtt.Client, for tests and offline runs.
package mqtttest

import (
	"sync"

	"github.com/nerrad567/services-client/internal/infrastructure/mqtt"
)

// Message is a single publish recorded by the Bus.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type subscription struct {
	filter  string
	handler mqtt.MessageHandler
}

// Bus is an in-process broker. Handlers are invoked synchronously on the
// publishing goroutine with no lock held, in subscription order.
type Bus struct {
	mu        sync.RWMutex
	subs      []subscription
	retained  map[string][]byte
	published []Message
	connected bool
}

// New returns a connected Bus.
func New() *Bus {
	return &Bus{
		retained:  make(map[string][]byte),
		connected: true,
	}
}

// Publish delivers payload to every subscription whose filter matches topic.
// A retained publish with an empty payload clears the retained message.
func (b *Bus) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return mqtt.ErrInvalidTopic
	}
	if qos > 2 {
		return mqtt.ErrInvalidQoS
	}

	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...), QoS: qos, Retained: retained}
	b.published = append(b.published, msg)
	if retained {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = msg.Payload
		}
	}
	var targets []mqtt.MessageHandler
	for _, s := range b.subs {
		if mqtt.Match(s.filter, topic) {
			targets = append(targets, s.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range targets {
		deliver(h, topic, msg.Payload)
	}
	return nil
}

// Subscribe registers handler for filter, replacing an earlier handler on
// the same filter. Matching retained messages are delivered immediately.
func (b *Bus) Subscribe(filter string, qos byte, handler mqtt.MessageHandler) error {
	if filter == "" {
		return mqtt.ErrInvalidTopic
	}
	if qos > 2 {
		return mqtt.ErrInvalidQoS
	}
	if handler == nil {
		return mqtt.ErrSubscribeFailed
	}

	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	replaced := false
	for i := range b.subs {
		if b.subs[i].filter == filter {
			b.subs[i].handler = handler
			replaced = true
			break
		}
	}
	if !replaced {
		b.subs = append(b.subs, subscription{filter: filter, handler: handler})
	}
	var pending []Message
	for topic, payload := range b.retained {
		if mqtt.Match(filter, topic) {
			pending = append(pending, Message{Topic: topic, Payload: payload, Retained: true})
		}
	}
	b.mu.Unlock()

	for _, m := range pending {
		deliver(handler, m.Topic, m.Payload)
	}
	return nil
}

// Unsubscribe removes the subscription for filter.
func (b *Bus) Unsubscribe(filter string) error {
	if filter == "" {
		return mqtt.ErrInvalidTopic
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return mqtt.ErrNotConnected
	}
	for i := range b.subs {
		if b.subs[i].filter == filter {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	return nil
}

// IsConnected reports the simulated connection state.
func (b *Bus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// SetConnected simulates a broker disconnect or reconnect. Subscriptions
// survive a disconnect, as they do on mqtt.Client.
func (b *Bus) SetConnected(connected bool) {
	b.mu.Lock()
	b.connected = connected
	b.mu.Unlock()
}

// Published returns a copy of every message published so far.
func (b *Bus) Published() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Message(nil), b.published...)
}

// PublishedTo returns the messages published on topics matching filter.
func (b *Bus) PublishedTo(filter string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Message
	for _, m := range b.published {
		if mqtt.Match(filter, m.Topic) {
			out = append(out, m)
		}
	}
	return out
}

// Retained returns the retained payload for topic, if any.
func (b *Bus) Retained(topic string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.retained[topic]
	return p, ok
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// deliver runs a handler, swallowing panics and errors the way the paho
// wrapper does.
func deliver(h mqtt.MessageHandler, topic string, payload []byte) {
	defer func() { _ = recover() }()
	_ = h(topic, payload)
}
