// Package alert implements named alert fan-out.
//
// Any number of handlers may subscribe to an alert name. Publishing a name
// invokes every handler subscribed at that moment, once each, in
// subscription order. A failing or panicking handler does not stop the
// rest; its error is collected and returned.
package alert

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Handler receives an alert name and its payload.
type Handler func(name, payload string) error

// SubscriptionID identifies one subscription for Unsubscribe.
type SubscriptionID uint64

type subscriber struct {
	id      SubscriptionID
	handler Handler
}

// Hub maps alert names to ordered subscriber lists.
//
// All public methods are thread-safe. Handlers run with no lock held and
// may subscribe, unsubscribe or publish from inside a handler.
type Hub struct {
	subs   map[string][]subscriber
	nextID SubscriptionID
	mu     sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]subscriber)}
}

// Subscribe adds handler to name. Subscribing the same handler twice
// yields two subscriptions.
func (h *Hub) Subscribe(name string, handler Handler) (SubscriptionID, error) {
	if name == "" {
		return 0, ErrInvalidName
	}
	if handler == nil {
		return 0, ErrNilHandler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs[name] = append(h.subs[name], subscriber{id: id, handler: handler})
	return id, nil
}

// Unsubscribe removes one subscription.
func (h *Hub) Unsubscribe(name string, id SubscriptionID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.subs[name]
	for i, s := range list {
		if s.id != id {
			continue
		}
		// Copy rather than splice in place: a concurrent Publish may be
		// iterating the old slice.
		next := make([]subscriber, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(h.subs, name)
		} else {
			h.subs[name] = next
		}
		return nil
	}
	return fmt.Errorf("%w: %s #%d", ErrSubscriptionNotFound, name, id)
}

// Publish invokes every handler subscribed to name and returns how many
// were invoked. Handler errors and recovered panics are joined into the
// returned error. Publishing to a name with no subscribers is not an error.
func (h *Hub) Publish(name, payload string) (int, error) {
	if name == "" {
		return 0, ErrInvalidName
	}

	h.mu.RLock()
	snapshot := h.subs[name]
	h.mu.RUnlock()

	var errs []error
	for _, s := range snapshot {
		if err := invoke(s, name, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return len(snapshot), errors.Join(errs...)
}

// Subscribers returns the number of subscriptions for name.
func (h *Hub) Subscribers(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[name])
}

// Names returns every alert name with at least one subscriber, sorted.
func (h *Hub) Names() []string {
	h.mu.RLock()
	names := make([]string, 0, len(h.subs))
	for name := range h.subs {
		names = append(names, name)
	}
	h.mu.RUnlock()

	sort.Strings(names)
	return names
}

func invoke(s subscriber, name, payload string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: subscription #%d: %v", ErrHandlerPanic, s.id, r)
		}
	}()
	if herr := s.handler(name, payload); herr != nil {
		return fmt.Errorf("subscription #%d: %w", s.id, herr)
	}
	return nil
}
