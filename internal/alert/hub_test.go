package alert

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestPublish_NoSubscribers(t *testing.T) {
	h := NewHub()
	n, err := h.Publish("overtemp", "105C")
	if n != 0 || err != nil {
		t.Errorf("Publish() = (%d, %v), want (0, nil)", n, err)
	}
}

func TestPublish_RegistrationOrder(t *testing.T) {
	h := NewHub()
	var order []int
	for i := 1; i <= 3; i++ {
		if _, err := h.Subscribe("overtemp", func(string, string) error {
			order = append(order, i)
			return nil
		}); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	}

	n, err := h.Publish("overtemp", "x")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Publish() invoked %d, want 3", n)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("invocation order = %v, want [1 2 3]", order)
	}
}

func TestPublish_Payload(t *testing.T) {
	h := NewHub()
	calls := 0
	var gotName, gotPayload string
	_, _ = h.Subscribe("overtemp", func(name, payload string) error {
		calls++
		gotName, gotPayload = name, payload
		return nil
	})
	_, _ = h.Subscribe("undervolt", func(string, string) error {
		t.Error("unrelated subscriber invoked")
		return nil
	})

	if _, err := h.Publish("overtemp", "105C"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if calls != 1 || gotName != "overtemp" || gotPayload != "105C" {
		t.Errorf("handler called %d times with (%q, %q)", calls, gotName, gotPayload)
	}
}

func TestPublish_FailureIsolation(t *testing.T) {
	h := NewHub()
	boom := errors.New("disk full")
	reached := 0
	_, _ = h.Subscribe("a", func(string, string) error { return boom })
	_, _ = h.Subscribe("a", func(string, string) error { panic("nil map") })
	_, _ = h.Subscribe("a", func(string, string) error { reached++; return nil })

	n, err := h.Publish("a", "")
	if n != 3 {
		t.Errorf("Publish() invoked %d, want 3", n)
	}
	if reached != 1 {
		t.Errorf("last handler reached %d times, want 1", reached)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error %v does not wrap handler error", err)
	}
	if !errors.Is(err, ErrHandlerPanic) || !strings.Contains(err.Error(), "nil map") {
		t.Errorf("error %v does not report the panic", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	h := NewHub()
	calls := 0
	id, _ := h.Subscribe("a", func(string, string) error { calls++; return nil })
	_, _ = h.Subscribe("a", func(string, string) error { calls += 10; return nil })

	if err := h.Unsubscribe("a", id); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if err := h.Unsubscribe("a", id); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("second Unsubscribe() error = %v, want ErrSubscriptionNotFound", err)
	}

	_, _ = h.Publish("a", "")
	if calls != 10 {
		t.Errorf("calls = %d, want only the remaining handler", calls)
	}
	if h.Subscribers("a") != 1 {
		t.Errorf("Subscribers() = %d, want 1", h.Subscribers("a"))
	}
}

func TestSubscribe_Validation(t *testing.T) {
	h := NewHub()
	if _, err := h.Subscribe("", func(string, string) error { return nil }); !errors.Is(err, ErrInvalidName) {
		t.Errorf("empty name error = %v", err)
	}
	if _, err := h.Subscribe("a", nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("nil handler error = %v", err)
	}
}

func TestPublish_HandlerMayResubscribe(t *testing.T) {
	h := NewHub()
	var id SubscriptionID
	id, _ = h.Subscribe("once", func(name, _ string) error {
		return h.Unsubscribe(name, id)
	})

	if _, err := h.Publish("once", ""); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if n, _ := h.Publish("once", ""); n != 0 {
		t.Errorf("second Publish() invoked %d, want 0", n)
	}
	if len(h.Names()) != 0 {
		t.Errorf("Names() = %v, want empty", h.Names())
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	h := NewHub()
	var mu sync.Mutex
	total := 0
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.Subscribe("load", func(string, string) error {
				mu.Lock()
				total++
				mu.Unlock()
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = h.Publish("load", "")
		}()
	}
	wg.Wait()

	if h.Subscribers("load") != 10 {
		t.Errorf("Subscribers() = %d, want 10", h.Subscribers("load"))
	}
	if n, _ := h.Publish("load", ""); n != 10 {
		t.Errorf("Publish() = %d, want 10", n)
	}
}
