//go:build integration

package mqtt

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Integration tests for handler wrapping and callbacks.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors), len(l.warns)
}

// TestIntegration_HandlerPanicRecovered verifies a panicking handler is
// logged and does not stop later deliveries.
func TestIntegration_HandlerPanicRecovered(t *testing.T) {
	client, err := Connect(testConfig("services-integration-panic"), testTopics)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	logger := &recordingLogger{}
	client.SetLogger(logger)

	var calls atomic.Int32
	topic := testTopics.Alert("panic")
	err = client.Subscribe(topic, 1, func(string, []byte) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	for range 2 {
		if err := client.Publish(topic, []byte("x"), 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Fatalf("handler called %d times, want 2", calls.Load())
	}
	if errs, _ := logger.counts(); errs != 1 {
		t.Errorf("logged %d panics, want 1", errs)
	}
}

// TestIntegration_CallbacksRegistered verifies callbacks can be set and
// replaced without racing the connection handlers.
func TestIntegration_CallbacksRegistered(t *testing.T) {
	client, err := Connect(testConfig("services-integration-cb"), testTopics)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var connects atomic.Int32
	client.SetOnConnect(func() { connects.Add(1) })
	client.SetOnDisconnect(func(error) {})

	client.sessionUp()
	if connects.Load() != 1 {
		t.Errorf("onConnect called %d times, want 1", connects.Load())
	}
}

// TestIntegration_HandlerPublishes verifies a handler can publish a QoS 1
// reply while further requests keep arriving, as the slow-control
// responder does.
func TestIntegration_HandlerPublishes(t *testing.T) {
	responder, err := Connect(testConfig("services-integration-responder"), testTopics)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer responder.Close()
	logger := &recordingLogger{}
	responder.SetLogger(logger)

	requester, err := Connect(testConfig("services-integration-requester"), testTopics)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer requester.Close()

	requestTopic := testTopics.SlowControl("pump-ctl")
	replyTopic := testTopics.SlowControlReply("operator", "r1")

	err = responder.Subscribe(requestTopic, 1, func(_ string, payload []byte) error {
		return responder.Publish(replyTopic, payload, 1, false)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	var replies atomic.Int32
	err = requester.Subscribe(replyTopic, 1, func(string, []byte) error {
		replies.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	const n = 20
	start := time.Now()
	for range n {
		if err := requester.Publish(requestTopic, []byte(`{"command":"list"}`), 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for replies.Load() < n && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := replies.Load(); got != n {
		t.Fatalf("received %d replies in %v, want %d", got, time.Since(start), n)
	}
	if _, warns := logger.counts(); warns != 0 {
		t.Errorf("logged %d handler failures, want 0", warns)
	}
}
